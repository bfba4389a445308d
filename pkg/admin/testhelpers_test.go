package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txn2/presence/pkg/audit"
	"github.com/txn2/presence/pkg/relation"
)

var (
	errTestDB     = errors.New("db error")
	testEventTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// --- Mock AuditQuerier ---

type mockAuditQuerier struct {
	queryResult []audit.Event
	queryErr    error
	countResult int
	countErr    error

	filters []audit.QueryFilter
}

func (m *mockAuditQuerier) Query(_ context.Context, f audit.QueryFilter) ([]audit.Event, error) {
	m.filters = append(m.filters, f)
	return m.queryResult, m.queryErr
}

func (m *mockAuditQuerier) Count(_ context.Context, f audit.QueryFilter) (int, error) {
	m.filters = append(m.filters, f)
	return m.countResult, m.countErr
}

// Verify interface compliance.
var _ AuditQuerier = (*mockAuditQuerier)(nil)

// --- Mock relation reader ---

type failingReader struct {
	relation.Reader
	failOn string
}

func (f failingReader) FindIDByName(ctx context.Context, name string) (int64, error) {
	if f.failOn == "find" {
		return 0, errTestDB
	}
	return f.Reader.FindIDByName(ctx, name)
}

func (f failingReader) ListFoes(ctx context.Context, id int64) ([]string, error) {
	if f.failOn == "foes" {
		return nil, errTestDB
	}
	return f.Reader.ListFoes(ctx, id)
}

type failingCreator struct{}

func (failingCreator) CreateIdentity(context.Context, string) (int64, error) {
	return 0, errTestDB
}

// serve runs one request through h.
func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.NotNil(t, w)
	return w
}
