package admin

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/txn2/presence/pkg/audit"
)

func TestGetSystemInfo(t *testing.T) {
	t.Run("reports features and stats", func(t *testing.T) {
		h := NewHandler(Deps{
			AuditQuerier:      audit.NewMemoryLogger(0),
			DatabaseAvailable: true,
			Stats:             func() any { return map[string]int{"connections": 2} },
		}, nil)

		w := serve(t, h, http.MethodGet, Prefix+"/system/info", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t,
			`{"features":{"audit":true,"database":true,"identities":false},"stats":{"connections":2}}`,
			w.Body.String())
	})

	t.Run("minimal", func(t *testing.T) {
		h := NewHandler(Deps{}, nil)

		w := serve(t, h, http.MethodGet, Prefix+"/system/info", "")

		assert.JSONEq(t, `{"features":{"audit":false,"database":false,"identities":false}}`, w.Body.String())
	})
}
