package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAPIKey = "admin-key"

// --- mockAuthenticator ---

type mockAuthenticator struct {
	user *User
	err  error
}

func (m *mockAuthenticator) Authenticate(_ *http.Request) (*User, error) {
	return m.user, m.err
}

// Verify interface compliance.
var _ Authenticator = (*mockAuthenticator)(nil)

func TestGetUser(t *testing.T) {
	t.Run("returns user when set in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), adminUserKey, &User{Name: "ops"})
		result := GetUser(ctx)
		require.NotNil(t, result)
		assert.Equal(t, "ops", result.Name)
	})

	t.Run("returns nil when not set", func(t *testing.T) {
		assert.Nil(t, GetUser(context.Background()))
	})

	t.Run("returns nil for wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), adminUserKey, "not-an-admin-user")
		assert.Nil(t, GetUser(ctx))
	})
}

func TestAPIKeyAuthenticator(t *testing.T) {
	a := &APIKeyAuthenticator{Keys: map[string]User{testAPIKey: {Name: "ops"}}}

	tests := []struct {
		name     string
		header   string
		value    string
		wantUser bool
	}{
		{"x-api-key", "X-API-Key", testAPIKey, true},
		{"bearer", "Authorization", "Bearer " + testAPIKey, true},
		{"wrong key", "X-API-Key", "nope", false},
		{"no credentials", "", "", false},
		{"basic auth ignored", "Authorization", "Basic abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			user, err := a.Authenticate(req)
			require.NoError(t, err)
			if tt.wantUser {
				require.NotNil(t, user)
				assert.Equal(t, "ops", user.Name)
			} else {
				assert.Nil(t, user)
			}
		})
	}
}

func TestAPIKeyAuthenticator_Hashed(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	require.NoError(t, err)
	a := &APIKeyAuthenticator{Hashed: []HashedKey{{Hash: hash, User: User{Name: "auditor"}}}}

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-API-Key", "hashed-key")
	user, err := a.Authenticate(req)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "auditor", user.Name)

	req.Header.Set("X-API-Key", "other-key")
	user, err = a.Authenticate(req)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRequireAdmin(t *testing.T) {
	var seen *User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name string
		auth Authenticator
		want int
	}{
		{"authenticated", &mockAuthenticator{user: &User{Name: "ops"}}, http.StatusNoContent},
		{"unauthenticated", &mockAuthenticator{}, http.StatusUnauthorized},
		{"error", &mockAuthenticator{err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			w := httptest.NewRecorder()
			RequireAdmin(tt.auth)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "ops", seen.Name)
			}
		})
	}
}

func TestHandler_UsesAuthMiddleware(t *testing.T) {
	auth := &APIKeyAuthenticator{Keys: map[string]User{testAPIKey: {Name: "ops"}}}
	h := NewHandler(Deps{}, RequireAdmin(auth))

	w := serve(t, h, http.MethodGet, Prefix+"/system/info", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, Prefix+"/system/info", http.NoBody)
	req.Header.Set("X-API-Key", testAPIKey)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
