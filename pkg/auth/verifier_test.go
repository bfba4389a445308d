package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSubject  = "alice"
	testAudience = "chat"
	testTTL      = 30 * time.Second
	testKeyBits  = 2048
	testKeyPerms = 0o600
)

var testSigningKey = []byte("test-signing-key-at-least-32-bytes-long")

func signHS256(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": testSubject,
		"aud": testAudience,
		"iat": now.Unix(),
		"exp": now.Add(testTTL).Unix(),
	}
}

func newHMACVerifier(t *testing.T, now func() time.Time) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(JWTConfig{SigningKey: testSigningKey, Now: now})
	require.NoError(t, err)
	return v
}

func TestNewJWTVerifier_Validation(t *testing.T) {
	_, err := NewJWTVerifier(JWTConfig{})
	assert.Error(t, err)

	key, err := rsa.GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err)
	_, err = NewJWTVerifier(JWTConfig{PublicKey: &key.PublicKey, SigningKey: testSigningKey})
	assert.Error(t, err)
}

func TestJWTVerifier_HS256(t *testing.T) {
	now := time.Now()
	v := newHMACVerifier(t, nil)

	t.Run("valid token", func(t *testing.T) {
		claims, err := v.Verify(signHS256(t, testSigningKey, validClaims(now)))
		require.NoError(t, err)
		assert.Equal(t, testSubject, claims.Subject)
		assert.True(t, claims.HasAudience(testAudience))
		assert.False(t, claims.HasAudience("lobby"))
		assert.NoError(t, claims.CheckAudience(testAudience))
		assert.ErrorIs(t, claims.CheckAudience("lobby"), ErrWrongAudience)
		assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := v.Verify(signHS256(t, []byte("another-signing-key-at-least-32-bytes"), validClaims(now)))
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := validClaims(now)
		delete(c, "sub")
		_, err := v.Verify(signHS256(t, testSigningKey, c))
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("missing expiry", func(t *testing.T) {
		c := validClaims(now)
		delete(c, "exp")
		_, err := v.Verify(signHS256(t, testSigningKey, c))
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims(now)).SignedString(testSigningKey)
		require.NoError(t, err)
		_, err = v.Verify(s)
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	})
}

func TestJWTVerifier_ExpiredAfterValidityWindow(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	token := signHS256(t, testSigningKey, validClaims(issued))

	inside := newHMACVerifier(t, func() time.Time { return issued.Add(testTTL / 2) })
	_, err := inside.Verify(token)
	require.NoError(t, err)

	after := newHMACVerifier(t, func() time.Time { return issued.Add(testTTL + time.Second) })
	_, err = after.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestJWTVerifier_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), testKeyPerms))

	pub, err := LoadRSAPublicKey(path)
	require.NoError(t, err)

	v, err := NewJWTVerifier(JWTConfig{PublicKey: pub})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims(time.Now())).SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testSubject, claims.Subject)

	// An HMAC token must not be accepted by an RSA verifier.
	_, err = v.Verify(signHS256(t, testSigningKey, validClaims(time.Now())))
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestLoadRSAPublicKey_Errors(t *testing.T) {
	_, err := LoadRSAPublicKey(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not pem"), testKeyPerms))
	_, err = LoadRSAPublicKey(path)
	assert.Error(t, err)
}
