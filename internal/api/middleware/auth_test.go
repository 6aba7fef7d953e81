package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signer struct {
	key       *rsa.PrivateKey
	publicPEM string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	return &signer{key: key, publicPEM: string(pemBytes)}
}

func (s *signer) token(t *testing.T, role string, expiresAt time.Time) string {
	t.Helper()
	claims := roleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops@example.test",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func testAuthConfig(publicPEM string) AuthConfig {
	return AuthConfig{
		JWTPublicKey:   publicPEM,
		ReadAPIKeys:    []string{"read-key"},
		OperateAPIKeys: []string{"operate-key"},
		AdminAPIKeys:   []string{"admin-key"},
	}
}

func TestAuthenticateAPIKeyTiers(t *testing.T) {
	cfg := testAuthConfig("")

	tests := []struct {
		name string
		key  string
		role Role
	}{
		{"read key", "read-key", RoleRead},
		{"operate key", "operate-key", RoleOperate},
		{"admin key", "admin-key", RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Authenticate("ApiKey "+tt.key, cfg)
			require.True(t, result.Success, "error: %v", result.Error)
			assert.Equal(t, "apikey", result.AuthType)
			assert.Equal(t, tt.role, result.Role)
		})
	}
}

func TestAuthenticateAPIKeyHighestTierWins(t *testing.T) {
	cfg := AuthConfig{
		ReadAPIKeys:    []string{"shared-key"},
		OperateAPIKeys: []string{"shared-key"},
	}

	result := Authenticate("ApiKey shared-key", cfg)

	require.True(t, result.Success)
	assert.Equal(t, RoleOperate, result.Role)
}

func TestAuthenticateRejectsUnknownAPIKey(t *testing.T) {
	result := Authenticate("ApiKey bogus", testAuthConfig(""))

	assert.False(t, result.Success)
	assert.Error(t, result.Error)
}

func TestAuthenticateRejectsMissingOrMalformedHeader(t *testing.T) {
	cfg := testAuthConfig("")

	assert.False(t, Authenticate("", cfg).Success)
	assert.False(t, Authenticate("read-key", cfg).Success)
	assert.False(t, Authenticate("Basic dXNlcjpwYXNz", cfg).Success)
}

func TestAuthenticateJWTRoles(t *testing.T) {
	s := newSigner(t)
	cfg := testAuthConfig(s.publicPEM)
	expiry := time.Now().Add(time.Hour)

	tests := []struct {
		claim string
		role  Role
	}{
		{"admin", RoleAdmin},
		{"operate", RoleOperate},
		{"read", RoleRead},
		// Unknown or absent role claims fall back to read
		{"superuser", RoleRead},
		{"", RoleRead},
	}
	for _, tt := range tests {
		result := Authenticate("Bearer "+s.token(t, tt.claim, expiry), cfg)
		require.True(t, result.Success, "role claim %q: %v", tt.claim, result.Error)
		assert.Equal(t, tt.role, result.Role, "role claim %q", tt.claim)
		assert.Equal(t, "ops@example.test", result.Subject)
	}
}

func TestAuthenticateRejectsExpiredJWT(t *testing.T) {
	s := newSigner(t)
	cfg := testAuthConfig(s.publicPEM)

	result := Authenticate("Bearer "+s.token(t, "admin", time.Now().Add(-time.Hour)), cfg)

	assert.False(t, result.Success)
	assert.Error(t, result.Error)
}

func TestAuthenticateRejectsJWTSignedWithOtherKey(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	cfg := testAuthConfig(other.publicPEM)

	result := Authenticate("Bearer "+s.token(t, "admin", time.Now().Add(time.Hour)), cfg)

	assert.False(t, result.Success)
}

func TestRequireRoleTiers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testAuthConfig("")

	router := gin.New()
	router.GET("/read", RequireRole(cfg, RoleRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/operate", RequireRole(cfg, RoleOperate), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	call := func(method, path, header string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, call(http.MethodGet, "/read", ""))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/read", "ApiKey read-key"))
	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/operate", "ApiKey read-key"))
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/operate", "ApiKey operate-key"))
	// Higher tiers pass lower gates
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/read", "ApiKey admin-key"))
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/operate", "ApiKey admin-key"))
}
