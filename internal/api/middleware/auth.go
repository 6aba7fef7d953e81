package middleware

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
)

// Role is the access tier required by a route group. Tiers are ordered:
// an operate key can use read routes, an admin key can use everything.
type Role int

const (
	RoleRead Role = iota + 1
	RoleOperate
	RoleAdmin
)

// String returns the role's name
func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleOperate:
		return "operate"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

const (
	authRoleKey    = "auth_role"
	authTypeKey    = "auth_type"
	authSubjectKey = "auth_subject"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey   string // RSA public key in PEM format
	ReadAPIKeys    []string
	OperateAPIKeys []string
	AdminAPIKeys   []string
}

// AuthResult holds the result of one authentication attempt
type AuthResult struct {
	Success  bool
	AuthType string // "jwt" or "apikey"
	Role     Role
	Subject  string
	Error    error
}

// Authenticate validates an Authorization header against the configured
// credentials and resolves the caller's role
func Authenticate(authHeader string, cfg AuthConfig) AuthResult {
	result := AuthResult{}

	if authHeader == "" {
		result.Error = errors.New("missing Authorization header")
		return result
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		result.Error = errors.New("invalid Authorization header format")
		return result
	}

	authType := strings.ToLower(parts[0])
	credentials := parts[1]

	switch authType {
	case "bearer":
		claims, err := validateJWT(credentials, cfg.JWTPublicKey)
		if err != nil {
			result.Error = err
			return result
		}
		result.Success = true
		result.AuthType = "jwt"
		result.Subject = claims.Subject
		result.Role = roleFromClaims(claims)

	case "apikey":
		role, err := roleForAPIKey(credentials, cfg)
		if err != nil {
			result.Error = err
			return result
		}
		result.Success = true
		result.AuthType = "apikey"
		result.Role = role

	default:
		result.Error = fmt.Errorf("unsupported authorization type: %s", authType)
	}

	return result
}

// RequireRole returns a gin middleware that authenticates the request and
// enforces the minimum role for the route group
func RequireRole(cfg AuthConfig, min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := Authenticate(c.GetHeader("Authorization"), cfg)

		if !result.Success {
			logger.Warn("Authentication failed",
				zap.Error(result.Error),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "Authentication failed"},
			})
			return
		}

		if result.Role < min {
			logger.Warn("Insufficient role",
				zap.String("path", c.Request.URL.Path),
				zap.String("role", result.Role.String()),
				zap.String("required", min.String()),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "forbidden", "message": "Insufficient permissions"},
			})
			return
		}

		c.Set(authTypeKey, result.AuthType)
		c.Set(authRoleKey, result.Role)
		if result.Subject != "" {
			c.Set(authSubjectKey, result.Subject)
		}

		c.Next()
	}
}

// roleClaims extends the registered claims with the token's access tier
type roleClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func roleFromClaims(claims *roleClaims) Role {
	switch strings.ToLower(claims.Role) {
	case "admin":
		return RoleAdmin
	case "operate":
		return RoleOperate
	default:
		return RoleRead
	}
}

func roleForAPIKey(apiKey string, cfg AuthConfig) (Role, error) {
	if apiKey == "" {
		return 0, errors.New("empty API key")
	}
	// Highest tier wins when a key appears in several lists
	for _, key := range cfg.AdminAPIKeys {
		if key != "" && key == apiKey {
			return RoleAdmin, nil
		}
	}
	for _, key := range cfg.OperateAPIKeys {
		if key != "" && key == apiKey {
			return RoleOperate, nil
		}
	}
	for _, key := range cfg.ReadAPIKeys {
		if key != "" && key == apiKey {
			return RoleRead, nil
		}
	}
	return 0, errors.New("invalid API key")
}

// validateJWT validates a JWT token with RSA signature and returns claims
func validateJWT(tokenString string, publicKeyPEM string) (*roleClaims, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not configured")
	}

	publicKey, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
	}

	claims := &roleClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return publicKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	now := time.Now()
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return nil, errors.New("token has expired")
	}
	if claims.NotBefore != nil && claims.NotBefore.After(now) {
		return nil, errors.New("token not yet valid")
	}

	return claims, nil
}

// parseRSAPublicKey parses an RSA public key from PEM format
func parseRSAPublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing public key")
	}

	// Try PKIX first, fall back to PKCS1
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}

	return rsaKey, nil
}
