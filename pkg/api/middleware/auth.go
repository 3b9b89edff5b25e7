package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleOperator may change DAG info records and drive their lifecycle
	RoleOperator = "operator"
	// RoleViewer may only read
	RoleViewer = "viewer"

	tokenIssuer = "dagsched"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey  []byte
	Expiration time.Duration
}

// Claims represents JWT claims
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewJWTConfig returns a configuration for secret. An empty secret is rejected
func NewJWTConfig(secret string, expiration time.Duration) (*JWTConfig, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &JWTConfig{SecretKey: []byte(secret), Expiration: expiration}, nil
}

// GenerateToken generates a new JWT token
func GenerateToken(config *JWTConfig, userID, username string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(config.SecretKey)
}

// ValidateToken validates a JWT token
func ValidateToken(config *JWTConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return config.SecretKey, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// bearerToken extracts the token from "Bearer <token>"
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setClaims(c *gin.Context, claims *Claims) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("roles", claims.Roles)
}

// JWTAuth returns a middleware that validates JWT tokens
func JWTAuth(config *JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, http.StatusUnauthorized, "NO_TOKEN", "Authorization header required")
			return
		}

		tokenString, ok := bearerToken(authHeader)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN_FORMAT", "Authorization header format must be 'Bearer {token}'")
			return
		}

		claims, err := ValidateToken(config, tokenString)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", err.Error())
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// RequireRole returns a middleware that checks for any of the given roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles, exists := c.Get("roles")
		if !exists {
			AbortWithError(c, http.StatusForbidden, "NO_ROLES", "User roles not found")
			return
		}

		rolesList, ok := userRoles.([]string)
		if !ok {
			AbortWithError(c, http.StatusForbidden, "INVALID_ROLES", "Invalid user roles format")
			return
		}

		for _, required := range roles {
			if slices.Contains(rolesList, required) {
				c.Next()
				return
			}
		}

		AbortWithError(c, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS",
			fmt.Sprintf("Required roles: %v", roles))
	}
}

// OptionalAuth validates a JWT if present but doesn't require it
func OptionalAuth(config *JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := ValidateToken(config, tokenString); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}
