// Package server implements JWT-based authentication for the NetGraph API.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Auth state is package-level and set once at startup, like the route deps.
var (
	jwtSecret     []byte
	tokenLifetime = 24 * time.Hour
)

// ConfigureAuth stores the HS256 signing key and the token validity window.
// A non-positive lifetime keeps the 24h default. Call before RegisterRoutes.
func ConfigureAuth(secret string, lifetime time.Duration) {
	jwtSecret = []byte(secret)
	if lifetime > 0 {
		tokenLifetime = lifetime
	}
}

// TokenLifetime returns the configured JWT validity window.
func TokenLifetime() time.Duration { return tokenLifetime }

// Claims is the payload embedded in every token issued by /api/login.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateJWT issues a signed HS256 token for the given user.
func GenerateJWT(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "netgraph",
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	})
	return token.SignedString(jwtSecret)
}

var errInvalidToken = errors.New("invalid token")

// parseJWT validates a token string and returns its claims. Only HMAC
// signatures are accepted, so an asymmetric token cannot be replayed with
// the public key as its secret.
func parseJWT(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// JWTMiddleware guards the control-plane routes. It expects
// "Authorization: Bearer <jwt>" and stores the username in the Gin context.
func JWTMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "expected Authorization: Bearer <token>",
			})
			return
		}

		claims, err := parseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}
