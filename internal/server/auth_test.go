package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/secret", JWTMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})
	return r
}

func TestGenerateAndParseJWT(t *testing.T) {
	ConfigureAuth("test-secret", time.Hour)

	token, err := GenerateJWT("admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := parseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "netgraph", claims.Issuer)
}

func TestConfigureAuthLifetime(t *testing.T) {
	ConfigureAuth("test-secret", 2*time.Hour)
	assert.Equal(t, 2*time.Hour, TokenLifetime())

	// Non-positive lifetimes keep the previous window.
	ConfigureAuth("test-secret", 0)
	assert.Equal(t, 2*time.Hour, TokenLifetime())
}

func TestParseJWTRejectsExpiredToken(t *testing.T) {
	ConfigureAuth("test-secret", time.Nanosecond)
	token, err := GenerateJWT("admin")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = parseJWT(token)
	assert.Error(t, err)
}

func TestParseJWTRejectsWrongSecret(t *testing.T) {
	ConfigureAuth("secret-one", time.Hour)
	token, err := GenerateJWT("admin")
	require.NoError(t, err)

	ConfigureAuth("secret-two", time.Hour)
	_, err = parseJWT(token)
	assert.Error(t, err)
}

func TestJWTMiddlewareAllowsValidToken(t *testing.T) {
	ConfigureAuth("test-secret", time.Hour)
	token, err := GenerateJWT("admin")
	require.NoError(t, err)

	r := protectedRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
}

func TestJWTMiddlewareRejectsMissingAndMalformedHeaders(t *testing.T) {
	ConfigureAuth("test-secret", time.Hour)
	r := protectedRouter()

	cases := map[string]string{
		"no header":     "",
		"no bearer":     "some-token",
		"wrong scheme":  "Basic dXNlcjpwYXNz",
		"empty token":   "Bearer ",
		"garbage token": "Bearer not.a.jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/secret", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
