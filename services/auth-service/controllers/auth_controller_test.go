package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := security.RegisterValidators(); err != nil {
		panic(err)
	}
}

type envelope struct {
	Success bool                  `json:"success"`
	Code    string                `json:"code"`
	Errors  []security.FieldError `json:"errors"`
}

func newRouter(tokens *security.TokenManager) *gin.Engine {
	ac := NewAuthController(nil, tokens)
	r := gin.New()
	r.POST("/login", ac.Login)
	r.POST("/refresh", ac.Refresh)
	r.POST("/logout", ac.Logout)
	return r
}

func post(t *testing.T, r *gin.Engine, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func testTokens() *security.TokenManager {
	return security.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
}

func TestLoginRequiresCredentials(t *testing.T) {
	w, env := post(t, newRouter(testTokens()), "/login", `{"login":"pharm.wanjiku"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "password", env.Errors[0].Field)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	tokens := testTokens()
	access, err := tokens.SignAccessToken("e2a7f0b4-2f57-4a6b-9c55-8d13d6b2a7c3")
	require.NoError(t, err)

	w, env := post(t, newRouter(tokens), "/refresh", `{"refresh_token":"`+access+`"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, security.CodeInvalidToken, env.Code)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	w, env := post(t, newRouter(testTokens()), "/refresh", `{"refresh_token":"not-a-jwt"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, security.CodeInvalidToken, env.Code)
}

func TestLogoutRequiresToken(t *testing.T) {
	w, env := post(t, newRouter(testTokens()), "/logout", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, security.CodeValidationError, env.Code)
}
