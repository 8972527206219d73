package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTokens() *TokenManager {
	return NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := newTokens()

	access, err := tokens.SignAccessToken("user-1")
	require.NoError(t, err)
	refresh, err := tokens.SignRefreshToken("user-1")
	require.NoError(t, err)

	sub, err := tokens.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	sub, err = tokens.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = tokens.VerifyRefreshToken(access)
	assert.Error(t, err, "access token must not be accepted as refresh token")
	_, err = tokens.VerifyAccessToken(refresh)
	assert.Error(t, err, "refresh token signed with another secret")
}

func TestExpiredTokenRejected(t *testing.T) {
	tokens := NewTokenManager("access-secret", "refresh-secret", -time.Minute, time.Hour)
	access, err := tokens.SignAccessToken("user-1")
	require.NoError(t, err)

	_, err = tokens.VerifyAccessToken(access)
	assert.Error(t, err)
}

func protectedRouter(t *testing.T, roles ...string) (*gin.Engine, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := gin.New()
	r.GET("/secret", AuthMiddleware(db, newTokens()), RequireRole(db, roles...), func(c *gin.Context) {
		SendSuccess(c, http.StatusOK, gin.H{"user_id": UserID(c)}, "")
	})
	return r, mock
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	r, _ := protectedRouter(t, "ADMIN")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secret", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, CodeMissingToken, resp.Code)
}

func TestAuthMiddlewareAllowsMatchingRole(t *testing.T) {
	r, mock := protectedRouter(t, "ADMIN", "PHARMACIST")
	token, err := newTokens().SignAccessToken("user-1")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM roles r").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("PHARMACIST"))

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireRoleForbidsOtherRoles(t *testing.T) {
	r, mock := protectedRouter(t, "ADMIN", "INVENTORY_MANAGER")
	token, err := newTokens().SignAccessToken("user-1")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM roles r").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("CASHIER"))

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decode(t, w)
	assert.Equal(t, CodeInsufficientPermissions, resp.Code)
	assert.Contains(t, resp.Message, "ADMIN or INVENTORY_MANAGER")
}

func TestAuthMiddlewareInactiveUser(t *testing.T) {
	r, mock := protectedRouter(t, "ADMIN")
	token, err := newTokens().SignAccessToken("user-1")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUserNotFoundOrInactive, decode(t, w).Code)
}

func TestNormalizeMSISDN(t *testing.T) {
	cases := map[string]string{
		"0712345678":    "254712345678",
		"+254712345678": "254712345678",
		"0712 345 678":  "254712345678",
	}
	for in, want := range cases {
		got, err := NormalizeMSISDN(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "12", "not-a-number"} {
		_, err := NormalizeMSISDN(bad)
		assert.Error(t, err, bad)
	}
}

type bindingInput struct {
	BatchID  string `json:"batch_id" binding:"required,uuid"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Phone    string `json:"phone" binding:"omitempty,msisdn"`
}

func TestBindingErrorsAreFieldLevel(t *testing.T) {
	require.NoError(t, RegisterValidators())

	r := gin.New()
	r.POST("/bind", func(c *gin.Context) {
		var input bindingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			SendBindingError(c, err)
			return
		}
		SendSuccess(c, http.StatusOK, input, "")
	})

	body := `{"batch_id":"nope","quantity":0,"phone":"12"}`
	req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Success bool         `json:"success"`
		Code    string       `json:"code"`
		Errors  []FieldError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, CodeValidationError, resp.Code)

	fields := map[string]string{}
	for _, fe := range resp.Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be a valid UUID", fields["batch_id"])
	assert.Equal(t, "is required", fields["quantity"])
	assert.Equal(t, "must be a valid phone number", fields["phone"])
}
