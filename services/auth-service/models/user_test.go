package models

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testUserID = "e2a7f0b4-2f57-4a6b-9c55-8d13d6b2a7c3"

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var userCols = []string{
	"id", "username", "email", "first_name", "last_name", "password_hash", "is_active", "last_login", "created_at",
}

func newMockStore(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewUserStore(sqlx.NewDb(db, "postgres"))
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func userRow(t *testing.T, password string) *sqlmock.Rows {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return sqlmock.NewRows(userCols).AddRow(
		testUserID, "pharm.wanjiku", "wanjiku@clinic.test", "Grace", "Wanjiku", string(hash), true, nil, fixedNow,
	)
}

func TestAuthenticate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE (username = $1 OR LOWER(email) = LOWER($1))")).
		WithArgs("pharm.wanjiku").
		WillReturnRows(userRow(t, "s3cret-pass"))

	user, err := store.Authenticate(context.Background(), " pharm.wanjiku ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, testUserID, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateWrongPassword(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).WillReturnRows(userRow(t, "s3cret-pass"))

	_, err := store.Authenticate(context.Background(), "pharm.wanjiku", "guess")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).WillReturnRows(sqlmock.NewRows(userCols))

	_, err := store.Authenticate(context.Background(), "nobody", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRotateRefreshToken(t *testing.T) {
	store, mock := newMockStore(t)
	expires := fixedNow.Add(7 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $1")).
		WithArgs(fixedNow, testUserID, "old-token").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("5b9f2c1e-3a4d-4e6f-8a1b-2c3d4e5f6a7b"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs(sqlmock.AnyArg(), testUserID, "new-token", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.RotateRefreshToken(context.Background(), testUserID, "old-token", "new-token", expires)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateRevokedRefreshToken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := store.RotateRefreshToken(context.Background(), testUserID, "old-token", "new-token", fixedNow)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeUnknownRefreshToken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $1 WHERE token = $2")).
		WithArgs(fixedNow, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RevokeRefreshToken(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "admin", nil, "", "", sqlmock.AnyArg()).
		WillReturnRows(userRow(t, "irrelevant"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := store.CreateUser(context.Background(), CreateUserInput{
		Username: "admin",
		Password: "change-me-now",
		Roles:    []string{"admin", "superuser", "ADMIN"},
	})
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}
