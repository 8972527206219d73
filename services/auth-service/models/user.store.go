package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, is_active, last_login, created_at`

type UserStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db, now: time.Now}
}

// Authenticate checks the password of an active user found by username or email.
func (s *UserStore) Authenticate(ctx context.Context, login, password string) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `
		SELECT `+userColumns+` FROM users
		WHERE (username = $1 OR LOWER(email) = LOWER($1)) AND is_active = true`, strings.TrimSpace(login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *UserStore) TouchLastLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE users SET last_login = $1 WHERE id = $2", s.now(), id)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// GetActive returns an active user.
func (s *UserStore) GetActive(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = $1 AND is_active = true", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) Roles(ctx context.Context, userID string) ([]string, error) {
	roles := []string{}
	err := s.db.SelectContext(ctx, &roles, `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND ur.is_active = true
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func (s *UserStore) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token, expires_at) VALUES ($1, $2, $3, $4)",
		uuid.NewString(), userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken revokes oldToken and stores newToken in one transaction.
// A token that is unknown, expired or already revoked cannot be rotated.
func (s *UserStore) RotateRefreshToken(ctx context.Context, userID, oldToken, newToken string, expiresAt time.Time) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		now := s.now()
		var id string
		err := tx.GetContext(ctx, &id, `
			UPDATE refresh_tokens SET revoked_at = $1
			WHERE user_id = $2 AND token = $3 AND revoked_at IS NULL AND expires_at > $1
			RETURNING id`, now, userID, oldToken)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO refresh_tokens (id, user_id, token, expires_at) VALUES ($1, $2, $3, $4)",
			uuid.NewString(), userID, newToken, expiresAt)
		if err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
		return nil
	})
}

func (s *UserStore) RevokeRefreshToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = $1 WHERE token = $2 AND revoked_at IS NULL", s.now(), token)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if n == 0 {
		return ErrInvalidRefreshToken
	}
	return nil
}

// ChangePassword replaces the password and revokes every open session of the user.
func (s *UserStore) ChangePassword(ctx context.Context, id, current, next string) error {
	user, err := s.GetActive(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", string(hash), id); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL", s.now(), id)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
}

// CreateUser stores a bcrypt-hashed user and grants the named roles.
func (s *UserStore) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	roles := make([]string, 0, len(input.Roles))
	seen := make(map[string]bool, len(input.Roles))
	for _, r := range input.Roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}

	var user User
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &user, `
			INSERT INTO users (id, username, email, first_name, last_name, password_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+userColumns,
			uuid.NewString(), input.Username, database.NullString(input.Email), input.FirstName,
			input.LastName, string(hash))
		if database.IsUniqueViolation(err) {
			return ErrDuplicateUser
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, id FROM roles WHERE name = ANY($2)`, user.ID, pq.Array(roles))
		if err != nil {
			return fmt.Errorf("grant roles: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("grant roles: %w", err)
		}
		if int(n) != len(roles) {
			return fmt.Errorf("%s: %w", strings.Join(roles, ","), ErrUnknownRole)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
