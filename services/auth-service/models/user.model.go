package models

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateUser       = errors.New("username or email already exists")
	ErrUnknownRole         = errors.New("unknown role")
)

type User struct {
	ID           string     `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        *string    `json:"email" db:"email"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	PasswordHash string     `json:"-" db:"password_hash"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLogin    *time.Time `json:"last_login" db:"last_login"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

type LoginInput struct {
	Login    string `json:"login" binding:"required,max=255"` // username or email
	Password string `json:"password" binding:"required"`
}

type RefreshInput struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

type CreateUserInput struct {
	Username  string   `validate:"required,min=3,max=30"`
	Email     string   `validate:"omitempty,email"`
	FirstName string   `validate:"max=50"`
	LastName  string   `validate:"max=50"`
	Password  string   `validate:"required,min=8"`
	Roles     []string `validate:"required,min=1,dive,required"`
}
