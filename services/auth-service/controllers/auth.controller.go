package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NOVASWAY/Seth2.0-sub005/services/auth-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

type AuthController struct {
	store  *models.UserStore
	tokens *security.TokenManager
	log    zerolog.Logger
}

func NewAuthController(store *models.UserStore, tokens *security.TokenManager) *AuthController {
	return &AuthController{store: store, tokens: tokens, log: logger.WithComponent("auth")}
}

type session struct {
	User         *models.User `json:"user"`
	Roles        []string     `json:"roles"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
}

func (ac *AuthController) Login(c *gin.Context) {
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := ac.store.Authenticate(ctx, input.Login, input.Password)
	if errors.Is(err, models.ErrInvalidCredentials) {
		ac.log.Warn().Str("login", input.Login).Str("client_ip", c.ClientIP()).Msg("Failed login attempt")
		security.SendError(c, http.StatusUnauthorized, security.CodeInvalidCredentials, "Invalid credentials", nil)
		return
	}
	if err != nil {
		ac.fail(c, "login", err)
		return
	}

	if err := ac.store.TouchLastLogin(ctx, user.ID); err != nil {
		ac.log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to update last login")
	}

	access, refresh, err := ac.issue(user.ID)
	if err != nil {
		ac.fail(c, "login", err)
		return
	}
	if err := ac.store.SaveRefreshToken(ctx, user.ID, refresh, time.Now().Add(ac.tokens.RefreshTTL())); err != nil {
		ac.fail(c, "login", err)
		return
	}

	ac.respond(c, user, access, refresh, "Login successful")
}

func (ac *AuthController) Refresh(c *gin.Context) {
	var input models.RefreshInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	userID, err := ac.tokens.VerifyRefreshToken(input.RefreshToken)
	if err != nil {
		security.SendError(c, http.StatusUnauthorized, security.CodeInvalidToken, "Invalid refresh token", nil)
		return
	}

	ctx := c.Request.Context()
	user, err := ac.store.GetActive(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		security.SendError(c, http.StatusUnauthorized, security.CodeUserNotFoundOrInactive, "User account not found or inactive", nil)
		return
	}
	if err != nil {
		ac.fail(c, "refresh", err)
		return
	}

	access, refresh, err := ac.issue(userID)
	if err != nil {
		ac.fail(c, "refresh", err)
		return
	}
	err = ac.store.RotateRefreshToken(ctx, userID, input.RefreshToken, refresh, time.Now().Add(ac.tokens.RefreshTTL()))
	if errors.Is(err, models.ErrInvalidRefreshToken) {
		ac.log.Warn().Str("user_id", userID).Msg("Refresh with a revoked or unknown token")
		security.SendError(c, http.StatusUnauthorized, security.CodeInvalidToken, "Invalid refresh token", nil)
		return
	}
	if err != nil {
		ac.fail(c, "refresh", err)
		return
	}

	ac.respond(c, user, access, refresh, "Token refreshed")
}

func (ac *AuthController) Logout(c *gin.Context) {
	var input models.RefreshInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	err := ac.store.RevokeRefreshToken(c.Request.Context(), input.RefreshToken)
	if errors.Is(err, models.ErrInvalidRefreshToken) {
		security.SendError(c, http.StatusBadRequest, security.CodeInvalidToken, "Invalid refresh token", nil)
		return
	}
	if err != nil {
		ac.fail(c, "logout", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, nil, "Logged out successfully")
}

func (ac *AuthController) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := ac.store.GetActive(ctx, security.UserID(c))
	if errors.Is(err, models.ErrUserNotFound) {
		security.SendNotFoundError(c, "user")
		return
	}
	if err != nil {
		ac.fail(c, "load profile", err)
		return
	}
	roles, err := ac.store.Roles(ctx, user.ID)
	if err != nil {
		ac.fail(c, "load profile", err)
		return
	}

	security.SendSuccess(c, http.StatusOK, gin.H{"user": user, "roles": roles}, "")
}

func (ac *AuthController) ChangePassword(c *gin.Context) {
	var input models.ChangePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	userID := security.UserID(c)
	err := ac.store.ChangePassword(c.Request.Context(), userID, input.CurrentPassword, input.NewPassword)
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		security.SendError(c, http.StatusUnauthorized, security.CodeInvalidCredentials, "Current password is incorrect", nil)
		return
	case errors.Is(err, models.ErrUserNotFound):
		security.SendNotFoundError(c, "user")
		return
	case err != nil:
		ac.fail(c, "change password", err)
		return
	}

	ac.log.Info().Str("user_id", userID).Msg("Password changed")
	security.SendSuccess(c, http.StatusOK, nil, "Password changed successfully")
}

func (ac *AuthController) issue(userID string) (string, string, error) {
	access, err := ac.tokens.SignAccessToken(userID)
	if err != nil {
		return "", "", err
	}
	refresh, err := ac.tokens.SignRefreshToken(userID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (ac *AuthController) respond(c *gin.Context, user *models.User, access, refresh, message string) {
	roles, err := ac.store.Roles(c.Request.Context(), user.ID)
	if err != nil {
		ac.fail(c, "load roles", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, session{
		User:         user,
		Roles:        roles,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(ac.tokens.AccessTTL().Seconds()),
	}, message)
}

func (ac *AuthController) fail(c *gin.Context, op string, err error) {
	ac.log.Error().Err(err).Str("op", op).Msg("Auth operation failed")
	security.SendError(c, http.StatusInternalServerError, security.CodeInternalError, "Failed to "+op, nil)
}
