package security

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Database is the subset of *sqlx.DB the middleware needs.
type Database interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenManager signs and verifies access and refresh tokens.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) SignAccessToken(userID string) (string, error) {
	return m.sign(userID, tokenTypeAccess, m.accessSecret, m.accessTTL)
}

func (m *TokenManager) SignRefreshToken(userID string) (string, error) {
	return m.sign(userID, tokenTypeRefresh, m.refreshSecret, m.refreshTTL)
}

func (m *TokenManager) sign(userID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
		"jti":  now.UnixNano(),
		"type": tokenType,
	})
	return token.SignedString(secret)
}

// VerifyAccessToken returns the subject of a valid access token.
func (m *TokenManager) VerifyAccessToken(tokenStr string) (string, error) {
	return m.verify(tokenStr, tokenTypeAccess, m.accessSecret)
}

// VerifyRefreshToken returns the subject of a valid refresh token.
func (m *TokenManager) VerifyRefreshToken(tokenStr string) (string, error) {
	return m.verify(tokenStr, tokenTypeRefresh, m.refreshSecret)
}

func (m *TokenManager) verify(tokenStr, wantType string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	if tokenType, _ := claims["type"].(string); tokenType != wantType {
		return "", errors.New("invalid token type")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", errors.New("token has no subject")
	}
	return userID, nil
}

// AuthMiddleware authenticates the Bearer access token and checks the user is active.
func AuthMiddleware(db Database, tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader("Authorization")
		if tokenStr == "" {
			SendError(c, http.StatusUnauthorized, CodeMissingToken, "Authentication required", nil)
			c.Abort()
			return
		}
		tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")

		userID, err := tokens.VerifyAccessToken(tokenStr)
		if err != nil {
			SendError(c, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token", nil)
			c.Abort()
			return
		}

		var exists bool
		err = db.QueryRowContext(c.Request.Context(),
			`SELECT EXISTS(SELECT 1 FROM users WHERE id=$1 AND is_active=true)`, userID).Scan(&exists)
		if err != nil {
			SendError(c, http.StatusInternalServerError, CodeAuthVerificationError, "Unable to verify user status", nil)
			c.Abort()
			return
		}
		if !exists {
			SendError(c, http.StatusUnauthorized, CodeUserNotFoundOrInactive, "User account not found or inactive", nil)
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// RequireRole allows the request through when the caller holds any of the expected roles.
func RequireRole(db Database, expectedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			SendError(c, http.StatusUnauthorized, CodeUserNotAuthenticated, "User not authenticated", nil)
			c.Abort()
			return
		}

		rows, err := db.QueryContext(c.Request.Context(), `
			SELECT r.name
			FROM roles r
			JOIN user_roles ur ON ur.role_id = r.id
			WHERE ur.user_id = $1 AND ur.is_active = true
		`, userID)
		if err != nil {
			SendError(c, http.StatusInternalServerError, CodePermissionCheckError, "Failed to check user permissions", nil)
			c.Abort()
			return
		}
		defer rows.Close()

		roles := []string{}
		for rows.Next() {
			var role string
			if err := rows.Scan(&role); err != nil {
				continue
			}
			roles = append(roles, role)
		}

		for _, userRole := range roles {
			for _, expectedRole := range expectedRoles {
				if userRole == expectedRole {
					c.Set("user_roles", roles)
					c.Next()
					return
				}
			}
		}

		var roleList string
		switch len(expectedRoles) {
		case 1:
			roleList = expectedRoles[0]
		case 2:
			roleList = expectedRoles[0] + " or " + expectedRoles[1]
		default:
			roleList = strings.Join(expectedRoles[:len(expectedRoles)-1], ", ") + ", or " + expectedRoles[len(expectedRoles)-1]
		}

		SendError(c, http.StatusForbidden, CodeInsufficientPermissions,
			"Access denied. This resource requires "+roleList+" role",
			gin.H{
				"required_roles": expectedRoles,
				"user_roles":     roles,
			})
		c.Abort()
	}
}

// CORSMiddleware allows the configured origins, or every origin when none are configured.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AddAllowMethods("PATCH")
	corsConfig.AddAllowHeaders("Authorization", "X-Requested-With", "Accept", "Cache-Control")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.MaxAge = 24 * time.Hour
	return cors.New(corsConfig)
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString("user_id")
}
