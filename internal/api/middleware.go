package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lagerverwaltung/server/internal/services"
	"lagerverwaltung/server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	loginAttemptsPerWindow = 5
	loginWindow            = time.Minute
)

// RequestLogger logs every request with a request id, taken from
// X-Request-ID when the proxy already set one.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(contextRequestKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			logger.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		if c.Request.URL.Path == "/health" {
			return
		}
		logger.Info("request", fields...)
	}
}

// AuthMiddleware resolves the session user and guards routes by role. With
// user management disabled every guard passes.
type AuthMiddleware struct {
	settings *services.SettingsService
	users    *services.UserService
	logger   *zap.Logger
}

func NewAuthMiddleware(settings *services.SettingsService, users *services.UserService, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{settings: settings, users: users, logger: logger}
}

// LoadUser puts the user-management flag and the logged-in user into the context.
func (am *AuthMiddleware) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		enabled := am.settings.UserManagementEnabled(c.Request.Context())
		c.Set(contextUserMgmt, enabled)
		if !enabled {
			c.Next()
			return
		}
		if id := sessionUserID(c); id != 0 {
			user, err := am.users.Get(c.Request.Context(), id)
			if err == nil {
				c.Set(contextUserKey, user)
			} else {
				// account deleted while logged in
				logout(c)
			}
		}
		c.Next()
	}
}

// RequireLogin sends anonymous visitors to the login page.
func (am *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !userManagementEnabled(c) || currentUser(c) != nil {
			c.Next()
			return
		}
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
	}
}

// RequireStaff lets admins and staff members through.
func (am *AuthMiddleware) RequireStaff() gin.HandlerFunc {
	return am.requireRole(func(c *gin.Context) bool {
		return currentUser(c).HasStaffRights()
	})
}

// RequireAdmin lets admins through.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return am.requireRole(func(c *gin.Context) bool {
		return currentUser(c).IsAdmin
	})
}

func (am *AuthMiddleware) requireRole(allowed func(*gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !userManagementEnabled(c) {
			c.Next()
			return
		}
		if currentUser(c) == nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		if !allowed(c) {
			redirectBack(c, "/", "Adminrechte erforderlich")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireUser guards pages that only make sense for a real account
// (messages, own profile).
func (am *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !userManagementEnabled(c) {
			redirectBack(c, "/", "Benutzerverwaltung ist deaktiviert")
			c.Abort()
			return
		}
		if currentUser(c) == nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoginLimiter counts login attempts per client IP in Redis. Without Redis
// every attempt is allowed.
type LoginLimiter struct {
	cache  *utils.RedisClient
	logger *zap.Logger
}

func NewLoginLimiter(cache *utils.RedisClient, logger *zap.Logger) *LoginLimiter {
	return &LoginLimiter{cache: cache, logger: logger}
}

// Allow records an attempt and reports whether it is within the limit.
func (l *LoginLimiter) Allow(ctx context.Context, clientIP string) bool {
	count, err := l.cache.IncrementWindow(ctx, fmt.Sprintf("login:%s", clientIP), loginWindow)
	if err != nil {
		if !errors.Is(err, utils.ErrRedisUnavailable) {
			l.logger.Warn("login rate limit check failed", zap.Error(err))
		}
		return true
	}
	return count <= loginAttemptsPerWindow
}
