package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthController handles login, logout and the profile picker.
type AuthController struct {
	users    *services.UserService
	settings *services.SettingsService
	activity *services.ActivityService
	limiter  *LoginLimiter
	logger   *zap.Logger
}

func NewAuthController(users *services.UserService, settings *services.SettingsService, activity *services.ActivityService, limiter *LoginLimiter, logger *zap.Logger) *AuthController {
	return &AuthController{users: users, settings: settings, activity: activity, limiter: limiter, logger: logger}
}

// LoginForm shows the login form, pre-filled from the profile picker.
// GET /login
func (ac *AuthController) LoginForm(c *gin.Context) {
	if !userManagementEnabled(c) || currentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	render(c, http.StatusOK, "login.html", gin.H{
		"Title":    "Anmelden",
		"Username": c.Query("username"),
	})
}

// Login checks the credentials.
// POST /login
func (ac *AuthController) Login(c *gin.Context) {
	if !userManagementEnabled(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	ctx := c.Request.Context()
	if !ac.limiter.Allow(ctx, c.ClientIP()) {
		ac.logger.Warn("login rate limit exceeded", zap.String("client_ip", c.ClientIP()))
		redirectBack(c, "/login", "Zu viele Anmeldeversuche, bitte eine Minute warten")
		return
	}

	username := strings.TrimSpace(c.PostForm("username"))
	user, err := ac.users.Authenticate(ctx, username, c.PostForm("password"))
	if errors.Is(err, services.ErrWrongPassword) {
		redirectBack(c, "/login?username="+url.QueryEscape(username), "Ungültige Anmeldung")
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}

	login(c, user)
	ac.activity.Record(ctx, user.ID, "Anmeldung")
	c.Redirect(http.StatusFound, "/")
}

// Logout ends the session.
// GET /logout
func (ac *AuthController) Logout(c *gin.Context) {
	if user := currentUser(c); user != nil {
		ac.activity.Record(c.Request.Context(), user.ID, "Abmeldung")
	}
	logout(c)
	redirectBack(c, "/login", "Abgemeldet")
}

// Profiles lists the accounts to pick from.
// GET /profiles
func (ac *AuthController) Profiles(c *gin.Context) {
	if !userManagementEnabled(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	users, err := ac.users.List(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "profiles.html", gin.H{
		"Title": "Profil wählen",
		"Users": users,
	})
}

// SelectProfile logs in directly when password-less profile login is
// enabled, otherwise it pre-fills the login form.
// POST /profiles/:id
func (ac *AuthController) SelectProfile(c *gin.Context) {
	if !userManagementEnabled(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	ctx := c.Request.Context()
	user, err := ac.users.Get(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}

	if !ac.settings.GetBool(ctx, services.SettingProfileLoginNoPassword, false) {
		c.Redirect(http.StatusFound, "/login?username="+url.QueryEscape(user.Username))
		return
	}
	login(c, user)
	ac.activity.Record(ctx, user.ID, "Anmeldung über Profilauswahl")
	c.Redirect(http.StatusFound, "/")
}
