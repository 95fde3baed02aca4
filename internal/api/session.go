package api

import (
	"net/http"
	"strconv"

	"lagerverwaltung/server/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionName       = "lager_session"
	sessionUserKey    = "user_id"
	contextUserKey    = "current_user"
	contextUserMgmt   = "user_management"
	contextRequestKey = "request_id"
)

// flash queues a message for the next rendered page.
func flash(c *gin.Context, message string) {
	session := sessions.Default(c)
	session.AddFlash(message)
	_ = session.Save()
}

// popFlashes returns and clears the queued messages.
func popFlashes(c *gin.Context) []string {
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = session.Save()
	messages := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			messages = append(messages, s)
		}
	}
	return messages
}

func login(c *gin.Context, user *models.User) {
	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	_ = session.Save()
}

func logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionUserKey)
	_ = session.Save()
}

func sessionUserID(c *gin.Context) uint {
	switch v := sessions.Default(c).Get(sessionUserKey).(type) {
	case uint:
		return v
	case int:
		return uint(v)
	case int64:
		return uint(v)
	}
	return 0
}

// currentUser is the logged-in user or nil.
func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(contextUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// currentUserID is 0 when nobody is logged in.
func currentUserID(c *gin.Context) uint {
	if user := currentUser(c); user != nil {
		return user.ID
	}
	return 0
}

func userManagementEnabled(c *gin.Context) bool {
	return c.GetBool(contextUserMgmt)
}

// redirectBack flashes message and sends the browser to target.
func redirectBack(c *gin.Context, target, message string) {
	if message != "" {
		flash(c, message)
	}
	c.Redirect(http.StatusFound, target)
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
