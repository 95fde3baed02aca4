package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lagerverwaltung/server/internal/models"
	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
)

const activityPageSize = 200

// UserController serves user administration, the own profile and the
// activity log.
type UserController struct {
	users    *services.UserService
	activity *services.ActivityService
}

func NewUserController(users *services.UserService, activity *services.ActivityService) *UserController {
	return &UserController{users: users, activity: activity}
}

// List shows all users.
// GET /users
func (uc *UserController) List(c *gin.Context) {
	users, err := uc.users.List(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "users.html", gin.H{
		"Title": "Benutzer",
		"Users": users,
	})
}

// New shows the empty user form.
// GET /users/new
func (uc *UserController) New(c *gin.Context) {
	render(c, http.StatusOK, "user_form.html", gin.H{
		"Title":  "Neuer Benutzer",
		"User":   &models.User{},
		"Action": "/users/new",
	})
}

// Create adds a user.
// POST /users/new
func (uc *UserController) Create(c *gin.Context) {
	user, err := uc.users.Create(c.Request.Context(), userInput(c))
	if msg, ok := userErrorMessage(err); ok {
		redirectBack(c, "/users/new", msg)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	uc.activity.Record(c.Request.Context(), currentUserID(c), "Benutzer "+user.Username+" angelegt")
	redirectBack(c, "/users", "Benutzer angelegt")
}

// Edit shows the form of an existing user.
// GET /users/:id/edit
func (uc *UserController) Edit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	user, err := uc.users.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "user_form.html", gin.H{
		"Title":  "Benutzer bearbeiten",
		"User":   user,
		"Action": fmt.Sprintf("/users/%d/edit", user.ID),
	})
}

// Update saves an existing user. A blank password keeps the old one.
// POST /users/:id/edit
func (uc *UserController) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	user, err := uc.users.Update(c.Request.Context(), id, userInput(c))
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if msg, ok := userErrorMessage(err); ok {
		redirectBack(c, fmt.Sprintf("/users/%d/edit", id), msg)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	uc.activity.Record(c.Request.Context(), currentUserID(c), "Benutzer "+user.Username+" bearbeitet")
	redirectBack(c, "/users", "Benutzer aktualisiert")
}

// Delete removes a user.
// POST /users/:id/delete
func (uc *UserController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	if id == currentUserID(c) {
		redirectBack(c, "/users", "Das eigene Konto kann nicht gelöscht werden")
		return
	}
	err := uc.users.Delete(c.Request.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if msg, ok := userErrorMessage(err); ok {
		redirectBack(c, "/users", msg)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	uc.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Benutzer #%d gelöscht", id))
	redirectBack(c, "/users", "Benutzer gelöscht")
}

// Profile shows the own profile.
// GET /profile
func (uc *UserController) Profile(c *gin.Context) {
	render(c, http.StatusOK, "profile.html", gin.H{
		"Title": "Mein Profil",
		"User":  currentUser(c),
	})
}

// SaveProfile updates the own profile and, when new_password is given, the
// password.
// POST /profile
func (uc *UserController) SaveProfile(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)

	if newPassword := c.PostForm("new_password"); newPassword != "" {
		if newPassword != c.PostForm("confirm_password") {
			redirectBack(c, "/profile", "Die neuen Passwörter stimmen nicht überein")
			return
		}
		err := uc.users.ChangePassword(ctx, user.ID, c.PostForm("old_password"), newPassword)
		if errors.Is(err, services.ErrWrongPassword) {
			redirectBack(c, "/profile", "Altes Passwort ist falsch")
			return
		}
		if err != nil {
			serverError(c, err)
			return
		}
		uc.activity.Record(ctx, user.ID, "Passwort geändert")
		flash(c, "Passwort geändert")
	}

	_, err := uc.users.UpdateProfile(ctx, user.ID, services.ProfileInput{
		Email:        c.PostForm("email"),
		Name:         c.PostForm("name"),
		Gender:       c.PostForm("gender"),
		Bio:          c.PostForm("bio"),
		ProfileImage: strings.TrimSpace(c.PostForm("profile_image")),
	})
	if msg, ok := userErrorMessage(err); ok {
		redirectBack(c, "/profile", msg)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	uc.activity.Record(ctx, user.ID, "Profil aktualisiert")
	redirectBack(c, "/profile", "Profil gespeichert")
}

// Activity shows the latest audit entries.
// GET /activity
func (uc *UserController) Activity(c *gin.Context) {
	logs, err := uc.activity.Latest(c.Request.Context(), activityPageSize)
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "activity.html", gin.H{
		"Title": "Aktivitäten",
		"Logs":  logs,
	})
}

func userInput(c *gin.Context) services.UserInput {
	return services.UserInput{
		Username:     c.PostForm("username"),
		Email:        c.PostForm("email"),
		Password:     c.PostForm("password"),
		IsAdmin:      formBool(c, "is_admin"),
		IsStaff:      formBool(c, "is_staff"),
		Name:         c.PostForm("name"),
		Gender:       c.PostForm("gender"),
		Bio:          c.PostForm("bio"),
		ProfileImage: strings.TrimSpace(c.PostForm("profile_image")),
	}
}

// userErrorMessage maps validation errors of the user service to flashes.
func userErrorMessage(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, services.ErrDuplicateUsername):
		return "Benutzername bereits vergeben", true
	case errors.Is(err, services.ErrDuplicateEmail):
		return "E-Mail bereits vergeben", true
	case errors.Is(err, services.ErrLastAdmin):
		return "Mindestens ein Administrator muss bestehen bleiben", true
	case errors.Is(err, services.ErrInvalidInput):
		return "Benutzername und Passwort sind Pflichtfelder", true
	}
	return "", false
}
