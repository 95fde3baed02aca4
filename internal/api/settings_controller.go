package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
)

// SettingsController serves the admin settings page: key/value settings,
// prefix and ending categories, cleanup and restore.
type SettingsController struct {
	settings *services.SettingsService
	pricing  *services.PricingService
	cleanup  *services.CleanupService
	stock    *services.StockService
	users    *services.UserService
	activity *services.ActivityService
}

func NewSettingsController(settings *services.SettingsService, pricing *services.PricingService, cleanup *services.CleanupService, stock *services.StockService, users *services.UserService, activity *services.ActivityService) *SettingsController {
	return &SettingsController{settings: settings, pricing: pricing, cleanup: cleanup, stock: stock, users: users, activity: activity}
}

// Show renders the settings page.
// GET /settings
func (sc *SettingsController) Show(c *gin.Context) {
	ctx := c.Request.Context()
	categories, err := sc.pricing.ListCategories()
	if err != nil {
		serverError(c, err)
		return
	}
	endings, err := sc.pricing.ListEndings()
	if err != nil {
		serverError(c, err)
		return
	}
	mismatches, err := sc.stock.Reconcile(ctx)
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "settings.html", gin.H{
		"Title":                  "Einstellungen",
		"LabelFormat":            sc.settings.Get(ctx, services.SettingLabelFormat, services.DefaultLabelFormat),
		"LabelSender":            sc.settings.Get(ctx, services.SettingLabelSender, services.DefaultLabelSender),
		"CSVMultiplier":          sc.settings.GetInt(ctx, services.SettingCSVMultiplier, 1),
		"UserManagementSetting":  sc.settings.UserManagementEnabled(ctx),
		"ProfileLoginNoPassword": sc.settings.GetBool(ctx, services.SettingProfileLoginNoPassword, false),
		"Categories":             categories,
		"Endings":                endings,
		"CleanupScopes":          services.CleanupScopes,
		"CleanupConfirmation":    services.CleanupConfirmation,
		"Mismatches":             mismatches,
	})
}

// Save stores the general settings.
// POST /settings
func (sc *SettingsController) Save(c *gin.Context) {
	ctx := c.Request.Context()
	format := strings.TrimSpace(c.PostForm("etikett_format"))
	if format == "" {
		format = services.DefaultLabelFormat
	}
	w, h := services.ParseLabelFormat(format)
	format = fmt.Sprintf("%gx%g", w, h)

	multiplier, ok := formInt(c, "csv_multiplier", 1)
	if !ok || multiplier < 1 {
		redirectBack(c, "/settings", "CSV-Multiplikator muss eine ganze Zahl ab 1 sein")
		return
	}
	sender := strings.ReplaceAll(strings.TrimSpace(c.PostForm("label_sender")), "\r\n", "\n")
	if sender == "" {
		sender = services.DefaultLabelSender
	}

	enableUsers := formBool(c, "enable_user_management")
	switchingOn := enableUsers && !userManagementEnabled(c)
	if switchingOn {
		// the first admin must exist before the guards start to apply
		created, err := sc.users.EnsureAdmin(ctx)
		if err != nil {
			serverError(c, err)
			return
		}
		if created {
			flash(c, "Benutzer admin mit Passwort admin angelegt, bitte Passwort ändern")
		}
	}

	values := map[string]string{
		services.SettingLabelFormat:   format,
		services.SettingLabelSender:   sender,
		services.SettingCSVMultiplier: fmt.Sprint(multiplier),
	}
	for key, value := range values {
		if err := sc.settings.Set(ctx, key, value); err != nil {
			serverError(c, err)
			return
		}
	}
	if err := sc.settings.SetBool(ctx, services.SettingUserManagement, enableUsers); err != nil {
		serverError(c, err)
		return
	}
	if err := sc.settings.SetBool(ctx, services.SettingProfileLoginNoPassword, formBool(c, services.SettingProfileLoginNoPassword)); err != nil {
		serverError(c, err)
		return
	}

	sc.activity.Record(ctx, currentUserID(c), "Einstellungen gespeichert")
	if switchingOn {
		redirectBack(c, "/login", "Einstellungen gespeichert")
		return
	}
	redirectBack(c, "/settings", "Einstellungen gespeichert")
}

// SaveCategory creates or updates a prefix category.
// POST /settings/categories
func (sc *SettingsController) SaveCategory(c *gin.Context) {
	price := optionalFormFloat(c, "default_price")
	if price == nil {
		zero := 0.0
		price = &zero
	}
	minStock, ok := formInt(c, "default_min_stock", 0)
	if !ok {
		redirectBack(c, "/settings", "Mindestbestand muss eine ganze Zahl sein")
		return
	}
	category, err := sc.pricing.SaveCategory(c.PostForm("name"), c.PostForm("prefix"), *price, minStock)
	switch {
	case errors.Is(err, services.ErrDuplicateCategory):
		redirectBack(c, "/settings", "Kategorie oder Präfix existiert bereits")
		return
	case errors.Is(err, services.ErrInvalidInput):
		redirectBack(c, "/settings", "Name ist Pflicht, Preis und Mindestbestand dürfen nicht negativ sein")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	sc.activity.Record(c.Request.Context(), currentUserID(c), "Kategorie "+category.Name+" gespeichert")
	redirectBack(c, "/settings", "Kategorie gespeichert")
}

// DeleteCategory removes a prefix category.
// POST /settings/categories/:id/delete
func (sc *SettingsController) DeleteCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	if err := sc.pricing.DeleteCategory(id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			notFound(c)
			return
		}
		serverError(c, err)
		return
	}
	redirectBack(c, "/settings", "Kategorie gelöscht")
}

// ApplyCategory copies the category defaults to its articles.
// POST /settings/categories/:id/apply
func (sc *SettingsController) ApplyCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	n, err := sc.pricing.ApplyCategoryDefaults(id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	sc.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Kategorie-Standardwerte auf %d Artikel angewendet", n))
	redirectBack(c, "/settings", fmt.Sprintf("Standardwerte auf %d Artikel angewendet", n))
}

// SaveEnding creates or updates an ending category.
// POST /settings/endings
func (sc *SettingsController) SaveEnding(c *gin.Context) {
	price := optionalFormFloat(c, "price")
	if price == nil {
		zero := 0.0
		price = &zero
	}
	multiplier, ok := formInt(c, "csv_multiplier", 1)
	if !ok {
		redirectBack(c, "/settings", "Multiplikator muss eine ganze Zahl sein")
		return
	}
	ending, err := sc.pricing.SaveEnding(c.PostForm("category"), c.PostForm("suffix"), *price, multiplier)
	if errors.Is(err, services.ErrInvalidInput) {
		redirectBack(c, "/settings", "Endung ist Pflicht, der Preis darf nicht negativ sein")
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	sc.activity.Record(c.Request.Context(), currentUserID(c), "Endung "+ending.Suffix+" gespeichert")
	redirectBack(c, "/settings", "Endung gespeichert")
}

// DeleteEnding removes an ending category.
// POST /settings/endings/:id/delete
func (sc *SettingsController) DeleteEnding(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	if err := sc.pricing.DeleteEnding(id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			notFound(c)
			return
		}
		serverError(c, err)
		return
	}
	redirectBack(c, "/settings", "Endung gelöscht")
}

// Cleanup bulk-deletes the selected data.
// POST /settings/cleanup
func (sc *SettingsController) Cleanup(c *gin.Context) {
	scope := c.PostForm("scope")
	n, err := sc.cleanup.Run(c.Request.Context(), scope, strings.TrimSpace(c.PostForm("confirmation")))
	switch {
	case errors.Is(err, services.ErrConfirmation):
		redirectBack(c, "/settings", fmt.Sprintf("Bitte zur Bestätigung %s eingeben", services.CleanupConfirmation))
		return
	case errors.Is(err, services.ErrInvalidInput):
		redirectBack(c, "/settings", "Unbekannter Bereich")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	sc.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Bereinigung %s: %d Einträge gelöscht", scope, n))
	redirectBack(c, "/settings", fmt.Sprintf("%d Einträge gelöscht", n))
}
