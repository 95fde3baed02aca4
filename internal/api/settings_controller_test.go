package api

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"lagerverwaltung/server/internal/models"
	"lagerverwaltung/server/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSettings(t *testing.T) {
	app := newTestApp(t)
	w := app.post("/settings", url.Values{
		"etikett_format": {"102x76"},
		"label_sender":   {"Firma\r\nStraße 1"},
		"csv_multiplier": {"3"},
	})
	assert.Contains(t, app.follow(w), "Einstellungen gespeichert")

	ctx := context.Background()
	assert.Equal(t, "102x76", app.deps.Settings.Get(ctx, services.SettingLabelFormat, ""))
	assert.Equal(t, "Firma\nStraße 1", app.deps.Settings.Get(ctx, services.SettingLabelSender, ""))
	assert.Equal(t, 3, app.deps.Settings.GetInt(ctx, services.SettingCSVMultiplier, 1))

	w = app.post("/settings", url.Values{"csv_multiplier": {"0"}})
	assert.Contains(t, app.follow(w), "CSV-Multiplikator muss eine ganze Zahl ab 1 sein")
}

func TestCategoryLifecycle(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-001", 1, 0)

	w := app.post("/settings/categories", url.Values{"name": {"Sticker"}, "prefix": {"ST-"}, "default_price": {"2,50"}, "default_min_stock": {"20"}})
	assert.Contains(t, app.follow(w), "Kategorie gespeichert")

	w = app.post("/settings/categories", url.Values{"name": {"Andere"}, "prefix": {"st-"}})
	assert.Contains(t, app.follow(w), "Kategorie oder Präfix existiert bereits")

	var category models.Category
	require.NoError(t, app.db.Where("name = ?", "Sticker").First(&category).Error)

	w = app.post("/settings/categories/1/apply", nil)
	assert.Contains(t, app.follow(w), "Standardwerte auf 1 Artikel angewendet")
	var article models.Article
	require.NoError(t, app.db.First(&article).Error)
	assert.Equal(t, 2.5, article.Price)
	assert.Equal(t, 20, article.MinimumStock)

	w = app.post("/settings/categories/1/delete", nil)
	assert.Contains(t, app.follow(w), "Kategorie gelöscht")
	assert.Equal(t, http.StatusNotFound, app.post("/settings/categories/1/delete", nil).Code)
}

func TestEndingLifecycle(t *testing.T) {
	app := newTestApp(t)
	w := app.post("/settings/endings", url.Values{"suffix": {"-10er"}, "category": {"Sticker"}, "price": {"9,90"}, "csv_multiplier": {"10"}})
	assert.Contains(t, app.follow(w), "Endung gespeichert")

	var ending models.EndingCategory
	require.NoError(t, app.db.First(&ending).Error)
	assert.Equal(t, 10, ending.CsvMultiplier)

	w = app.post("/settings/endings/1/delete", nil)
	assert.Contains(t, app.follow(w), "Endung gelöscht")
}

func TestCleanupNeedsConfirmation(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-001", 5, 0)

	w := app.post("/settings/cleanup", url.Values{"scope": {services.CleanupArticles}, "confirmation": {"ja"}})
	assert.Contains(t, app.follow(w), "Bitte zur Bestätigung LÖSCHEN eingeben")

	w = app.post("/settings/cleanup", url.Values{"scope": {services.CleanupArticles}, "confirmation": {services.CleanupConfirmation}})
	assert.Contains(t, app.follow(w), "Einträge gelöscht")

	var articles int64
	app.db.Model(&models.Article{}).Count(&articles)
	assert.Zero(t, articles)
}

func TestSettingsPageShowsLedgerMismatch(t *testing.T) {
	app := newTestApp(t)
	article := app.seedArticle("ST-001", 5, 0)
	require.NoError(t, app.db.Model(&models.Article{}).Where("id = ?", article.ID).Update("stock", 8).Error)

	w := app.get("/settings")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bestandsabgleich")
	assert.NotContains(t, w.Body.String(), "Alle Bestände stimmen")
}
