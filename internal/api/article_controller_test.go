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

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	w := app.get("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestIndexListsAndFiltersArticles(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-001", 5, 1)
	app.seedArticle("SC-002", 0, 3)

	w := app.get("/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ST-001")
	assert.Contains(t, w.Body.String(), "SC-002")
	assert.Contains(t, w.Body.String(), "1 Artikel unter Mindestbestand")

	w = app.get("/?search=SC-")
	assert.NotContains(t, w.Body.String(), "ST-001")
	assert.Contains(t, w.Body.String(), "SC-002")
}

func TestCreateArticleRejectsDuplicateSKU(t *testing.T) {
	app := newTestApp(t)
	form := url.Values{"name": {"Aufkleber"}, "sku": {"ST-100"}, "stock": {"4"}}

	w := app.post("/article/new", form)
	assert.Contains(t, app.follow(w), "Artikel erstellt")

	var article models.Article
	require.NoError(t, app.db.Where("sku = ?", "ST-100").First(&article).Error)
	assert.Equal(t, 4, article.Stock)

	w = app.post("/article/new", form)
	assert.Equal(t, "/article/new", w.Header().Get("Location"))
	assert.Contains(t, app.follow(w), "Artikel mit dieser SKU existiert bereits.")
}

func TestEditArticleBooksStockDifference(t *testing.T) {
	app := newTestApp(t)
	article := app.seedArticle("ST-200", 10, 2)

	w := app.post("/article/1/edit", url.Values{"name": {"Neu"}, "sku": {"ST-200"}, "stock": {"7"}, "minimum_stock": {"2"}})
	assert.Contains(t, app.follow(w), "Artikel aktualisiert")
	assert.Equal(t, 7, app.stockOf(article.ID))

	var inventur int64
	app.db.Model(&models.Movement{}).Where("article_id = ? AND type = ?", article.ID, models.MovementInventory).Count(&inventur)
	assert.EqualValues(t, 1, inventur)
}

func TestMissingArticleIs404(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, http.StatusNotFound, app.get("/article/99/edit").Code)
	assert.Equal(t, http.StatusNotFound, app.get("/article/99/history").Code)
	assert.Equal(t, http.StatusNotFound, app.get("/article/abc/history").Code)
	assert.Equal(t, http.StatusNotFound, app.get("/nowhere").Code)
}

func TestMovementInsufficientStock(t *testing.T) {
	app := newTestApp(t)
	article := app.seedArticle("ST-300", 2, 0)

	w := app.post("/movement/1/new", url.Values{"quantity": {"5"}, "type": {models.MovementOutbound}})
	assert.Equal(t, "/movement/1/new", w.Header().Get("Location"))
	assert.Contains(t, app.follow(w), "Nicht genug Bestand für Artikel ST-300")
	assert.Equal(t, 2, app.stockOf(article.ID))
}

func TestMovementBelowMinimumFlashesWarning(t *testing.T) {
	app := newTestApp(t)
	article := app.seedArticle("ST-400", 5, 4)

	w := app.post("/movement/1/new", url.Values{"quantity": {"3"}, "type": {models.MovementOutbound}, "note": {"Messe"}})
	assert.Equal(t, "/article/1/history", w.Header().Get("Location"))
	page := app.follow(w)
	assert.Contains(t, page, "Bestand unter Mindestbestand!")
	assert.Contains(t, page, "Bewegung erfasst")
	assert.Equal(t, 2, app.stockOf(article.ID))

	history := app.get("/article/1/history").Body.String()
	assert.Contains(t, history, "Messe")
	assert.Contains(t, history, "-3")
}

func TestMovementRejectsZeroQuantity(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-500", 5, 0)

	w := app.post("/movement/1/new", url.Values{"quantity": {"0"}, "type": {models.MovementInbound}})
	assert.Contains(t, app.follow(w), "Menge darf nicht 0 sein")
}

func TestInventorySave(t *testing.T) {
	app := newTestApp(t)
	a := app.seedArticle("ST-600", 5, 0)
	b := app.seedArticle("ST-601", 3, 0)

	w := app.post("/inventory", url.Values{"count_1": {"8"}, "count_2": {"3"}, "count_3": {""}})
	assert.Contains(t, app.follow(w), "Inventur erfolgreich gespeichert – 1 Artikel angepasst.")
	assert.Equal(t, 8, app.stockOf(a.ID))
	assert.Equal(t, 3, app.stockOf(b.ID))

	w = app.post("/inventory", url.Values{"count_1": {"-1"}})
	assert.Contains(t, app.follow(w), "Gezählte Mengen müssen ganze Zahlen ab 0 sein")
	assert.Equal(t, 8, app.stockOf(a.ID))
}

func TestInventoryFiltersBySearchAndCategory(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-610", 5, 0)
	_, err := app.deps.Articles.Create(context.Background(), services.ArticleInput{
		Name: "Schal Rot", SKU: "SC-611", Category: "Schal", Stock: 3,
	})
	require.NoError(t, err)

	page := app.get("/inventory?search=SC-6").Body.String()
	assert.Contains(t, page, "SC-611")
	assert.NotContains(t, page, "ST-610")

	page = app.get("/inventory?search=61&category=Sticker").Body.String()
	assert.Contains(t, page, "ST-610")
	assert.NotContains(t, page, "SC-611")
}

func TestDeleteArticleInUse(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-700", 5, 0)
	w := app.post("/orders/new", url.Values{"customer_name": {"Kunde"}, "status": {models.OrderStatusOpen}, "qty_1": {"1"}})
	require.Equal(t, http.StatusFound, w.Code)

	w = app.get("/article/1/delete")
	assert.Contains(t, app.follow(w), "kann nicht gelöscht werden")
}
