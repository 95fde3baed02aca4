package api

import (
	"net/http"
	"net/url"
	"testing"

	"lagerverwaltung/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderReservesStock(t *testing.T) {
	app := newTestApp(t)
	article := app.seedArticle("ST-001", 10, 0)

	w := app.post("/orders/new", url.Values{
		"customer_name":     {"Erika Muster"},
		"customer_street":   {"Hauptstr. 1"},
		"customer_city_zip": {"55288 Armsheim"},
		"status":            {models.OrderStatusOpen},
		"qty_1":             {"3"},
		"price_1":           {"4,50"},
	})
	assert.Equal(t, "/orders/1", w.Header().Get("Location"))
	page := app.follow(w)
	assert.Contains(t, page, "Bestellung angelegt")
	assert.Contains(t, page, "Erika Muster")
	assert.Contains(t, page, "55288 Armsheim")
	assert.Contains(t, page, "13,50 €")
	assert.Equal(t, 7, app.stockOf(article.ID))
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	app := newTestApp(t)
	a := app.seedArticle("ST-001", 10, 0)
	app.seedArticle("ST-002", 1, 0)

	w := app.post("/orders/new", url.Values{
		"customer_name": {"Kunde"},
		"status":        {models.OrderStatusPaid},
		"qty_1":         {"2"},
		"qty_2":         {"5"},
	})
	assert.Equal(t, "/orders/new", w.Header().Get("Location"))
	assert.Contains(t, app.follow(w), "Nicht genug Bestand für Artikel ST-002")

	var orders int64
	app.db.Model(&models.Order{}).Count(&orders)
	assert.Zero(t, orders)
	assert.Equal(t, 10, app.stockOf(a.ID))
}

func TestLabelRequiresPaidStatus(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-001", 10, 0)
	app.post("/orders/new", url.Values{"customer_name": {"Kunde"}, "status": {models.OrderStatusOpen}, "qty_1": {"1"}})

	w := app.get("/orders/1/label")
	assert.Equal(t, "/orders/1", w.Header().Get("Location"))
	assert.Contains(t, app.follow(w), "Versandetikett erst ab Status bezahlt verfügbar")

	w = app.post("/orders/1/edit", url.Values{"customer_name": {"Kunde"}, "status": {models.OrderStatusPaid}})
	assert.Contains(t, app.follow(w), "Bestellung aktualisiert")

	for _, path := range []string{"/orders/1/label", "/order/1/label"} {
		w = app.get(path)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, "attachment;filename=order_1_label.pdf", w.Header().Get("Content-Disposition"))
		assert.True(t, len(w.Body.Bytes()) > 4 && string(w.Body.Bytes()[:4]) == "%PDF")
	}
}

func TestDeleteOrderRestoresStock(t *testing.T) {
	app := newTestApp(t)
	article := app.seedArticle("ST-001", 10, 0)
	app.post("/orders/new", url.Values{"customer_name": {"Kunde"}, "status": {models.OrderStatusOpen}, "qty_1": {"4"}})
	require.Equal(t, 6, app.stockOf(article.ID))

	w := app.post("/orders/1/delete", nil)
	assert.Equal(t, "/orders", w.Header().Get("Location"))
	assert.Contains(t, app.follow(w), "Bestellung gelöscht")
	assert.Equal(t, 10, app.stockOf(article.ID))
	assert.Equal(t, http.StatusNotFound, app.get("/orders/1").Code)
}

func TestOrderListAndDashboard(t *testing.T) {
	app := newTestApp(t)
	app.seedArticle("ST-001", 10, 0)
	app.post("/orders/new", url.Values{"customer_name": {"Anna"}, "status": {models.OrderStatusOpen}, "qty_1": {"1"}})
	app.post("/orders/new", url.Values{"customer_name": {"Bernd"}, "status": {models.OrderStatusShipped}, "qty_1": {"1"}})

	page := app.get("/orders?status=versendet").Body.String()
	assert.Contains(t, page, "Bernd")
	assert.NotContains(t, page, "Anna")

	page = app.get("/orders?customer=Ann").Body.String()
	assert.Contains(t, page, "Anna")

	w := app.get("/orders/dashboard")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "offen (1)")
	assert.Contains(t, w.Body.String(), "versendet (1)")
}
