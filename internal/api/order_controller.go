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

// OrderController serves the orders group and the shipping label.
type OrderController struct {
	orders   *services.OrderService
	articles *services.ArticleService
	labels   *services.LabelService
	activity *services.ActivityService
}

func NewOrderController(orders *services.OrderService, articles *services.ArticleService, labels *services.LabelService, activity *services.ActivityService) *OrderController {
	return &OrderController{orders: orders, articles: articles, labels: labels, activity: activity}
}

// List shows orders with filters.
// GET /orders?status=&customer=&start=&end=
func (oc *OrderController) List(c *gin.Context) {
	filter := services.OrderFilter{
		Status:   c.Query("status"),
		Customer: strings.TrimSpace(c.Query("customer")),
		Start:    c.Query("start"),
		End:      c.Query("end"),
	}
	orders, err := oc.orders.List(c.Request.Context(), filter)
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "orders_list.html", gin.H{
		"Title":    "Bestellungen",
		"Orders":   orders,
		"Statuses": models.OrderStatuses,
		"Filter":   filter,
	})
}

// Dashboard shows all orders, optionally of one status, with status counts.
// GET /orders/dashboard?status=
func (oc *OrderController) Dashboard(c *gin.Context) {
	status := c.Query("status")
	orders, err := oc.orders.List(c.Request.Context(), services.OrderFilter{Status: status})
	if err != nil {
		serverError(c, err)
		return
	}
	counts, err := oc.orders.StatusCounts(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "orders_dashboard.html", gin.H{
		"Title":          "Bestellübersicht",
		"Orders":         orders,
		"Statuses":       models.OrderStatuses,
		"SelectedStatus": status,
		"Counts":         counts,
	})
}

// Detail shows one order.
// GET /orders/:id
func (oc *OrderController) Detail(c *gin.Context) {
	order, ok := oc.load(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, "order_detail.html", gin.H{
		"Title": fmt.Sprintf("Bestellung #%d", order.ID),
		"Order": order,
	})
}

// New shows the order form with one quantity field per article.
// GET /orders/new
func (oc *OrderController) New(c *gin.Context) {
	oc.renderForm(c, &models.Order{Status: models.OrderStatusOpen}, "/orders/new")
}

// Create places an order. Fields qty_<article id> and price_<article id>
// describe the lines.
// POST /orders/new
func (oc *OrderController) Create(c *gin.Context) {
	articles, err := oc.articles.List(c.Request.Context(), services.ArticleFilter{})
	if err != nil {
		serverError(c, err)
		return
	}
	input := orderInput(c)
	for _, article := range articles {
		qty, ok := formInt(c, fmt.Sprintf("qty_%d", article.ID), 0)
		if !ok {
			redirectBack(c, "/orders/new", "Ungültige Menge für "+article.Name)
			return
		}
		if qty <= 0 {
			continue
		}
		input.Lines = append(input.Lines, services.OrderLine{
			ArticleID: article.ID,
			Quantity:  qty,
			UnitPrice: optionalFormFloat(c, fmt.Sprintf("price_%d", article.ID)),
		})
	}

	order, err := oc.orders.Create(c.Request.Context(), input)
	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		redirectBack(c, "/orders/new", "Nicht genug Bestand für "+stockErr.ArticleName)
		return
	case errors.Is(err, services.ErrInvalidStatus):
		redirectBack(c, "/orders/new", "Unbekannter Status")
		return
	case errors.Is(err, services.ErrNotFound):
		redirectBack(c, "/orders/new", "Artikel nicht gefunden")
		return
	case errors.Is(err, services.ErrInvalidInput):
		redirectBack(c, "/orders/new", "Kundenname ist ein Pflichtfeld")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	oc.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Bestellung #%d angelegt", order.ID))
	redirectBack(c, fmt.Sprintf("/orders/%d", order.ID), "Bestellung angelegt")
}

// Edit shows the form of an existing order.
// GET /orders/:id/edit
func (oc *OrderController) Edit(c *gin.Context) {
	order, ok := oc.load(c)
	if !ok {
		return
	}
	oc.renderForm(c, order, fmt.Sprintf("/orders/%d/edit", order.ID))
}

// Update changes customer data and status.
// POST /orders/:id/edit
func (oc *OrderController) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	back := fmt.Sprintf("/orders/%d/edit", id)
	order, err := oc.orders.Update(c.Request.Context(), id, orderInput(c))
	switch {
	case errors.Is(err, services.ErrNotFound):
		notFound(c)
		return
	case errors.Is(err, services.ErrInvalidStatus):
		redirectBack(c, back, "Unbekannter Status")
		return
	case errors.Is(err, services.ErrInvalidInput):
		redirectBack(c, back, "Kundenname ist ein Pflichtfeld")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	oc.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Bestellung #%d bearbeitet", order.ID))
	redirectBack(c, fmt.Sprintf("/orders/%d", order.ID), "Bestellung aktualisiert")
}

// Delete removes an order and returns its reserved stock.
// POST /orders/:id/delete
func (oc *OrderController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	err := oc.orders.Delete(c.Request.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	oc.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Bestellung #%d gelöscht", id))
	redirectBack(c, "/orders", "Bestellung gelöscht")
}

// Label downloads the shipping label PDF.
// GET /orders/:id/label, GET /order/:id/label
func (oc *OrderController) Label(c *gin.Context) {
	order, ok := oc.load(c)
	if !ok {
		return
	}
	pdf, err := oc.labels.Render(c.Request.Context(), order)
	if errors.Is(err, services.ErrLabelNotAvailable) {
		redirectBack(c, fmt.Sprintf("/orders/%d", order.ID), "Versandetikett erst ab Status bezahlt verfügbar")
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment;filename="+services.LabelFilename(order.ID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (oc *OrderController) load(c *gin.Context) (*models.Order, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return nil, false
	}
	order, err := oc.orders.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return nil, false
	}
	if err != nil {
		serverError(c, err)
		return nil, false
	}
	return order, true
}

func (oc *OrderController) renderForm(c *gin.Context, order *models.Order, action string) {
	data := gin.H{
		"Order":    order,
		"Statuses": models.OrderStatuses,
		"Action":   action,
	}
	data["Street"], data["CityZip"] = services.SplitAddress(order.CustomerAddress)
	if order.ID == 0 {
		articles, err := oc.articles.List(c.Request.Context(), services.ArticleFilter{})
		if err != nil {
			serverError(c, err)
			return
		}
		data["Title"] = "Neue Bestellung"
		data["Articles"] = articles
	} else {
		data["Title"] = fmt.Sprintf("Bestellung #%d bearbeiten", order.ID)
	}
	render(c, http.StatusOK, "order_form.html", data)
}

func orderInput(c *gin.Context) services.OrderInput {
	return services.OrderInput{
		CustomerName: strings.TrimSpace(c.PostForm("customer_name")),
		Street:       strings.TrimSpace(c.PostForm("customer_street")),
		CityZip:      strings.TrimSpace(c.PostForm("customer_city_zip")),
		Status:       c.PostForm("status"),
	}
}
