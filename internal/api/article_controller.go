package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"lagerverwaltung/server/internal/models"
	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
)

// ArticleController serves the article list, article forms, movements,
// history and the inventory count.
type ArticleController struct {
	articles *services.ArticleService
	stock    *services.StockService
	activity *services.ActivityService
}

func NewArticleController(articles *services.ArticleService, stock *services.StockService, activity *services.ActivityService) *ArticleController {
	return &ArticleController{articles: articles, stock: stock, activity: activity}
}

// Index lists articles.
// GET /?search=&category=
func (ac *ArticleController) Index(c *gin.Context) {
	filter := services.ArticleFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Category: c.Query("category"),
	}
	articles, err := ac.articles.List(c.Request.Context(), filter)
	if err != nil {
		serverError(c, err)
		return
	}
	categories, err := ac.articles.Categories(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	lowStock, err := ac.stock.LowStock(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "index.html", gin.H{
		"Title":      "Artikel",
		"Articles":   articles,
		"Categories": categories,
		"Search":     filter.Search,
		"Category":   filter.Category,
		"LowStock":   len(lowStock),
	})
}

// New shows the empty article form.
// GET /article/new
func (ac *ArticleController) New(c *gin.Context) {
	ac.renderForm(c, &models.Article{}, "/article/new")
}

// Create stores a new article.
// POST /article/new
func (ac *ArticleController) Create(c *gin.Context) {
	input, ok := articleInput(c)
	if !ok {
		redirectBack(c, "/article/new", "Bitte gültige Zahlen für Bestand und Mindestbestand angeben")
		return
	}
	article, err := ac.articles.Create(c.Request.Context(), input)
	switch {
	case errors.Is(err, services.ErrDuplicateSKU):
		redirectBack(c, "/article/new", "Artikel mit dieser SKU existiert bereits.")
		return
	case errors.Is(err, services.ErrInvalidInput):
		redirectBack(c, "/article/new", "Name und SKU sind Pflichtfelder")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ac.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Artikel %s angelegt", article.SKU))
	redirectBack(c, "/", "Artikel erstellt")
}

// Edit shows the form of an existing article.
// GET /article/:id/edit
func (ac *ArticleController) Edit(c *gin.Context) {
	article, ok := ac.load(c)
	if !ok {
		return
	}
	ac.renderForm(c, article, fmt.Sprintf("/article/%d/edit", article.ID))
}

// Update saves an existing article.
// POST /article/:id/edit
func (ac *ArticleController) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	back := fmt.Sprintf("/article/%d/edit", id)
	input, ok := articleInput(c)
	if !ok {
		redirectBack(c, back, "Bitte gültige Zahlen für Bestand und Mindestbestand angeben")
		return
	}
	article, err := ac.articles.Update(c.Request.Context(), id, input)
	switch {
	case errors.Is(err, services.ErrNotFound):
		notFound(c)
		return
	case errors.Is(err, services.ErrDuplicateSKU):
		redirectBack(c, back, "Artikel mit dieser SKU existiert bereits.")
		return
	case errors.Is(err, services.ErrInvalidInput):
		redirectBack(c, back, "Name und SKU sind Pflichtfelder")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ac.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Artikel %s bearbeitet", article.SKU))
	redirectBack(c, "/", "Artikel aktualisiert")
}

// Delete removes an article with its movements.
// GET /article/:id/delete
func (ac *ArticleController) Delete(c *gin.Context) {
	article, ok := ac.load(c)
	if !ok {
		return
	}
	err := ac.articles.Delete(c.Request.Context(), article.ID)
	switch {
	case errors.Is(err, services.ErrArticleInUse):
		redirectBack(c, "/", "Artikel ist in Bestellungen enthalten und kann nicht gelöscht werden")
		return
	case errors.Is(err, services.ErrNotFound):
		notFound(c)
		return
	case err != nil:
		serverError(c, err)
		return
	}
	ac.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Artikel %s gelöscht", article.SKU))
	redirectBack(c, "/", "Artikel gelöscht")
}

// History lists the movements of an article.
// GET /article/:id/history
func (ac *ArticleController) History(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	article, movements, err := ac.stock.History(c.Request.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "history.html", gin.H{
		"Title":     "Verlauf " + article.Name,
		"Article":   article,
		"Movements": movements,
	})
}

// NewMovement shows the movement form.
// GET /movement/:id/new
func (ac *ArticleController) NewMovement(c *gin.Context) {
	article, ok := ac.load(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, "movement_form.html", gin.H{
		"Title":   "Bewegung erfassen",
		"Article": article,
		"Types":   models.MovementTypes,
	})
}

// CreateMovement books a movement.
// POST /movement/:id/new
func (ac *ArticleController) CreateMovement(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return
	}
	back := fmt.Sprintf("/movement/%d/new", id)
	qty, ok := formInt(c, "quantity", 0)
	if !ok {
		redirectBack(c, back, "Ungültige Menge")
		return
	}
	var invoice *string
	if v := strings.TrimSpace(c.PostForm("invoice_number")); v != "" {
		invoice = &v
	}

	movement, below, err := ac.stock.RecordMovement(c.Request.Context(), id, qty, c.PostForm("type"), strings.TrimSpace(c.PostForm("note")), invoice, nil)
	var stockErr *services.InsufficientStockError
	switch {
	case errors.Is(err, services.ErrNotFound):
		notFound(c)
		return
	case errors.As(err, &stockErr):
		redirectBack(c, back, "Nicht genug Bestand für "+stockErr.ArticleName)
		return
	case errors.Is(err, services.ErrInvalidQuantity):
		redirectBack(c, back, "Menge darf nicht 0 sein")
		return
	case errors.Is(err, services.ErrInvalidMovement):
		redirectBack(c, back, "Unbekannte Bewegungsart")
		return
	case err != nil:
		serverError(c, err)
		return
	}

	ac.activity.Record(c.Request.Context(), currentUserID(c),
		fmt.Sprintf("%s %+d für Artikel #%d", movement.Type, movement.Quantity, id))
	if below {
		flash(c, "Bestand unter Mindestbestand!")
	}
	redirectBack(c, fmt.Sprintf("/article/%d/history", id), "Bewegung erfasst")
}

// Inventory shows the count sheet.
// GET /inventory
func (ac *ArticleController) Inventory(c *gin.Context) {
	filter := services.ArticleFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Category: c.Query("category"),
	}
	articles, err := ac.articles.List(c.Request.Context(), filter)
	if err != nil {
		serverError(c, err)
		return
	}
	categories, err := ac.articles.Categories(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "inventory.html", gin.H{
		"Title":      "Inventur",
		"Articles":   articles,
		"Categories": categories,
		"Search":     filter.Search,
		"Category":   filter.Category,
	})
}

// SaveInventory books the counted stock. Fields are named count_<article id>;
// blank fields are not counted.
// POST /inventory
func (ac *ArticleController) SaveInventory(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		redirectBack(c, "/inventory", "Ungültige Eingabe")
		return
	}
	counts := make(map[uint]int)
	for key, values := range c.Request.PostForm {
		if !strings.HasPrefix(key, "count_") || len(values) == 0 {
			continue
		}
		raw := strings.TrimSpace(values[0])
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(key, "count_"), 10, 64)
		if err != nil {
			continue
		}
		counted, err := strconv.Atoi(raw)
		if err != nil || counted < 0 {
			redirectBack(c, "/inventory", "Gezählte Mengen müssen ganze Zahlen ab 0 sein")
			return
		}
		counts[uint(id)] = counted
	}

	adjusted, err := ac.stock.InventoryCount(c.Request.Context(), counts)
	if err != nil {
		serverError(c, err)
		return
	}
	if adjusted > 0 {
		ac.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Inventur: %d Artikel angepasst", adjusted))
	}
	redirectBack(c, "/inventory", fmt.Sprintf("Inventur erfolgreich gespeichert – %d Artikel angepasst.", adjusted))
}

func (ac *ArticleController) load(c *gin.Context) (*models.Article, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		notFound(c)
		return nil, false
	}
	article, err := ac.articles.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return nil, false
	}
	if err != nil {
		serverError(c, err)
		return nil, false
	}
	return article, true
}

func (ac *ArticleController) renderForm(c *gin.Context, article *models.Article, action string) {
	categories, err := ac.articles.Categories(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	title := "Neuer Artikel"
	if article.ID != 0 {
		title = "Artikel bearbeiten"
	}
	render(c, http.StatusOK, "article_form.html", gin.H{
		"Title":      title,
		"Article":    article,
		"Categories": categories,
		"Action":     action,
	})
}

func articleInput(c *gin.Context) (services.ArticleInput, bool) {
	stock, ok := formInt(c, "stock", 0)
	if !ok {
		return services.ArticleInput{}, false
	}
	minimum := optionalFormInt(c, "minimum_stock")
	if minimum == nil && strings.TrimSpace(c.PostForm("minimum_stock")) != "" {
		return services.ArticleInput{}, false
	}
	return services.ArticleInput{
		Name:              c.PostForm("name"),
		SKU:               c.PostForm("sku"),
		Category:          strings.TrimSpace(c.PostForm("category")),
		Stock:             stock,
		MinimumStock:      minimum,
		LocationPrimary:   strings.TrimSpace(c.PostForm("location_primary")),
		LocationSecondary: strings.TrimSpace(c.PostForm("location_secondary")),
		Image:             strings.TrimSpace(c.PostForm("image")),
		Price:             optionalFormFloat(c, "price"),
	}, true
}
