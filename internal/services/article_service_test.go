package services

import (
	"context"
	"testing"

	"lagerverwaltung/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestArticleCreateDerivesDefaults(t *testing.T) {
	db := newTestDB(t)
	pricing := NewPricingService(db)
	svc := NewArticleService(db, pricing, zap.NewNop())
	ctx := context.Background()

	_, err := pricing.SaveCategory("Schal", "SC", 14.9, 0)
	require.NoError(t, err)

	article, err := svc.Create(ctx, ArticleInput{Name: "Schal Heim", SKU: "SC-100", Stock: 7})
	require.NoError(t, err)
	assert.Equal(t, "Schal", article.Category)
	assert.Equal(t, 100, article.MinimumStock)
	assert.Equal(t, 14.9, article.Price)
	assert.Equal(t, 7, article.Stock)

	stock := NewStockService(db, zap.NewNop())
	_, movements, err := stock.History(ctx, article.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, models.MovementInbound, movements[0].Type)
	assert.Equal(t, "Anfangsbestand", movements[0].Note)
	assert.Equal(t, 7, movements[0].Quantity)

	// without prefix match the default category is used
	plain, err := svc.Create(ctx, ArticleInput{Name: "Aufkleber", SKU: "ZZ-1"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultArticleCategory, plain.Category)
	assert.Equal(t, 1000, plain.MinimumStock)
	assert.Equal(t, models.DefaultArticlePrice, plain.Price)
}

func TestArticleCreateRejectsDuplicateSKU(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, NewPricingService(db), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, ArticleInput{Name: "A", SKU: "ST-1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, ArticleInput{Name: "B", SKU: "ST-1"})
	assert.ErrorIs(t, err, ErrDuplicateSKU)

	_, err = svc.Create(ctx, ArticleInput{Name: "", SKU: "ST-2"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestArticleUpdateBooksStockDifference(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, NewPricingService(db), zap.NewNop())
	ctx := context.Background()
	article := seedArticle(t, db, "ST-1", 10, 0)
	seedArticle(t, db, "ST-2", 0, 0)

	minimum := 4
	updated, err := svc.Update(ctx, article.ID, ArticleInput{
		Name:         "Neu",
		SKU:          "ST-1A",
		Category:     "Schal",
		Stock:        6,
		MinimumStock: &minimum,
		Price:        floatPtr(3.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "ST-1A", updated.SKU)
	assert.Equal(t, 6, updated.Stock)

	stored := reloadArticle(t, db, article.ID)
	assert.Equal(t, "Neu", stored.Name)
	assert.Equal(t, "Schal", stored.Category)
	assert.Equal(t, 4, stored.MinimumStock)
	assert.Equal(t, 3.5, stored.Price)
	assert.Equal(t, 6, stored.Stock)

	mismatches, err := NewStockService(db, zap.NewNop()).Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	_, err = svc.Update(ctx, article.ID, ArticleInput{Name: "Neu", SKU: "ST-2", Stock: 6})
	assert.ErrorIs(t, err, ErrDuplicateSKU)

	_, err = svc.Update(ctx, 999, ArticleInput{Name: "X", SKU: "X"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArticleDelete(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, NewPricingService(db), zap.NewNop())
	orders := NewOrderService(db, zap.NewNop())
	ctx := context.Background()

	free := seedArticle(t, db, "ST-1", 5, 0)
	ordered := seedArticle(t, db, "ST-2", 5, 0)
	_, err := orders.Create(ctx, OrderInput{
		CustomerName: "Kunde",
		Status:       models.OrderStatusOpen,
		Lines:        []OrderLine{{ArticleID: ordered.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, free.ID))
	var movements int64
	require.NoError(t, db.Model(&models.Movement{}).Where("article_id = ?", free.ID).Count(&movements).Error)
	assert.Zero(t, movements)

	assert.ErrorIs(t, svc.Delete(ctx, ordered.ID), ErrArticleInUse)
	assert.ErrorIs(t, svc.Delete(ctx, free.ID), ErrNotFound)
}

func TestArticleListAndCategories(t *testing.T) {
	db := newTestDB(t)
	pricing := NewPricingService(db)
	svc := NewArticleService(db, pricing, zap.NewNop())
	ctx := context.Background()

	_, err := pricing.SaveCategory("Tasse", "TA", 8, 5)
	require.NoError(t, err)
	_, err = svc.Create(ctx, ArticleInput{Name: "Tasse weiss", SKU: "TA-1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, ArticleInput{Name: "Aufkleber rund", SKU: "ST-1", Category: "Aufkleber"})
	require.NoError(t, err)

	articles, err := svc.List(ctx, ArticleFilter{Search: "TA-"})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Tasse weiss", articles[0].Name)

	articles, err = svc.List(ctx, ArticleFilter{Category: "Aufkleber"})
	require.NoError(t, err)
	require.Len(t, articles, 1)

	categories, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sticker", "Schal", "Shirt", "Aufkleber", "Tasse"}, categories)
}

func TestArticleCreateKeepsExplicitZeroPrice(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, NewPricingService(db), zap.NewNop())

	article, err := svc.Create(context.Background(), ArticleInput{Name: "Gratis", SKU: "FREE-1", Price: floatPtr(0)})
	require.NoError(t, err)
	assert.Zero(t, article.Price)

	var stored models.Article
	require.NoError(t, db.First(&stored, article.ID).Error)
	assert.Zero(t, stored.Price)
}
