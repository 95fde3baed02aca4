package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"lagerverwaltung/server/internal/database"
	"lagerverwaltung/server/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func seedArticle(t *testing.T, db *gorm.DB, sku string, stock, minimum int) *models.Article {
	t.Helper()
	svc := NewArticleService(db, NewPricingService(db), zap.NewNop())
	article, err := svc.Create(context.Background(), ArticleInput{
		Name:         "Artikel " + sku,
		SKU:          sku,
		Stock:        stock,
		MinimumStock: &minimum,
	})
	require.NoError(t, err)
	return article
}

func reloadArticle(t *testing.T, db *gorm.DB, id uint) models.Article {
	t.Helper()
	var article models.Article
	require.NoError(t, db.First(&article, id).Error)
	return article
}

func floatPtr(f float64) *float64 { return &f }

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type recordingAlerter struct {
	mu   sync.Mutex
	skus []string
}

func (a *recordingAlerter) LowStock(article models.Article) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skus = append(a.skus, article.SKU)
}

func (a *recordingAlerter) SKUs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.skus...)
}
