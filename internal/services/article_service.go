package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultCategories are always offered in category selections.
var defaultCategories = []string{"Sticker", "Schal", "Shirt"}

// ArticleFilter narrows the article list.
type ArticleFilter struct {
	Search   string
	Category string
}

// ArticleInput carries the editable article fields. Nil pointers mean
// "derive a default".
type ArticleInput struct {
	Name              string
	SKU               string
	Category          string
	Stock             int
	MinimumStock      *int
	LocationPrimary   string
	LocationSecondary string
	Image             string
	Price             *float64
}

// ArticleService manages the article master data.
type ArticleService struct {
	db      *gorm.DB
	pricing *PricingService
	logger  *zap.Logger
}

func NewArticleService(db *gorm.DB, pricing *PricingService, logger *zap.Logger) *ArticleService {
	return &ArticleService{db: db, pricing: pricing, logger: logger}
}

// List returns articles matching the filter ordered by name.
func (s *ArticleService) List(ctx context.Context, filter ArticleFilter) ([]models.Article, error) {
	query := s.db.WithContext(ctx).Model(&models.Article{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR sku LIKE ?", like, like)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var articles []models.Article
	if err := query.Order("name, sku").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

// Categories returns the configured, default and in-use category names.
func (s *ArticleService) Categories(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	var configured []string
	if err := s.db.WithContext(ctx).Model(&models.Category{}).Order("name").Pluck("name", &configured).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	var used []string
	if err := s.db.WithContext(ctx).Model(&models.Article{}).Distinct("category").Order("category").Pluck("category", &used).Error; err != nil {
		return nil, fmt.Errorf("load used categories: %w", err)
	}

	for _, name := range defaultCategories {
		add(name)
	}
	for _, name := range configured {
		add(name)
	}
	for _, name := range used {
		add(name)
	}
	sort.Strings(names[len(defaultCategories):])
	return names, nil
}

// Get loads one article.
func (s *ArticleService) Get(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load article: %w", err)
	}
	return &article, nil
}

// Create inserts an article. Initial stock is booked as an inbound movement.
func (s *ArticleService) Create(ctx context.Context, input ArticleInput) (*models.Article, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.SKU = strings.TrimSpace(input.SKU)
	if input.Name == "" || input.SKU == "" || input.Stock < 0 {
		return nil, ErrInvalidInput
	}

	var article models.Article
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if exists, err := skuExists(tx, input.SKU, 0); err != nil {
			return err
		} else if exists {
			return ErrDuplicateSKU
		}

		pricing := s.pricing.WithTx(tx)
		article = models.Article{
			Name:              input.Name,
			SKU:               input.SKU,
			Category:          resolveCategory(pricing, input.SKU, input.Category),
			LocationPrimary:   input.LocationPrimary,
			LocationSecondary: input.LocationSecondary,
			Image:             input.Image,
		}
		applyDerivedDefaults(pricing, &article, input.MinimumStock, input.Price)

		if err := tx.Create(&article).Error; err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		if input.Stock > 0 {
			if _, err := bookMovement(tx, &article, input.Stock, models.MovementInbound, "Anfangsbestand", nil, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("article created", zap.Uint("id", article.ID), zap.String("sku", article.SKU))
	return &article, nil
}

// Update changes an article. A stock change is booked as an Inventur movement.
func (s *ArticleService) Update(ctx context.Context, id uint, input ArticleInput) (*models.Article, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.SKU = strings.TrimSpace(input.SKU)
	if input.Name == "" || input.SKU == "" || input.Stock < 0 {
		return nil, ErrInvalidInput
	}

	var article models.Article
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockArticle(tx, id, &article); err != nil {
			return err
		}
		if input.SKU != article.SKU {
			if exists, err := skuExists(tx, input.SKU, id); err != nil {
				return err
			} else if exists {
				return ErrDuplicateSKU
			}
		}

		pricing := s.pricing.WithTx(tx)
		article.Name = input.Name
		article.SKU = input.SKU
		article.Category = resolveCategory(pricing, input.SKU, input.Category)
		article.LocationPrimary = input.LocationPrimary
		article.LocationSecondary = input.LocationSecondary
		article.Image = input.Image
		if input.MinimumStock != nil {
			article.MinimumStock = *input.MinimumStock
		}
		if input.Price != nil {
			article.Price = *input.Price
		}

		if err := tx.Model(&article).Select(
			"name", "sku", "category", "location_primary", "location_secondary", "image", "minimum_stock", "price",
		).Updates(&article).Error; err != nil {
			return fmt.Errorf("update article: %w", err)
		}

		if diff := input.Stock - article.Stock; diff != 0 {
			if _, err := bookMovement(tx, &article, diff, models.MovementInventory, "Artikel bearbeitet", nil, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("article updated", zap.Uint("id", article.ID), zap.String("sku", article.SKU))
	return &article, nil
}

// Delete removes an article with its movements. Articles on orders stay.
func (s *ArticleService) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var article models.Article
		if err := tx.First(&article, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load article: %w", err)
		}

		var used int64
		if err := tx.Model(&models.OrderItem{}).Where("article_id = ?", id).Count(&used).Error; err != nil {
			return fmt.Errorf("count order items: %w", err)
		}
		if used > 0 {
			return ErrArticleInUse
		}

		if err := tx.Where("article_id = ?", id).Delete(&models.Movement{}).Error; err != nil {
			return fmt.Errorf("delete movements: %w", err)
		}
		if err := tx.Delete(&article).Error; err != nil {
			return fmt.Errorf("delete article: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("article deleted", zap.Uint("id", id))
	return nil
}

func skuExists(tx *gorm.DB, sku string, exceptID uint) (bool, error) {
	var count int64
	query := tx.Model(&models.Article{}).Where("sku = ?", sku)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check sku: %w", err)
	}
	return count > 0, nil
}

// resolveCategory keeps an explicit category, else uses the SKU prefix and
// finally the default category.
func resolveCategory(pricing *PricingService, sku, category string) string {
	category = strings.TrimSpace(category)
	if category != "" {
		return category
	}
	if resolved, ok := pricing.ResolveCategory(sku); ok {
		return resolved
	}
	return models.DefaultArticleCategory
}

// applyDerivedDefaults fills minimum stock and price when not given.
func applyDerivedDefaults(pricing *PricingService, article *models.Article, minimumStock *int, price *float64) {
	if minimumStock != nil && *minimumStock >= 0 {
		article.MinimumStock = *minimumStock
	} else {
		article.MinimumStock = pricing.DefaultMinimumStock(article.Category)
	}

	switch {
	case price != nil && *price >= 0:
		article.Price = *price
	default:
		if resolved := pricing.ResolvePrice(article.SKU, article.Category); resolved > 0 {
			article.Price = resolved
		} else {
			article.Price = models.DefaultArticlePrice
		}
	}
}
