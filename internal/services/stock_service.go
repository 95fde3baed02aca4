package services

import (
	"context"
	"errors"
	"fmt"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockService owns the movement ledger. Every stock change goes through a
// movement row written in the same transaction.
type StockService struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher EventPublisher
	alerter   StockAlerter
}

// NewStockService creates a StockService without alerting or events.
func NewStockService(db *gorm.DB, logger *zap.Logger) *StockService {
	return &StockService{db: db, logger: logger, publisher: NopPublisher{}}
}

// SetPublisher sets the domain event publisher.
func (s *StockService) SetPublisher(p EventPublisher) {
	if p != nil {
		s.publisher = p
	}
}

// SetAlerter sets the low-stock alerter.
func (s *StockService) SetAlerter(a StockAlerter) {
	s.alerter = a
}

// MovementEvent is the payload of movement.recorded.
type MovementEvent struct {
	MovementID uint   `json:"movement_id"`
	ArticleID  uint   `json:"article_id"`
	SKU        string `json:"sku"`
	Quantity   int    `json:"quantity"`
	Type       string `json:"type"`
	Stock      int    `json:"stock"`
}

// normalizeQuantity gives inbound movements a positive and outbound movements
// a negative sign. Inventory corrections keep the entered sign.
func normalizeQuantity(qty int, movementType string) int {
	switch movementType {
	case models.MovementInbound:
		if qty < 0 {
			return -qty
		}
	case models.MovementOutbound:
		if qty > 0 {
			return -qty
		}
	}
	return qty
}

// RecordMovement books qty on the article and reports whether the new stock
// is below the article's minimum.
func (s *StockService) RecordMovement(ctx context.Context, articleID uint, qty int, movementType, note string, invoiceNumber *string, orderID *uint) (*models.Movement, bool, error) {
	if movementType == "" {
		movementType = models.MovementInbound
	}
	if !models.IsValidMovementType(movementType) {
		return nil, false, ErrInvalidMovement
	}
	qty = normalizeQuantity(qty, movementType)
	if qty == 0 {
		return nil, false, ErrInvalidQuantity
	}

	var (
		movement *models.Movement
		article  models.Article
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockArticle(tx, articleID, &article); err != nil {
			return err
		}
		m, err := bookMovement(tx, &article, qty, movementType, note, invoiceNumber, orderID)
		if err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("movement recorded",
		zap.Uint("article_id", article.ID),
		zap.String("sku", article.SKU),
		zap.Int("quantity", qty),
		zap.String("type", movementType),
		zap.Int("stock", article.Stock))

	s.publisher.Publish(ctx, EventMovementRecorded, MovementEvent{
		MovementID: movement.ID,
		ArticleID:  article.ID,
		SKU:        article.SKU,
		Quantity:   qty,
		Type:       movementType,
		Stock:      article.Stock,
	})

	below := article.BelowMinimum()
	if below {
		s.notifyLowStock(article)
	}
	return movement, below, nil
}

func (s *StockService) notifyLowStock(article models.Article) {
	if s.alerter != nil {
		s.alerter.LowStock(article)
	}
}

// History returns the movements of an article, newest first.
func (s *StockService) History(ctx context.Context, articleID uint) (*models.Article, []models.Movement, error) {
	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("load article: %w", err)
	}

	var movements []models.Movement
	if err := s.db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("timestamp DESC, id DESC").
		Find(&movements).Error; err != nil {
		return nil, nil, fmt.Errorf("load movements: %w", err)
	}
	return &article, movements, nil
}

// InventoryCount sets the counted stock of each article, booking the
// differences as Inventur movements. Returns the number of adjusted articles.
func (s *StockService) InventoryCount(ctx context.Context, counts map[uint]int) (int, error) {
	for _, counted := range counts {
		if counted < 0 {
			return 0, ErrInvalidQuantity
		}
	}

	adjusted := 0
	var lowStock []models.Article
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for articleID, counted := range counts {
			var article models.Article
			if err := lockArticle(tx, articleID, &article); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			diff := counted - article.Stock
			if diff == 0 {
				continue
			}
			if _, err := bookMovement(tx, &article, diff, models.MovementInventory, "Inventur", nil, nil); err != nil {
				return err
			}
			adjusted++
			if article.BelowMinimum() {
				lowStock = append(lowStock, article)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("inventory count saved", zap.Int("counted", len(counts)), zap.Int("adjusted", adjusted))
	for _, article := range lowStock {
		s.notifyLowStock(article)
	}
	return adjusted, nil
}

// LowStock lists articles below their minimum stock.
func (s *StockService) LowStock(ctx context.Context) ([]models.Article, error) {
	var articles []models.Article
	if err := s.db.WithContext(ctx).
		Where("stock < minimum_stock").
		Order("name").
		Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("load low stock articles: %w", err)
	}
	return articles, nil
}

// StockMismatch is an article whose stock differs from its movement sum.
type StockMismatch struct {
	ArticleID   uint   `gorm:"column:id"`
	SKU         string `gorm:"column:sku"`
	Name        string `gorm:"column:name"`
	Stock       int    `gorm:"column:stock"`
	MovementSum int    `gorm:"column:movement_sum"`
}

// Reconcile compares every article's stock with the sum of its movements.
func (s *StockService) Reconcile(ctx context.Context) ([]StockMismatch, error) {
	var mismatches []StockMismatch
	err := s.db.WithContext(ctx).
		Table("articles").
		Select("articles.id, articles.sku, articles.name, articles.stock, COALESCE(SUM(movements.quantity), 0) AS movement_sum").
		Joins("LEFT JOIN movements ON movements.article_id = articles.id").
		Group("articles.id, articles.sku, articles.name, articles.stock").
		Having("articles.stock <> COALESCE(SUM(movements.quantity), 0)").
		Order("articles.sku").
		Scan(&mismatches).Error
	if err != nil {
		return nil, fmt.Errorf("reconcile stock: %w", err)
	}
	return mismatches, nil
}

// lockArticle loads an article inside tx, taking a row lock on PostgreSQL
// and MySQL.
func lockArticle(tx *gorm.DB, articleID uint, article *models.Article) error {
	query := tx
	if name := tx.Dialector.Name(); name == "postgres" || name == "mysql" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.First(article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load article %d: %w", articleID, err)
	}
	return nil
}

// bookMovement applies qty to a loaded article and appends the movement.
// The resulting stock may not become negative.
func bookMovement(tx *gorm.DB, article *models.Article, qty int, movementType, note string, invoiceNumber *string, orderID *uint) (*models.Movement, error) {
	newStock := article.Stock + qty
	if newStock < 0 {
		return nil, &InsufficientStockError{
			ArticleName: article.Name,
			Available:   article.Stock,
			Requested:   -qty,
		}
	}

	movement := &models.Movement{
		ArticleID:     article.ID,
		Quantity:      qty,
		Note:          note,
		Type:          movementType,
		InvoiceNumber: invoiceNumber,
		OrderID:       orderID,
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, fmt.Errorf("create movement: %w", err)
	}
	if err := tx.Model(article).Update("stock", newStock).Error; err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}
	article.Stock = newStock
	return movement, nil
}
