package services

import (
	"context"
	"fmt"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cleanup scopes.
const (
	CleanupMovements = "movements"
	CleanupOrders    = "orders"
	CleanupArticles  = "articles"
	CleanupMessages  = "messages"
	CleanupAll       = "all"

	// CleanupConfirmation must be typed to confirm a cleanup.
	CleanupConfirmation = "LÖSCHEN"
)

// CleanupScopes lists the scopes offered on the settings page.
var CleanupScopes = []string{CleanupMovements, CleanupOrders, CleanupArticles, CleanupMessages, CleanupAll}

// CleanupService bulk-deletes business data.
type CleanupService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCleanupService(db *gorm.DB, logger *zap.Logger) *CleanupService {
	return &CleanupService{db: db, logger: logger}
}

// Run deletes the rows of scope and returns how many were removed. Deleting
// movements leaves article stock untouched.
func (s *CleanupService) Run(ctx context.Context, scope, confirmation string) (int64, error) {
	if confirmation != CleanupConfirmation {
		return 0, ErrConfirmation
	}

	var steps []interface{}
	switch scope {
	case CleanupMovements:
		steps = []interface{}{&models.Movement{}}
	case CleanupOrders:
		steps = []interface{}{&models.OrderItem{}, &models.Order{}}
	case CleanupArticles:
		steps = []interface{}{&models.Movement{}, &models.OrderItem{}, &models.Article{}}
	case CleanupMessages:
		steps = []interface{}{&models.Message{}}
	case CleanupAll:
		steps = []interface{}{&models.Movement{}, &models.OrderItem{}, &models.Order{}, &models.Article{}, &models.Message{}}
	default:
		return 0, ErrInvalidInput
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if scope == CleanupOrders {
			// keep the ledger, drop the references
			if err := tx.Model(&models.Movement{}).Where("order_id IS NOT NULL").Update("order_id", nil).Error; err != nil {
				return fmt.Errorf("detach movements: %w", err)
			}
		}
		for _, model := range steps {
			result := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model)
			if result.Error != nil {
				return fmt.Errorf("delete %T: %w", model, result.Error)
			}
			deleted += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Warn("cleanup executed", zap.String("scope", scope), zap.Int64("deleted", deleted))
	return deleted, nil
}
