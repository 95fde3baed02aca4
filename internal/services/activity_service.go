package services

import (
	"context"
	"fmt"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActivityService writes and reads the user activity log.
type ActivityService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewActivityService(db *gorm.DB, logger *zap.Logger) *ActivityService {
	return &ActivityService{db: db, logger: logger}
}

// Record appends an entry for userID. A zero user id (anonymous access with
// user management disabled) is ignored. Failures are logged only.
func (s *ActivityService) Record(ctx context.Context, userID uint, action string) {
	if userID == 0 || action == "" {
		return
	}
	if runes := []rune(action); len(runes) > 255 {
		action = string(runes[:255])
	}
	entry := models.ActivityLog{UserID: userID, Action: action}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("failed to record activity", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// Latest returns the newest entries with their users.
func (s *ActivityService) Latest(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = 200
	}
	var logs []models.ActivityLog
	if err := s.db.WithContext(ctx).
		Preload("User").
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("load activity log: %w", err)
	}
	return logs, nil
}
