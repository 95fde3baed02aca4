package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lagerverwaltung/server/internal/models"
	"lagerverwaltung/server/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Known setting keys.
const (
	SettingUserManagement         = "enable_user_management"
	SettingLabelFormat            = "etikett_format"
	SettingLabelSender            = "label_sender"
	SettingCSVMultiplier          = "csv_multiplier"
	SettingProfileLoginNoPassword = "profile_login_without_password"
)

const (
	DefaultLabelFormat  = "100x50"
	DefaultLabelSender  = "Fan-Kultur Xperience GmbH\nHauptstr. 20\n55288 Armsheim"
	settingsCachePrefix = "settings:"
	settingsCacheTTL    = 5 * time.Minute
)

// SettingsService reads and writes the key/value settings table, with an
// optional Redis read-through cache.
type SettingsService struct {
	db                    *gorm.DB
	cache                 *utils.RedisClient
	logger                *zap.Logger
	userManagementDefault bool
}

// NewSettingsService creates the service; cache may be nil.
func NewSettingsService(db *gorm.DB, cache *utils.RedisClient, logger *zap.Logger, userManagementDefault bool) *SettingsService {
	return &SettingsService{
		db:                    db,
		cache:                 cache,
		logger:                logger,
		userManagementDefault: userManagementDefault,
	}
}

// Get returns the stored value or defaultValue when the key is absent.
func (s *SettingsService) Get(ctx context.Context, key, defaultValue string) string {
	if cached, err := s.cache.Get(ctx, settingsCachePrefix+key); err == nil {
		return cached
	} else if !utils.IsMiss(err) {
		s.logger.Warn("settings cache read failed", zap.String("key", key), zap.Error(err))
	}

	var setting models.Setting
	err := s.db.WithContext(ctx).Where(settingKey(key)).First(&setting).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("settings read failed", zap.String("key", key), zap.Error(err))
		}
		return defaultValue
	}

	if err := s.cache.Set(ctx, settingsCachePrefix+key, setting.Value, settingsCacheTTL); err != nil && !utils.IsMiss(err) {
		s.logger.Warn("settings cache write failed", zap.String("key", key), zap.Error(err))
	}
	return setting.Value
}

// Set creates or updates a setting and drops its cache entry.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	var setting models.Setting
	err := s.db.WithContext(ctx).Where(settingKey(key)).First(&setting).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		setting = models.Setting{Key: key, Value: value}
		if err := s.db.WithContext(ctx).Create(&setting).Error; err != nil {
			return fmt.Errorf("create setting %s: %w", key, err)
		}
	case err != nil:
		return fmt.Errorf("load setting %s: %w", key, err)
	default:
		if err := s.db.WithContext(ctx).Model(&setting).Update("value", value).Error; err != nil {
			return fmt.Errorf("update setting %s: %w", key, err)
		}
	}

	if err := s.cache.Delete(ctx, settingsCachePrefix+key); err != nil && !utils.IsMiss(err) {
		s.logger.Warn("settings cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// GetInt parses the value as an integer, falling back to defaultValue.
func (s *SettingsService) GetInt(ctx context.Context, key string, defaultValue int) int {
	value := s.Get(ctx, key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetBool treats "1" as true.
func (s *SettingsService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	def := "0"
	if defaultValue {
		def = "1"
	}
	return s.Get(ctx, key, def) == "1"
}

// SetBool stores "1" or "0".
func (s *SettingsService) SetBool(ctx context.Context, key string, value bool) error {
	if value {
		return s.Set(ctx, key, "1")
	}
	return s.Set(ctx, key, "0")
}

// UserManagementEnabled reads the toggle, defaulting to the environment value.
func (s *SettingsService) UserManagementEnabled(ctx context.Context) bool {
	return s.GetBool(ctx, SettingUserManagement, s.userManagementDefault)
}

// settingKey matches the key column. KEY is reserved on MySQL, so the
// column goes through gorm's dialect quoting.
func settingKey(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}
