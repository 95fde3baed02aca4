package services

import (
	"context"
	"testing"

	"lagerverwaltung/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestSettingsWithoutRedis(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettingsService(db, nil, zap.NewNop(), true)
	ctx := context.Background()

	assert.Equal(t, DefaultLabelFormat, svc.Get(ctx, SettingLabelFormat, DefaultLabelFormat))
	assert.True(t, svc.UserManagementEnabled(ctx))

	require.NoError(t, svc.Set(ctx, SettingLabelFormat, "100x60"))
	require.NoError(t, svc.Set(ctx, SettingLabelFormat, "150x100"))
	assert.Equal(t, "150x100", svc.Get(ctx, SettingLabelFormat, DefaultLabelFormat))

	require.NoError(t, svc.SetBool(ctx, SettingUserManagement, false))
	assert.False(t, svc.UserManagementEnabled(ctx))

	assert.Equal(t, 1, svc.GetInt(ctx, SettingCSVMultiplier, 1))
	require.NoError(t, svc.Set(ctx, SettingCSVMultiplier, "x"))
	assert.Equal(t, 1, svc.GetInt(ctx, SettingCSVMultiplier, 1))
	require.NoError(t, svc.Set(ctx, SettingCSVMultiplier, "12"))
	assert.Equal(t, 12, svc.GetInt(ctx, SettingCSVMultiplier, 1))

	var count int64
	require.NoError(t, db.Model(&models.Setting{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestSettingKeyQuotedOnMySQL(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "lager@tcp(127.0.0.1:3306)/lager",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	stmt := db.Where(settingKey(SettingLabelFormat)).First(&models.Setting{}).Statement
	assert.Contains(t, stmt.SQL.String(), "WHERE `key` = ?")
	require.NotEmpty(t, stmt.Vars)
	assert.Equal(t, SettingLabelFormat, stmt.Vars[0])
}
