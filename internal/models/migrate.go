package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table of the application.
func AutoMigrate(db *gorm.DB) error {
	// Parents before children so foreign keys resolve.
	tables := []interface{}{
		&User{},
		&Setting{},
		&Category{},
		&EndingCategory{},
		&Article{},
		&Order{},
		&OrderItem{},
		&Movement{},
		&Message{},
		&ActivityLog{},
	}
	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			return fmt.Errorf("auto migrate %T: %w", table, err)
		}
	}
	return nil
}
