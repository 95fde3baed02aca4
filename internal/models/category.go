package models

// Category groups articles; its optional prefix assigns SKUs to it.
type Category struct {
	ID              uint    `json:"id" gorm:"primaryKey"`
	Name            string  `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Prefix          *string `json:"prefix" gorm:"type:varchar(20);uniqueIndex"`
	DefaultPrice    float64 `json:"default_price" gorm:"default:0"`
	DefaultMinStock int     `json:"default_min_stock" gorm:"default:0"`
}

func (Category) TableName() string {
	return "categories"
}

// PrefixValue returns the prefix or "".
func (c *Category) PrefixValue() string {
	if c.Prefix == nil {
		return ""
	}
	return *c.Prefix
}

// EndingCategory overrides price and CSV quantity multiplier for SKUs with a
// given suffix.
type EndingCategory struct {
	ID            uint    `json:"id" gorm:"primaryKey"`
	Category      string  `json:"category" gorm:"type:varchar(100);not null;default:''"`
	Suffix        string  `json:"suffix" gorm:"type:varchar(20);uniqueIndex;not null"`
	Price         float64 `json:"price" gorm:"default:0"`
	CsvMultiplier int     `json:"csv_multiplier" gorm:"default:1"`
}

func (EndingCategory) TableName() string {
	return "ending_categories"
}

// Multiplier never returns less than 1.
func (e *EndingCategory) Multiplier() int {
	if e.CsvMultiplier < 1 {
		return 1
	}
	return e.CsvMultiplier
}
