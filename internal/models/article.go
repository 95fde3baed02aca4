package models

// Default values of a fresh article row.
const (
	DefaultArticleCategory = "Sticker"
	DefaultArticlePrice    = 10.49
)

// Article is a stock-keeping unit.
type Article struct {
	ID                uint    `json:"id" gorm:"primaryKey"`
	Name              string  `json:"name" gorm:"type:varchar(120);not null"`
	SKU               string  `json:"sku" gorm:"column:sku;type:varchar(64);uniqueIndex;not null"`
	Category          string  `json:"category" gorm:"type:varchar(100);default:'Sticker';index"`
	Stock             int     `json:"stock" gorm:"default:0"`
	MinimumStock      int     `json:"minimum_stock" gorm:"default:0"`
	LocationPrimary   string  `json:"location_primary" gorm:"type:varchar(80)"`
	LocationSecondary string  `json:"location_secondary" gorm:"type:varchar(80)"`
	Image             string  `json:"image" gorm:"type:varchar(200)"`
	Price             float64 `json:"price" gorm:"not null"`

	Movements []Movement `json:"movements,omitempty" gorm:"foreignKey:ArticleID;constraint:OnDelete:CASCADE"`
}

func (Article) TableName() string {
	return "articles"
}

// BelowMinimum reports whether the article needs restocking.
func (a *Article) BelowMinimum() bool {
	return a.Stock < a.MinimumStock
}
