package models

import (
	"time"

	"gorm.io/gorm"
)

// Movement types.
const (
	MovementInbound   = "Wareneingang"
	MovementOutbound  = "Warenausgang"
	MovementInventory = "Inventur"
)

// MovementTypes lists the types offered in forms.
var MovementTypes = []string{MovementInbound, MovementOutbound, MovementInventory}

// Movement is one entry of the append-only stock ledger. Positive quantities
// are inbound, negative ones outbound.
type Movement struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ArticleID     uint      `json:"article_id" gorm:"not null;index"`
	Article       *Article  `json:"article,omitempty" gorm:"foreignKey:ArticleID"`
	Quantity      int       `json:"quantity" gorm:"not null"`
	Note          string    `json:"note" gorm:"type:varchar(200)"`
	Type          string    `json:"type" gorm:"type:varchar(20);not null;default:'Wareneingang';index"`
	InvoiceNumber *string   `json:"invoice_number" gorm:"type:varchar(100);index"`
	OrderID       *uint     `json:"order_id" gorm:"index"`
	Timestamp     time.Time `json:"timestamp" gorm:"index"`
}

func (Movement) TableName() string {
	return "movements"
}

// BeforeCreate stamps the movement in UTC unless a timestamp was restored.
func (m *Movement) BeforeCreate(tx *gorm.DB) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.Type == "" {
		m.Type = MovementInbound
	}
	return nil
}

// IsValidMovementType reports whether t is one of the known types.
func IsValidMovementType(t string) bool {
	for _, known := range MovementTypes {
		if known == t {
			return true
		}
	}
	return false
}
