package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order statuses.
const (
	OrderStatusOpen    = "offen"
	OrderStatusPaid    = "bezahlt"
	OrderStatusShipped = "versendet"
)

// OrderStatuses is the display order of all statuses.
var OrderStatuses = []string{OrderStatusOpen, OrderStatusPaid, OrderStatusShipped}

// Order is a customer order. CustomerAddress holds street and city/zip
// separated by a newline.
type Order struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	CustomerName    string    `json:"customer_name" gorm:"type:varchar(120);not null"`
	CustomerAddress *string   `json:"customer_address" gorm:"type:varchar(200)"`
	Status          string    `json:"status" gorm:"type:varchar(20);default:'offen';index"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime;index"`

	Items     []OrderItem `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Movements []Movement  `json:"-" gorm:"foreignKey:OrderID;constraint:OnDelete:SET NULL"`
}

func (Order) TableName() string {
	return "orders"
}

// BeforeCreate stores the creation time in UTC unless restored from a backup.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.Status == "" {
		o.Status = OrderStatusOpen
	}
	return nil
}

// TotalPrice sums quantity * unit price over the loaded items.
func (o *Order) TotalPrice() float64 {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	f, _ := total.Round(2).Float64()
	return f
}

// LabelAvailable reports whether a shipping label may be printed.
func (o *Order) LabelAvailable() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusShipped
}

// IsValidOrderStatus reports whether s is one of the known statuses.
func IsValidOrderStatus(s string) bool {
	for _, known := range OrderStatuses {
		if known == s {
			return true
		}
	}
	return false
}

// ReservesStock is true for statuses that take goods out of stock at order time.
func ReservesStock(status string) bool {
	return status == OrderStatusOpen || status == OrderStatusPaid
}

// OrderItem is one order line; UnitPrice is captured when the order is placed.
type OrderItem struct {
	ID        uint     `json:"id" gorm:"primaryKey"`
	OrderID   uint     `json:"order_id" gorm:"not null;index"`
	ArticleID uint     `json:"article_id" gorm:"not null;index"`
	Article   *Article `json:"article,omitempty" gorm:"foreignKey:ArticleID"`
	Quantity  int      `json:"quantity" gorm:"not null"`
	UnitPrice float64  `json:"unit_price" gorm:"not null"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// LineTotal is quantity * unit price.
func (i *OrderItem) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(i.UnitPrice).Mul(decimal.NewFromInt(int64(i.Quantity)))
}
