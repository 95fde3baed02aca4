package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderFilter narrows the order list. Dates are YYYY-MM-DD; invalid dates
// are ignored.
type OrderFilter struct {
	Status   string
	Customer string
	Start    string
	End      string
}

// OrderLine is one requested position of a new order. A nil UnitPrice takes
// the article price.
type OrderLine struct {
	ArticleID uint
	Quantity  int
	UnitPrice *float64
}

// OrderInput carries the order form.
type OrderInput struct {
	CustomerName string
	Street       string
	CityZip      string
	Status       string
	Lines        []OrderLine
}

// OrderEvent is the payload of order.created and order.deleted.
type OrderEvent struct {
	OrderID    uint    `json:"order_id"`
	Customer   string  `json:"customer"`
	Status     string  `json:"status"`
	Items      int     `json:"items"`
	TotalPrice float64 `json:"total_price"`
}

// OrderService handles customer orders and the stock they reserve.
type OrderService struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher EventPublisher
}

func NewOrderService(db *gorm.DB, logger *zap.Logger) *OrderService {
	return &OrderService{db: db, logger: logger, publisher: NopPublisher{}}
}

// SetPublisher sets the domain event publisher.
func (s *OrderService) SetPublisher(p EventPublisher) {
	if p != nil {
		s.publisher = p
	}
}

// JoinAddress builds the stored two-line address, nil when both parts are empty.
func JoinAddress(street, cityZip string) *string {
	street = strings.TrimSpace(street)
	cityZip = strings.TrimSpace(cityZip)
	if street == "" && cityZip == "" {
		return nil
	}
	address := street + "\n" + cityZip
	return &address
}

// SplitAddress returns street and city/zip lines of a stored address.
func SplitAddress(address *string) (string, string) {
	if address == nil {
		return "", ""
	}
	lines := strings.Split(strings.ReplaceAll(*address, "\r\n", "\n"), "\n")
	street, cityZip := "", ""
	if len(lines) > 0 {
		street = lines[0]
	}
	if len(lines) > 1 {
		cityZip = lines[1]
	}
	return street, cityZip
}

// List returns orders newest first.
func (s *OrderService) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if customer := strings.TrimSpace(filter.Customer); customer != "" {
		query = query.Where("customer_name LIKE ?", "%"+customer+"%")
	}
	if start, err := time.Parse("2006-01-02", filter.Start); err == nil {
		query = query.Where("created_at >= ?", start)
	}
	if end, err := time.Parse("2006-01-02", filter.End); err == nil {
		// the end day is included
		query = query.Where("created_at < ?", end.AddDate(0, 0, 1))
	}

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Get loads an order with its items and their articles.
func (s *OrderService) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items.Article").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &order, nil
}

// Create stores the order and, for reserving statuses, takes the goods out
// of stock. The first line without enough stock rolls back everything.
func (s *OrderService) Create(ctx context.Context, input OrderInput) (*models.Order, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	if input.CustomerName == "" {
		return nil, ErrInvalidInput
	}
	if !models.IsValidOrderStatus(input.Status) {
		return nil, ErrInvalidStatus
	}

	order := models.Order{
		CustomerName:    input.CustomerName,
		CustomerAddress: JoinAddress(input.Street, input.CityZip),
		Status:          input.Status,
	}
	reserve := models.ReservesStock(input.Status)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		note := fmt.Sprintf("Bestellung #%d", order.ID)

		for _, line := range input.Lines {
			if line.Quantity <= 0 {
				continue
			}
			var article models.Article
			if err := lockArticle(tx, line.ArticleID, &article); err != nil {
				return err
			}

			unitPrice := article.Price
			if line.UnitPrice != nil && *line.UnitPrice >= 0 {
				unitPrice = *line.UnitPrice
			}
			item := models.OrderItem{
				OrderID:   order.ID,
				ArticleID: article.ID,
				Quantity:  line.Quantity,
				UnitPrice: unitPrice,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			item.Article = &article
			order.Items = append(order.Items, item)

			if !reserve {
				continue
			}
			orderID := order.ID
			if _, err := bookMovement(tx, &article, -line.Quantity, models.MovementOutbound, note, nil, &orderID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.Uint("order_id", order.ID),
		zap.String("status", order.Status),
		zap.Int("items", len(order.Items)))
	s.publisher.Publish(ctx, EventOrderCreated, orderEvent(&order))
	return &order, nil
}

// Update changes customer data and status. Stock is not touched.
func (s *OrderService) Update(ctx context.Context, id uint, input OrderInput) (*models.Order, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	if input.CustomerName == "" {
		return nil, ErrInvalidInput
	}
	if !models.IsValidOrderStatus(input.Status) {
		return nil, ErrInvalidStatus
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	order.CustomerName = input.CustomerName
	order.CustomerAddress = JoinAddress(input.Street, input.CityZip)
	order.Status = input.Status

	if err := s.db.WithContext(ctx).Model(order).Select("customer_name", "customer_address", "status").Updates(order).Error; err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	s.logger.Info("order updated", zap.Uint("order_id", order.ID), zap.String("status", order.Status))
	return order, nil
}

// Delete removes the order and its items. Goods taken out for the order are
// booked back with a compensating inbound movement.
func (s *OrderService) Delete(ctx context.Context, id uint) error {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load order: %w", err)
		}

		var movements []models.Movement
		if err := tx.Where("order_id = ? AND type = ?", id, models.MovementOutbound).Find(&movements).Error; err != nil {
			return fmt.Errorf("load order movements: %w", err)
		}

		note := fmt.Sprintf("Storno Bestellung #%d", id)
		for _, movement := range movements {
			if movement.Quantity >= 0 {
				continue
			}
			var article models.Article
			if err := lockArticle(tx, movement.ArticleID, &article); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			if _, err := bookMovement(tx, &article, -movement.Quantity, models.MovementInbound, note, nil, nil); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Movement{}).Where("order_id = ?", id).Update("order_id", nil).Error; err != nil {
			return fmt.Errorf("detach movements: %w", err)
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		if err := tx.Delete(&models.Order{}, id).Error; err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("order deleted", zap.Uint("order_id", id))
	s.publisher.Publish(ctx, EventOrderDeleted, orderEvent(&order))
	return nil
}

// StatusCounts returns the number of orders per status for the dashboard.
func (s *OrderService) StatusCounts(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	counts := make(map[string]int64, len(models.OrderStatuses))
	for _, status := range models.OrderStatuses {
		counts[status] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func orderEvent(order *models.Order) OrderEvent {
	return OrderEvent{
		OrderID:    order.ID,
		Customer:   order.CustomerName,
		Status:     order.Status,
		Items:      len(order.Items),
		TotalPrice: order.TotalPrice(),
	}
}
