package services

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"lagerverwaltung/server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Backup archive members and their headers.
const (
	backupArticles   = "articles.csv"
	backupOrders     = "orders.csv"
	backupOrderItems = "order_items.csv"
	backupMovements  = "invoice_movements.csv"
)

var backupHeaders = map[string][]string{
	backupArticles:   {"sku", "name", "category", "stock", "minimum_stock", "location_primary", "location_secondary", "image", "price"},
	backupOrders:     {"id", "customer_name", "customer_address", "status", "created_at"},
	backupOrderItems: {"order_id", "article_sku", "quantity", "unit_price"},
	backupMovements:  {"article_sku", "quantity", "type", "note", "invoice_number", "order_id", "timestamp"},
}

var backupMembers = []string{backupArticles, backupOrders, backupOrderItems, backupMovements}

// RestoreResult counts the rows written by a restore.
type RestoreResult struct {
	Articles   int `json:"articles"`
	Orders     int `json:"orders"`
	OrderItems int `json:"order_items"`
	Movements  int `json:"movements"`
	Skipped    int `json:"skipped"`
}

// BackupService exports and restores the business data as a ZIP of CSVs.
type BackupService struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher EventPublisher
	maxMember int64
}

// defaultMaxMemberSize caps the uncompressed size of one archive member.
const defaultMaxMemberSize = 64 << 20

func NewBackupService(db *gorm.DB, logger *zap.Logger) *BackupService {
	return &BackupService{db: db, logger: logger, publisher: NopPublisher{}, maxMember: defaultMaxMemberSize}
}

// SetMaxMemberSize limits how many uncompressed bytes a restore reads per
// archive member.
func (s *BackupService) SetMaxMemberSize(n int64) {
	if n > 0 {
		s.maxMember = n
	}
}

// SetPublisher sets the domain event publisher.
func (s *BackupService) SetPublisher(p EventPublisher) {
	if p != nil {
		s.publisher = p
	}
}

// BackupFilename returns a unique download name.
func BackupFilename(now time.Time) string {
	return fmt.Sprintf("lager_backup_%s_%s.zip", now.UTC().Format("20060102_150405"), uuid.NewString()[:8])
}

// Export writes the archive to w.
func (s *BackupService) Export(ctx context.Context, w io.Writer) error {
	db := s.db.WithContext(ctx)

	var articles []models.Article
	if err := db.Order("id").Find(&articles).Error; err != nil {
		return fmt.Errorf("load articles: %w", err)
	}
	skuByID := make(map[uint]string, len(articles))
	articleRows := make([][]string, 0, len(articles))
	for _, a := range articles {
		skuByID[a.ID] = a.SKU
		articleRows = append(articleRows, []string{
			a.SKU, a.Name, a.Category,
			strconv.Itoa(a.Stock), strconv.Itoa(a.MinimumStock),
			a.LocationPrimary, a.LocationSecondary, a.Image,
			strconv.FormatFloat(a.Price, 'f', 2, 64),
		})
	}

	var orders []models.Order
	if err := db.Order("id").Find(&orders).Error; err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	orderRows := make([][]string, 0, len(orders))
	for _, o := range orders {
		address := ""
		if o.CustomerAddress != nil {
			address = *o.CustomerAddress
		}
		orderRows = append(orderRows, []string{
			strconv.FormatUint(uint64(o.ID), 10), o.CustomerName, address, o.Status,
			o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	var items []models.OrderItem
	if err := db.Order("order_id, id").Find(&items).Error; err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	itemRows := make([][]string, 0, len(items))
	for _, it := range items {
		itemRows = append(itemRows, []string{
			strconv.FormatUint(uint64(it.OrderID), 10), skuByID[it.ArticleID],
			strconv.Itoa(it.Quantity), strconv.FormatFloat(it.UnitPrice, 'f', 2, 64),
		})
	}

	var movements []models.Movement
	if err := db.Where("invoice_number IS NOT NULL OR order_id IS NOT NULL").Order("id").Find(&movements).Error; err != nil {
		return fmt.Errorf("load movements: %w", err)
	}
	movementRows := make([][]string, 0, len(movements))
	for _, m := range movements {
		invoice, orderID := "", ""
		if m.InvoiceNumber != nil {
			invoice = *m.InvoiceNumber
		}
		if m.OrderID != nil {
			orderID = strconv.FormatUint(uint64(*m.OrderID), 10)
		}
		movementRows = append(movementRows, []string{
			skuByID[m.ArticleID], strconv.Itoa(m.Quantity), m.Type, m.Note, invoice, orderID,
			m.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	zw := zip.NewWriter(w)
	contents := map[string][][]string{
		backupArticles:   articleRows,
		backupOrders:     orderRows,
		backupOrderItems: itemRows,
		backupMovements:  movementRows,
	}
	for _, name := range backupMembers {
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := writeCSV(fw, backupHeaders[name], contents[name]); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	s.logger.Info("backup exported",
		zap.Int("articles", len(articles)),
		zap.Int("orders", len(orders)),
		zap.Int("movements", len(movements)))
	return nil
}

// Restore upserts the archive content in one transaction. Article stock is
// set to the backed-up value; the difference to the ledger is booked as an
// Inventur movement.
func (s *BackupService) Restore(ctx context.Context, r io.ReaderAt, size int64) (*RestoreResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	tables := make(map[string][]map[string]string, len(backupMembers))
	for _, name := range backupMembers {
		rows, err := readBackupMember(zr, name, s.maxMember)
		if err != nil {
			return nil, err
		}
		tables[name] = rows
	}

	result := &RestoreResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		articleIDs, stockBySKU, err := restoreArticles(tx, tables[backupArticles], result)
		if err != nil {
			return err
		}
		if err := restoreOrders(tx, tables[backupOrders], result); err != nil {
			return err
		}
		if err := restoreOrderItems(tx, tables[backupOrderItems], articleIDs, result); err != nil {
			return err
		}
		if err := restoreMovements(tx, tables[backupMovements], articleIDs, result); err != nil {
			return err
		}
		return alignStock(tx, articleIDs, stockBySKU)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("backup restored",
		zap.Int("articles", result.Articles),
		zap.Int("orders", result.Orders),
		zap.Int("order_items", result.OrderItems),
		zap.Int("movements", result.Movements),
		zap.Int("skipped", result.Skipped))
	s.publisher.Publish(ctx, EventBackupRestored, result)
	return result, nil
}

func readBackupMember(zr *zip.Reader, name string, limit int64) ([]map[string]string, error) {
	var file *zip.File
	for _, f := range zr.File {
		if f.Name == name {
			file = f
			break
		}
	}
	if file == nil {
		return nil, fmt.Errorf("%w: archive member %s missing", ErrInvalidInput, name)
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: archive member %s exceeds %d bytes", ErrInvalidInput, name, limit)
	}
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	records, err := csv.NewReader(strings.NewReader(string(text))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidInput, name)
	}

	expected := backupHeaders[name]
	header := records[0]
	if len(header) != len(expected) {
		return nil, fmt.Errorf("%w: unexpected columns in %s", ErrInvalidInput, name)
	}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("%w: unexpected columns in %s", ErrInvalidInput, name)
		}
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		row := make(map[string]string, len(expected))
		for i, col := range expected {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func restoreArticles(tx *gorm.DB, rows []map[string]string, result *RestoreResult) (map[string]uint, map[string]int, error) {
	ids := make(map[string]uint)
	stockBySKU := make(map[string]int)

	var existing []models.Article
	if err := tx.Find(&existing).Error; err != nil {
		return nil, nil, fmt.Errorf("load articles: %w", err)
	}
	for _, a := range existing {
		ids[a.SKU] = a.ID
	}

	for _, row := range rows {
		sku := row["sku"]
		stock, errStock := strconv.Atoi(row["stock"])
		if sku == "" || errStock != nil || stock < 0 {
			result.Skipped++
			continue
		}
		minimum, _ := strconv.Atoi(row["minimum_stock"])
		price, err := ParseDecimal(row["price"])
		if err != nil {
			price = models.DefaultArticlePrice
		}
		category := row["category"]
		if category == "" {
			category = models.DefaultArticleCategory
		}

		article := models.Article{
			Name:              row["name"],
			SKU:               sku,
			Category:          category,
			MinimumStock:      minimum,
			LocationPrimary:   row["location_primary"],
			LocationSecondary: row["location_secondary"],
			Image:             row["image"],
			Price:             price,
		}
		if id, ok := ids[sku]; ok {
			article.ID = id
			if err := tx.Model(&article).Select(
				"name", "category", "minimum_stock", "location_primary", "location_secondary", "image", "price",
			).Updates(&article).Error; err != nil {
				return nil, nil, fmt.Errorf("update article %s: %w", sku, err)
			}
		} else {
			if err := tx.Create(&article).Error; err != nil {
				return nil, nil, fmt.Errorf("create article %s: %w", sku, err)
			}
			ids[sku] = article.ID
		}
		stockBySKU[sku] = stock
		result.Articles++
	}
	return ids, stockBySKU, nil
}

func restoreOrders(tx *gorm.DB, rows []map[string]string, result *RestoreResult) error {
	for _, row := range rows {
		id, err := strconv.ParseUint(row["id"], 10, 64)
		if err != nil || id == 0 || row["customer_name"] == "" {
			result.Skipped++
			continue
		}
		status := row["status"]
		if !models.IsValidOrderStatus(status) {
			status = models.OrderStatusOpen
		}
		createdAt, err := time.Parse(time.RFC3339, row["created_at"])
		if err != nil {
			createdAt = time.Now().UTC()
		}
		var address *string
		if a := row["customer_address"]; a != "" {
			address = &a
		}

		order := models.Order{
			ID:              uint(id),
			CustomerName:    row["customer_name"],
			CustomerAddress: address,
			Status:          status,
			CreatedAt:       createdAt,
		}
		var count int64
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check order %d: %w", order.ID, err)
		}
		if count > 0 {
			err = tx.Model(&order).Select("customer_name", "customer_address", "status", "created_at").Updates(&order).Error
		} else {
			err = tx.Create(&order).Error
		}
		if err != nil {
			return fmt.Errorf("restore order %d: %w", order.ID, err)
		}
		result.Orders++
	}

	if tx.Dialector.Name() == "postgres" && result.Orders > 0 {
		// explicit ids do not advance the sequence
		if err := tx.Exec("SELECT setval(pg_get_serial_sequence('orders', 'id'), (SELECT COALESCE(MAX(id), 1) FROM orders))").Error; err != nil {
			return fmt.Errorf("reset order sequence: %w", err)
		}
	}
	return nil
}

func restoreOrderItems(tx *gorm.DB, rows []map[string]string, articleIDs map[string]uint, result *RestoreResult) error {
	cleared := make(map[uint]bool)
	for _, row := range rows {
		orderID, errOrder := strconv.ParseUint(row["order_id"], 10, 64)
		qty, errQty := strconv.Atoi(row["quantity"])
		articleID, known := articleIDs[row["article_sku"]]
		if errOrder != nil || errQty != nil || qty <= 0 || !known {
			result.Skipped++
			continue
		}
		price, err := ParseDecimal(row["unit_price"])
		if err != nil {
			price = 0
		}

		var orders int64
		if err := tx.Model(&models.Order{}).Where("id = ?", orderID).Count(&orders).Error; err != nil {
			return fmt.Errorf("check order %d: %w", orderID, err)
		}
		if orders == 0 {
			result.Skipped++
			continue
		}

		oid := uint(orderID)
		if !cleared[oid] {
			if err := tx.Where("order_id = ?", oid).Delete(&models.OrderItem{}).Error; err != nil {
				return fmt.Errorf("clear items of order %d: %w", oid, err)
			}
			cleared[oid] = true
		}
		item := models.OrderItem{OrderID: oid, ArticleID: articleID, Quantity: qty, UnitPrice: price}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
		result.OrderItems++
	}
	return nil
}

func restoreMovements(tx *gorm.DB, rows []map[string]string, articleIDs map[string]uint, result *RestoreResult) error {
	for _, row := range rows {
		articleID, known := articleIDs[row["article_sku"]]
		qty, err := strconv.Atoi(row["quantity"])
		if !known || err != nil || qty == 0 {
			result.Skipped++
			continue
		}
		movementType := row["type"]
		if !models.IsValidMovementType(movementType) {
			movementType = models.MovementOutbound
		}

		movement := models.Movement{
			ArticleID: articleID,
			Quantity:  qty,
			Type:      movementType,
			Note:      row["note"],
		}
		if ts, err := time.Parse(time.RFC3339, row["timestamp"]); err == nil {
			movement.Timestamp = ts
		}
		if invoice := row["invoice_number"]; invoice != "" {
			movement.InvoiceNumber = &invoice
		}
		if raw := row["order_id"]; raw != "" {
			if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
				var orders int64
				if err := tx.Model(&models.Order{}).Where("id = ?", id).Count(&orders).Error; err != nil {
					return fmt.Errorf("check order %d: %w", id, err)
				}
				if orders > 0 {
					oid := uint(id)
					movement.OrderID = &oid
				}
			}
		}
		if movement.InvoiceNumber == nil && movement.OrderID == nil {
			result.Skipped++
			continue
		}

		query := tx.Model(&models.Movement{}).Where("article_id = ? AND quantity = ?", articleID, qty)
		if movement.InvoiceNumber != nil {
			query = query.Where("invoice_number = ?", *movement.InvoiceNumber)
		} else {
			query = query.Where("order_id = ?", *movement.OrderID)
		}
		var present int64
		if err := query.Count(&present).Error; err != nil {
			return fmt.Errorf("check movement: %w", err)
		}
		if present > 0 {
			result.Skipped++
			continue
		}

		if err := tx.Create(&movement).Error; err != nil {
			return fmt.Errorf("create movement: %w", err)
		}
		result.Movements++
	}
	return nil
}

// alignStock sets each restored article to its backed-up stock and books the
// gap to the ledger sum as an Inventur movement.
func alignStock(tx *gorm.DB, articleIDs map[string]uint, stockBySKU map[string]int) error {
	for sku, stock := range stockBySKU {
		id := articleIDs[sku]
		var sum struct{ Total int }
		if err := tx.Model(&models.Movement{}).
			Select("COALESCE(SUM(quantity), 0) AS total").
			Where("article_id = ?", id).
			Scan(&sum).Error; err != nil {
			return fmt.Errorf("sum movements of %s: %w", sku, err)
		}
		if diff := stock - sum.Total; diff != 0 {
			movement := models.Movement{
				ArticleID: id,
				Quantity:  diff,
				Type:      models.MovementInventory,
				Note:      "Wiederherstellung",
			}
			if err := tx.Create(&movement).Error; err != nil {
				return fmt.Errorf("create restore movement for %s: %w", sku, err)
			}
		}
		if err := tx.Model(&models.Article{}).Where("id = ?", id).Update("stock", stock).Error; err != nil {
			return fmt.Errorf("set stock of %s: %w", sku, err)
		}
	}
	return nil
}

// IsRestoreInputError reports whether err was caused by the uploaded archive.
func IsRestoreInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, zip.ErrFormat)
}
