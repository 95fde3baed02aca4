package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"lagerverwaltung/server/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"gorm.io/gorm"
)

// Import layouts.
const (
	LayoutStandard        = "standard"
	LayoutLagerverwaltung = "lagerverwaltung"
	LayoutInvoice         = "rechnung"
)

var (
	standardColumns        = []string{"name", "sku", "stock", "category", "location_primary", "location_secondary"}
	standardOptional       = []string{"minimum_stock"}
	lagerverwaltungColumns = []string{"Artikelnummer", "Bezeichnung", "Kategorie", "Bestand", "Mindestbestand", "Lagerort", "Lagerort 2", "Preis"}
	invoiceColumns         = []string{"Rechnungsnummer", "Datum", "Artikelnummer", "Bezeichnung", "Menge"}
)

// ExpectedLayouts lists the accepted headers for error messages.
func ExpectedLayouts() map[string][]string {
	return map[string][]string{
		LayoutStandard:        append(append([]string{}, standardColumns...), standardOptional...),
		LayoutLagerverwaltung: lagerverwaltungColumns,
		LayoutInvoice:         invoiceColumns,
	}
}

// ImportResult summarises one import run.
type ImportResult struct {
	Layout    string   `json:"layout"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Movements int      `json:"movements"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

func (r *ImportResult) addError(line int, format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf("Zeile %d: %s", line, fmt.Sprintf(format, args...)))
}

// ImportService reads article and invoice files.
type ImportService struct {
	db        *gorm.DB
	pricing   *PricingService
	settings  *SettingsService
	logger    *zap.Logger
	publisher EventPublisher
}

func NewImportService(db *gorm.DB, pricing *PricingService, settings *SettingsService, logger *zap.Logger) *ImportService {
	return &ImportService{
		db:        db,
		pricing:   pricing,
		settings:  settings,
		logger:    logger,
		publisher: NopPublisher{},
	}
}

// SetPublisher sets the domain event publisher.
func (s *ImportService) SetPublisher(p EventPublisher) {
	if p != nil {
		s.publisher = p
	}
}

// Import detects the layout of the file and applies all rows in a single
// transaction. Row problems are collected in the result; database failures
// abort the whole import.
func (s *ImportService) Import(ctx context.Context, filename string, data []byte) (*ImportResult, error) {
	var (
		records [][]string
		err     error
	)
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		records, err = readXLSX(data)
	} else {
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &UnknownLayoutError{}
	}

	layout, columns, err := detectLayout(records[0])
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Layout: layout}
	// Read settings before the transaction holds the connection.
	defaultMultiplier := s.settings.GetInt(ctx, SettingCSVMultiplier, 1)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pricing := s.pricing.WithTx(tx)
		for i, record := range records[1:] {
			line := i + 2
			if isBlankRecord(record) {
				continue
			}
			row := columns.row(record)
			var rowErr error
			switch layout {
			case LayoutStandard:
				rowErr = s.importStandardRow(tx, pricing, row, line, result)
			case LayoutLagerverwaltung:
				rowErr = s.importLagerverwaltungRow(tx, pricing, row, line, result)
			case LayoutInvoice:
				rowErr = s.importInvoiceRow(tx, pricing, row, line, defaultMultiplier, result)
			}
			if rowErr != nil {
				return rowErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("import finished",
		zap.String("file", filename),
		zap.String("layout", result.Layout),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("movements", result.Movements),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	s.publisher.Publish(ctx, EventImportFinished, result)
	return result, nil
}

// articleRow is the normalised content of a standard or Lagerverwaltung row.
type articleRow struct {
	SKU               string
	Name              string
	Category          string
	Stock             int
	MinimumStock      *int
	LocationPrimary   string
	LocationSecondary string
	Price             *float64
	HasPriceColumn    bool
}

func (s *ImportService) importStandardRow(tx *gorm.DB, pricing *PricingService, row map[string]string, line int, result *ImportResult) error {
	stock, err := parseInt(row["stock"])
	if err != nil || stock < 0 {
		result.addError(line, "ungültiger Bestand %q", row["stock"])
		result.Skipped++
		return nil
	}
	ar := articleRow{
		SKU:               row["sku"],
		Name:              row["name"],
		Category:          row["category"],
		Stock:             stock,
		LocationPrimary:   row["location_primary"],
		LocationSecondary: row["location_secondary"],
	}
	if minimum, err := parseInt(row["minimum_stock"]); err == nil && minimum >= 0 {
		ar.MinimumStock = &minimum
	}
	return s.upsertArticle(tx, pricing, ar, line, result)
}

func (s *ImportService) importLagerverwaltungRow(tx *gorm.DB, pricing *PricingService, row map[string]string, line int, result *ImportResult) error {
	stock, err := parseInt(row["bestand"])
	if err != nil || stock < 0 {
		result.addError(line, "ungültiger Bestand %q", row["bestand"])
		result.Skipped++
		return nil
	}
	ar := articleRow{
		SKU:               row["artikelnummer"],
		Name:              row["bezeichnung"],
		Category:          row["kategorie"],
		Stock:             stock,
		LocationPrimary:   row["lagerort"],
		LocationSecondary: row["lagerort 2"],
		HasPriceColumn:    true,
	}
	if minimum, err := parseInt(row["mindestbestand"]); err == nil && minimum >= 0 {
		ar.MinimumStock = &minimum
	}
	if raw := row["preis"]; raw != "" {
		price, err := ParseDecimal(raw)
		if err != nil || price < 0 {
			result.addError(line, "ungültiger Preis %q", raw)
		} else {
			ar.Price = &price
		}
	}
	return s.upsertArticle(tx, pricing, ar, line, result)
}

// upsertArticle creates or updates the article by SKU and books a stock
// difference as an Inventur movement.
func (s *ImportService) upsertArticle(tx *gorm.DB, pricing *PricingService, row articleRow, line int, result *ImportResult) error {
	if row.SKU == "" {
		result.addError(line, "Artikelnummer fehlt")
		result.Skipped++
		return nil
	}

	var article models.Article
	err := tx.Where("sku = ?", row.SKU).First(&article).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return fmt.Errorf("load article %s: %w", row.SKU, err)
	}

	if isNew {
		if row.Name == "" {
			row.Name = row.SKU
		}
		article = models.Article{SKU: row.SKU}
	}
	if row.Name != "" {
		article.Name = row.Name
	}
	article.Category = resolveCategory(pricing, row.SKU, row.Category)
	article.LocationPrimary = row.LocationPrimary
	article.LocationSecondary = row.LocationSecondary
	if isNew {
		applyDerivedDefaults(pricing, &article, row.MinimumStock, row.Price)
	} else {
		if row.MinimumStock != nil {
			article.MinimumStock = *row.MinimumStock
		} else {
			article.MinimumStock = pricing.DefaultMinimumStock(article.Category)
		}
		switch {
		case row.Price != nil:
			article.Price = *row.Price
		case row.HasPriceColumn:
			if resolved := pricing.ResolvePrice(article.SKU, article.Category); resolved > 0 {
				article.Price = resolved
			}
		}
	}

	if isNew {
		if err := tx.Create(&article).Error; err != nil {
			return fmt.Errorf("create article %s: %w", row.SKU, err)
		}
		result.Created++
	} else {
		if err := tx.Model(&article).Select(
			"name", "category", "location_primary", "location_secondary", "minimum_stock", "price",
		).Updates(&article).Error; err != nil {
			return fmt.Errorf("update article %s: %w", row.SKU, err)
		}
		result.Updated++
	}

	if diff := row.Stock - article.Stock; diff != 0 {
		if _, err := bookMovement(tx, &article, diff, models.MovementInventory, "CSV-Import", nil, nil); err != nil {
			return err
		}
		result.Movements++
	}
	return nil
}

// importInvoiceRow books the sold quantity of one invoice line. Lines already
// imported for the same invoice and article are skipped.
func (s *ImportService) importInvoiceRow(tx *gorm.DB, pricing *PricingService, row map[string]string, line, defaultMultiplier int, result *ImportResult) error {
	invoice := row["rechnungsnummer"]
	sku := row["artikelnummer"]
	if invoice == "" || sku == "" {
		result.addError(line, "Rechnungsnummer oder Artikelnummer fehlt")
		result.Skipped++
		return nil
	}
	qty, err := parseInt(row["menge"])
	if err != nil || qty <= 0 {
		result.addError(line, "ungültige Menge %q", row["menge"])
		result.Skipped++
		return nil
	}

	var article models.Article
	err = tx.Where("sku = ?", sku).First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		base, ending := pricing.BaseSKU(sku)
		if ending == nil || base == "" {
			result.addError(line, "unbekannte Artikelnummer %s", sku)
			result.Skipped++
			return nil
		}
		err = tx.Where("sku = ?", base).First(&article).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.addError(line, "unbekannte Artikelnummer %s", sku)
			result.Skipped++
			return nil
		}
		multiplier := ending.CsvMultiplier
		if multiplier <= 1 {
			multiplier = defaultMultiplier
		}
		if multiplier > 1 {
			qty *= multiplier
		}
	}
	if err != nil {
		return fmt.Errorf("load article %s: %w", sku, err)
	}

	var seen int64
	if err := tx.Model(&models.Movement{}).
		Where("invoice_number = ? AND article_id = ?", invoice, article.ID).
		Count(&seen).Error; err != nil {
		return fmt.Errorf("check invoice %s: %w", invoice, err)
	}
	if seen > 0 {
		result.Skipped++
		return nil
	}

	invoiceNumber := invoice
	note := "Rechnung " + invoice
	if _, err := bookMovement(tx, &article, -qty, models.MovementOutbound, note, &invoiceNumber, nil); err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			result.addError(line, "nicht genug Bestand für %s (verfügbar %d, benötigt %d)", stockErr.ArticleName, stockErr.Available, stockErr.Requested)
			result.Skipped++
			return nil
		}
		return err
	}
	result.Movements++
	return nil
}

// columnIndex maps lower-cased header names to record positions.
type columnIndex map[string]int

func (c columnIndex) row(record []string) map[string]string {
	row := make(map[string]string, len(c))
	for name, idx := range c {
		if idx < len(record) {
			row[name] = strings.TrimSpace(record[idx])
		}
	}
	return row
}

// detectLayout compares the header set with the known layouts.
func detectLayout(header []string) (string, columnIndex, error) {
	columns := make(columnIndex, len(header))
	var found []string
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.Trim(h, "\"'\ufeff")))
		if name == "" {
			continue
		}
		columns[name] = i
		found = append(found, strings.TrimSpace(h))
	}

	switch {
	case headerMatches(columns, standardColumns, standardOptional):
		return LayoutStandard, columns, nil
	case headerMatches(columns, lagerverwaltungColumns, nil):
		return LayoutLagerverwaltung, columns, nil
	case headerMatches(columns, invoiceColumns, nil):
		return LayoutInvoice, columns, nil
	}
	return "", nil, &UnknownLayoutError{Found: found}
}

func headerMatches(columns columnIndex, required, optional []string) bool {
	matched := 0
	for _, name := range required {
		if _, ok := columns[strings.ToLower(name)]; !ok {
			return false
		}
		matched++
	}
	for _, name := range optional {
		if _, ok := columns[strings.ToLower(name)]; ok {
			matched++
		}
	}
	return matched == len(columns)
}

// DecodeText converts uploaded bytes to UTF-8: a BOM is stripped and invalid
// UTF-8 is read as Windows-1252.
func DecodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("decode windows-1252: %w", err)
	}
	return decoded, nil
}

// detectDelimiter picks ';' or ',' by counting them in the header line.
func detectDelimiter(data []byte) rune {
	header := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		header = data[:idx]
	}
	if bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		return ';'
	}
	return ','
}

func readCSV(data []byte) ([][]string, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("xlsx file has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// parseInt accepts whole numbers, also written as "3,0" or "3.0".
func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, strconv.ErrSyntax
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := ParseDecimal(raw)
	if err != nil || f != float64(int(f)) {
		return 0, strconv.ErrSyntax
	}
	return int(f), nil
}

// ParseDecimal accepts a decimal comma or point.
func ParseDecimal(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	return strconv.ParseFloat(raw, 64)
}
