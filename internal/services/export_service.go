package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"lagerverwaltung/server/internal/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var (
	articleExportHeader  = []string{"name", "sku", "stock", "minimum_stock", "category", "location_primary", "location_secondary"}
	movementExportHeader = []string{"article_sku", "article_name", "quantity", "type", "note", "timestamp"}
)

// ExportService writes article and movement exports.
type ExportService struct {
	db *gorm.DB
}

func NewExportService(db *gorm.DB) *ExportService {
	return &ExportService{db: db}
}

func (s *ExportService) articleRows(ctx context.Context) ([][]string, error) {
	var articles []models.Article
	if err := s.db.WithContext(ctx).Order("id").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	rows := make([][]string, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, []string{
			a.Name,
			a.SKU,
			strconv.Itoa(a.Stock),
			strconv.Itoa(a.MinimumStock),
			a.Category,
			a.LocationPrimary,
			a.LocationSecondary,
		})
	}
	return rows, nil
}

// WriteArticlesCSV writes articles.csv. The file can be imported again.
func (s *ExportService) WriteArticlesCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.articleRows(ctx)
	if err != nil {
		return err
	}
	return writeCSV(w, articleExportHeader, rows)
}

// WriteArticlesXLSX writes the article export as a spreadsheet.
func (s *ExportService) WriteArticlesXLSX(ctx context.Context, w io.Writer) error {
	rows, err := s.articleRows(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Artikel"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	writeRow := func(rowNum int, values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	header := make([]interface{}, len(articleExportHeader))
	for i, h := range articleExportHeader {
		header[i] = h
	}
	if err := writeRow(1, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			// stock and minimum_stock stay numeric
			if j == 2 || j == 3 {
				n, _ := strconv.Atoi(v)
				values[j] = n
				continue
			}
			values[j] = v
		}
		if err := writeRow(i+2, values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// WriteMovementsCSV writes movements.csv in ledger order.
func (s *ExportService) WriteMovementsCSV(ctx context.Context, w io.Writer) error {
	var movements []models.Movement
	if err := s.db.WithContext(ctx).Preload("Article").Order("timestamp, id").Find(&movements).Error; err != nil {
		return fmt.Errorf("load movements: %w", err)
	}
	rows := make([][]string, 0, len(movements))
	for _, m := range movements {
		sku, name := "", ""
		if m.Article != nil {
			sku, name = m.Article.SKU, m.Article.Name
		}
		rows = append(rows, []string{
			sku,
			name,
			strconv.Itoa(m.Quantity),
			m.Type,
			m.Note,
			m.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return writeCSV(w, movementExportHeader, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}
