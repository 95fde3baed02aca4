package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxReportedRowErrors caps the row errors flashed after an import.
const maxReportedRowErrors = 10

// TransferController handles file import, exports and ZIP backups.
type TransferController struct {
	importer  *services.ImportService
	exporter  *services.ExportService
	backups   *services.BackupService
	activity  *services.ActivityService
	logger    *zap.Logger
	maxUpload int64
}

func NewTransferController(importer *services.ImportService, exporter *services.ExportService, backups *services.BackupService, activity *services.ActivityService, logger *zap.Logger, maxUploadMB int) *TransferController {
	return &TransferController{
		importer:  importer,
		exporter:  exporter,
		backups:   backups,
		activity:  activity,
		logger:    logger,
		maxUpload: int64(maxUploadMB) << 20,
	}
}

type layoutInfo struct {
	Name    string
	Columns string
}

// ImportForm shows the upload form with the accepted layouts.
// GET /import
func (tc *TransferController) ImportForm(c *gin.Context) {
	layouts := make([]layoutInfo, 0, 3)
	for name, columns := range services.ExpectedLayouts() {
		layouts = append(layouts, layoutInfo{Name: name, Columns: strings.Join(columns, ", ")})
	}
	sort.Slice(layouts, func(i, j int) bool { return layouts[i].Name < layouts[j].Name })
	render(c, http.StatusOK, "import.html", gin.H{
		"Title":   "Import",
		"Layouts": layouts,
	})
}

// Import reads an uploaded CSV or XLSX file.
// POST /import
func (tc *TransferController) Import(c *gin.Context) {
	data, filename, ok := tc.readUpload(c, "/import")
	if !ok {
		return
	}

	result, err := tc.importer.Import(c.Request.Context(), filename, data)
	var layoutErr *services.UnknownLayoutError
	switch {
	case errors.As(err, &layoutErr):
		redirectBack(c, "/import", fmt.Sprintf("CSV-Spalten stimmen nicht. Erwartet: %s, gefunden: %s",
			expectedLayoutsText(), strings.Join(layoutErr.Found, ", ")))
		return
	case err != nil:
		tc.logger.Warn("import failed", zap.String("file", filename), zap.Error(err))
		redirectBack(c, "/import", "Fehler beim Import: die Datei konnte nicht verarbeitet werden")
		return
	}

	tc.activity.Record(c.Request.Context(), currentUserID(c), fmt.Sprintf("Import %s (%s)", filename, result.Layout))
	flash(c, fmt.Sprintf("Import abgeschlossen: %d neu, %d aktualisiert, %d Bewegungen, %d übersprungen",
		result.Created, result.Updated, result.Movements, result.Skipped))
	for i, rowErr := range result.Errors {
		if i == maxReportedRowErrors {
			flash(c, fmt.Sprintf("… und %d weitere Fehler", len(result.Errors)-maxReportedRowErrors))
			break
		}
		flash(c, rowErr)
	}
	c.Redirect(http.StatusFound, "/")
}

// ExportArticlesCSV downloads all articles.
// GET /export/articles
func (tc *TransferController) ExportArticlesCSV(c *gin.Context) {
	tc.download(c, "articles.csv", "text/csv; charset=utf-8", func(w io.Writer) error {
		return tc.exporter.WriteArticlesCSV(c.Request.Context(), w)
	})
}

// ExportArticlesXLSX downloads all articles as a workbook.
// GET /export/articles.xlsx
func (tc *TransferController) ExportArticlesXLSX(c *gin.Context) {
	tc.download(c, "articles.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", func(w io.Writer) error {
		return tc.exporter.WriteArticlesXLSX(c.Request.Context(), w)
	})
}

// ExportMovements downloads the movement ledger.
// GET /export/movements
func (tc *TransferController) ExportMovements(c *gin.Context) {
	tc.download(c, "movements.csv", "text/csv; charset=utf-8", func(w io.Writer) error {
		return tc.exporter.WriteMovementsCSV(c.Request.Context(), w)
	})
}

// Backup downloads the ZIP backup.
// GET /backup
func (tc *TransferController) Backup(c *gin.Context) {
	filename := services.BackupFilename(time.Now())
	ok := tc.download(c, filename, "application/zip", func(w io.Writer) error {
		return tc.backups.Export(c.Request.Context(), w)
	})
	if ok {
		tc.activity.Record(c.Request.Context(), currentUserID(c), "Backup erstellt")
	}
}

// Restore applies an uploaded backup ZIP.
// POST /backup/restore
func (tc *TransferController) Restore(c *gin.Context) {
	data, filename, ok := tc.readUpload(c, "/settings")
	if !ok {
		return
	}

	result, err := tc.backups.Restore(c.Request.Context(), bytes.NewReader(data), int64(len(data)))
	if services.IsRestoreInputError(err) {
		tc.logger.Warn("restore rejected", zap.String("file", filename), zap.Error(err))
		redirectBack(c, "/settings", "Ungültige Sicherung: "+err.Error())
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}

	tc.activity.Record(c.Request.Context(), currentUserID(c), "Backup wiederhergestellt")
	redirectBack(c, "/settings", fmt.Sprintf("Wiederherstellung abgeschlossen: %d Artikel, %d Bestellungen, %d Positionen, %d Bewegungen",
		result.Articles, result.Orders, result.OrderItems, result.Movements))
}

// readUpload reads the multipart field "file" within the upload limit.
func (tc *TransferController) readUpload(c *gin.Context, back string) ([]byte, string, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		redirectBack(c, back, "Bitte eine Datei auswählen")
		return nil, "", false
	}
	if tc.maxUpload > 0 && header.Size > tc.maxUpload {
		redirectBack(c, back, "Datei ist zu groß")
		return nil, "", false
	}
	f, err := header.Open()
	if err != nil {
		serverError(c, fmt.Errorf("open upload: %w", err))
		return nil, "", false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		serverError(c, fmt.Errorf("read upload: %w", err))
		return nil, "", false
	}
	return data, header.Filename, true
}

// download buffers the file so a failed export still yields an error page.
func (tc *TransferController) download(c *gin.Context, filename, contentType string, write func(io.Writer) error) bool {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		serverError(c, err)
		return false
	}
	c.Header("Content-Disposition", "attachment;filename="+filename)
	c.Data(http.StatusOK, contentType, buf.Bytes())
	return true
}

func expectedLayoutsText() string {
	layouts := services.ExpectedLayouts()
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%s)", name, strings.Join(layouts[name], ", ")))
	}
	return strings.Join(parts, " oder ")
}
