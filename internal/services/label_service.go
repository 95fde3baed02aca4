package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"lagerverwaltung/server/internal/models"

	"github.com/go-pdf/fpdf"
)

const (
	labelMargin     = 5.0
	labelLineHeight = 5.0
	labelGap        = 3.0
	defaultLabelW   = 100.0
	defaultLabelH   = 50.0
)

// LabelService renders shipping labels as PDF.
type LabelService struct {
	settings *SettingsService
}

func NewLabelService(settings *SettingsService) *LabelService {
	return &LabelService{settings: settings}
}

// ParseLabelFormat reads "WxH" in millimetres, falling back to 100x50.
func ParseLabelFormat(format string) (float64, float64) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(format)), "x")
	if len(parts) != 2 {
		return defaultLabelW, defaultLabelH
	}
	w, errW := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(parts[0], ",", ".")), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(parts[1], ",", ".")), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return defaultLabelW, defaultLabelH
	}
	return w, h
}

// Render draws sender and recipient of a paid or shipped order.
func (s *LabelService) Render(ctx context.Context, order *models.Order) ([]byte, error) {
	if !order.LabelAvailable() {
		return nil, ErrLabelNotAvailable
	}

	width, height := ParseLabelFormat(s.settings.Get(ctx, SettingLabelFormat, DefaultLabelFormat))
	senderBlock := s.settings.Get(ctx, SettingLabelSender, DefaultLabelSender)

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(labelMargin, labelMargin, labelMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	line := func(text string) {
		pdf.SetX(labelMargin)
		pdf.CellFormat(0, labelLineHeight, tr(text), "", 1, "L", false, 0, "")
	}

	pdf.SetXY(labelMargin, labelMargin)
	pdf.SetFont("Helvetica", "B", 10)
	line("Absender:")
	pdf.SetFont("Helvetica", "", 10)
	for _, l := range splitLines(senderBlock) {
		line(l)
	}

	pdf.Ln(labelGap)

	pdf.SetFont("Helvetica", "B", 10)
	line("Empfänger:")
	pdf.SetFont("Helvetica", "", 12)
	line(order.CustomerName)
	if order.CustomerAddress != nil {
		for _, l := range splitLines(*order.CustomerAddress) {
			line(l)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render label for order %d: %w", order.ID, err)
	}
	return buf.Bytes(), nil
}

// LabelFilename is the download name of an order's label.
func LabelFilename(orderID uint) string {
	return fmt.Sprintf("order_%d_label.pdf", orderID)
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\\n", "\n")
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
