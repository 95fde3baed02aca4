package services

import (
	"fmt"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// StockAlerter is notified when a movement leaves an article below its minimum.
type StockAlerter interface {
	LowStock(article models.Article)
}

// MailConfig holds the SMTP settings for alert mails.
type MailConfig struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Sender    string
	Recipient string
}

// MailAlerter sends low-stock alerts by SMTP.
type MailAlerter struct {
	dialer    *gomail.Dialer
	sender    string
	recipient string
	logger    *zap.Logger
	send      func(*gomail.Message) error
}

// NewStockAlerter returns a mail alerter, or nil when mail is not configured.
func NewStockAlerter(cfg MailConfig, logger *zap.Logger) StockAlerter {
	if cfg.Server == "" || cfg.Recipient == "" {
		return nil
	}
	dialer := gomail.NewDialer(cfg.Server, cfg.Port, cfg.Username, cfg.Password)
	alerter := &MailAlerter{
		dialer:    dialer,
		sender:    cfg.Sender,
		recipient: cfg.Recipient,
		logger:    logger,
	}
	alerter.send = func(m *gomail.Message) error { return dialer.DialAndSend(m) }
	return alerter
}

// LowStock sends the alert in the background.
func (a *MailAlerter) LowStock(article models.Article) {
	msg := a.buildMessage(article)
	go func() {
		if err := a.send(msg); err != nil {
			a.logger.Warn("failed to send low stock alert", zap.String("sku", article.SKU), zap.Error(err))
			return
		}
		a.logger.Info("low stock alert sent", zap.String("sku", article.SKU), zap.String("to", a.recipient))
	}()
}

func (a *MailAlerter) buildMessage(article models.Article) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", a.sender)
	m.SetHeader("To", a.recipient)
	m.SetHeader("Subject", fmt.Sprintf("Bestand unter Mindestbestand: %s", article.SKU))
	m.SetBody("text/plain", fmt.Sprintf(
		"Artikel: %s (%s)\nBestand: %d\nMindestbestand: %d\nLagerort: %s\n",
		article.Name, article.SKU, article.Stock, article.MinimumStock, article.LocationPrimary,
	))
	return m
}
