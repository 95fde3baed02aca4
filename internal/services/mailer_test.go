package services

import (
	"testing"
	"time"

	"lagerverwaltung/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

func TestNewStockAlerterNeedsServerAndRecipient(t *testing.T) {
	assert.Nil(t, NewStockAlerter(MailConfig{Server: "smtp.example.org"}, zap.NewNop()))
	assert.NotNil(t, NewStockAlerter(MailConfig{Server: "smtp.example.org", Recipient: "lager@example.org"}, zap.NewNop()))
}

func TestMailAlerterSendsInBackground(t *testing.T) {
	alerter, ok := NewStockAlerter(MailConfig{
		Server:    "smtp.example.org",
		Port:      587,
		Sender:    "lager@example.org",
		Recipient: "chef@example.org",
	}, zap.NewNop()).(*MailAlerter)
	require.True(t, ok)

	sent := make(chan *gomail.Message, 1)
	alerter.send = func(m *gomail.Message) error {
		sent <- m
		return nil
	}

	alerter.LowStock(models.Article{Name: "Schal", SKU: "SC-1", Stock: 2, MinimumStock: 100})

	select {
	case m := <-sent:
		assert.Equal(t, []string{"chef@example.org"}, m.GetHeader("To"))
		assert.Equal(t, []string{"Bestand unter Mindestbestand: SC-1"}, m.GetHeader("Subject"))
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not sent")
	}
}
