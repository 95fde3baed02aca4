package services

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// Domain event types.
const (
	EventMovementRecorded = "movement.recorded"
	EventOrderCreated     = "order.created"
	EventOrderDeleted     = "order.deleted"
	EventImportFinished   = "import.finished"
	EventBackupRestored   = "backup.restored"
)

// Event is the JSON envelope written to the event topic.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// EventPublisher delivers domain events. Implementations must not block the
// caller on broker problems.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{})
	Close() error
}

// NopPublisher drops all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) {}

func (NopPublisher) Close() error { return nil }

// KafkaConfig describes the broker connection.
type KafkaConfig struct {
	Brokers  string
	Topic    string
	Username string
	Password string
	CACert   string
}

// KafkaPublisher writes events asynchronously through a kafka-go writer.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewEventPublisher returns a Kafka publisher when brokers are configured,
// otherwise a NopPublisher.
func NewEventPublisher(cfg KafkaConfig, logger *zap.Logger) EventPublisher {
	brokers := ParseKafkaBrokers(cfg.Brokers)
	if len(brokers) == 0 || cfg.Topic == "" {
		logger.Info("Kafka not configured, domain events disabled")
		return NopPublisher{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Transport:    newKafkaTransport(cfg, logger),
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("failed to publish events", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	logger.Info("Kafka event publisher enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.Topic))
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish encodes the event and hands it to the writer.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, OccurredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	msg := kafka.Message{Key: []byte(eventType), Value: data}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("failed to queue event", zap.String("type", eventType), zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// newKafkaTransport enables SASL/PLAIN when credentials are set and TLS when
// SASL or a CA certificate is configured.
func newKafkaTransport(cfg KafkaConfig, logger *zap.Logger) *kafka.Transport {
	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}

	if cfg.Username != "" && cfg.Password != "" {
		transport.SASL = plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}
		logger.Info("Kafka SASL/PLAIN enabled", zap.String("username", cfg.Username))
	}

	if transport.SASL == nil && cfg.CACert == "" {
		return transport
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
			tlsConfig.RootCAs = pool
		} else {
			logger.Warn("could not parse Kafka CA certificate, using system roots")
		}
	}
	transport.TLS = tlsConfig
	return transport
}

// ParseKafkaBrokers splits a comma separated broker list.
func ParseKafkaBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
