package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxMessageLength is the longest accepted message in characters.
const MaxMessageLength = 500

// MessageNotifier is told about every stored message, e.g. to push it to
// connected browsers.
type MessageNotifier interface {
	NotifyMessage(msg models.Message)
}

// Partner is a user the caller has exchanged messages with.
type Partner struct {
	User     models.User
	Messages int64
}

// MessageService stores direct messages between users.
type MessageService struct {
	db       *gorm.DB
	logger   *zap.Logger
	notifier MessageNotifier
}

func NewMessageService(db *gorm.DB, logger *zap.Logger) *MessageService {
	return &MessageService{db: db, logger: logger}
}

// SetNotifier sets the push channel for new messages.
func (s *MessageService) SetNotifier(n MessageNotifier) {
	s.notifier = n
}

// Send stores a message from sender to receiver.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, ErrInvalidInput
	}

	var receiver models.User
	if err := s.db.WithContext(ctx).First(&receiver, receiverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load receiver: %w", err)
	}

	msg := models.Message{SenderID: senderID, ReceiverID: receiverID, Content: content}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.logger.Debug("message sent", zap.Uint("from", senderID), zap.Uint("to", receiverID))

	if s.notifier != nil {
		s.notifier.NotifyMessage(msg)
	}
	return &msg, nil
}

// Conversation returns all messages between a and b, oldest first.
func (s *MessageService) Conversation(ctx context.Context, a, b uint) ([]models.Message, error) {
	var messages []models.Message
	if err := s.db.WithContext(ctx).
		Preload("Sender").
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("timestamp, id").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return messages, nil
}

// Partners lists the users userID has written with, with message counts.
func (s *MessageService) Partners(ctx context.Context, userID uint) ([]Partner, error) {
	type row struct {
		PartnerID uint
		Total     int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS partner_id, COUNT(*) AS total", userID).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Group("partner_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load message partners: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.PartnerID)
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load partners: %w", err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.PartnerID] = r.Total
	}
	partners := make([]Partner, 0, len(users))
	for _, u := range users {
		partners = append(partners, Partner{User: u, Messages: counts[u.ID]})
	}
	return partners, nil
}
