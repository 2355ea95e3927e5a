package service

import (
	"context"
	"time"

	"homework-helper/backend/internal/models"
	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/validator"

	"gorm.io/gorm"
)

// MessageService handles message persistence
type MessageService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMessageService creates a new message service
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{
		db:  db,
		now: time.Now,
	}
}

// Migrate creates the messages table and its (user_id, timestamp) index
func (s *MessageService) Migrate() error {
	return s.db.AutoMigrate(&models.Message{})
}

// CreateMessage validates req and stores it with a server-assigned id and timestamp
func (s *MessageService) CreateMessage(ctx context.Context, req *models.CreateMessageRequest) (*models.Message, error) {
	if err := validator.Struct(req); err != nil {
		return nil, errors.ValidationError("Invalid data", validator.FieldErrors(err))
	}

	message := &models.Message{
		Content:   req.Content,
		Role:      req.Role,
		Timestamp: s.now().UTC(),
		ImageURL:  req.ImageURL,
		UserID:    req.UserID,
	}

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

// GetUserMessages returns a user's messages, oldest first
func (s *MessageService) GetUserMessages(ctx context.Context, userID string) ([]models.Message, error) {
	var messages []models.Message
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC, id ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	return messages, nil
}
