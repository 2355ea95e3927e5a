package models

import (
	"time"
)

// Message is a persisted chat message
type Message struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Role      string    `json:"role" gorm:"not null"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_messages_user_timestamp,priority:2"`
	ImageURL  *string   `json:"imageUrl" gorm:"column:image_url;type:text"`
	UserID    string    `json:"userId" gorm:"not null;index:idx_messages_user_timestamp,priority:1"`
}

// CreateMessageRequest is the body of POST /api/messages; id and timestamp are assigned by the server
type CreateMessageRequest struct {
	Content  string  `json:"content" binding:"required"`
	Role     string  `json:"role" binding:"required,oneof=user assistant"`
	ImageURL *string `json:"imageUrl"`
	UserID   string  `json:"userId" binding:"required,max=255"`
}
