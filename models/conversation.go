package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const DefaultConversationTitle = "New conversation"

var ErrOwnerImmutable = errors.New("conversation owner cannot be changed")

type Conversation struct {
	ID              uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID          uint      `gorm:"not null;index;index:ix_conversations_user_created,priority:1" json:"user_id"`
	Title           string    `gorm:"size:100;not null" json:"title"`
	BusinessContext *string   `gorm:"size:32" json:"business_context"`
	CreatedAt       time.Time `gorm:"index:ix_conversations_user_created,priority:2" json:"created_at"`
	Messages        []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.Title == "" {
		c.Title = DefaultConversationTitle
	}
	return nil
}

func (c *Conversation) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("UserID") {
		return ErrOwnerImmutable
	}
	return nil
}

// ConversationSummary is the listing row. MessagesCount is computed by the
// query and never stored on the conversation itself.
type ConversationSummary struct {
	ID              uint      `json:"conversation_id"`
	Title           string    `json:"title"`
	BusinessContext *string   `json:"business_context"`
	CreatedAt       time.Time `json:"created_at"`
	UserID          uint      `json:"user_id"`
	MessagesCount   int64     `json:"messages_count"`
}
