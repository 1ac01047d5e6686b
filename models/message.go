package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var ErrMessageImmutable = errors.New("messages cannot be modified after creation")

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index;index:ix_messages_conversation_created,priority:1" json:"conversation_id"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	EnrichedPrompt *string   `gorm:"type:text" json:"enriched_prompt,omitempty"`
	FileName       *string   `gorm:"type:text" json:"file_name,omitempty"`
	ContentType    *string   `gorm:"type:text" json:"content_type,omitempty"`
	CreatedAt      time.Time `gorm:"index:ix_messages_conversation_created,priority:2" json:"timestamp"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	return nil
}

func (m *Message) BeforeUpdate(tx *gorm.DB) error {
	return ErrMessageImmutable
}

// ChatMessage is one turn as sent to the completion API.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
