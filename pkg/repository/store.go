// Package repository is the persistence collaborator of the chat pipeline.
// All reads and writes go through Store so a request can scope them to one
// transaction.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Copilot/models"
)

type Store interface {
	// GetConversationByID returns nil without error when the conversation
	// does not exist or belongs to another user.
	GetConversationByID(ctx context.Context, id, userID uint) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context, userID uint, limit, offset int) ([]models.ConversationSummary, int64, error)
	DeleteConversation(ctx context.Context, id, userID uint) (bool, error)
	// LockConversation takes a row lock for the rest of the transaction on
	// dialects that support it.
	LockConversation(ctx context.Context, id uint) error

	SaveMessage(ctx context.Context, p SaveMessageParams) (*models.Message, error)
	// GetLastMessages returns at most limit messages, oldest first.
	GetLastMessages(ctx context.Context, conversationID uint, limit int) ([]models.ChatMessage, error)
	GetAllMessages(ctx context.Context, conversationID uint) ([]models.Message, error)
	CountMessages(ctx context.Context, conversationID uint) (int64, error)

	Ping(ctx context.Context) error
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type SaveMessageParams struct {
	ConversationID uint
	Role           string
	Content        string
	EnrichedPrompt *string
	FileName       *string
	ContentType    *string
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetConversationByID(ctx context.Context, id, userID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *GormStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithContext(ctx).Create(conv).Error
}

func (s *GormStore) ListConversations(ctx context.Context, userID uint, limit, offset int) ([]models.ConversationSummary, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.ConversationSummary{}, 0, nil
	}

	rows := make([]models.ConversationSummary, 0, limit)
	err := s.db.WithContext(ctx).
		Table("conversations").
		Select("conversations.id, conversations.title, conversations.business_context, conversations.created_at, conversations.user_id, COUNT(messages.id) AS messages_count").
		Joins("LEFT JOIN messages ON messages.conversation_id = conversations.id").
		Where("conversations.user_id = ?", userID).
		Group("conversations.id, conversations.title, conversations.business_context, conversations.created_at, conversations.user_id").
		Order("conversations.created_at DESC, conversations.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *GormStore) DeleteConversation(ctx context.Context, id, userID uint) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&conv).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *GormStore) LockConversation(ctx context.Context, id uint) error {
	q := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id)
	// sqlite serializes writers and has no FOR UPDATE.
	if s.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ids []uint
	return q.Pluck("id", &ids).Error
}

func (s *GormStore) SaveMessage(ctx context.Context, p SaveMessageParams) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: p.ConversationID,
		Role:           p.Role,
		Content:        p.Content,
		EnrichedPrompt: p.EnrichedPrompt,
		FileName:       p.FileName,
		ContentType:    p.ContentType,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *GormStore) GetLastMessages(ctx context.Context, conversationID uint, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		return []models.ChatMessage{}, nil
	}
	var rows []models.Message
	err := s.db.WithContext(ctx).
		Select("id", "role", "content", "created_at").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.ChatMessage, len(rows))
	for i, m := range rows {
		// newest first from the query, so fill from the back
		out[len(rows)-1-i] = models.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out, nil
}

func (s *GormStore) GetAllMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	var rows []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) CountMessages(ctx context.Context, conversationID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).Where("conversation_id = ?", conversationID).Count(&n).Error
	return n, err
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
