package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chatrelay/internal/model"
)

var ErrInvalidRole = errors.New("invalid message role")

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	if !message.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, message.Role)
	}
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListBySessionID returns the session's messages oldest first. The id breaks
// ties between rows stored within the same clock tick.
func (r *MessageRepository) ListBySessionID(ctx context.Context, sessionID string) ([]model.Message, error) {
	messages := make([]model.Message, 0)
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete messages failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}
