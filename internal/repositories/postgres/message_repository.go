package postgres

import (
	"context"
	"fmt"

	"vidshare-realtime/internal/conversation"
	"vidshare-realtime/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository archives conversation messages in the content store. It
// implements conversation.Sink.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db}
}

// Archive inserts msg; re-archiving the same message id is a no-op.
func (r *MessageRepository) Archive(ctx context.Context, msg conversation.Message) error {
	row := models.NewConversationMessage(msg)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("archive message %s: %w", msg.ID, err)
	}
	return nil
}

// FindByConversation returns the archived log of conversationID in send order.
func (r *MessageRepository) FindByConversation(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	var rows []models.ConversationMessage
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find messages of %s: %w", conversationID, err)
	}

	out := make([]conversation.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToMessage())
	}
	return out, nil
}
