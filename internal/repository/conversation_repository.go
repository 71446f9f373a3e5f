package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"docchat/internal/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetSession returns nil when the session does not exist or the id is not a uuid.
func (r *ConversationRepository) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	var session model.ChatSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *ConversationRepository) CreateSession(ctx context.Context) (*model.ChatSession, error) {
	session := &model.ChatSession{ID: uuid.NewString()}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("create session failed: %w", err)
	}
	return session, nil
}

// RecentTurns returns up to limit most recent turns, oldest first.
func (r *ConversationRepository) RecentTurns(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var messages []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list session turns failed: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// AppendTurns writes the user and assistant turns in one transaction.
func (r *ConversationRepository) AppendTurns(ctx context.Context, pair model.TurnPair) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, assistant := pair.User, pair.Assistant
		user.SessionID, assistant.SessionID = pair.SessionID, pair.SessionID
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := tx.Create(&assistant).Error; err != nil {
			return err
		}
		return tx.Model(&model.ChatSession{}).Where("id = ?", pair.SessionID).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return fmt.Errorf("append session turns failed: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ListActive(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	var out []model.SessionSummary
	err := r.db.WithContext(ctx).
		Table("chat_sessions AS s").
		Select("s.id, s.created_at, s.updated_at, COUNT(m.id) AS message_count").
		Joins("LEFT JOIN chat_messages m ON m.session_id = s.id").
		Group("s.id").
		Order("s.updated_at DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list active sessions failed: %w", err)
	}
	return out, nil
}

// SessionStats returns nil when the session does not exist.
func (r *ConversationRepository) SessionStats(ctx context.Context, id string) (*model.SessionSummary, error) {
	session, err := r.GetSession(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).Where("session_id = ?", id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count session turns failed: %w", err)
	}
	return &model.SessionSummary{
		ID:           session.ID,
		MessageCount: count,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}, nil
}

// ClearSession deletes every turn of the session and keeps the session row.
func (r *ConversationRepository) ClearSession(ctx context.Context, id string) (int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("session_id = ?", id).Delete(&model.ChatMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear session failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
