package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zapsub/bot-server-go/internal/model"
)

type ConversationRepository interface {
	FindByPhone(ctx context.Context, phone string) (*model.Conversation, error)
	FindByName(ctx context.Context, name string) (*model.Conversation, error)
	Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	UpdateMode(ctx context.Context, phone string, mode model.HandlingMode) error
	UpdatePreview(ctx context.Context, phone string, preview string, at time.Time) error
	CountByMode(ctx context.Context, mode model.HandlingMode) (int, error)
}

type conversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByPhone(ctx context.Context, phone string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations WHERE phone = $1
	`, phone)
	return HandleNotFound(&conv, err)
}

// FindByName returns the most recently active conversation with the given
// display name whose phone column holds digits only. Used as the identity
// resolver's heuristic fallback.
func (r *conversationRepo) FindByName(ctx context.Context, name string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations
		WHERE name = $1 AND phone ~ '^[0-9]{10,15}$'
		ORDER BY updated_at DESC
		LIMIT 1
	`, name)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		INSERT INTO conversations (phone, name, mode)
		VALUES ($1, $2, 'bot')
		RETURNING *
	`, params.Phone, params.Name)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) UpdateMode(ctx context.Context, phone string, mode model.HandlingMode) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET mode = $2, updated_at = NOW() WHERE phone = $1
	`, phone, mode)
	return err
}

func (r *conversationRepo) UpdatePreview(ctx context.Context, phone string, preview string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			last_message = $2,
			last_message_at = $3,
			updated_at = NOW()
		WHERE phone = $1
	`, phone, preview, at)
	return err
}

func (r *conversationRepo) CountByMode(ctx context.Context, mode model.HandlingMode) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM conversations WHERE mode = $1
	`, mode)
	return count, err
}
