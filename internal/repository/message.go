package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zapsub/bot-server-go/internal/model"
)

type MessageRepository interface {
	// Create inserts a message; a provider_id already on file is silently
	// skipped and the existing row returned, so replays never double-count.
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	FindByProviderID(ctx context.Context, providerID string) (*model.Message, error)
	UpdateReaction(ctx context.Context, providerID, emoji string) error
	MarkEdited(ctx context.Context, providerID, newText string) error
	MarkDeleted(ctx context.Context, providerID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages
			(id, conversation_id, provider_id, direction, kind, text, media_ref, from_me)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id) DO NOTHING
		RETURNING *
	`, uuid.NewString(), params.ConversationID, params.ProviderID,
		params.Direction, params.Kind, params.Text, params.MediaRef, params.FromMe)
	if err == nil {
		return &msg, nil
	}
	// ON CONFLICT DO NOTHING returns no row for a duplicate; fall back to the
	// row already recorded.
	existing, ferr := r.FindByProviderID(ctx, params.ProviderID)
	if ferr == nil && existing != nil {
		return existing, nil
	}
	return nil, err
}

func (r *messageRepo) FindByProviderID(ctx context.Context, providerID string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		SELECT * FROM messages WHERE provider_id = $1
	`, providerID)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) UpdateReaction(ctx context.Context, providerID, emoji string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET reaction = NULLIF($2, '') WHERE provider_id = $1
	`, providerID, emoji)
	return err
}

// MarkEdited replaces the text and preserves the pre-edit content exactly
// once: original_text is only written when still null.
func (r *messageRepo) MarkEdited(ctx context.Context, providerID, newText string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET
			original_text = COALESCE(original_text, text),
			text = $2,
			edited = TRUE
		WHERE provider_id = $1
	`, providerID, newText)
	return err
}

func (r *messageRepo) MarkDeleted(ctx context.Context, providerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET
			original_text = COALESCE(original_text, text),
			deleted = TRUE
		WHERE provider_id = $1
	`, providerID)
	return err
}

func (r *messageRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM messages WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
