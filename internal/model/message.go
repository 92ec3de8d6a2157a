package model

import (
	"time"
)

// Message is one persisted inbound or outbound message. ProviderID is the
// transport-level message id and is unique, which makes re-recording a
// replayed or already-saved message a no-op.
type Message struct {
	ID             string           `db:"id" json:"id"`
	ConversationID string           `db:"conversation_id" json:"conversationId"`
	ProviderID     string           `db:"provider_id" json:"providerId"`
	Direction      MessageDirection `db:"direction" json:"direction"`
	Kind           MessageKind      `db:"kind" json:"kind"`
	Text           string           `db:"text" json:"text"`
	OriginalText   *string          `db:"original_text" json:"originalText,omitempty"`
	MediaRef       *string          `db:"media_ref" json:"-"`
	Reaction       *string          `db:"reaction" json:"reaction,omitempty"`
	FromMe         bool             `db:"from_me" json:"fromMe"`
	Edited         bool             `db:"edited" json:"edited"`
	Deleted        bool             `db:"deleted" json:"deleted"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

type CreateMessageParams struct {
	ConversationID string
	ProviderID     string
	Direction      MessageDirection
	Kind           MessageKind
	Text           string
	MediaRef       *string
	FromMe         bool
}
