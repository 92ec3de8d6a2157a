package service

import (
	"time"

	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/transport"
)

// InboundClass routes a normalized event through the pipeline.
type InboundClass string

const (
	ClassMessage  InboundClass = "message"
	ClassReaction InboundClass = "reaction"
	ClassEdit     InboundClass = "edit"
	ClassDelete   InboundClass = "delete"
)

// Inbound is the one normalized shape downstream components consume.
// RawMessage payloads never travel past the normalizer.
type Inbound struct {
	Class     InboundClass
	DedupKey  string
	ProviderID string
	SenderID  string
	ChatID    string
	PushName  string
	FromMe    bool
	Kind      model.MessageKind
	Text      string
	MediaRef  string
	Quoted    *transport.QuotedInfo
	Timestamp time.Time

	// Reaction fields (ClassReaction).
	ReactionTarget string
	ReactionEmoji  string

	// Edit/delete fields (ClassEdit, ClassDelete).
	TargetID string
	EditText string
}
