package transport

import (
	"context"
)

// DisconnectReason classifies why the gateway dropped the session. The
// session manager picks its recovery strategy from this.
type DisconnectReason string

const (
	// ReasonTransient covers network blips and anything unclassified.
	ReasonTransient DisconnectReason = "transient"
	// ReasonLoggedOut means the user unlinked this device. Terminal.
	ReasonLoggedOut DisconnectReason = "logged_out"
	// ReasonConflict means another session took over the account.
	ReasonConflict DisconnectReason = "conflict"
	// ReasonAuthFailure means stored credentials were rejected.
	ReasonAuthFailure DisconnectReason = "auth_failure"
)

type EventKind string

const (
	EventQR      EventKind = "qr"
	EventOpen    EventKind = "open"
	EventClosed  EventKind = "closed"
	EventMessage EventKind = "message"
	// EventCreds carries freshly issued pairing credentials; the session
	// manager persists them so a restart does not force a new QR scan.
	EventCreds EventKind = "creds"
)

// Event is the tagged union delivered on the transport's event channel.
// Exactly the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	QR      string
	Reason  DisconnectReason
	Err     error
	Message *RawMessage
	Creds   *Credentials
}

// RawMessage mirrors the gateway's wire shape for an inbound message. The
// payload is a bag of optional nested shapes; the normalizer turns it into
// exactly one Inbound and nothing downstream ever touches RawMessage again.
type RawMessage struct {
	ID        string  `json:"id"`
	ChatID    string  `json:"chatId"`
	SenderID  string  `json:"senderId"`
	PushName  string  `json:"pushName"`
	FromMe    bool    `json:"fromMe"`
	Timestamp int64   `json:"timestamp"`
	Payload   Payload `json:"payload"`
}

type Payload struct {
	Text          *TextPayload     `json:"text,omitempty"`
	Image         *MediaPayload    `json:"image,omitempty"`
	Video         *MediaPayload    `json:"video,omitempty"`
	Audio         *MediaPayload    `json:"audio,omitempty"`
	Document      *MediaPayload    `json:"document,omitempty"`
	Sticker       *MediaPayload    `json:"sticker,omitempty"`
	Reaction      *ReactionPayload `json:"reaction,omitempty"`
	Protocol      *ProtocolPayload `json:"protocol,omitempty"`
	ViewOnce      *Payload         `json:"viewOnce,omitempty"`
	ButtonReply   *ReplyPayload    `json:"buttonReply,omitempty"`
	ListReply     *ReplyPayload    `json:"listReply,omitempty"`
	TemplateReply *ReplyPayload    `json:"templateReply,omitempty"`
	// Extra holds payload shapes the gateway forwards that we do not model.
	// The normalizer scans it for text-bearing fields as a last resort.
	Extra map[string]any `json:"extra,omitempty"`
}

type TextPayload struct {
	Body   string      `json:"body"`
	Quoted *QuotedInfo `json:"quoted,omitempty"`
}

type MediaPayload struct {
	Ref      string      `json:"ref"`
	MimeType string      `json:"mimeType,omitempty"`
	Caption  string      `json:"caption,omitempty"`
	Quoted   *QuotedInfo `json:"quoted,omitempty"`
}

type ReactionPayload struct {
	TargetID string `json:"targetId"`
	Emoji    string `json:"emoji"`
}

// ProtocolPayload carries edits, revokes and sync noise. Type "edit" with a
// nil Edited text is treated as a delete.
type ProtocolPayload struct {
	Type     string  `json:"type"` // "edit", "revoke", "sync"
	TargetID string  `json:"targetId,omitempty"`
	Edited   *string `json:"edited,omitempty"`
}

type ReplyPayload struct {
	SelectedID string `json:"selectedId"`
	Title      string `json:"title,omitempty"`
}

type QuotedInfo struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text,omitempty"`
}

// Option is one interactive menu entry.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type OutKind string

const (
	OutText     OutKind = "text"
	OutImage    OutKind = "image"
	OutButtons  OutKind = "buttons"
	OutList     OutKind = "list"
	OutPresence OutKind = "presence"
	OutPing     OutKind = "ping"
)

// OutFrame is one outgoing command to the gateway.
type OutFrame struct {
	ID       string   `json:"id"`
	To       string   `json:"to,omitempty"`
	Kind     OutKind  `json:"kind"`
	Text     string   `json:"text,omitempty"`
	ImageRef string   `json:"imageRef,omitempty"`
	Caption  string   `json:"caption,omitempty"`
	Title    string   `json:"title,omitempty"`
	Options  []Option `json:"options,omitempty"`
	// Presence payload for keep-alive frames.
	Available bool `json:"available,omitempty"`
}

type Credentials struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
}

// Transport is the session collaborator. Connect blocks until the websocket
// is established (not until the session is open); lifecycle progress arrives
// on Events.
type Transport interface {
	Connect(ctx context.Context, creds Credentials) error
	Send(ctx context.Context, frame OutFrame) error
	Download(ctx context.Context, ref string) ([]byte, error)
	Logout(ctx context.Context) error
	Events() <-chan Event
	Close() error
}
