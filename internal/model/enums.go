package model

// HandlingMode tells who answers a conversation.
type HandlingMode string

const (
	ModeBot   HandlingMode = "bot"
	ModeHuman HandlingMode = "human"
)

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
	KindSticker  MessageKind = "sticker"
	KindUnknown  MessageKind = "unknown"
)

type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargePaid      ChargeStatus = "paid"
	ChargeExpired   ChargeStatus = "expired"
	ChargeCancelled ChargeStatus = "cancelled"
)

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)
