package model

import (
	"time"
)

type Conversation struct {
	ID            string       `db:"id" json:"id"`
	Phone         string       `db:"phone" json:"phone"`
	Name          string       `db:"name" json:"name"`
	Mode          HandlingMode `db:"mode" json:"mode"`
	LastMessage   *string      `db:"last_message" json:"lastMessage,omitempty"`
	LastMessageAt *time.Time   `db:"last_message_at" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`
}

type CreateConversationParams struct {
	Phone string
	Name  string
}
