package model

import (
	"time"
)

type Ticket struct {
	ID          int64        `db:"id" json:"id"`
	Phone       string       `db:"phone" json:"phone"`
	Subject     string       `db:"subject" json:"subject"`
	LastMessage string       `db:"last_message" json:"lastMessage"`
	Status      TicketStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	ClosedAt    *time.Time   `db:"closed_at" json:"closedAt,omitempty"`
}

type CreateTicketParams struct {
	Phone       string
	Subject     string
	LastMessage string
}
