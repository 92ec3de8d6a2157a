package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/zapsub/bot-server-go/internal/model"
)

type TicketRepository interface {
	Create(ctx context.Context, params model.CreateTicketParams) (*model.Ticket, error)
	FindOpenByPhone(ctx context.Context, phone string) (*model.Ticket, error)
	Close(ctx context.Context, id int64) error
}

type ticketRepo struct {
	db *sqlx.DB
}

func NewTicketRepository(db *sqlx.DB) TicketRepository {
	return &ticketRepo{db: db}
}

func (r *ticketRepo) Create(ctx context.Context, params model.CreateTicketParams) (*model.Ticket, error) {
	var t model.Ticket
	err := r.db.GetContext(ctx, &t, `
		INSERT INTO tickets (phone, subject, last_message, status)
		VALUES ($1, $2, $3, 'open')
		RETURNING *
	`, params.Phone, params.Subject, params.LastMessage)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepo) FindOpenByPhone(ctx context.Context, phone string) (*model.Ticket, error) {
	var t model.Ticket
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM tickets
		WHERE phone = $1 AND status = 'open'
		ORDER BY created_at DESC
		LIMIT 1
	`, phone)
	return HandleNotFound(&t, err)
}

func (r *ticketRepo) Close(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET status = 'closed', closed_at = NOW() WHERE id = $1
	`, id)
	return err
}
