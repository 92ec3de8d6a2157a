package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zapsub/bot-server-go/internal/model"
)

type ChargeRepository interface {
	Create(ctx context.Context, params model.CreateChargeParams) (*model.Charge, error)
	FindByID(ctx context.Context, id string) (*model.Charge, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) error
	MarkCancelled(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string) error
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
}

type chargeRepo struct {
	db *sqlx.DB
}

func NewChargeRepository(db *sqlx.DB) ChargeRepository {
	return &chargeRepo{db: db}
}

func (r *chargeRepo) Create(ctx context.Context, params model.CreateChargeParams) (*model.Charge, error) {
	var c model.Charge
	err := r.db.GetContext(ctx, &c, `
		INSERT INTO charges
			(id, phone, amount_cents, months, description, status, qr_code, copy_paste)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
		RETURNING *
	`, params.ID, params.Phone, params.AmountCents, params.Months,
		params.Description, params.QRCode, params.CopyPaste)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *chargeRepo) FindByID(ctx context.Context, id string) (*model.Charge, error) {
	var c model.Charge
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM charges WHERE id = $1
	`, id)
	return HandleNotFound(&c, err)
}

func (r *chargeRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE charges SET status = 'paid', paid_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, paidAt)
	return err
}

func (r *chargeRepo) MarkCancelled(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE charges SET status = 'cancelled'
		WHERE id = $1 AND status = 'pending'
	`, id)
	return err
}

func (r *chargeRepo) MarkExpired(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE charges SET status = 'expired'
		WHERE id = $1 AND status = 'pending'
	`, id)
	return err
}

func (r *chargeRepo) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE charges SET status = 'expired'
		WHERE status = 'pending' AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
