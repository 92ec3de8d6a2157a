package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zapsub/bot-server-go/internal/model"
)

type ClientRepository interface {
	FindByPhone(ctx context.Context, phone string) (*model.Client, error)
	FindByReferralCode(ctx context.Context, code string) (*model.Client, error)
	UpdateVencimento(ctx context.Context, id int64, vencimento time.Time) error
	// StampTrustUnlock extends the expiry and records the unlock moment in a
	// single statement so the cooldown check cannot race the extension.
	StampTrustUnlock(ctx context.Context, id int64, vencimento, unlockedAt time.Time) error
	AddPoints(ctx context.Context, id int64, delta int) (int, error)
}

type clientRepo struct {
	db *sqlx.DB
}

func NewClientRepository(db *sqlx.DB) ClientRepository {
	return &clientRepo{db: db}
}

func (r *clientRepo) FindByPhone(ctx context.Context, phone string) (*model.Client, error) {
	var c model.Client
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM clients WHERE phone = $1
	`, phone)
	return HandleNotFound(&c, err)
}

func (r *clientRepo) FindByReferralCode(ctx context.Context, code string) (*model.Client, error) {
	var c model.Client
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM clients WHERE referral_code = $1
	`, code)
	return HandleNotFound(&c, err)
}

func (r *clientRepo) UpdateVencimento(ctx context.Context, id int64, vencimento time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE clients SET vencimento = $2 WHERE id = $1
	`, id, vencimento)
	return err
}

func (r *clientRepo) StampTrustUnlock(ctx context.Context, id int64, vencimento, unlockedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE clients SET
			vencimento = $2,
			ultimo_desbloqueio_confianca = $3
		WHERE id = $1
	`, id, vencimento, unlockedAt)
	return err
}

func (r *clientRepo) AddPoints(ctx context.Context, id int64, delta int) (int, error) {
	var points int
	err := r.db.GetContext(ctx, &points, `
		UPDATE clients SET points = GREATEST(points + $2, 0)
		WHERE id = $1
		RETURNING points
	`, id, delta)
	return points, err
}
