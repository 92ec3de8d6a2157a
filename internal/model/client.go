package model

import (
	"time"
)

// Client is a subscriber record. Vencimento is the subscription expiry;
// UltimoDesbloqueioConfianca stamps the last trust unlock so the 30-day
// cooldown can be enforced.
type Client struct {
	ID                         int64      `db:"id" json:"id"`
	Phone                      string     `db:"phone" json:"phone"`
	Name                       string     `db:"name" json:"name"`
	PlanPriceCents             int64      `db:"plan_price_cents" json:"planPriceCents"`
	Points                     int        `db:"points" json:"points"`
	Trial                      bool       `db:"trial" json:"trial"`
	ReferralCode               *string    `db:"referral_code" json:"referralCode,omitempty"`
	Vencimento                 time.Time  `db:"vencimento" json:"vencimento"`
	UltimoDesbloqueioConfianca *time.Time `db:"ultimo_desbloqueio_confianca" json:"ultimoDesbloqueioConfianca,omitempty"`
	CreatedAt                  time.Time  `db:"created_at" json:"createdAt"`
}

// Expired reports whether the subscription lapsed as of now.
func (c *Client) Expired(now time.Time) bool {
	return c.Vencimento.Before(now)
}
