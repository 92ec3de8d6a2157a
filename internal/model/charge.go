package model

import (
	"time"
)

// Charge is a PIX charge created at the payment gateway. ID is the gateway's
// charge id; QRCode and CopyPaste are the payloads shown to the customer.
type Charge struct {
	ID          string       `db:"id" json:"id"`
	Phone       string       `db:"phone" json:"phone"`
	AmountCents int64        `db:"amount_cents" json:"amountCents"`
	Months      int          `db:"months" json:"months"`
	Description string       `db:"description" json:"description"`
	Status      ChargeStatus `db:"status" json:"status"`
	QRCode      string       `db:"qr_code" json:"-"`
	CopyPaste   string       `db:"copy_paste" json:"-"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	PaidAt      *time.Time   `db:"paid_at" json:"paidAt,omitempty"`
}

type CreateChargeParams struct {
	ID          string
	Phone       string
	AmountCents int64
	Months      int
	Description string
	QRCode      string
	CopyPaste   string
}
