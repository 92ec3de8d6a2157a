package service

import (
	"time"
)

// SubmenuData carries the per-submenu transient fields. Each submenu that
// needs to remember anything between turns declares its own variant; leaving
// the submenu drops the data so it never leaks into a later flow.
type SubmenuData interface {
	isSubmenuData()
}

// DeviceData holds the screen count chosen during signup or trial setup.
type DeviceData struct {
	Devices int
	Trial   bool
}

// PaymentData tracks a pending PIX charge while the customer pays.
type PaymentData struct {
	ChargeID string
	Months   int
}

// SupportData tracks whether the self-service retry step was already offered.
type SupportData struct {
	Retried bool
}

func (DeviceData) isSubmenuData()  {}
func (PaymentData) isSubmenuData() {}
func (SupportData) isSubmenuData() {}

// ConvState is one phone's position in the menu hierarchy. Empty Submenu
// means the main menu. PaymentConfirmedAt drives the post-payment silence
// window and survives state resets triggered by menu navigation.
type ConvState struct {
	Submenu            string
	Data               SubmenuData
	PaymentConfirmedAt *time.Time
}
