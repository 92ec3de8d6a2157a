package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/audit"
	"github.com/zapsub/bot-server-go/internal/events"
	"github.com/zapsub/bot-server-go/internal/httputil"
	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/util"
)

// WebhookHandler receives PIX settlement callbacks. Signature verification
// happens in middleware; by the time the handler runs the body is trusted.
type WebhookHandler struct {
	charges repository.ChargeRepository
	clients repository.ClientRepository
	broker  *events.Broker
	now     func() time.Time
}

func NewWebhookHandler(
	charges repository.ChargeRepository,
	clients repository.ClientRepository,
	broker *events.Broker,
) *WebhookHandler {
	return &WebhookHandler{
		charges: charges,
		clients: clients,
		broker:  broker,
		now:     time.Now,
	}
}

type pixWebhookPayload struct {
	ChargeID string `json:"chargeId"`
	Status   string `json:"status"`
}

func (h *WebhookHandler) HandlePix(w http.ResponseWriter, r *http.Request) {
	var payload pixWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("webhook: invalid body")
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if payload.ChargeID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing chargeId"})
		return
	}

	ctx := r.Context()
	charge, err := h.charges.FindByID(ctx, payload.ChargeID)
	if err != nil {
		log.Error().Err(err).Str("chargeId", payload.ChargeID).Msg("webhook: charge lookup failed")
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Lookup failed"})
		return
	}
	if charge == nil {
		// Charges created directly at the provider are not ours to process.
		log.Warn().Str("chargeId", payload.ChargeID).Msg("webhook: unknown charge")
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	switch payload.Status {
	case "paid":
		h.handlePaid(r, w, charge)
	case "expired":
		if err := h.charges.MarkExpired(ctx, charge.ID); err != nil {
			log.Error().Err(err).Str("chargeId", charge.ID).Msg("webhook: expire failed")
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case "cancelled":
		if err := h.charges.MarkCancelled(ctx, charge.ID); err != nil {
			log.Error().Err(err).Str("chargeId", charge.ID).Msg("webhook: cancel failed")
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		log.Debug().Str("status", payload.Status).Msg("webhook: status ignored")
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *WebhookHandler) handlePaid(r *http.Request, w http.ResponseWriter, charge *model.Charge) {
	ctx := r.Context()
	now := h.now()

	if charge.Status == model.ChargePaid {
		// Provider retries deliveries; a second "paid" is a no-op.
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "already_processed"})
		return
	}

	if err := h.charges.MarkPaid(ctx, charge.ID, now); err != nil {
		log.Error().Err(err).Str("chargeId", charge.ID).Msg("webhook: mark paid failed")
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Update failed"})
		return
	}

	// The renewal is applied here, server-side, never from what the customer
	// typed in chat.
	client, err := h.clients.FindByPhone(ctx, charge.Phone)
	if err != nil {
		log.Error().Err(err).Str("phone", util.MaskPhone(charge.Phone)).Msg("webhook: client lookup failed")
	} else if client != nil {
		base := client.Vencimento
		if base.Before(now) {
			base = now
		}
		newVencimento := base.AddDate(0, charge.Months, 0)
		if err := h.clients.UpdateVencimento(ctx, client.ID, newVencimento); err != nil {
			log.Error().Err(err).Int64("clientId", client.ID).Msg("webhook: expiry extension failed")
		}
	} else {
		log.Warn().
			Str("phone", util.MaskPhone(charge.Phone)).
			Str("chargeId", charge.ID).
			Msg("webhook: paid charge has no client record")
	}

	audit.Log(ctx, audit.Event{
		Type:  audit.EventPaymentConfirmed,
		Phone: util.MaskPhone(charge.Phone),
		Details: map[string]interface{}{
			"charge_id":    charge.ID,
			"amount_cents": charge.AmountCents,
			"months":       charge.Months,
		},
	})

	if err := h.broker.PublishJSON(ctx, events.TopicPayments, "payment_confirmed", events.PaymentConfirmed{
		Phone:    charge.Phone,
		ChargeID: charge.ID,
		Months:   charge.Months,
	}); err != nil {
		log.Error().Err(err).Msg("webhook: payment publish failed")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
