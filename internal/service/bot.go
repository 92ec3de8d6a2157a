package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/audit"
	"github.com/zapsub/bot-server-go/internal/config"
	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/util"
)

// Responder is how the engine talks back. Satisfied by *Dispatcher.
type Responder interface {
	Send(ctx context.Context, phone, name string, content Content) error
}

// BotEngine is the menu-driven state machine. One ConvState per phone,
// guarded by a single mutex; the handlers themselves run storage and
// transport calls outside the lock.
type BotEngine struct {
	mu     sync.Mutex
	states map[string]*ConvState
	now    func() time.Time

	out     Responder
	clients repository.ClientRepository
	convs   repository.ConversationRepository
	tickets repository.TicketRepository
	charges repository.ChargeRepository
	gateway PaymentGateway

	basePriceCents int64
	silenceWindow  time.Duration
}

func NewBotEngine(
	out Responder,
	clients repository.ClientRepository,
	convs repository.ConversationRepository,
	tickets repository.TicketRepository,
	charges repository.ChargeRepository,
	gateway PaymentGateway,
	basePriceCents int64,
) *BotEngine {
	return &BotEngine{
		states:         make(map[string]*ConvState),
		now:            time.Now,
		out:            out,
		clients:        clients,
		convs:          convs,
		tickets:        tickets,
		charges:        charges,
		gateway:        gateway,
		basePriceCents: basePriceCents,
		silenceWindow:  config.PaymentSilenceWindow,
	}
}

// Handle runs one bot turn for an inbound message already persisted by the
// pipeline.
func (b *BotEngine) Handle(ctx context.Context, conv *model.Conversation, in Inbound) error {
	phone := conv.Phone

	if conv.Mode != model.ModeBot {
		b.ResetState(phone)
		return nil
	}

	now := b.now()

	b.mu.Lock()
	st := b.stateLocked(phone)
	if st.PaymentConfirmedAt != nil {
		if now.Sub(*st.PaymentConfirmedAt) < b.silenceWindow {
			b.mu.Unlock()
			log.Debug().
				Str("phone", util.MaskPhone(phone)).
				Msg("bot: inside post-payment silence window, staying quiet")
			return nil
		}
		st.PaymentConfirmedAt = nil
	}
	submenu := st.Submenu
	data := st.Data
	b.mu.Unlock()

	token := strings.TrimSpace(in.Text)
	lower := strings.ToLower(token)

	client, err := b.clients.FindByPhone(ctx, phone)
	if err != nil {
		log.Error().Err(err).Str("phone", util.MaskPhone(phone)).Msg("bot: client lookup failed")
		return b.sendText(ctx, conv, "Tivemos um problema por aqui. 😕 Tente novamente em instantes.")
	}

	if lower == "reset" || lower == "resetar" {
		b.ResetState(phone)
		return b.sendMainMenu(ctx, conv, client, now)
	}

	if submenu != "" {
		return b.handleSubmenu(ctx, conv, client, submenu, data, token, now)
	}
	return b.handleMainMenu(ctx, conv, client, token, now)
}

// MarkPaymentConfirmed is called out-of-band when the payment collaborator
// confirms a charge for phone. Starts the silence window and drops any
// payment submenu so the bot stops prompting for a charge already settled.
func (b *BotEngine) MarkPaymentConfirmed(phone string) {
	now := b.now()
	b.mu.Lock()
	st := b.stateLocked(phone)
	st.PaymentConfirmedAt = &now
	if st.Submenu == submenuRenewPayment {
		st.Submenu = ""
		st.Data = nil
	}
	b.mu.Unlock()

	log.Info().
		Str("phone", util.MaskPhone(phone)).
		Msg("bot: payment confirmed, silence window started")
}

// ResetState drops all conversation state for phone, including any silence
// window.
func (b *BotEngine) ResetState(phone string) {
	b.mu.Lock()
	delete(b.states, phone)
	b.mu.Unlock()
}

func (b *BotEngine) stateLocked(phone string) *ConvState {
	st, ok := b.states[phone]
	if !ok {
		st = &ConvState{}
		b.states[phone] = st
	}
	return st
}

func (b *BotEngine) setSubmenu(phone, submenu string, data SubmenuData) {
	b.mu.Lock()
	st := b.stateLocked(phone)
	st.Submenu = submenu
	st.Data = data
	b.mu.Unlock()
}

func (b *BotEngine) clearSubmenu(phone string) {
	b.mu.Lock()
	st := b.stateLocked(phone)
	st.Submenu = ""
	st.Data = nil
	b.mu.Unlock()
}

// ---- main menu ----

func (b *BotEngine) handleMainMenu(ctx context.Context, conv *model.Conversation, client *model.Client, token string, now time.Time) error {
	switch {
	case client == nil:
		return b.handleProspectMenu(ctx, conv, token)
	case client.Expired(now):
		return b.handleExpiredMenu(ctx, conv, client, token, now)
	default:
		return b.handleClientMenu(ctx, conv, client, token)
	}
}

func (b *BotEngine) handleProspectMenu(ctx context.Context, conv *model.Conversation, token string) error {
	switch token {
	case "1":
		return b.sendText(ctx, conv, plansInfoText(b.basePriceCents))
	case "2":
		b.setSubmenu(conv.Phone, submenuTrialDevice, nil)
		return b.send(ctx, conv, deviceMenuContent(true))
	case "3":
		b.setSubmenu(conv.Phone, submenuSignupDevice, nil)
		return b.send(ctx, conv, deviceMenuContent(false))
	case "4":
		b.setSubmenu(conv.Phone, submenuReferral, nil)
		return b.sendText(ctx, conv, "Legal! Me envie o código de indicação que você recebeu, ou digite 0 para voltar.")
	case "5":
		return b.handoff(ctx, conv, "Atendimento solicitado", token)
	default:
		return b.send(ctx, conv, prospectMenuContent())
	}
}

func (b *BotEngine) handleClientMenu(ctx context.Context, conv *model.Conversation, client *model.Client, token string) error {
	switch token {
	case "1":
		return b.sendText(ctx, conv, fmt.Sprintf(
			"Sua assinatura está ativa até %s. ✅",
			client.Vencimento.Format("02/01/2006"),
		))
	case "2":
		b.setSubmenu(conv.Phone, submenuRenewPeriod, nil)
		return b.send(ctx, conv, renewPeriodContent(b.monthlyPrice(client, nil)))
	case "3":
		b.setSubmenu(conv.Phone, submenuPoints, nil)
		return b.send(ctx, conv, pointsMenuContent(client.Points))
	case "4":
		b.setSubmenu(conv.Phone, submenuSupport, SupportData{})
		return b.send(ctx, conv, supportMenuContent())
	case "5":
		return b.handoff(ctx, conv, "Atendimento solicitado", token)
	default:
		return b.send(ctx, conv, clientMenuContent(client))
	}
}

func (b *BotEngine) handleExpiredMenu(ctx context.Context, conv *model.Conversation, client *model.Client, token string, now time.Time) error {
	switch token {
	case "1":
		return b.trustUnlock(ctx, conv, client, now)
	case "2":
		b.setSubmenu(conv.Phone, submenuRenewPeriod, nil)
		return b.send(ctx, conv, renewPeriodContent(b.monthlyPrice(client, nil)))
	case "3":
		return b.handoff(ctx, conv, "Cliente vencido pediu atendimento", token)
	default:
		return b.send(ctx, conv, expiredMenuContent(client))
	}
}

// ---- submenus ----

func (b *BotEngine) handleSubmenu(ctx context.Context, conv *model.Conversation, client *model.Client, name string, data SubmenuData, token string, now time.Time) error {
	spec, ok := submenus[name]
	if !ok {
		b.clearSubmenu(conv.Phone)
		return b.sendMainMenu(ctx, conv, client, now)
	}

	if token == "0" {
		b.clearSubmenu(conv.Phone)
		if spec.prev != "" {
			return b.reenterSubmenu(ctx, conv, client, spec.prev)
		}
		return b.sendMainMenu(ctx, conv, client, now)
	}

	if !spec.allows(token) {
		return b.sendText(ctx, conv, msgInvalidOption)
	}

	switch name {
	case submenuTrialDevice:
		return b.handleTrialDevice(ctx, conv, token)
	case submenuSignupDevice:
		return b.handleSignupDevice(ctx, conv, client, token)
	case submenuReferral:
		return b.handleReferral(ctx, conv, token)
	case submenuRenewPeriod:
		return b.handleRenewPeriod(ctx, conv, client, data, token)
	case submenuRenewPayment:
		return b.handleRenewPayment(ctx, conv, client, data, token, now)
	case submenuPoints:
		return b.handlePoints(ctx, conv, client, token)
	case submenuSupport:
		return b.handleSupport(ctx, conv, data, token)
	default:
		b.clearSubmenu(conv.Phone)
		return b.sendMainMenu(ctx, conv, client, now)
	}
}

func (b *BotEngine) reenterSubmenu(ctx context.Context, conv *model.Conversation, client *model.Client, name string) error {
	b.setSubmenu(conv.Phone, name, nil)
	switch name {
	case submenuRenewPeriod:
		return b.send(ctx, conv, renewPeriodContent(b.monthlyPrice(client, nil)))
	default:
		b.clearSubmenu(conv.Phone)
		return b.sendMainMenu(ctx, conv, client, b.now())
	}
}

func (b *BotEngine) handleTrialDevice(ctx context.Context, conv *model.Conversation, token string) error {
	devices, _ := strconv.Atoi(token)
	b.clearSubmenu(conv.Phone)

	if _, err := b.tickets.Create(ctx, model.CreateTicketParams{
		Phone:       conv.Phone,
		Subject:     "Ativação de teste grátis",
		LastMessage: fmt.Sprintf("Cliente pediu teste para %d tela(s)", devices),
	}); err != nil {
		log.Error().Err(err).Msg("bot: trial ticket create failed")
	}

	return b.sendText(ctx, conv, fmt.Sprintf(
		"Perfeito! Vamos preparar seu teste grátis para %d tela(s). Em instantes você recebe os dados de acesso por aqui. 😉",
		devices,
	))
}

func (b *BotEngine) handleSignupDevice(ctx context.Context, conv *model.Conversation, client *model.Client, token string) error {
	devices, _ := strconv.Atoi(token)
	b.setSubmenu(conv.Phone, submenuRenewPeriod, DeviceData{Devices: devices})
	return b.send(ctx, conv, renewPeriodContent(b.monthlyPrice(client, &DeviceData{Devices: devices})))
}

func (b *BotEngine) handleReferral(ctx context.Context, conv *model.Conversation, token string) error {
	code := strings.ToUpper(strings.TrimSpace(token))

	referrer, err := b.clients.FindByReferralCode(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("bot: referral lookup failed")
		return b.sendText(ctx, conv, "Não consegui validar o código agora. Tente novamente em instantes.")
	}
	if referrer == nil {
		return b.sendText(ctx, conv, "Não encontrei esse código. 🤔 Confira e envie novamente, ou digite 0 para voltar.")
	}

	if _, err := b.clients.AddPoints(ctx, referrer.ID, 1); err != nil {
		log.Error().Err(err).Int64("referrerId", referrer.ID).Msg("bot: referral bonus failed")
	}

	b.clearSubmenu(conv.Phone)
	return b.sendText(ctx, conv, fmt.Sprintf(
		"Código validado! 🎉 Indicação de %s registrada. Você ganha desconto na primeira mensalidade. Digite 3 para assinar agora.",
		firstName(referrer.Name),
	))
}

func (b *BotEngine) handleRenewPeriod(ctx context.Context, conv *model.Conversation, client *model.Client, data SubmenuData, token string) error {
	tier, ok := RenewalTierByOption(token)
	if !ok {
		return b.sendText(ctx, conv, msgInvalidOption)
	}

	var devices *DeviceData
	if d, isDevice := data.(DeviceData); isDevice {
		devices = &d
	}
	amount := RenewalPriceCents(b.monthlyPrice(client, devices), tier.Months)
	description := fmt.Sprintf("Assinatura %d mês(es)", tier.Months)

	result, err := b.gateway.CreateCharge(ctx, amount, description)
	if err != nil {
		log.Error().Err(err).Str("phone", util.MaskPhone(conv.Phone)).Msg("bot: charge creation failed")
		b.clearSubmenu(conv.Phone)
		return b.sendText(ctx, conv, msgChargeFailed)
	}

	if _, err := b.charges.Create(ctx, model.CreateChargeParams{
		ID:          result.ChargeID,
		Phone:       conv.Phone,
		AmountCents: amount,
		Months:      tier.Months,
		Description: description,
		QRCode:      result.QRCode,
		CopyPaste:   result.CopyPaste,
	}); err != nil {
		// The gateway charge exists; keep going so the customer can pay.
		log.Error().Err(err).Str("chargeId", result.ChargeID).Msg("bot: charge persist failed")
	}

	audit.Log(ctx, audit.Event{
		Type:  audit.EventChargeCreated,
		Phone: util.MaskPhone(conv.Phone),
		Details: map[string]interface{}{
			"charge_id":    result.ChargeID,
			"amount_cents": amount,
			"months":       tier.Months,
		},
	})

	b.setSubmenu(conv.Phone, submenuRenewPayment, PaymentData{ChargeID: result.ChargeID, Months: tier.Months})
	return b.send(ctx, conv, renewPaymentContent(result.CopyPaste, amount, tier.Months))
}

func (b *BotEngine) handleRenewPayment(ctx context.Context, conv *model.Conversation, client *model.Client, data SubmenuData, token string, now time.Time) error {
	pd, ok := data.(PaymentData)
	if !ok {
		b.clearSubmenu(conv.Phone)
		return b.sendMainMenu(ctx, conv, client, now)
	}

	switch token {
	case "1":
		charge, err := b.charges.FindByID(ctx, pd.ChargeID)
		if err != nil {
			log.Error().Err(err).Str("chargeId", pd.ChargeID).Msg("bot: charge lookup failed")
			return b.sendText(ctx, conv, "Não consegui verificar o pagamento agora. Tente novamente em instantes.")
		}
		if charge != nil && charge.Status == model.ChargePaid {
			b.clearSubmenu(conv.Phone)
			return b.sendText(ctx, conv, msgPaymentOK)
		}
		return b.sendText(ctx, conv, msgPaymentWait)

	case "2":
		if err := b.charges.MarkCancelled(ctx, pd.ChargeID); err != nil {
			log.Error().Err(err).Str("chargeId", pd.ChargeID).Msg("bot: charge cancel failed")
		}
		b.clearSubmenu(conv.Phone)
		return b.sendText(ctx, conv, msgChargeCancel)
	}
	return b.sendText(ctx, conv, msgInvalidOption)
}

func (b *BotEngine) handlePoints(ctx context.Context, conv *model.Conversation, client *model.Client, token string) error {
	if client == nil {
		b.clearSubmenu(conv.Phone)
		return b.send(ctx, conv, prospectMenuContent())
	}

	delta := 1
	if token == "2" {
		if client.Points == 0 {
			b.clearSubmenu(conv.Phone)
			return b.sendText(ctx, conv, "Você não tem pontos ativos para remover.")
		}
		delta = -1
	}

	total, err := b.clients.AddPoints(ctx, client.ID, delta)
	if err != nil {
		log.Error().Err(err).Msg("bot: points update failed")
		return b.sendText(ctx, conv, "Não consegui atualizar seus pontos agora. Tente novamente em instantes.")
	}

	b.clearSubmenu(conv.Phone)
	if delta > 0 {
		return b.sendText(ctx, conv, fmt.Sprintf(
			"Ponto adicionado! ✅ Você agora tem %d ponto(s). O valor da tela extra entra na próxima renovação.",
			total,
		))
	}
	return b.sendText(ctx, conv, fmt.Sprintf("Ponto removido. Você agora tem %d ponto(s).", total))
}

func (b *BotEngine) handleSupport(ctx context.Context, conv *model.Conversation, data SubmenuData, token string) error {
	switch token {
	case "1":
		if ticket, err := b.tickets.FindOpenByPhone(ctx, conv.Phone); err == nil && ticket != nil {
			if err := b.tickets.Close(ctx, ticket.ID); err != nil {
				log.Error().Err(err).Int64("ticketId", ticket.ID).Msg("bot: ticket close failed")
			}
		}
		b.clearSubmenu(conv.Phone)
		return b.sendText(ctx, conv, "Ótimo! 👍 Qualquer coisa é só me chamar.")

	case "2":
		sd, _ := data.(SupportData)
		if !sd.Retried {
			b.setSubmenu(conv.Phone, submenuSupport, SupportData{Retried: true})
			return b.sendText(ctx, conv,
				"Vamos tentar mais uma coisa: desligue o aparelho da tomada por 30 segundos, ligue de novo e abra o aplicativo. Funcionou? 1 - Sim  2 - Não")
		}
		return b.handoff(ctx, conv, "Suporte técnico escalado", token)
	}
	return b.sendText(ctx, conv, msgInvalidOption)
}

// ---- domain actions ----

// trustUnlock grants a lapsed client two extra days of access, at most once
// every 30 days. The new expiry lands at end of day so the grace reads as
// whole days to the customer.
func (b *BotEngine) trustUnlock(ctx context.Context, conv *model.Conversation, client *model.Client, now time.Time) error {
	cooldown := time.Duration(config.TrustUnlockCooldownDays) * 24 * time.Hour

	if client.UltimoDesbloqueioConfianca != nil {
		elapsed := now.Sub(*client.UltimoDesbloqueioConfianca)
		if elapsed < cooldown {
			remaining := int((cooldown-elapsed+24*time.Hour-1)/(24*time.Hour))
			audit.Log(ctx, audit.Event{
				Type:  audit.EventTrustUnlockDenied,
				Phone: util.MaskPhone(conv.Phone),
				Details: map[string]interface{}{
					"days_remaining": remaining,
				},
			})
			return b.sendText(ctx, conv, fmt.Sprintf(
				"Você já usou o desbloqueio de confiança recentemente. Ele estará disponível de novo em %d dia(s). Digite 2 para renovar agora.",
				remaining,
			))
		}
	}

	target := now.AddDate(0, 0, config.TrustUnlockExtensionDays)
	vencimento := time.Date(target.Year(), target.Month(), target.Day(), 23, 59, 59, 0, target.Location())

	if err := b.clients.StampTrustUnlock(ctx, client.ID, vencimento, now); err != nil {
		log.Error().Err(err).Int64("clientId", client.ID).Msg("bot: trust unlock failed")
		return b.sendText(ctx, conv, "Não consegui liberar seu acesso agora. 😕 Tente novamente em instantes.")
	}

	audit.Log(ctx, audit.Event{
		Type:  audit.EventTrustUnlock,
		Phone: util.MaskPhone(conv.Phone),
		Details: map[string]interface{}{
			"client_id":      client.ID,
			"new_vencimento": vencimento.Format(time.RFC3339),
		},
	})

	return b.sendText(ctx, conv, fmt.Sprintf(
		"Desbloqueio de confiança aplicado! ✅ Seu acesso está liberado até %s. Aproveite para renovar e não ficar sem acesso.",
		vencimento.Format("02/01/2006"),
	))
}

func (b *BotEngine) handoff(ctx context.Context, conv *model.Conversation, subject, lastMessage string) error {
	if err := b.convs.UpdateMode(ctx, conv.Phone, model.ModeHuman); err != nil {
		log.Error().Err(err).Str("phone", util.MaskPhone(conv.Phone)).Msg("bot: mode switch failed")
		return b.sendText(ctx, conv, "Não consegui chamar um atendente agora. Tente novamente em instantes.")
	}

	if _, err := b.tickets.Create(ctx, model.CreateTicketParams{
		Phone:       conv.Phone,
		Subject:     subject,
		LastMessage: lastMessage,
	}); err != nil {
		log.Error().Err(err).Msg("bot: handoff ticket create failed")
	}

	audit.Log(ctx, audit.Event{
		Type:  audit.EventHandoff,
		Phone: util.MaskPhone(conv.Phone),
		Details: map[string]interface{}{
			"subject": subject,
		},
	})

	b.ResetState(conv.Phone)
	return b.sendText(ctx, conv, msgHandoff)
}

// ---- helpers ----

// monthlyPrice picks the per-month base: the client's contracted plan price
// when present, the default otherwise, scaled by the chosen screen count
// during signup.
func (b *BotEngine) monthlyPrice(client *model.Client, devices *DeviceData) int64 {
	base := b.basePriceCents
	if client != nil && client.PlanPriceCents > 0 {
		base = client.PlanPriceCents
	}
	if devices != nil && devices.Devices > 1 {
		base *= int64(devices.Devices)
	}
	return base
}

func (b *BotEngine) sendMainMenu(ctx context.Context, conv *model.Conversation, client *model.Client, now time.Time) error {
	switch {
	case client == nil:
		return b.send(ctx, conv, prospectMenuContent())
	case client.Expired(now):
		return b.send(ctx, conv, expiredMenuContent(client))
	default:
		return b.send(ctx, conv, clientMenuContent(client))
	}
}

func (b *BotEngine) send(ctx context.Context, conv *model.Conversation, content Content) error {
	return b.out.Send(ctx, conv.Phone, conv.Name, content)
}

func (b *BotEngine) sendText(ctx context.Context, conv *model.Conversation, text string) error {
	return b.send(ctx, conv, Content{Kind: ContentText, Text: text})
}
