package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapsub/bot-server-go/internal/model"
)

const testPhone = "5511999990000"

type botFixture struct {
	bot       *BotEngine
	responder *fakeResponder
	clients   *fakeClientRepo
	convs     *fakeConvRepo
	tickets   *fakeTicketRepo
	charges   *fakeChargeRepo
	gateway   *fakeGateway
	now       time.Time
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	f := &botFixture{
		responder: &fakeResponder{},
		clients:   newFakeClientRepo(),
		convs:     newFakeConvRepo(),
		tickets:   newFakeTicketRepo(),
		charges:   newFakeChargeRepo(),
		gateway:   &fakeGateway{},
		now:       time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC),
	}
	f.bot = NewBotEngine(f.responder, f.clients, f.convs, f.tickets, f.charges, f.gateway, 2990)
	f.bot.now = func() time.Time { return f.now }
	return f
}

func (f *botFixture) conversation() *model.Conversation {
	return &model.Conversation{
		ID:    "conv-1",
		Phone: testPhone,
		Name:  "Maria Silva",
		Mode:  model.ModeBot,
	}
}

func (f *botFixture) activeClient() *model.Client {
	c := &model.Client{
		ID:             1,
		Phone:          testPhone,
		Name:           "Maria Silva",
		PlanPriceCents: 2990,
		Vencimento:     f.now.AddDate(0, 1, 0),
	}
	f.clients.add(c)
	return c
}

func (f *botFixture) expiredClient() *model.Client {
	c := &model.Client{
		ID:             1,
		Phone:          testPhone,
		Name:           "Maria Silva",
		PlanPriceCents: 2990,
		Vencimento:     f.now.AddDate(0, 0, -2),
	}
	f.clients.add(c)
	return c
}

func textIn(text string) Inbound {
	return Inbound{Class: ClassMessage, Kind: model.KindText, Text: text}
}

func (f *botFixture) handle(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, f.bot.Handle(context.Background(), f.conversation(), textIn(text)))
}

func (f *botFixture) state() *ConvState {
	f.bot.mu.Lock()
	defer f.bot.mu.Unlock()
	st, ok := f.bot.states[testPhone]
	if !ok {
		return &ConvState{}
	}
	copied := *st
	return &copied
}

func TestBotInvalidOptionLeavesStateUnchanged(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "3") // enter points submenu
	require.Equal(t, submenuPoints, f.state().Submenu)
	sentBefore := f.responder.count()

	f.handle(t, "9")

	assert.Equal(t, submenuPoints, f.state().Submenu, "state must not change on invalid input")
	require.Equal(t, sentBefore+1, f.responder.count(), "exactly one error reply, no menu re-send")
	assert.Equal(t, msgInvalidOption, f.responder.last().content.Text)
	assert.Equal(t, ContentText, f.responder.last().content.Kind)
}

func TestBotZeroReturnsToMainAndClearsData(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2") // renew period submenu
	require.Equal(t, submenuRenewPeriod, f.state().Submenu)

	f.handle(t, "0")

	st := f.state()
	assert.Empty(t, st.Submenu)
	assert.Nil(t, st.Data)
	assert.Equal(t, ContentMenu, f.responder.last().content.Kind, "main menu re-sent after back")
}

func TestBotZeroFromPaymentReturnsToPeriodMenu(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2")
	f.handle(t, "3") // 6 months, creates charge
	require.Equal(t, submenuRenewPayment, f.state().Submenu)

	f.handle(t, "0")

	st := f.state()
	assert.Equal(t, submenuRenewPeriod, st.Submenu)
	assert.Nil(t, st.Data, "payment data cleared on back")
}

func TestBotRenewalChargeFlow(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2")
	f.handle(t, "3") // 6-month tier

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, int64(14352), f.gateway.calls[0], "29.90 x 6 x 0.8 in cents")

	st := f.state()
	require.Equal(t, submenuRenewPayment, st.Submenu)
	pd, ok := st.Data.(PaymentData)
	require.True(t, ok)
	assert.Equal(t, "charge-1", pd.ChargeID)
	assert.Equal(t, 6, pd.Months)

	last := f.responder.last()
	assert.Equal(t, ContentMenu, last.content.Kind)
	assert.Contains(t, last.content.Text, "00020126pix-copy-paste")
	assert.Contains(t, last.content.Text, "R$ 143,52")
}

func TestBotChargeFailureOffersEscape(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()
	f.gateway.fail = true

	f.handle(t, "2")
	f.handle(t, "3")

	st := f.state()
	assert.Empty(t, st.Submenu, "failed charge must not strand the customer in a submenu")
	assert.Contains(t, f.responder.last().content.Text, "atendente")
}

func TestBotPaymentPolling(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2")
	f.handle(t, "3")

	t.Run("still pending", func(t *testing.T) {
		f.handle(t, "1")
		assert.Equal(t, submenuRenewPayment, f.state().Submenu)
		assert.Contains(t, f.responder.last().content.Text, "não identificamos")
	})

	t.Run("paid", func(t *testing.T) {
		require.NoError(t, f.charges.MarkPaid(context.Background(), "charge-1", f.now))
		f.handle(t, "1")
		assert.Empty(t, f.state().Submenu)
		assert.Equal(t, msgPaymentOK, f.responder.last().content.Text)
	})
}

func TestBotPaymentCancel(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2")
	f.handle(t, "3")
	f.handle(t, "2") // cancelar

	assert.Empty(t, f.state().Submenu)
	charge, err := f.charges.FindByID(context.Background(), "charge-1")
	require.NoError(t, err)
	assert.Equal(t, model.ChargeCancelled, charge.Status)
}

func TestBotTrustUnlockExtendsTwoDaysEndOfDay(t *testing.T) {
	f := newBotFixture(t)
	f.expiredClient()

	f.handle(t, "1")

	client, err := f.clients.FindByPhone(context.Background(), testPhone)
	require.NoError(t, err)

	wantDay := f.now.AddDate(0, 0, 2)
	want := time.Date(wantDay.Year(), wantDay.Month(), wantDay.Day(), 23, 59, 59, 0, time.UTC)
	assert.Equal(t, want, client.Vencimento)

	require.NotNil(t, client.UltimoDesbloqueioConfianca)
	assert.Equal(t, f.now, *client.UltimoDesbloqueioConfianca)
}

func TestBotTrustUnlockCooldownNamesDaysRemaining(t *testing.T) {
	f := newBotFixture(t)
	c := f.expiredClient()
	lastUnlock := f.now.AddDate(0, 0, -10)
	c.UltimoDesbloqueioConfianca = &lastUnlock

	f.handle(t, "1")

	last := f.responder.last().content.Text
	assert.Contains(t, last, "20 dia", "refusal names the days remaining")

	client, err := f.clients.FindByPhone(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, client.Vencimento.Before(f.now), "expiry must not move on a refused unlock")
}

func TestBotSilenceWindowThenResumption(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.bot.MarkPaymentConfirmed(testPhone)

	f.handle(t, "oi")
	assert.Zero(t, f.responder.count(), "no replies inside the silence window")

	f.now = f.now.Add(11 * time.Minute)
	f.handle(t, "oi")
	assert.Equal(t, 1, f.responder.count(), "normal handling resumes after the window")
	assert.Nil(t, f.state().PaymentConfirmedAt)
}

func TestBotPaymentConfirmationClearsPaymentSubmenu(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2")
	f.handle(t, "3")
	require.Equal(t, submenuRenewPayment, f.state().Submenu)

	f.bot.MarkPaymentConfirmed(testPhone)

	st := f.state()
	assert.Empty(t, st.Submenu)
	assert.NotNil(t, st.PaymentConfirmedAt)
}

func TestBotResetCommand(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2")
	require.Equal(t, submenuRenewPeriod, f.state().Submenu)

	f.handle(t, "resetar")

	assert.Empty(t, f.state().Submenu)
	assert.Equal(t, ContentMenu, f.responder.last().content.Kind)
}

func TestBotHumanModeSilencesAndClearsState(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "2")
	require.Equal(t, submenuRenewPeriod, f.state().Submenu)

	conv := f.conversation()
	conv.Mode = model.ModeHuman
	require.NoError(t, f.bot.Handle(context.Background(), conv, textIn("2")))

	assert.Empty(t, f.state().Submenu)
	assert.Equal(t, 1, f.responder.count(), "no bot reply while a human handles the conversation")
}

func TestBotHandoffCreatesTicketAndSwitchesMode(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()
	f.convs.byPhone[testPhone] = f.conversation()

	f.handle(t, "5")

	mode := f.convs.byPhone[testPhone].Mode
	assert.Equal(t, model.ModeHuman, mode)
	require.Len(t, f.tickets.created, 1)
	assert.Equal(t, testPhone, f.tickets.created[0].Phone)
	assert.Equal(t, msgHandoff, f.responder.last().content.Text)
}

func TestBotProspectMenu(t *testing.T) {
	f := newBotFixture(t)

	t.Run("unknown number gets prospect menu", func(t *testing.T) {
		f.handle(t, "oi")
		last := f.responder.last()
		require.Equal(t, ContentMenu, last.content.Kind)
		assert.Len(t, last.content.Options, 5)
		assert.Contains(t, last.content.Title, "Bem-vindo")
	})

	t.Run("trial flow opens ticket", func(t *testing.T) {
		f.handle(t, "2")
		require.Equal(t, submenuTrialDevice, f.state().Submenu)

		f.handle(t, "2") // 2 screens
		assert.Empty(t, f.state().Submenu)
		require.Len(t, f.tickets.created, 1)
		assert.Equal(t, "Ativação de teste grátis", f.tickets.created[0].Subject)
	})
}

func TestBotReferralValidation(t *testing.T) {
	f := newBotFixture(t)
	code := "AMIGO10"
	referrer := &model.Client{
		ID:           7,
		Phone:        "5511888880000",
		Name:         "João Souza",
		ReferralCode: &code,
		Vencimento:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.clients.add(referrer)

	f.handle(t, "4")
	require.Equal(t, submenuReferral, f.state().Submenu)

	t.Run("unknown code stays in submenu", func(t *testing.T) {
		f.handle(t, "NADA")
		assert.Equal(t, submenuReferral, f.state().Submenu)
		assert.Contains(t, f.responder.last().content.Text, "Não encontrei")
	})

	t.Run("valid code credits referrer and exits", func(t *testing.T) {
		f.handle(t, "amigo10")
		assert.Empty(t, f.state().Submenu)
		assert.Contains(t, f.responder.last().content.Text, "João")

		got, err := f.clients.FindByPhone(context.Background(), referrer.Phone)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Points)
	})
}

func TestBotExpiredMenuShowsVencimento(t *testing.T) {
	f := newBotFixture(t)
	c := f.expiredClient()

	f.handle(t, "oi")

	last := f.responder.last()
	require.Equal(t, ContentMenu, last.content.Kind)
	assert.Contains(t, last.content.Text, c.Vencimento.Format("02/01/2006"))
	assert.Len(t, last.content.Options, 3)
}

func TestBotSupportRetryThenEscalate(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()
	f.convs.byPhone[testPhone] = f.conversation()

	f.handle(t, "4")
	require.Equal(t, submenuSupport, f.state().Submenu)

	f.handle(t, "2") // still broken: retry step
	assert.Equal(t, submenuSupport, f.state().Submenu)
	sd, ok := f.state().Data.(SupportData)
	require.True(t, ok)
	assert.True(t, sd.Retried)
	assert.True(t, strings.Contains(f.responder.last().content.Text, "30 segundos"))

	f.handle(t, "2") // second failure escalates
	assert.Empty(t, f.state().Submenu)
	assert.Equal(t, model.ModeHuman, f.convs.byPhone[testPhone].Mode)
}

func TestBotPointsAddRemove(t *testing.T) {
	f := newBotFixture(t)
	f.activeClient()

	f.handle(t, "3")
	f.handle(t, "1") // add

	client, err := f.clients.FindByPhone(context.Background(), testPhone)
	require.NoError(t, err)
	assert.Equal(t, 1, client.Points)

	f.handle(t, "3")
	f.handle(t, "2") // remove

	client, err = f.clients.FindByPhone(context.Background(), testPhone)
	require.NoError(t, err)
	assert.Equal(t, 0, client.Points)
}
