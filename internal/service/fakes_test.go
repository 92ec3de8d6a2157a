package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/transport"
)

type fakeConvRepo struct {
	mu          sync.Mutex
	byPhone     map[string]*model.Conversation
	creates     int
	createDelay time.Duration
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{byPhone: make(map[string]*model.Conversation)}
}

func (r *fakeConvRepo) FindByPhone(ctx context.Context, phone string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.byPhone[phone]; ok {
		copied := *conv
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeConvRepo) FindByName(ctx context.Context, name string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.byPhone {
		if conv.Name == name {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeConvRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	if r.createDelay > 0 {
		time.Sleep(r.createDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[params.Phone]; exists {
		return nil, fmt.Errorf("duplicate key value violates unique constraint")
	}
	r.creates++
	conv := &model.Conversation{
		ID:    "conv-" + strconv.Itoa(r.creates),
		Phone: params.Phone,
		Name:  params.Name,
		Mode:  model.ModeBot,
	}
	r.byPhone[params.Phone] = conv
	copied := *conv
	return &copied, nil
}

func (r *fakeConvRepo) UpdateMode(ctx context.Context, phone string, mode model.HandlingMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.byPhone[phone]; ok {
		conv.Mode = mode
	}
	return nil
}

func (r *fakeConvRepo) UpdatePreview(ctx context.Context, phone, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.byPhone[phone]; ok {
		conv.LastMessage = &preview
		conv.LastMessageAt = &at
	}
	return nil
}

func (r *fakeConvRepo) CountByMode(ctx context.Context, mode model.HandlingMode) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, conv := range r.byPhone {
		if conv.Mode == mode {
			count++
		}
	}
	return count, nil
}

type fakeClientRepo struct {
	mu      sync.Mutex
	byPhone map[string]*model.Client
	byCode  map[string]*model.Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{
		byPhone: make(map[string]*model.Client),
		byCode:  make(map[string]*model.Client),
	}
}

func (r *fakeClientRepo) add(c *model.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPhone[c.Phone] = c
	if c.ReferralCode != nil {
		r.byCode[*c.ReferralCode] = c
	}
}

func (r *fakeClientRepo) FindByPhone(ctx context.Context, phone string) (*model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byPhone[phone]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeClientRepo) FindByReferralCode(ctx context.Context, code string) (*model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byCode[code]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeClientRepo) UpdateVencimento(ctx context.Context, id int64, vencimento time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byPhone {
		if c.ID == id {
			c.Vencimento = vencimento
		}
	}
	return nil
}

func (r *fakeClientRepo) StampTrustUnlock(ctx context.Context, id int64, vencimento, unlockedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byPhone {
		if c.ID == id {
			c.Vencimento = vencimento
			stamped := unlockedAt
			c.UltimoDesbloqueioConfianca = &stamped
		}
	}
	return nil
}

func (r *fakeClientRepo) AddPoints(ctx context.Context, id int64, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byPhone {
		if c.ID == id {
			c.Points += delta
			if c.Points < 0 {
				c.Points = 0
			}
			return c.Points, nil
		}
	}
	return 0, fmt.Errorf("client %d not found", id)
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	created []model.CreateTicketParams
	open    map[string]*model.Ticket
	closed  []int64
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{open: make(map[string]*model.Ticket)}
}

func (r *fakeTicketRepo) Create(ctx context.Context, params model.CreateTicketParams) (*model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, params)
	ticket := &model.Ticket{
		ID:      int64(len(r.created)),
		Phone:   params.Phone,
		Subject: params.Subject,
		Status:  model.TicketOpen,
	}
	r.open[params.Phone] = ticket
	return ticket, nil
}

func (r *fakeTicketRepo) FindOpenByPhone(ctx context.Context, phone string) (*model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.open[phone]; ok {
		return t, nil
	}
	return nil, nil
}

func (r *fakeTicketRepo) Close(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, id)
	for phone, t := range r.open {
		if t.ID == id {
			delete(r.open, phone)
		}
	}
	return nil
}

type fakeChargeRepo struct {
	mu      sync.Mutex
	charges map[string]*model.Charge
}

func newFakeChargeRepo() *fakeChargeRepo {
	return &fakeChargeRepo{charges: make(map[string]*model.Charge)}
}

func (r *fakeChargeRepo) Create(ctx context.Context, params model.CreateChargeParams) (*model.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	charge := &model.Charge{
		ID:          params.ID,
		Phone:       params.Phone,
		AmountCents: params.AmountCents,
		Months:      params.Months,
		Description: params.Description,
		Status:      model.ChargePending,
		QRCode:      params.QRCode,
		CopyPaste:   params.CopyPaste,
	}
	r.charges[params.ID] = charge
	return charge, nil
}

func (r *fakeChargeRepo) FindByID(ctx context.Context, id string) (*model.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charges[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeChargeRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charges[id]; ok && c.Status == model.ChargePending {
		c.Status = model.ChargePaid
		c.PaidAt = &paidAt
	}
	return nil
}

func (r *fakeChargeRepo) MarkCancelled(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charges[id]; ok && c.Status == model.ChargePending {
		c.Status = model.ChargeCancelled
	}
	return nil
}

func (r *fakeChargeRepo) MarkExpired(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charges[id]; ok && c.Status == model.ChargePending {
		c.Status = model.ChargeExpired
	}
	return nil
}

func (r *fakeChargeRepo) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []int64
	fail    bool
	nextSeq int
}

func (g *fakeGateway) CreateCharge(ctx context.Context, amountCents int64, description string) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, fmt.Errorf("gateway unavailable")
	}
	g.calls = append(g.calls, amountCents)
	g.nextSeq++
	return &ChargeResult{
		ChargeID:  fmt.Sprintf("charge-%d", g.nextSeq),
		QRCode:    "qr-data",
		CopyPaste: "00020126pix-copy-paste",
	}, nil
}

type sentMessage struct {
	phone   string
	content Content
}

type fakeResponder struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeResponder) Send(ctx context.Context, phone, name string, content Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{phone: phone, content: content})
	return nil
}

func (f *fakeResponder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeResponder) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeFrameSender struct {
	mu         sync.Mutex
	frames     []transport.OutFrame
	rejectKind map[transport.OutKind]bool
}

func (f *fakeFrameSender) Send(ctx context.Context, frame transport.OutFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectKind[frame.Kind] {
		return fmt.Errorf("send rejected for kind %s", frame.Kind)
	}
	f.frames = append(f.frames, frame)
	return nil
}
