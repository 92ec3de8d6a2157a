package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/config"
	"github.com/zapsub/bot-server-go/internal/transport"
)

type Status string

const (
	StatusClosed     Status = "closed"
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
)

type Config struct {
	PresenceVisible bool
	// KeepaliveProbe is "presence" (refresh presence) or "noop" (ping frame).
	KeepaliveProbe string
}

// Manager owns the transport connection: it drives the
// closed -> connecting -> open state machine, exposes the pairing QR while
// one is outstanding, classifies disconnects into a recovery strategy and
// keeps the link warm with a periodic probe.
type Manager struct {
	tr    transport.Transport
	creds *transport.CredentialStore
	cfg   Config

	mu       sync.Mutex
	status   Status
	qr       string
	attempts int

	reconnecting atomic.Bool

	onQR           func(code string)
	onConnected    func()
	onDisconnected func(reason transport.DisconnectReason)
	onMessage      func(raw *transport.RawMessage)

	keepaliveStop chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

func NewManager(tr transport.Transport, creds *transport.CredentialStore, cfg Config) *Manager {
	return &Manager{
		tr:     tr,
		creds:  creds,
		cfg:    cfg,
		status: StatusClosed,
		done:   make(chan struct{}),
	}
}

func (m *Manager) OnQR(fn func(code string))                                 { m.onQR = fn }
func (m *Manager) OnConnected(fn func())                                     { m.onConnected = fn }
func (m *Manager) OnDisconnected(fn func(reason transport.DisconnectReason)) { m.onDisconnected = fn }
func (m *Manager) OnMessage(fn func(raw *transport.RawMessage))              { m.onMessage = fn }

// Status returns the connection state and the outstanding pairing QR, if any.
func (m *Manager) Status() (Status, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.qr
}

// Run consumes transport events until ctx is cancelled. Call once.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case evt, ok := <-m.tr.Events():
			if !ok {
				return
			}
			m.handleEvent(ctx, evt)
		}
	}
}

// Connect establishes (or re-establishes) the transport session with
// whatever credentials are on disk. A missing credential file means the
// gateway will answer with a QR for fresh pairing.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.status = StatusConnecting
	m.mu.Unlock()

	creds, _ := m.creds.Load()

	if err := m.tr.Connect(ctx, creds); err != nil {
		m.mu.Lock()
		m.status = StatusClosed
		m.mu.Unlock()
		log.Error().Err(err).Msg("session: connect failed")
		m.scheduleReconnect(ctx, transport.ReasonTransient)
		return err
	}
	return nil
}

func (m *Manager) handleEvent(ctx context.Context, evt transport.Event) {
	switch evt.Kind {
	case transport.EventQR:
		m.mu.Lock()
		m.qr = evt.QR
		m.mu.Unlock()
		log.Info().Msg("session: pairing code available")
		if m.onQR != nil {
			m.onQR(evt.QR)
		}

	case transport.EventOpen:
		m.mu.Lock()
		m.status = StatusOpen
		m.qr = ""
		m.attempts = 0
		m.mu.Unlock()
		log.Info().Msg("session: open")
		m.applyPreferences(ctx)
		m.startKeepalive()
		if m.onConnected != nil {
			m.onConnected()
		}

	case transport.EventClosed:
		m.mu.Lock()
		m.status = StatusClosed
		m.mu.Unlock()
		m.stopKeepalive()
		log.Warn().
			Str("reason", string(evt.Reason)).
			Err(evt.Err).
			Msg("session: disconnected")
		if m.onDisconnected != nil {
			m.onDisconnected(evt.Reason)
		}
		m.scheduleReconnect(ctx, evt.Reason)

	case transport.EventMessage:
		if m.onMessage != nil && evt.Message != nil {
			m.onMessage(evt.Message)
		}

	case transport.EventCreds:
		if evt.Creds == nil {
			return
		}
		if err := m.creds.Save(*evt.Creds); err != nil {
			log.Error().Err(err).Msg("session: failed to persist credentials")
			return
		}
		log.Info().Msg("session: pairing credentials persisted")
	}
}

// scheduleReconnect applies the per-reason recovery policy. The atomic guard
// keeps concurrent disconnect events from racing two reconnect sequences.
func (m *Manager) scheduleReconnect(ctx context.Context, reason transport.DisconnectReason) {
	if reason == transport.ReasonLoggedOut {
		log.Info().Msg("session: logged out, clearing credentials and stopping")
		if err := m.creds.ClearAll(); err != nil {
			log.Error().Err(err).Msg("session: failed to clear credentials")
		}
		return
	}

	if !m.reconnecting.CompareAndSwap(false, true) {
		log.Debug().Msg("session: reconnect already in flight")
		return
	}

	delay := m.reconnectDelay(reason)

	switch reason {
	case transport.ReasonConflict:
		if err := m.creds.ClearSession(); err != nil {
			log.Error().Err(err).Msg("session: failed to clear session state")
		}
		m.resetAttempts()
	case transport.ReasonAuthFailure:
		if err := m.creds.ClearAll(); err != nil {
			log.Error().Err(err).Msg("session: failed to clear credentials")
		}
		m.resetAttempts()
	default:
		m.mu.Lock()
		m.attempts++
		m.mu.Unlock()
	}

	log.Info().
		Str("reason", string(reason)).
		Dur("delay", delay).
		Msg("session: reconnecting")

	time.AfterFunc(delay, func() {
		defer m.reconnecting.Store(false)
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		default:
		}
		if err := m.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("session: reconnect attempt failed")
		}
	})
}

func (m *Manager) reconnectDelay(reason transport.DisconnectReason) time.Duration {
	switch reason {
	case transport.ReasonConflict:
		return config.ReconnectConflictDelay
	case transport.ReasonAuthFailure:
		return config.ReconnectAuthDelay
	}

	m.mu.Lock()
	attempts := m.attempts + 1
	m.mu.Unlock()

	if attempts <= config.ReconnectFreeAttempts {
		return config.ReconnectBaseDelay
	}
	delay := time.Duration(attempts-config.ReconnectFreeAttempts) * config.ReconnectLinearStep
	if delay > config.ReconnectMaxDelay {
		delay = config.ReconnectMaxDelay
	}
	return delay
}

func (m *Manager) resetAttempts() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
}

// applyPreferences pushes cached user preferences to the freshly opened
// session, currently just presence visibility.
func (m *Manager) applyPreferences(ctx context.Context) {
	frame := transport.OutFrame{
		ID:        uuid.NewString(),
		Kind:      transport.OutPresence,
		Available: m.cfg.PresenceVisible,
	}
	if err := m.tr.Send(ctx, frame); err != nil {
		log.Warn().Err(err).Msg("session: failed to apply presence preference")
	}
}

func (m *Manager) startKeepalive() {
	m.mu.Lock()
	if m.keepaliveStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.keepaliveStop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(config.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-m.done:
				return
			case <-ticker.C:
				m.probe()
			}
		}
	}()
}

func (m *Manager) stopKeepalive() {
	m.mu.Lock()
	if m.keepaliveStop != nil {
		close(m.keepaliveStop)
		m.keepaliveStop = nil
	}
	m.mu.Unlock()
}

// probe keeps idle connections from being reaped by intermediaries. Either a
// presence refresh or a no-op ping, per configuration.
func (m *Manager) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), config.SendAckTimeout)
	defer cancel()

	frame := transport.OutFrame{ID: uuid.NewString()}
	if m.cfg.KeepaliveProbe == "noop" {
		frame.Kind = transport.OutPing
	} else {
		frame.Kind = transport.OutPresence
		frame.Available = m.cfg.PresenceVisible
	}

	if err := m.tr.Send(ctx, frame); err != nil {
		log.Debug().Err(err).Msg("session: keepalive probe failed")
	}
}

// Logout tears the session down for good: remote logout plus local purge.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.tr.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("session: remote logout failed")
	}
	if err := m.creds.ClearAll(); err != nil {
		return err
	}
	m.mu.Lock()
	m.status = StatusClosed
	m.qr = ""
	m.mu.Unlock()
	m.stopKeepalive()
	return nil
}

func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.stopKeepalive()
	m.tr.Close()
}
