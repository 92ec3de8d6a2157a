package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout    = 15 * time.Second
	writeTimeout   = 10 * time.Second
	ackTimeout     = 10 * time.Second
	eventBufferLen = 128
)

// wire frame exchanged with the gateway.
type wsFrame struct {
	Type    string       `json:"type"`
	QR      string       `json:"qr,omitempty"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error,omitempty"`
	AckID   string       `json:"ackId,omitempty"`
	Message *RawMessage  `json:"message,omitempty"`
	Out     *OutFrame    `json:"out,omitempty"`
	Creds   *Credentials `json:"creds,omitempty"`
}

// GatewayClient speaks the websocket protocol of the session gateway that
// owns the actual multi-device encryption. It implements Transport.
type GatewayClient struct {
	wsURL    string
	mediaURL string
	http     *http.Client

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan error

	events chan Event
	closed chan struct{}
	once   sync.Once
}

var _ Transport = (*GatewayClient)(nil)

func NewGatewayClient(wsURL, mediaURL string) *GatewayClient {
	return &GatewayClient{
		wsURL:    wsURL,
		mediaURL: mediaURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		pending:  make(map[string]chan error),
		events:   make(chan Event, eventBufferLen),
		closed:   make(chan struct{}),
	}
}

func (c *GatewayClient) Events() <-chan Event {
	return c.events
}

func (c *GatewayClient) Connect(ctx context.Context, creds Credentials) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}

	header := http.Header{}
	if creds.Token != "" {
		header.Set("Authorization", "Bearer "+creds.Token)
	}
	if creds.DeviceID != "" {
		header.Set("X-Device-Id", creds.DeviceID)
	}

	conn, resp, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("gateway rejected credentials: %w", err)
		}
		return fmt.Errorf("dial gateway: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *GatewayClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.emit(Event{Kind: EventClosed, Reason: ReasonTransient, Err: err})
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Error().Err(err).Msg("gateway: malformed frame")
			continue
		}

		switch frame.Type {
		case "qr":
			c.emit(Event{Kind: EventQR, QR: frame.QR})
		case "open":
			c.emit(Event{Kind: EventOpen})
		case "close":
			c.emit(Event{Kind: EventClosed, Reason: classifyClose(frame.Code)})
			return
		case "message":
			if frame.Message != nil {
				c.emit(Event{Kind: EventMessage, Message: frame.Message})
			}
		case "creds":
			if frame.Creds != nil {
				c.emit(Event{Kind: EventCreds, Creds: frame.Creds})
			}
		case "ack":
			c.resolveAck(frame.AckID, frame.Error)
		default:
			log.Debug().Str("type", frame.Type).Msg("gateway: ignoring frame")
		}
	}
}

func classifyClose(code string) DisconnectReason {
	switch code {
	case "logged_out":
		return ReasonLoggedOut
	case "conflict", "replaced":
		return ReasonConflict
	case "unauthorized", "bad_session":
		return ReasonAuthFailure
	default:
		return ReasonTransient
	}
}

func (c *GatewayClient) emit(evt Event) {
	select {
	case c.events <- evt:
	case <-c.closed:
	}
}

// Send writes the frame and waits for the gateway's ack. An error ack (for
// example an interactive payload the device rejects) is returned to the
// caller so it can fall back to a simpler representation.
func (c *GatewayClient) Send(ctx context.Context, frame OutFrame) error {
	ack := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("gateway not connected")
	}
	c.pending[frame.ID] = ack
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(wsFrame{Type: "send", AckID: frame.ID, Out: &frame})
	c.mu.Unlock()

	if err != nil {
		c.dropAck(frame.ID)
		return fmt.Errorf("write frame: %w", err)
	}

	// Keep-alive probes are fire-and-forget; the gateway does not ack them.
	if frame.Kind == OutPresence || frame.Kind == OutPing {
		c.dropAck(frame.ID)
		return nil
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()

	select {
	case err := <-ack:
		return err
	case <-timer.C:
		c.dropAck(frame.ID)
		return fmt.Errorf("send %s: ack timeout", frame.ID)
	case <-ctx.Done():
		c.dropAck(frame.ID)
		return ctx.Err()
	}
}

func (c *GatewayClient) resolveAck(id, errMsg string) {
	c.mu.Lock()
	ack, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		return
	}
	if errMsg != "" {
		ack <- fmt.Errorf("gateway: %s", errMsg)
	} else {
		ack <- nil
	}
}

func (c *GatewayClient) dropAck(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Download fetches media bytes through the gateway's HTTP media endpoint.
func (c *GatewayClient) Download(ctx context.Context, ref string) ([]byte, error) {
	if c.mediaURL == "" {
		return nil, fmt.Errorf("media download not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mediaURL+"/"+ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (c *GatewayClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(wsFrame{Type: "logout"})
}

func (c *GatewayClient) Close() error {
	c.once.Do(func() { close(c.closed) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
