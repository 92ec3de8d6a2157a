package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventHandoff          EventType = "human_handoff"
	EventTrustUnlock      EventType = "trust_unlock"
	EventTrustUnlockDenied EventType = "trust_unlock_denied"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventChargeCreated    EventType = "charge_created"
	EventSessionLoggedOut EventType = "session_logged_out"
	EventModeSwitch       EventType = "mode_switch"
)

type Event struct {
	Type    EventType
	Phone   string
	Details map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "conversation").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Phone != "" {
		logger = logger.With().Str("phone", event.Phone).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
