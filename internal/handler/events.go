package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/events"
	"github.com/zapsub/bot-server-go/internal/session"
)

// EventsHandler streams broker events to operator dashboards over SSE.
type EventsHandler struct {
	broker  *events.Broker
	session *session.Manager
}

func NewEventsHandler(broker *events.Broker, sessionManager *session.Manager) *EventsHandler {
	return &EventsHandler{
		broker:  broker,
		session: sessionManager,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = events.TopicActivity
	}
	switch topic {
	case events.TopicActivity, events.TopicPayments, events.TopicConnection:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown topic"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("topic", topic).Msg("sse connection established")

	status, _ := h.session.Status()
	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"topic":         topic,
		"sessionStatus": string(status),
	}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(events.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("topic", topic).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("topic", topic).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("topic", topic).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, events.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event events.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
