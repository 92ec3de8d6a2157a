package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/zapsub/bot-server-go/internal/errors"
	"github.com/zapsub/bot-server-go/internal/httputil"
	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/service"
	"github.com/zapsub/bot-server-go/internal/session"
	"github.com/zapsub/bot-server-go/internal/util"
)

// APIHandler is the operator surface: session control, outbound sends and
// conversation management.
type APIHandler struct {
	session    *session.Manager
	dispatcher *service.Dispatcher
	bot        *service.BotEngine
	convs      repository.ConversationRepository
}

func NewAPIHandler(
	sessionManager *session.Manager,
	dispatcher *service.Dispatcher,
	bot *service.BotEngine,
	convs repository.ConversationRepository,
) *APIHandler {
	return &APIHandler{
		session:    sessionManager,
		dispatcher: dispatcher,
		bot:        bot,
		convs:      convs,
	}
}

func (h *APIHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/session", h.SessionStatus)
	r.Post("/session/logout", h.Logout)
	r.Post("/messages", h.SendText)
	r.Post("/messages/image", h.SendImage)
	r.Post("/conversations/{phone}/reset", h.ResetConversation)
	r.Post("/conversations/{phone}/mode", h.SetMode)
	return r
}

func (h *APIHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	status, qr := h.session.Status()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"qr":     qr,
	})
}

func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		log.Error().Err(err).Msg("api: logout failed")
		httputil.WriteError(w, apperrors.Transport("logout failed", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type sendTextRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

func (h *APIHandler) SendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}
	if !util.IsValidPhone(req.Phone) {
		httputil.WriteError(w, apperrors.InvalidPhone(req.Phone))
		return
	}
	if req.Text == "" {
		httputil.WriteError(w, apperrors.InvalidInput("text", "must not be empty"))
		return
	}

	if err := h.dispatcher.Send(r.Context(), req.Phone, "", service.Content{
		Kind: service.ContentText,
		Text: req.Text,
	}); err != nil {
		log.Error().Err(err).Msg("api: text send failed")
		httputil.WriteError(w, apperrors.Transport("message send failed", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type sendImageRequest struct {
	Phone    string `json:"phone"`
	ImageRef string `json:"imageRef"`
	Caption  string `json:"caption"`
}

func (h *APIHandler) SendImage(w http.ResponseWriter, r *http.Request) {
	var req sendImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}
	if !util.IsValidPhone(req.Phone) {
		httputil.WriteError(w, apperrors.InvalidPhone(req.Phone))
		return
	}
	if req.ImageRef == "" {
		httputil.WriteError(w, apperrors.InvalidInput("imageRef", "must not be empty"))
		return
	}

	if err := h.dispatcher.Send(r.Context(), req.Phone, "", service.Content{
		Kind:     service.ContentImage,
		ImageRef: req.ImageRef,
		Caption:  req.Caption,
	}); err != nil {
		log.Error().Err(err).Msg("api: image send failed")
		httputil.WriteError(w, apperrors.Transport("image send failed", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *APIHandler) ResetConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if !util.IsValidPhone(phone) {
		httputil.WriteError(w, apperrors.InvalidPhone(phone))
		return
	}

	h.bot.ResetState(phone)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

func (h *APIHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if !util.IsValidPhone(phone) {
		httputil.WriteError(w, apperrors.InvalidPhone(phone))
		return
	}

	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}

	mode := model.HandlingMode(req.Mode)
	if mode != model.ModeBot && mode != model.ModeHuman {
		httputil.WriteError(w, apperrors.InvalidInput("mode", "must be 'bot' or 'human'"))
		return
	}

	if err := h.convs.UpdateMode(r.Context(), phone, mode); err != nil {
		log.Error().Err(err).Msg("api: mode update failed")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	// Returning a conversation to the bot starts from a clean slate.
	if mode == model.ModeBot {
		h.bot.ResetState(phone)
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "updated",
		"mode":   string(mode),
	})
}
