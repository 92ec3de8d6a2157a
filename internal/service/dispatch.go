package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/transport"
	"github.com/zapsub/bot-server-go/internal/util"
)

// FrameSender is the slice of the transport the dispatcher needs.
type FrameSender interface {
	Send(ctx context.Context, frame transport.OutFrame) error
}

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentMenu  ContentKind = "menu"
)

// Content is one outbound message. Menus with three or fewer options go out
// as button messages, larger ones as selectable lists.
type Content struct {
	Kind     ContentKind
	Text     string
	ImageRef string
	Caption  string
	Title    string
	Options  []transport.Option
	// AlreadyRecorded skips persistence when a higher layer wrote the row.
	AlreadyRecorded bool
}

// Dispatcher sends outbound messages with interactive fallback and persists
// them without double-counting.
type Dispatcher struct {
	sender   FrameSender
	convs    *ConversationCoordinator
	convRepo repository.ConversationRepository
	messages repository.MessageRepository
}

func NewDispatcher(
	sender FrameSender,
	convs *ConversationCoordinator,
	convRepo repository.ConversationRepository,
	messages repository.MessageRepository,
) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		convs:    convs,
		convRepo: convRepo,
		messages: messages,
	}
}

// Send delivers content to phone, degrading interactive representations on
// rejection down to plain text rather than failing the turn.
func (d *Dispatcher) Send(ctx context.Context, phone, name string, content Content) error {
	providerID := uuid.NewString()

	text, err := d.deliver(ctx, providerID, phone, content)
	if err != nil {
		return err
	}

	conv, err := d.convs.GetOrCreate(ctx, phone, name)
	if err != nil {
		log.Warn().
			Err(err).
			Str("phone", util.MaskPhone(phone)).
			Msg("dispatch: could not ensure conversation for outbound")
		return nil
	}

	if err := d.convRepo.UpdatePreview(ctx, conv.Phone, previewText(text), time.Now()); err != nil {
		log.Error().Err(err).Msg("dispatch: update preview failed")
	}

	if content.AlreadyRecorded {
		return nil
	}

	kind := model.KindText
	var mediaRef *string
	if content.Kind == ContentImage {
		kind = model.KindImage
		ref := content.ImageRef
		mediaRef = &ref
	}

	if _, err := d.messages.Create(ctx, model.CreateMessageParams{
		ConversationID: conv.ID,
		ProviderID:     providerID,
		Direction:      model.DirectionOutbound,
		Kind:           kind,
		Text:           text,
		MediaRef:       mediaRef,
		FromMe:         true,
	}); err != nil {
		log.Error().Err(err).Msg("dispatch: persist outbound failed")
	}

	return nil
}

// deliver pushes the frame through the transport, walking the fallback chain
// for interactive content. Returns the display text that was delivered.
func (d *Dispatcher) deliver(ctx context.Context, providerID, phone string, content Content) (string, error) {
	switch content.Kind {
	case ContentImage:
		frame := transport.OutFrame{
			ID:       providerID,
			To:       phone,
			Kind:     transport.OutImage,
			ImageRef: content.ImageRef,
			Caption:  content.Caption,
		}
		if err := d.sender.Send(ctx, frame); err != nil {
			log.Warn().Err(err).Msg("dispatch: image send failed, falling back to caption text")
			return d.sendText(ctx, providerID, phone, content.Caption)
		}
		return content.Caption, nil

	case ContentMenu:
		kind := transport.OutButtons
		if len(content.Options) > 3 {
			kind = transport.OutList
		}
		frame := transport.OutFrame{
			ID:      providerID,
			To:      phone,
			Kind:    kind,
			Title:   content.Title,
			Text:    content.Text,
			Options: content.Options,
		}
		if err := d.sender.Send(ctx, frame); err != nil {
			log.Warn().
				Err(err).
				Str("kind", string(kind)).
				Msg("dispatch: interactive send rejected, falling back to plain text")
			return d.sendText(ctx, providerID, phone, renderMenuText(content))
		}
		return renderMenuText(content), nil

	default:
		return d.sendText(ctx, providerID, phone, content.Text)
	}
}

func (d *Dispatcher) sendText(ctx context.Context, providerID, phone, text string) (string, error) {
	frame := transport.OutFrame{
		ID:   providerID,
		To:   phone,
		Kind: transport.OutText,
		Text: text,
	}
	if err := d.sender.Send(ctx, frame); err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	return text, nil
}

const previewMaxBytes = 120

// previewText caps the conversation preview, cutting on a rune boundary so
// the stored string stays valid UTF-8.
func previewText(s string) string {
	if len(s) <= previewMaxBytes {
		return s
	}
	cut := previewMaxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// renderMenuText is the last rung of the fallback ladder: the menu as
// numbered plain text.
func renderMenuText(content Content) string {
	var b strings.Builder
	if content.Title != "" {
		b.WriteString(content.Title)
		b.WriteString("\n\n")
	}
	if content.Text != "" {
		b.WriteString(content.Text)
		b.WriteString("\n\n")
	}
	for _, opt := range content.Options {
		fmt.Fprintf(&b, "%s - %s\n", opt.ID, opt.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}
