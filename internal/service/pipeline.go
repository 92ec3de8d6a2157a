package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/events"
	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/transport"
	"github.com/zapsub/bot-server-go/internal/util"
)

// Pipeline wires the inbound path: normalize, dedup, classify, buffer, then
// one bot turn per coalesced batch.
type Pipeline struct {
	normalizer *Normalizer
	dedup      *DedupCache
	identity   *IdentityResolver
	debouncer  *Debouncer
	convs      *ConversationCoordinator
	convRepo   repository.ConversationRepository
	messages   repository.MessageRepository
	bot        *BotEngine
	broker     *events.Broker
}

func NewPipeline(
	normalizer *Normalizer,
	dedup *DedupCache,
	identity *IdentityResolver,
	convs *ConversationCoordinator,
	convRepo repository.ConversationRepository,
	messages repository.MessageRepository,
	bot *BotEngine,
	broker *events.Broker,
) *Pipeline {
	p := &Pipeline{
		normalizer: normalizer,
		dedup:      dedup,
		identity:   identity,
		convs:      convs,
		convRepo:   convRepo,
		messages:   messages,
		bot:        bot,
		broker:     broker,
	}
	return p
}

// SetDebouncer attaches the buffer whose flush callback points back at this
// pipeline. Split from the constructor because the two reference each other.
func (p *Pipeline) SetDebouncer(d *Debouncer) {
	p.debouncer = d
}

// HandleRaw is the session manager's message callback.
func (p *Pipeline) HandleRaw(ctx context.Context, raw *transport.RawMessage) {
	in := p.normalizer.Normalize(ctx, raw)
	if in == nil {
		return
	}

	if p.dedup.Seen(in.DedupKey) {
		log.Debug().Str("dedupKey", in.DedupKey).Msg("pipeline: duplicate event dropped")
		return
	}

	switch in.Class {
	case ClassReaction:
		if err := p.messages.UpdateReaction(ctx, in.ReactionTarget, in.ReactionEmoji); err != nil {
			log.Error().Err(err).Str("target", in.ReactionTarget).Msg("pipeline: reaction update failed")
		}
		return
	case ClassEdit:
		if err := p.messages.MarkEdited(ctx, in.TargetID, in.EditText); err != nil {
			log.Error().Err(err).Str("target", in.TargetID).Msg("pipeline: edit update failed")
		}
		return
	case ClassDelete:
		if err := p.messages.MarkDeleted(ctx, in.TargetID); err != nil {
			log.Error().Err(err).Str("target", in.TargetID).Msg("pipeline: delete mark failed")
		}
		return
	}

	// Our own outgoing messages echo back through the gateway; record them
	// upstream instead of feeding them to the bot.
	if in.FromMe {
		return
	}

	phone := p.identity.ResolvePhone(ctx, in.SenderID, in.PushName)
	p.debouncer.Ingest(phone, *in)
}

// Flush is the debouncer's callback: one coalesced batch, one bot turn.
func (p *Pipeline) Flush(phone string, in Inbound) {
	ctx := context.Background()
	if err := p.process(ctx, phone, in); err != nil {
		log.Error().
			Err(err).
			Str("phone", util.MaskPhone(phone)).
			Msg("pipeline: turn failed")
	}
}

func (p *Pipeline) process(ctx context.Context, phone string, in Inbound) error {
	conv, err := p.convs.GetOrCreate(ctx, phone, in.PushName, in.ChatID)
	if err != nil {
		// Unresolvable identities are dropped, not retried; the warn trail is
		// the only trace they leave.
		log.Warn().
			Err(err).
			Str("senderId", in.SenderID).
			Msg("pipeline: no conversation for sender, dropping turn")
		return nil
	}

	var mediaRef *string
	if in.MediaRef != "" {
		ref := in.MediaRef
		mediaRef = &ref
	}
	if _, err := p.messages.Create(ctx, model.CreateMessageParams{
		ConversationID: conv.ID,
		ProviderID:     in.ProviderID,
		Direction:      model.DirectionInbound,
		Kind:           in.Kind,
		Text:           in.Text,
		MediaRef:       mediaRef,
		FromMe:         false,
	}); err != nil {
		log.Error().Err(err).Msg("pipeline: persist inbound failed")
	}

	if err := p.convRepo.UpdatePreview(ctx, conv.Phone, previewText(in.Text), time.Now()); err != nil {
		log.Error().Err(err).Msg("pipeline: update preview failed")
	}

	if p.broker != nil {
		if err := p.broker.PublishJSON(ctx, events.TopicActivity, "message_received", map[string]any{
			"phone":     util.MaskPhone(conv.Phone),
			"kind":      string(in.Kind),
			"direction": "inbound",
		}); err != nil {
			log.Error().Err(err).Msg("pipeline: activity publish failed")
		}
	}

	return p.bot.Handle(ctx, conv, in)
}
