package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/transport"
	"github.com/zapsub/bot-server-go/internal/util"
)

// MediaFetcher is the slice of the transport the normalizer needs.
type MediaFetcher interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

// replyOptionMap canonicalizes interactive reply ids into the numeric tokens
// the menus understand. Unmapped ids pass through when already numeric and
// verbatim otherwise.
var replyOptionMap = map[string]string{
	"option_0":       "0",
	"option_1":       "1",
	"option_2":       "2",
	"option_3":       "3",
	"option_4":       "4",
	"option_5":       "5",
	"ver_vencimento": "1",
	"renovar":        "2",
	"pontos":         "3",
	"suporte":        "4",
	"atendente":      "5",
	"voltar":         "0",
	"menu":           "0",
}

const unsupportedPlaceholder = "(mensagem não suportada)"

// Normalizer classifies a raw gateway event into exactly one Inbound, or nil
// for protocol-only noise.
type Normalizer struct {
	media MediaFetcher
}

func NewNormalizer(media MediaFetcher) *Normalizer {
	return &Normalizer{media: media}
}

func (n *Normalizer) Normalize(ctx context.Context, raw *transport.RawMessage) *Inbound {
	in := &Inbound{
		Class:      ClassMessage,
		DedupKey:   dedupKey(raw),
		ProviderID: raw.ID,
		SenderID:   raw.SenderID,
		ChatID:     raw.ChatID,
		PushName:   raw.PushName,
		FromMe:     raw.FromMe,
		Kind:       model.KindText,
		Timestamp:  time.Unix(raw.Timestamp, 0),
	}

	p := raw.Payload

	// Reactions never create messages; they update an existing one.
	if p.Reaction != nil {
		in.Class = ClassReaction
		in.ReactionTarget = p.Reaction.TargetID
		in.ReactionEmoji = p.Reaction.Emoji
		return in
	}

	if p.Protocol != nil {
		switch p.Protocol.Type {
		case "edit":
			if p.Protocol.Edited == nil {
				// An edit that nulls the content is a delete in disguise.
				in.Class = ClassDelete
				in.TargetID = p.Protocol.TargetID
				return in
			}
			in.Class = ClassEdit
			in.TargetID = p.Protocol.TargetID
			in.EditText = *p.Protocol.Edited
			return in
		case "revoke":
			in.Class = ClassDelete
			in.TargetID = p.Protocol.TargetID
			return in
		default:
			// Pure metadata/sync events carry no user content.
			return nil
		}
	}

	// View-once content from the counterpart is never downloaded; only a
	// placeholder annotated with the inner payload's media kind survives.
	if p.ViewOnce != nil {
		kind, label := viewOnceKind(p.ViewOnce)
		in.Kind = kind
		in.Text = fmt.Sprintf("(visualização única: %s)", label)
		return in
	}

	if opt := selectedReply(&p); opt != "" {
		in.Text = canonicalOption(opt)
		return in
	}

	if p.Text != nil {
		in.Text = p.Text.Body
		in.Quoted = p.Text.Quoted
		return in
	}

	if kind, media := firstMedia(&p); media != nil {
		in.Kind = kind
		in.MediaRef = media.Ref
		in.Quoted = media.Quoted
		in.Text = n.mediaText(ctx, kind, media)
		return in
	}

	// Nothing matched: scan the unmodeled payload bag for any text-bearing
	// field before giving up.
	if text := scanForText(p.Extra); text != "" {
		in.Text = text
		return in
	}

	in.Kind = model.KindUnknown
	in.Text = unsupportedPlaceholder
	return in
}

func dedupKey(raw *transport.RawMessage) string {
	return fmt.Sprintf("%s|%s|%t", raw.ID, raw.ChatID, raw.FromMe)
}

func selectedReply(p *transport.Payload) string {
	switch {
	case p.ButtonReply != nil:
		return p.ButtonReply.SelectedID
	case p.ListReply != nil:
		return p.ListReply.SelectedID
	case p.TemplateReply != nil:
		return p.TemplateReply.SelectedID
	}
	return ""
}

func canonicalOption(id string) string {
	if mapped, ok := replyOptionMap[id]; ok {
		return mapped
	}
	if util.IsMenuToken(id) {
		return id
	}
	return id
}

func firstMedia(p *transport.Payload) (model.MessageKind, *transport.MediaPayload) {
	switch {
	case p.Image != nil:
		return model.KindImage, p.Image
	case p.Video != nil:
		return model.KindVideo, p.Video
	case p.Audio != nil:
		return model.KindAudio, p.Audio
	case p.Document != nil:
		return model.KindDocument, p.Document
	case p.Sticker != nil:
		return model.KindSticker, p.Sticker
	}
	return model.KindUnknown, nil
}

func viewOnceKind(inner *transport.Payload) (model.MessageKind, string) {
	switch {
	case inner.Image != nil:
		return model.KindImage, "foto"
	case inner.Video != nil:
		return model.KindVideo, "vídeo"
	case inner.Audio != nil:
		return model.KindAudio, "áudio"
	}
	return model.KindUnknown, "mídia"
}

// mediaText produces the display text for a media message: the caption when
// present, a generic label otherwise, and an unavailable placeholder when the
// bytes cannot be fetched. A failed download never fails the pipeline.
func (n *Normalizer) mediaText(ctx context.Context, kind model.MessageKind, media *transport.MediaPayload) string {
	label := mediaLabel(kind)

	if media.Ref != "" && n.media != nil {
		if _, err := n.media.Download(ctx, media.Ref); err != nil {
			log.Warn().
				Err(err).
				Str("kind", string(kind)).
				Msg("media download failed, substituting placeholder")
			return fmt.Sprintf("(%s indisponível)", label)
		}
	}

	if caption := strings.TrimSpace(media.Caption); caption != "" {
		return caption
	}
	return fmt.Sprintf("(%s)", label)
}

func mediaLabel(kind model.MessageKind) string {
	switch kind {
	case model.KindImage:
		return "imagem"
	case model.KindVideo:
		return "vídeo"
	case model.KindAudio:
		return "áudio"
	case model.KindDocument:
		return "documento"
	case model.KindSticker:
		return "figurinha"
	}
	return "mídia"
}

var textBearingKeys = []string{"text", "body", "caption", "title", "description", "name"}

// scanForText walks an unmodeled payload recursively looking for any known
// text-bearing field.
func scanForText(node any) string {
	switch v := node.(type) {
	case map[string]any:
		for _, key := range textBearingKeys {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		for _, child := range v {
			if found := scanForText(child); found != "" {
				return found
			}
		}
	case []any:
		for _, child := range v {
			if found := scanForText(child); found != "" {
				return found
			}
		}
	}
	return ""
}
