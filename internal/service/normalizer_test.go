package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/transport"
)

type fakeFetcher struct {
	fail bool
}

func (f *fakeFetcher) Download(ctx context.Context, ref string) ([]byte, error) {
	if f.fail {
		return nil, fmt.Errorf("media gone")
	}
	return []byte("bytes"), nil
}

func rawWith(p transport.Payload) *transport.RawMessage {
	return &transport.RawMessage{
		ID:        "msg-1",
		ChatID:    "5511999990000@s.whatsapp.net",
		SenderID:  "5511999990000@s.whatsapp.net",
		PushName:  "Maria",
		Timestamp: 1750000000,
		Payload:   p,
	}
}

func TestNormalizeReaction(t *testing.T) {
	n := NewNormalizer(&fakeFetcher{})

	in := n.Normalize(context.Background(), rawWith(transport.Payload{
		Reaction: &transport.ReactionPayload{TargetID: "msg-0", Emoji: "👍"},
	}))

	require.NotNil(t, in)
	assert.Equal(t, ClassReaction, in.Class)
	assert.Equal(t, "msg-0", in.ReactionTarget)
	assert.Equal(t, "👍", in.ReactionEmoji)
}

func TestNormalizeProtocol(t *testing.T) {
	n := NewNormalizer(&fakeFetcher{})

	t.Run("edit", func(t *testing.T) {
		newText := "texto corrigido"
		in := n.Normalize(context.Background(), rawWith(transport.Payload{
			Protocol: &transport.ProtocolPayload{Type: "edit", TargetID: "msg-0", Edited: &newText},
		}))
		require.NotNil(t, in)
		assert.Equal(t, ClassEdit, in.Class)
		assert.Equal(t, "texto corrigido", in.EditText)
	})

	t.Run("edit without text is a delete", func(t *testing.T) {
		in := n.Normalize(context.Background(), rawWith(transport.Payload{
			Protocol: &transport.ProtocolPayload{Type: "edit", TargetID: "msg-0"},
		}))
		require.NotNil(t, in)
		assert.Equal(t, ClassDelete, in.Class)
	})

	t.Run("revoke", func(t *testing.T) {
		in := n.Normalize(context.Background(), rawWith(transport.Payload{
			Protocol: &transport.ProtocolPayload{Type: "revoke", TargetID: "msg-0"},
		}))
		require.NotNil(t, in)
		assert.Equal(t, ClassDelete, in.Class)
		assert.Equal(t, "msg-0", in.TargetID)
	})

	t.Run("sync is dropped", func(t *testing.T) {
		in := n.Normalize(context.Background(), rawWith(transport.Payload{
			Protocol: &transport.ProtocolPayload{Type: "sync"},
		}))
		assert.Nil(t, in)
	})
}

func TestNormalizeViewOnce(t *testing.T) {
	n := NewNormalizer(&fakeFetcher{})

	in := n.Normalize(context.Background(), rawWith(transport.Payload{
		ViewOnce: &transport.Payload{
			Image: &transport.MediaPayload{Ref: "media-ref"},
		},
	}))

	require.NotNil(t, in)
	assert.Equal(t, "(visualização única: foto)", in.Text)
	assert.Empty(t, in.MediaRef, "view-once content is never downloaded")
}

func TestNormalizeButtonReply(t *testing.T) {
	n := NewNormalizer(&fakeFetcher{})

	tests := []struct {
		id   string
		want string
	}{
		{"option_2", "2"},
		{"renovar", "2"},
		{"voltar", "0"},
		{"3", "3"},
		{"algo_estranho", "algo_estranho"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			in := n.Normalize(context.Background(), rawWith(transport.Payload{
				ButtonReply: &transport.ReplyPayload{SelectedID: tt.id},
			}))
			require.NotNil(t, in)
			assert.Equal(t, tt.want, in.Text)
		})
	}
}

func TestNormalizeMedia(t *testing.T) {
	t.Run("caption wins", func(t *testing.T) {
		n := NewNormalizer(&fakeFetcher{})
		in := n.Normalize(context.Background(), rawWith(transport.Payload{
			Image: &transport.MediaPayload{Ref: "media-ref", Caption: "olha isso"},
		}))
		require.NotNil(t, in)
		assert.Equal(t, model.KindImage, in.Kind)
		assert.Equal(t, "olha isso", in.Text)
		assert.Equal(t, "media-ref", in.MediaRef)
	})

	t.Run("no caption gets a label", func(t *testing.T) {
		n := NewNormalizer(&fakeFetcher{})
		in := n.Normalize(context.Background(), rawWith(transport.Payload{
			Audio: &transport.MediaPayload{Ref: "media-ref"},
		}))
		require.NotNil(t, in)
		assert.Equal(t, "(áudio)", in.Text)
	})

	t.Run("failed download degrades to placeholder", func(t *testing.T) {
		n := NewNormalizer(&fakeFetcher{fail: true})
		in := n.Normalize(context.Background(), rawWith(transport.Payload{
			Video: &transport.MediaPayload{Ref: "media-ref", Caption: "ignored"},
		}))
		require.NotNil(t, in)
		assert.Equal(t, "(vídeo indisponível)", in.Text)
	})
}

func TestNormalizeScansExtraForText(t *testing.T) {
	n := NewNormalizer(&fakeFetcher{})

	in := n.Normalize(context.Background(), rawWith(transport.Payload{
		Extra: map[string]any{
			"somethingNew": map[string]any{
				"nested": map[string]any{"caption": "achado"},
			},
		},
	}))

	require.NotNil(t, in)
	assert.Equal(t, "achado", in.Text)
}

func TestNormalizeUnsupportedPlaceholder(t *testing.T) {
	n := NewNormalizer(&fakeFetcher{})

	in := n.Normalize(context.Background(), rawWith(transport.Payload{}))

	require.NotNil(t, in)
	assert.Equal(t, model.KindUnknown, in.Kind)
	assert.Equal(t, "(mensagem não suportada)", in.Text)
}

func TestNormalizeDedupKey(t *testing.T) {
	n := NewNormalizer(&fakeFetcher{})

	in := n.Normalize(context.Background(), rawWith(transport.Payload{
		Text: &transport.TextPayload{Body: "oi"},
	}))

	require.NotNil(t, in)
	assert.Equal(t, "msg-1|5511999990000@s.whatsapp.net|false", in.DedupKey)
}
