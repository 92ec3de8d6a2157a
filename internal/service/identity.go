package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/util"
)

// IdentityResolver maps opaque per-device sender ids to stable phone
// numbers. The cache lives for the process lifetime; unbounded growth is an
// accepted tradeoff at this fleet size.
type IdentityResolver struct {
	mu    sync.Mutex
	cache map[string]string
	convs repository.ConversationRepository
}

func NewIdentityResolver(convs repository.ConversationRepository) *IdentityResolver {
	return &IdentityResolver{
		cache: make(map[string]string),
		convs: convs,
	}
}

// ResolvePhone returns the phone number behind opaqueID. Well-formed numbers
// pass through; otherwise the cache and a display-name match against known
// conversations are consulted. When everything misses, the opaque id itself
// comes back: a documented lossy fallback, the coordinator will refuse to
// create a conversation for it.
func (r *IdentityResolver) ResolvePhone(ctx context.Context, opaqueID, displayName string) string {
	if phone, ok := util.ExtractPhone(opaqueID); ok {
		return phone
	}

	r.mu.Lock()
	cached, ok := r.cache[opaqueID]
	r.mu.Unlock()
	if ok {
		return cached
	}

	if displayName != "" {
		conv, err := r.convs.FindByName(ctx, displayName)
		if err != nil {
			log.Error().Err(err).Msg("identity: lookup by name failed")
		} else if conv != nil && util.IsValidPhone(conv.Phone) {
			// Heuristic match: two senders sharing a display name can be
			// misattributed here, so the resolution is logged loudly.
			log.Warn().
				Str("opaqueId", opaqueID).
				Str("resolvedPhone", util.MaskPhone(conv.Phone)).
				Str("via", "display_name").
				Msg("identity: resolved by display-name heuristic")

			r.mu.Lock()
			r.cache[opaqueID] = conv.Phone
			r.mu.Unlock()
			return conv.Phone
		}
	}

	return opaqueID
}
