package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/config"
	apperrors "github.com/zapsub/bot-server-go/internal/errors"
	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/util"
)

type creation struct {
	done chan struct{}
	conv *model.Conversation
	err  error
}

// ConversationCoordinator guarantees at most one conversation row per phone
// under concurrent creation attempts. Concurrent callers for the same phone
// await a single in-flight creation; the lock lingers for a short grace
// period after completion so back-to-back bursts still serialize.
type ConversationCoordinator struct {
	mu       sync.Mutex
	inflight map[string]*creation
	repo     repository.ConversationRepository

	lockGrace  time.Duration
	retryDelay time.Duration
}

func NewConversationCoordinator(repo repository.ConversationRepository) *ConversationCoordinator {
	return &ConversationCoordinator{
		inflight:   make(map[string]*creation),
		repo:       repo,
		lockGrace:  config.CreationLockGrace,
		retryDelay: config.CreateRetryDelay,
	}
}

// GetOrCreate returns the conversation for phone, creating it when missing.
// Identifiers that are not valid phone numbers are rejected rather than
// turned into garbage rows, unless one of the alternates yields a valid
// number.
func (c *ConversationCoordinator) GetOrCreate(ctx context.Context, phone, name string, alternates ...string) (*model.Conversation, error) {
	normalized, ok := normalizePhone(phone, alternates)
	if !ok {
		return nil, apperrors.InvalidPhone(phone)
	}
	phone = normalized

	c.mu.Lock()
	if existing, ok := c.inflight[phone]; ok {
		c.mu.Unlock()
		select {
		case <-existing.done:
			return existing.conv, existing.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	entry := &creation{done: make(chan struct{})}
	c.inflight[phone] = entry
	c.mu.Unlock()

	entry.conv, entry.err = c.fetchOrCreate(ctx, phone, name)
	close(entry.done)

	time.AfterFunc(c.lockGrace, func() {
		c.mu.Lock()
		if c.inflight[phone] == entry {
			delete(c.inflight, phone)
		}
		c.mu.Unlock()
	})

	return entry.conv, entry.err
}

func (c *ConversationCoordinator) fetchOrCreate(ctx context.Context, phone, name string) (*model.Conversation, error) {
	conv, err := c.repo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	// A row created milliseconds ago may not be visible yet; look again
	// after a short delay before committing to an insert.
	select {
	case <-time.After(c.retryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conv, err = c.repo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("find conversation (retry): %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = c.repo.Create(ctx, model.CreateConversationParams{Phone: phone, Name: name})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			log.Debug().
				Str("phone", util.MaskPhone(phone)).
				Msg("conversation create raced, re-fetching")
			return c.repo.FindByPhone(ctx, phone)
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	log.Info().
		Str("phone", util.MaskPhone(phone)).
		Str("conversationId", conv.ID).
		Msg("conversation created")

	return conv, nil
}

func normalizePhone(phone string, alternates []string) (string, bool) {
	if util.IsValidPhone(phone) {
		return phone, true
	}
	if extracted, ok := util.ExtractPhone(phone); ok {
		return extracted, true
	}
	for _, alt := range alternates {
		if extracted, ok := util.ExtractPhone(alt); ok {
			return extracted, true
		}
	}
	return "", false
}
