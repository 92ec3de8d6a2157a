package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/config"
	"github.com/zapsub/bot-server-go/internal/repository"
)

// CleanupJob expires stale pending charges and purges old messages on a
// fixed ticker.
type CleanupJob struct {
	chargeRepo  repository.ChargeRepository
	messageRepo repository.MessageRepository
	interval    time.Duration
	done        chan struct{}
}

func NewCleanupJob(
	chargeRepo repository.ChargeRepository,
	messageRepo repository.MessageRepository,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		chargeRepo:  chargeRepo,
		messageRepo: messageRepo,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "stale pending charges", func(ctx context.Context) (int64, error) {
		return j.chargeRepo.ExpirePending(ctx, time.Now().Add(-config.ChargePendingTTL))
	})
	j.runCleanup(ctx, "old messages", func(ctx context.Context) (int64, error) {
		return j.messageRepo.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -config.MessageRetentionDays))
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
