package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/repository"
)

// Sweeper reclaims expired entries from a store that has no native TTL
// support. The Redis store expires keys on its own and needs none.
type Sweeper interface {
	Sweep() int
}

type CleanupJob struct {
	sweeper   Sweeper
	eventRepo repository.RoomEventRepository
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewCleanupJob(
	sweeper Sweeper,
	eventRepo repository.RoomEventRepository,
	retention time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sweeper:   sweeper,
		eventRepo: eventRepo,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
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

	if j.sweeper != nil {
		if count := j.sweeper.Sweep(); count > 0 {
			log.Info().Int("count", count).Msg("cleaned up expired rooms")
		}
	}

	if j.eventRepo != nil {
		cutoff := time.Now().Add(-j.retention)
		count, err := j.eventRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("failed to cleanup room events")
		} else if count > 0 {
			log.Info().Int64("count", count).Msg("cleaned up room events")
		}
	}
}
