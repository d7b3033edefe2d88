package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/config"
)

// CredentialPruner is the part of the credential repository the job needs.
type CredentialPruner interface {
	DeleteExpired(ctx context.Context, staleBefore time.Time) (int64, error)
}

type CleanupJob struct {
	credentials CredentialPruner
	interval    time.Duration
	staleAfter  time.Duration
	now         func() time.Time
	done        chan struct{}
}

func NewCleanupJob(credentials CredentialPruner, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		credentials: credentials,
		interval:    interval,
		staleAfter:  config.CredentialStaleAfter,
		now:         time.Now,
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
	ctx, cancel := context.WithTimeout(context.Background(), config.CleanupJobTimeout)
	defer cancel()

	staleBefore := j.now().Add(-j.staleAfter)
	j.runCleanup(ctx, "delegated credentials", func(ctx context.Context) (int64, error) {
		return j.credentials.DeleteExpired(ctx, staleBefore)
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
