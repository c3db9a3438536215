// Package poller drives pending video renders to a terminal state. Each
// watched job gets its own loop: an initial delay after submission, then a
// fixed polling interval, with a hard ceiling after which the job is forced
// to failed. Results are applied through epoch-guarded store updates, so a
// loop that outlives its job (the scene regenerated underneath it) lands as
// a no-op.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"storyreel/internal/gateway"
	"storyreel/internal/infra"
)

// TimeoutReason is recorded when the ceiling forces a job to failed.
const TimeoutReason = "timeout: render did not finish in time"

// Checker is the poll slice of the generation gateway.
type Checker interface {
	PollVideoRender(ctx context.Context, requestID string) (*gateway.VideoStatus, error)
}

// JobStore applies terminal poll results under the epoch guard.
type JobStore interface {
	CompleteVideoJob(ctx context.Context, sceneID string, epoch int, videoURL, thumbnailURL string) (bool, error)
	FailVideoJob(ctx context.Context, sceneID string, epoch int, reason string) (bool, error)
}

// Poller owns the watch loops. Concurrency is bounded by a weighted
// semaphore; Watch blocks while all slots are busy.
type Poller struct {
	checker Checker
	store   JobStore
	log     zerolog.Logger
	sem     *semaphore.Weighted
	wg      sync.WaitGroup

	initialDelay time.Duration
	interval     time.Duration
	ceiling      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a poller using the configured timing and concurrency bound.
func New(cfg *infra.Config, checker Checker, store JobStore, log zerolog.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	maxLoops := cfg.PollMaxLoops
	if maxLoops <= 0 {
		maxLoops = 1
	}
	return &Poller{
		checker:      checker,
		store:        store,
		log:          log.With().Str("component", "poller").Logger(),
		sem:          semaphore.NewWeighted(int64(maxLoops)),
		initialDelay: cfg.PollInitialDelay,
		interval:     cfg.PollInterval,
		ceiling:      cfg.PollCeiling,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Watch starts a poll loop for one submission. It blocks only while every
// concurrency slot is taken; the loop itself runs in the background.
func (p *Poller) Watch(sceneID string, epoch int, requestID string, submittedAt time.Time) error {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		p.run(sceneID, epoch, requestID, submittedAt)
	}()
	return nil
}

func (p *Poller) run(sceneID string, epoch int, requestID string, submittedAt time.Time) {
	log := p.log.With().
		Str("scene_id", sceneID).
		Int("epoch", epoch).
		Str("request_id", requestID).
		Logger()

	deadline := submittedAt.Add(p.ceiling)
	if !p.sleepUntil(submittedAt.Add(p.initialDelay)) {
		return
	}

	for {
		if time.Now().After(deadline) {
			applied, err := p.store.FailVideoJob(p.ctx, sceneID, epoch, TimeoutReason)
			if err != nil {
				log.Error().Err(err).Msg("recording poll timeout failed")
			} else if applied {
				log.Warn().Msg("video render timed out")
			}
			return
		}

		status, err := p.checker.PollVideoRender(p.ctx, requestID)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			// Transient vendor trouble: keep polling, the ceiling still
			// bounds the total wait.
			log.Warn().Err(err).Msg("poll attempt failed")
		} else if done := p.apply(log, sceneID, epoch, status); done {
			return
		}

		if !p.sleepUntil(time.Now().Add(p.interval)) {
			return
		}
	}
}

// apply pushes a terminal observation into the store. True means the loop is
// finished, whether or not the result was accepted.
func (p *Poller) apply(log zerolog.Logger, sceneID string, epoch int, status *gateway.VideoStatus) bool {
	switch status.State {
	case gateway.RenderCompleted:
		applied, err := p.store.CompleteVideoJob(p.ctx, sceneID, epoch, status.VideoURL, status.ThumbnailURL)
		if err != nil {
			log.Error().Err(err).Msg("recording completed render failed")
			return false
		}
		if !applied {
			log.Info().Msg("discarding stale completed render")
		} else {
			log.Info().Msg("video render completed")
		}
		return true
	case gateway.RenderFailed:
		applied, err := p.store.FailVideoJob(p.ctx, sceneID, epoch, status.Reason)
		if err != nil {
			log.Error().Err(err).Msg("recording failed render failed")
			return false
		}
		if !applied {
			log.Info().Msg("discarding stale failed render")
		} else {
			log.Warn().Str("reason", status.Reason).Msg("video render failed")
		}
		return true
	default:
		return false
	}
}

func (p *Poller) sleepUntil(t time.Time) bool {
	wait := time.Until(t)
	if wait <= 0 {
		return p.ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-p.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Progress estimates render progress from elapsed time, capped below 100;
// only a completed job reports 100.
func (p *Poller) Progress(submittedAt time.Time) int {
	if p.ceiling <= 0 {
		return 0
	}
	pct := int(time.Since(submittedAt) * 100 / p.ceiling)
	if pct < 0 {
		pct = 0
	}
	if pct > 95 {
		pct = 95
	}
	return pct
}

// Shutdown stops all loops and waits for them to exit. Jobs still pending
// stay pending; a restart re-adopts them from the store.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
