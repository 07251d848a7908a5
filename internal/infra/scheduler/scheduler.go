package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"course-subscription/internal/infra/metrics"
)

// Job is one periodic background pass. RunOnce returns how many items it handled.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) (int, error)
}

// Scheduler runs a Job every interval, each run bounded by timeout.
type Scheduler struct {
	interval time.Duration
	timeout  time.Duration
	job      Job
	log      *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler defaults interval to 1 minute and timeout to 30 seconds.
func NewScheduler(job Job, interval, timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "Scheduler").Str("job", job.Name()).Logger()
	return &Scheduler{interval: interval, timeout: timeout, job: job, log: &l}
}

// Start begins the loop in a background goroutine. Calling Start again while
// running has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.job.RunOnce(runCtx)
	if err != nil {
		metrics.IncJob(s.job.Name(), "error")
		s.log.Error().Err(err).Msg("job run failed")
		return
	}
	metrics.IncJob(s.job.Name(), "ok")
	if n > 0 {
		s.log.Info().Int("count", n).Msg("job run finished")
	}
}

// Stop cancels the loop and waits for it to finish. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
