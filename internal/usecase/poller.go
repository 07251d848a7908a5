package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"course-subscription/internal/domain/model"
	"course-subscription/internal/infra/metrics"
)

// StatusFunc reads the current gateway status of one order.
type StatusFunc func(ctx context.Context) (*model.StatusUpdate, error)

// TerminalFunc receives the first terminal status a poller observes.
type TerminalFunc func(ctx context.Context, u model.StatusUpdate)

// Poller watches one order code on a fixed interval until the gateway reports a
// terminal status, the ceiling elapses, or Stop is called. Reads never overlap.
// Read errors are logged and the loop keeps going.
type Poller struct {
	orderCode  int64
	interval   time.Duration
	ceiling    time.Duration
	fetch      StatusFunc
	onTerminal TerminalFunc
	log        *zerolog.Logger

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	terminal bool
	timedOut bool
	polls    int
}

func NewPoller(orderCode int64, interval, ceiling time.Duration, fetch StatusFunc, onTerminal TerminalFunc, logger *zerolog.Logger) *Poller {
	l := logger.With().Str("component", "Poller").Int64("order_code", orderCode).Logger()
	return &Poller{
		orderCode:  orderCode,
		interval:   interval,
		ceiling:    ceiling,
		fetch:      fetch,
		onTerminal: onTerminal,
		log:        &l,
		done:       make(chan struct{}),
	}
}

// Start launches the loop once; later calls are no-ops.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	metrics.PollerStarted()
	go p.loop(ctx)
}

// Stop releases the loop without waiting for it. Safe to call repeatedly and
// before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.started = true
		close(p.done)
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) IsTerminal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminal
}

// TimedOut reports that the ceiling stopped the loop while the order was pending.
func (p *Poller) TimedOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timedOut
}

// Running is true between Start and loop exit.
func (p *Poller) Running() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Poller) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	defer metrics.PollerStopped()

	deadline := time.NewTimer(p.ceiling)
	defer deadline.Stop()
	tick := time.NewTicker(p.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Msg("poller released")
			return
		case <-deadline.C:
			p.mu.Lock()
			p.timedOut = true
			p.mu.Unlock()
			metrics.IncSettlementPoll("timeout")
			p.log.Info().Dur("ceiling", p.ceiling).Msg("polling ceiling reached; order left pending")
			return
		case <-tick.C:
			if p.pollOnce(ctx) {
				return
			}
		}
	}
}

// pollOnce reports whether the loop should end.
func (p *Poller) pollOnce(ctx context.Context) bool {
	start := time.Now()
	u, err := p.fetch(ctx)
	metrics.ObservePollSeconds(time.Since(start).Seconds())

	p.mu.Lock()
	p.polls++
	p.mu.Unlock()

	// a settled answer is applied even when Stop raced the request
	settled := err == nil && u != nil && u.Status.IsTerminal()
	if !settled {
		if ctx.Err() != nil {
			return true
		}
		if err != nil {
			metrics.IncSettlementPoll("error")
			p.log.Warn().Err(err).Msg("status poll failed; will retry")
			return false
		}
		metrics.IncSettlementPoll("pending")
		return false
	}

	p.mu.Lock()
	p.terminal = true
	p.mu.Unlock()
	metrics.IncSettlementPoll("terminal")
	p.log.Info().Str("status", string(u.Status)).Msg("terminal status observed")
	if p.onTerminal != nil {
		p.onTerminal(ctx, *u)
	}
	return true
}
