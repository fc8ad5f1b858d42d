// Package pairing polls a gateway instance until it reports a connected
// state, delivering the first pairing code it sees along the way.
package pairing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leosozza/evowhats/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 1500 * time.Millisecond
	DefaultTimeout  = 120000 * time.Millisecond
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaired    State = "paired"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
	StateError     State = "error"
)

// Terminal reports whether the loop has finished.
func (s State) Terminal() bool {
	return s != StateIdle && s != StateRunning
}

// Snapshot is one fetch result.
type Snapshot struct {
	Code  string
	State string
}

// Fetcher reads the instance state. wantCode is true until a pairing code has
// been delivered.
type Fetcher func(ctx context.Context, wantCode bool) (Snapshot, error)

var connectedStates = map[string]struct{}{
	"connected": {},
	"open":      {},
	"ready":     {},
	"online":    {},
}

// IsConnected matches the terminal-connected set, case-insensitively.
func IsConnected(state string) bool {
	_, ok := connectedStates[strings.ToLower(strings.TrimSpace(state))]
	return ok
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Outcome is the result of a finished run.
type Outcome struct {
	State State
	Code  string
	Ticks int
	Err   error
}

type Poller struct {
	fetch  Fetcher
	cfg    Config
	name   string
	onCode func(code string)
	onTick func(s Snapshot)

	mu      sync.Mutex
	state   State
	code    string
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

type Option func(*Poller)

// OnCode is called once per run with the first non-empty pairing code.
func OnCode(fn func(code string)) Option {
	return func(p *Poller) { p.onCode = fn }
}

// OnTick receives every successful snapshot.
func OnTick(fn func(s Snapshot)) Option {
	return func(p *Poller) { p.onTick = fn }
}

// WithName labels log lines.
func WithName(name string) Option {
	return func(p *Poller) { p.name = name }
}

func NewPoller(fetch Fetcher, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &Poller{fetch: fetch, cfg: cfg, state: StateIdle}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the loop under ctx and returns a channel closed when it
// ends. While a run is in flight, Start returns that run's channel.
func (p *Poller) Start(ctx context.Context) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		return p.done
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.state = StateRunning
	p.code = ""
	p.outcome = Outcome{}
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx, p.done)
	return p.done
}

// Run starts the loop and blocks until it ends.
func (p *Poller) Run(ctx context.Context) Outcome {
	<-p.Start(ctx)
	return p.Outcome()
}

// Stop cancels a running loop. It is a no-op when idle or finished.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	running := p.state == StateRunning
	p.mu.Unlock()
	if running && cancel != nil {
		cancel()
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Code returns the pairing code recorded by the current or last run.
func (p *Poller) Code() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *Poller) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if p.fetch == nil {
		p.finish(Outcome{State: StateError, Err: domain.NewError(domain.KindInvalidInput, "pairing", "no fetcher configured")})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ticks := 0
	delivered := false
	for {
		if err := ctx.Err(); err != nil {
			p.finish(p.stopped(err, ticks))
			return
		}
		ticks++
		snap, err := p.safeFetch(ctx, !delivered)
		if err != nil {
			if ctx.Err() == nil {
				zap.L().Warn("pairing: fetch failed", zap.String("name", p.name), zap.Int("tick", ticks), zap.Error(err))
			}
		} else {
			p.tick(snap)
			if !delivered && snap.Code != "" {
				delivered = true
				p.mu.Lock()
				p.code = snap.Code
				p.mu.Unlock()
				p.deliver(snap.Code)
			}
			if IsConnected(snap.State) {
				p.finish(Outcome{State: StatePaired, Ticks: ticks})
				return
			}
		}
		if err := sleep(ctx, p.cfg.Interval); err != nil {
			p.finish(p.stopped(err, ticks))
			return
		}
	}
}

func (p *Poller) stopped(err error, ticks int) Outcome {
	if err == context.DeadlineExceeded {
		return Outcome{State: StateTimedOut, Ticks: ticks, Err: domain.NewError(domain.KindTimedOut, "pairing", "no connection within "+p.cfg.Timeout.String())}
	}
	return Outcome{State: StateCancelled, Ticks: ticks, Err: domain.NewError(domain.KindCancelled, "pairing", "stopped")}
}

func (p *Poller) finish(o Outcome) {
	p.mu.Lock()
	o.Code = p.code
	p.outcome = o
	p.state = o.State
	p.mu.Unlock()
	zap.L().Debug("pairing: loop finished", zap.String("name", p.name), zap.String("state", string(o.State)), zap.Int("ticks", o.Ticks))
}

func (p *Poller) safeFetch(ctx context.Context, wantCode bool) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.KindTransportFailure, "pairing.fetch", "fetcher panic")
			zap.L().Error("pairing: fetcher panic", zap.Any("panic", r))
		}
	}()
	return p.fetch(ctx, wantCode)
}

func (p *Poller) tick(s Snapshot) {
	if p.onTick == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pairing: tick hook panic", zap.Any("panic", r))
		}
	}()
	p.onTick(s)
}

func (p *Poller) deliver(code string) {
	if p.onCode == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pairing: code hook panic", zap.Any("panic", r))
		}
	}()
	p.onCode(code)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
