// Package binding ties a CRM open line to a gateway instance and tracks the
// instance's connection lifecycle.
package binding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/gateway"
	"github.com/leosozza/evowhats/internal/pairing"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Gateway is the part of the gateway facade the coordinator drives.
type Gateway interface {
	StartSessionForLine(ctx context.Context, lineID, instanceID string) (*gateway.Session, error)
	GetStatusForLine(ctx context.Context, lineID string) (*gateway.Status, error)
	GetQRForLine(ctx context.Context, lineID string) (*gateway.QR, error)
}

type Config struct {
	Pairing      pairing.Config
	SweepWorkers int
}

// Start outcomes.
const (
	OutcomeCodeReady = "code_ready"
	OutcomePending   = "pending"
)

// StartResult reports what Start observed before returning. Outcome is
// OutcomeCodeReady, OutcomePending (caller stopped waiting, loop continues)
// or the poll loop's terminal state.
type StartResult struct {
	Binding *domain.OpenLineBinding `json:"binding"`
	QRCode  string                  `json:"qr_code,omitempty"`
	Outcome string                  `json:"outcome"`
}

// SweepReport summarizes one Sweep pass.
type SweepReport struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type pairingRun struct {
	poller    *pairing.Poller
	done      <-chan struct{}
	codeReady chan struct{}
	codeOnce  sync.Once
	code      atomic.Value
}

func (r *pairingRun) deliver(code string) {
	r.codeOnce.Do(func() {
		r.code.Store(code)
		close(r.codeReady)
	})
}

func (r *pairingRun) qr() string {
	if v, ok := r.code.Load().(string); ok {
		return v
	}
	return ""
}

type Coordinator struct {
	repo Repository
	gw   Gateway
	bus  EventBus.Bus
	hub  *hub
	cfg  Config
	now  func() time.Time

	mu   sync.Mutex
	runs map[string]*pairingRun
}

func NewCoordinator(repo Repository, gw Gateway, bus EventBus.Bus, cfg Config) *Coordinator {
	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = 8
	}
	if bus == nil {
		bus = EventBus.New()
	}
	return &Coordinator{
		repo: repo,
		gw:   gw,
		bus:  bus,
		hub:  newHub(),
		cfg:  cfg,
		now:  time.Now,
		runs: make(map[string]*pairingRun),
	}
}

func lineKey(tenantID, lineID string) string {
	return tenantID + "|" + lineID
}

func validate(op, tenantID, lineID string) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(lineID) == "" {
		return domain.NewError(domain.KindInvalidInput, "binding."+op, "tenant and line are required")
	}
	return nil
}

func notFound(op, tenantID, lineID string) error {
	return domain.NewError(domain.KindNotFound, "binding."+op, fmt.Sprintf("no binding for line %s of tenant %s", lineID, tenantID))
}

// InstanceName builds the gateway instance id for a new binding.
func InstanceName(tenantID, lineID string, at time.Time) string {
	return fmt.Sprintf("evo_%s_%s_%d", tenantID, lineID, at.UnixMilli())
}

// Ensure returns the line's active binding, creating or reactivating it with
// a fresh instance id and status pending_qr when needed.
func (c *Coordinator) Ensure(ctx context.Context, tenantID, lineID string) (*domain.OpenLineBinding, error) {
	if err := validate("Ensure", tenantID, lineID); err != nil {
		return nil, err
	}
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil {
		return nil, err
	}
	if b != nil && b.IsActive {
		return b, nil
	}
	instance := InstanceName(tenantID, lineID, c.now())
	if b != nil {
		if err := c.repo.Reactivate(ctx, b.ID, instance, domain.StatusPendingQR); err != nil {
			return nil, err
		}
		zap.L().Info("binding: reactivated", zap.String("tenant", tenantID), zap.String("line", lineID), zap.String("instance", instance))
		return c.repo.Get(ctx, tenantID, lineID)
	}
	b = &domain.OpenLineBinding{
		TenantID:   tenantID,
		LineID:     lineID,
		InstanceID: instance,
		Status:     domain.StatusPendingQR,
		IsActive:   true,
	}
	if err := c.repo.Create(ctx, b); err != nil {
		// lost a race on the unique (tenant, line) index
		if existing, gerr := c.repo.Get(ctx, tenantID, lineID); gerr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	zap.L().Info("binding: created", zap.String("tenant", tenantID), zap.String("line", lineID), zap.String("instance", instance))
	return b, nil
}

// Start asks the gateway to start the line's session and runs the pairing
// loop in the background. It returns once a pairing code is available, the
// loop ends, or ctx is done, whichever comes first.
func (c *Coordinator) Start(ctx context.Context, tenantID, lineID string) (*StartResult, error) {
	if err := validate("Start", tenantID, lineID); err != nil {
		return nil, err
	}
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil {
		return nil, err
	}
	if b == nil || !b.IsActive {
		return nil, notFound("Start", tenantID, lineID)
	}
	if b.Status != domain.StatusPendingQR && b.Status != domain.StatusConnecting {
		if _, err := c.applyStatus(ctx, b, domain.StatusPendingQR, string(domain.StatusPendingQR), SourceStart); err != nil {
			return nil, err
		}
	}

	if _, err := c.gw.StartSessionForLine(ctx, lineID, b.InstanceID); err != nil {
		zap.L().Warn("binding: start session failed",
			zap.String("tenant", tenantID),
			zap.String("line", lineID),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return nil, err
	}
	if _, err := c.applyStatus(ctx, b, domain.StatusConnecting, string(domain.StatusConnecting), SourceStart); err != nil {
		return nil, err
	}

	run := c.pairingRun(tenantID, lineID)
	res := &StartResult{}
	select {
	case <-run.codeReady:
		res.Outcome = OutcomeCodeReady
		res.QRCode = run.qr()
	case <-run.done:
		res.Outcome = string(run.poller.Outcome().State)
		res.QRCode = run.qr()
	case <-ctx.Done():
		res.Outcome = OutcomePending
	}
	if res.Binding, err = c.repo.Get(context.WithoutCancel(ctx), tenantID, lineID); err != nil {
		return nil, err
	}
	return res, nil
}

// pairingRun returns the line's running loop, or starts one detached from any
// request context.
func (c *Coordinator) pairingRun(tenantID, lineID string) *pairingRun {
	key := lineKey(tenantID, lineID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if run, ok := c.runs[key]; ok && run.poller.State() == pairing.StateRunning {
		return run
	}
	run := &pairingRun{codeReady: make(chan struct{})}
	run.poller = pairing.NewPoller(c.fetcher(lineID), c.cfg.Pairing,
		pairing.WithName(key),
		pairing.OnCode(func(code string) {
			qr := c.storeCode(tenantID, lineID, code)
			run.deliver(qr)
		}),
		pairing.OnTick(func(s pairing.Snapshot) {
			if s.State == "" {
				return
			}
			if _, err := c.OnStatus(context.Background(), tenantID, lineID, s.State, SourcePoll); err != nil {
				zap.L().Warn("binding: apply polled status", zap.String("line", lineID), zap.Error(err))
			}
		}))
	run.done = run.poller.Start(context.Background())
	c.runs[key] = run
	go func() {
		<-run.done
		out := run.poller.Outcome()
		zap.L().Info("binding: pairing loop ended",
			zap.String("tenant", tenantID),
			zap.String("line", lineID),
			zap.String("outcome", string(out.State)),
			zap.Int("ticks", out.Ticks))
		c.mu.Lock()
		if c.runs[key] == run {
			delete(c.runs, key)
		}
		c.mu.Unlock()
	}()
	return run
}

func (c *Coordinator) fetcher(lineID string) pairing.Fetcher {
	return func(ctx context.Context, wantCode bool) (pairing.Snapshot, error) {
		if wantCode {
			qr, err := c.gw.GetQRForLine(ctx, lineID)
			if err != nil {
				return pairing.Snapshot{}, err
			}
			code := qr.Code
			if code == "" {
				code = qr.PairingCode
			}
			return pairing.Snapshot{Code: code, State: qr.State}, nil
		}
		st, err := c.gw.GetStatusForLine(ctx, lineID)
		if err != nil {
			return pairing.Snapshot{}, err
		}
		return pairing.Snapshot{State: st.State}, nil
	}
}

func (c *Coordinator) storeCode(tenantID, lineID, code string) string {
	qr, err := pairing.NormalizeQR(code)
	if err != nil {
		zap.L().Warn("binding: render pairing code", zap.String("line", lineID), zap.Error(err))
		qr = code
	}
	ctx := context.Background()
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil || b == nil {
		return qr
	}
	if err := c.repo.SetPairingCode(ctx, b.ID, qr); err != nil {
		zap.L().Warn("binding: store pairing code", zap.String("line", lineID), zap.Error(err))
	}
	return qr
}

// ApplyPairingCode stores a code pushed by the gateway and releases a Start
// call waiting on the line.
func (c *Coordinator) ApplyPairingCode(ctx context.Context, tenantID, lineID, code string) (*domain.OpenLineBinding, error) {
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, notFound("ApplyPairingCode", tenantID, lineID)
	}
	qr, err := pairing.NormalizeQR(code)
	if err != nil {
		return nil, domain.WrapError(domain.KindInvalidInput, "binding.ApplyPairingCode", err)
	}
	if err := c.repo.SetPairingCode(ctx, b.ID, qr); err != nil {
		return nil, err
	}
	b.PairingCode = qr
	c.mu.Lock()
	run := c.runs[lineKey(tenantID, lineID)]
	c.mu.Unlock()
	if run != nil && qr != "" {
		run.deliver(qr)
	}
	return b, nil
}

// OnStatus maps a remote state onto the canonical status, persists it with
// last_sync_at and publishes StatusChanged. Last write wins.
func (c *Coordinator) OnStatus(ctx context.Context, tenantID, lineID, remoteState, source string) (*domain.OpenLineBinding, error) {
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, notFound("OnStatus", tenantID, lineID)
	}
	return c.applyStatus(ctx, b, domain.ParseBindingStatus(remoteState), remoteState, source)
}

func (c *Coordinator) applyStatus(ctx context.Context, b *domain.OpenLineBinding, status domain.BindingStatus, remote, source string) (*domain.OpenLineBinding, error) {
	at := c.now()
	if err := c.repo.UpdateStatus(ctx, b.ID, status, at); err != nil {
		return nil, err
	}
	prev := b.Status
	b.Status = status
	b.LastSyncAt = &at
	if prev != status {
		zap.L().Info("binding: status changed",
			zap.String("tenant", b.TenantID),
			zap.String("line", b.LineID),
			zap.String("from", string(prev)),
			zap.String("to", string(status)),
			zap.String("source", source))
	}
	evt := StatusChanged{
		TenantID:   b.TenantID,
		LineID:     b.LineID,
		InstanceID: b.InstanceID,
		Previous:   prev,
		Status:     status,
		Remote:     remote,
		Source:     source,
		At:         at,
	}
	c.bus.Publish(TopicStatus, evt)
	// Subscribe handlers run after the bus has released its lock and may
	// call back into the coordinator.
	c.hub.dispatch(evt)
	return b, nil
}

// Bind points tenant+line at instanceID, creating the binding if needed.
func (c *Coordinator) Bind(ctx context.Context, tenantID, lineID, instanceID string) (*domain.OpenLineBinding, error) {
	if err := validate("Bind", tenantID, lineID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(instanceID) == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "binding.Bind", "instance is required")
	}
	b, err := c.repo.Upsert(ctx, tenantID, lineID, instanceID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("binding: bound", zap.String("tenant", tenantID), zap.String("line", lineID), zap.String("instance", instanceID))
	return b, nil
}

// Get returns the line's binding, active or not.
func (c *Coordinator) Get(ctx context.Context, tenantID, lineID string) (*domain.OpenLineBinding, error) {
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, notFound("Get", tenantID, lineID)
	}
	return b, nil
}

func (c *Coordinator) List(ctx context.Context, tenantID string) ([]*domain.OpenLineBinding, error) {
	return c.repo.List(ctx, tenantID)
}

// FindByInstance resolves the active binding served by a gateway instance.
func (c *Coordinator) FindByInstance(ctx context.Context, instanceID string) (*domain.OpenLineBinding, error) {
	b, err := c.repo.GetByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NewError(domain.KindNotFound, "binding.FindByInstance", "no active binding for instance "+instanceID)
	}
	return b, nil
}

// Deactivate stops any pairing loop and clears is_active. The row is kept.
func (c *Coordinator) Deactivate(ctx context.Context, tenantID, lineID string) error {
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil {
		return err
	}
	if b == nil {
		return notFound("Deactivate", tenantID, lineID)
	}
	c.StopPairing(tenantID, lineID)
	if err := c.repo.Deactivate(ctx, b.ID); err != nil {
		return err
	}
	zap.L().Info("binding: deactivated", zap.String("tenant", tenantID), zap.String("line", lineID))
	return nil
}

// StopPairing cancels the line's pairing loop. It reports whether one was
// running.
func (c *Coordinator) StopPairing(tenantID, lineID string) bool {
	c.mu.Lock()
	run := c.runs[lineKey(tenantID, lineID)]
	c.mu.Unlock()
	if run == nil || run.poller.State() != pairing.StateRunning {
		return false
	}
	run.poller.Stop()
	<-run.done
	return true
}

// Pairing reports the state of the line's current pairing loop.
func (c *Coordinator) Pairing(tenantID, lineID string) pairing.State {
	c.mu.Lock()
	run := c.runs[lineKey(tenantID, lineID)]
	c.mu.Unlock()
	if run == nil {
		return pairing.StateIdle
	}
	return run.poller.State()
}

// Touch records activity on the line without changing its status.
func (c *Coordinator) Touch(ctx context.Context, tenantID, lineID string, at time.Time) error {
	b, err := c.repo.Get(ctx, tenantID, lineID)
	if err != nil {
		return err
	}
	if b == nil {
		return notFound("Touch", tenantID, lineID)
	}
	if at.IsZero() {
		at = c.now()
	}
	return c.repo.Touch(ctx, b.ID, at)
}

// Subscribe registers handler for StatusChanged events.
func (c *Coordinator) Subscribe(handler func(evt StatusChanged)) *Subscription {
	return &Subscription{hub: c.hub, id: c.hub.add(handler)}
}

// Sweep reads the gateway status of every live binding without a pairing
// loop and applies it. It never starts sessions.
func (c *Coordinator) Sweep(ctx context.Context) (SweepReport, error) {
	live, err := c.repo.ListLive(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	pool, err := ants.NewPool(c.cfg.SweepWorkers)
	if err != nil {
		return SweepReport{}, err
	}
	defer pool.Release()

	var updated, failed, skipped int32
	var wg sync.WaitGroup
	for _, b := range live {
		if c.Pairing(b.TenantID, b.LineID) == pairing.StateRunning {
			skipped++
			continue
		}
		b := b
		wg.Add(1)
		task := func() {
			defer wg.Done()
			st, err := c.gw.GetStatusForLine(ctx, b.LineID)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				zap.L().Warn("binding: sweep status read failed", zap.String("line", b.LineID), zap.Error(err))
				return
			}
			if strings.TrimSpace(st.State) == "" {
				zap.L().Debug("binding: sweep got no state", zap.String("line", b.LineID))
				return
			}
			if _, err := c.applyStatus(ctx, b, domain.ParseBindingStatus(st.State), st.State, SourceSweep); err != nil {
				atomic.AddInt32(&failed, 1)
				zap.L().Warn("binding: sweep apply failed", zap.String("line", b.LineID), zap.Error(err))
				return
			}
			atomic.AddInt32(&updated, 1)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			atomic.AddInt32(&failed, 1)
		}
	}
	wg.Wait()
	return SweepReport{
		Checked: len(live),
		Updated: int(updated),
		Failed:  int(failed),
		Skipped: int(skipped),
	}, nil
}

// Close stops every pairing loop.
func (c *Coordinator) Close() {
	c.mu.Lock()
	runs := make([]*pairingRun, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()
	for _, r := range runs {
		r.poller.Stop()
		<-r.done
	}
}
