// Package credential keeps CRM OAuth tokens fresh.
package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leosozza/evowhats/internal/bitrix"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMargin        = 5 * time.Minute
	DefaultPeriod        = 5 * time.Minute
	DefaultWorkers       = 4
	DefaultFlightTimeout = 30 * time.Second
)

// Remote is the OAuth half of the CRM facade.
type Remote interface {
	ExchangeCode(ctx context.Context, portal, code string) (*bitrix.Token, error)
	RefreshToken(ctx context.Context, portal, refreshToken string) (*bitrix.Token, error)
}

type Config struct {
	Margin  time.Duration
	Period  time.Duration
	Workers int
	// FlightTimeout bounds one shared refresh independently of the callers
	// waiting on it.
	FlightTimeout time.Duration
}

// Status is what the admin surface shows for a portal connection.
type Status struct {
	HasCredential bool       `json:"has_credential"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ExpiringSoon  bool       `json:"expiring_soon"`
	CanRefresh    bool       `json:"can_refresh"`
}

// Report summarizes one RefreshAll pass.
type Report struct {
	Checked           int `json:"checked"`
	Refreshed         int `json:"refreshed"`
	Failed            int `json:"failed"`
	ReconnectRequired int `json:"reconnect_required"`
}

type Scheduler struct {
	repo   Repository
	remote Remote
	cfg    Config
	group  singleflight.Group
	now    func() time.Time

	mu      sync.Mutex
	sched   *cron.Cron
	entry   cron.EntryID
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(repo Repository, remote Remote, cfg Config) *Scheduler {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultMargin
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = DefaultFlightTimeout
	}
	return &Scheduler{repo: repo, remote: remote, cfg: cfg, now: time.Now}
}

func flightKey(subject, portal string) string {
	return subject + "|" + portal
}

// CheckAndRefresh refreshes the credential when it has no expiry or expires
// within the margin. A fresh credential is returned without remote contact.
func (s *Scheduler) CheckAndRefresh(ctx context.Context, subject, portal string) (*domain.CrmCredential, error) {
	cred, _, err := s.checkAndRefresh(ctx, subject, portal)
	return cred, err
}

func (s *Scheduler) checkAndRefresh(ctx context.Context, subject, portal string) (*domain.CrmCredential, bool, error) {
	cred, err := s.repo.GetActive(ctx, subject, portal)
	if err != nil {
		return nil, false, err
	}
	if cred == nil {
		return nil, false, domain.NewError(domain.KindNoCredential, "credential.CheckAndRefresh", "no active credential for "+portal)
	}
	if !cred.ExpiresWithin(s.now(), s.cfg.Margin) {
		return cred, false, nil
	}
	return s.refresh(ctx, subject, portal, false)
}

// Refresh exchanges the stored refresh token for a new pair unconditionally.
// Concurrent calls for the same subject+portal share one remote exchange.
func (s *Scheduler) Refresh(ctx context.Context, subject, portal string) (*domain.CrmCredential, error) {
	cred, _, err := s.refresh(ctx, subject, portal, true)
	return cred, err
}

type flightResult struct {
	cred      *domain.CrmCredential
	refreshed bool
}

// refresh runs the exchange detached from the caller that opened the flight,
// so a cancelled request does not fail the callers joined to it. Each caller
// still stops waiting when its own ctx is done.
func (s *Scheduler) refresh(ctx context.Context, subject, portal string, force bool) (*domain.CrmCredential, bool, error) {
	ch := s.group.DoChan(flightKey(subject, portal), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FlightTimeout)
		defer cancel()
		cred, err := s.repo.GetActive(ctx, subject, portal)
		if err != nil {
			return nil, err
		}
		if cred == nil {
			return nil, domain.NewError(domain.KindNoCredential, "credential.Refresh", "no active credential for "+portal)
		}
		// a previous flight may have already refreshed it
		if !force && !cred.ExpiresWithin(s.now(), s.cfg.Margin) {
			return flightResult{cred: cred}, nil
		}
		if strings.TrimSpace(cred.RefreshToken) == "" {
			return nil, domain.NewError(domain.KindMissingRefreshToken, "credential.Refresh", "reconnect required for "+portal)
		}
		tok, err := s.remote.RefreshToken(ctx, portal, cred.RefreshToken)
		if err != nil {
			return nil, err
		}
		refreshToken := tok.RefreshToken
		if refreshToken == "" {
			refreshToken = cred.RefreshToken
		}
		expiresAt := s.expiry(tok.ExpiresIn)
		if err := s.repo.UpdateTokens(ctx, cred.ID, tok.AccessToken, refreshToken, expiresAt); err != nil {
			return nil, err
		}
		cred.AccessToken = tok.AccessToken
		cred.RefreshToken = refreshToken
		cred.ExpiresAt = expiresAt
		zap.L().Info("credential: token refreshed",
			zap.String("subject", subject),
			zap.String("portal", portal),
			zap.Timep("expires_at", expiresAt))
		return flightResult{cred: cred, refreshed: true}, nil
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, false, domain.WrapError(domain.KindOf(ctx.Err()), "credential.Refresh", ctx.Err())
	}
	if r.Err != nil {
		return nil, false, r.Err
	}
	res := r.Val.(flightResult)
	cp := *res.cred
	return &cp, res.refreshed, nil
}

func (s *Scheduler) expiry(expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	at := s.now().Add(time.Duration(expiresIn) * time.Second)
	return &at
}

// Exchange trades an authorization code for tokens and activates them.
func (s *Scheduler) Exchange(ctx context.Context, subject, portal, code string) (*domain.CrmCredential, error) {
	tok, err := s.remote.ExchangeCode(ctx, portal, code)
	if err != nil {
		return nil, err
	}
	cred := &domain.CrmCredential{
		TenantID:     subject,
		PortalURL:    portal,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    s.expiry(tok.ExpiresIn),
	}
	if err := s.repo.Activate(ctx, cred); err != nil {
		return nil, err
	}
	zap.L().Info("credential: portal connected", zap.String("subject", subject), zap.String("portal", portal))
	return cred, nil
}

// AccessToken returns a token valid for at least the refresh margin.
func (s *Scheduler) AccessToken(ctx context.Context, subject, portal string) (string, error) {
	cred, err := s.CheckAndRefresh(ctx, subject, portal)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

func (s *Scheduler) Status(ctx context.Context, subject, portal string) (Status, error) {
	cred, err := s.repo.GetActive(ctx, subject, portal)
	if err != nil {
		return Status{}, err
	}
	if cred == nil {
		return Status{}, nil
	}
	return Status{
		HasCredential: true,
		ExpiresAt:     cred.ExpiresAt,
		ExpiringSoon:  cred.ExpiresWithin(s.now(), s.cfg.Margin),
		CanRefresh:    strings.TrimSpace(cred.RefreshToken) != "",
	}, nil
}

// RefreshAll checks every active credential, fanning out over a worker pool.
func (s *Scheduler) RefreshAll(ctx context.Context) (Report, error) {
	creds, err := s.repo.ListActive(ctx)
	if err != nil {
		return Report{}, err
	}
	pool, err := ants.NewPool(s.cfg.Workers)
	if err != nil {
		return Report{}, err
	}
	defer pool.Release()

	var refreshed, failed, reconnect int32
	var wg sync.WaitGroup
	for _, cred := range creds {
		cred := cred
		wg.Add(1)
		task := func() {
			defer wg.Done()
			_, did, err := s.checkAndRefresh(ctx, cred.TenantID, cred.PortalURL)
			switch {
			case err == nil:
				if did {
					atomic.AddInt32(&refreshed, 1)
				}
			case domain.IsKind(err, domain.KindMissingRefreshToken):
				atomic.AddInt32(&reconnect, 1)
				zap.L().Error("credential: reconnect required",
					zap.String("subject", cred.TenantID),
					zap.String("portal", cred.PortalURL))
			default:
				atomic.AddInt32(&failed, 1)
				zap.L().Warn("credential: refresh failed, retrying next tick",
					zap.String("subject", cred.TenantID),
					zap.String("portal", cred.PortalURL),
					zap.Error(err))
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			atomic.AddInt32(&failed, 1)
			zap.L().Warn("credential: submit refresh task", zap.Error(err))
		}
	}
	wg.Wait()
	return Report{
		Checked:           len(creds),
		Refreshed:         int(refreshed),
		Failed:            int(failed),
		ReconnectRequired: int(reconnect),
	}, nil
}

// Start registers the periodic refresh on sched and runs one pass right away.
// Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context, sched *cron.Cron) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	tick := func() {
		defer func() {
			if err := recover(); err != nil {
				zap.S().Error("credential: refresh tick panic: ", err)
			}
		}()
		if runCtx.Err() != nil {
			return
		}
		if _, err := s.RefreshAll(runCtx); err != nil {
			zap.L().Warn("credential: refresh pass failed", zap.Error(err))
		}
	}
	id, err := sched.AddFunc(fmt.Sprintf("@every %s", s.cfg.Period), tick)
	if err != nil {
		cancel()
		return err
	}
	s.sched, s.entry, s.cancel, s.running = sched, id, cancel, true
	go tick()
	return nil
}

// Stop removes the periodic entry and cancels any pass in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.sched.Remove(s.entry)
	s.cancel()
	s.running = false
}
