package app

import (
	"context"
	"fmt"
	"time"

	"github.com/leosozza/evowhats/internal/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Background job names accepted by RunJobNow.
const (
	JobBindingSweep      = "binding_sweep"
	JobCredentialRefresh = "credential_refresh"
	JobTransportLogPrune = "transport_log_prune"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	if err := a.credentials.Start(a.ctx, a.sched); err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc(fmt.Sprintf("@every %s", a.appConfig.Binding.SweepInterval()), func() {
		a.SchedBindingSweepTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedClearExpireData()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedBindingSweepTask reconciles live bindings with the gateway
func (a *Application) SchedBindingSweepTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	report, err := a.bindings.Sweep(a.runContext())
	if err != nil {
		zap.L().Warn("binding: sweep failed", zap.Error(err))
		return
	}
	if report.Updated > 0 || report.Failed > 0 {
		zap.L().Info("binding: sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped))
	}
}

// SchedClearExpireData removes transport attempt rows past retention
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	n, err := a.attemptLog.Prune(a.runContext(), a.appConfig.Transport.LogRetentionDays)
	if err != nil {
		zap.L().Error("transport log prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("transport log pruned", zap.Int64("rows", n))
	}
}

func (a *Application) runContext() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// RunJobNow runs a background job synchronously and returns its report.
func (a *Application) RunJobNow(name string) (interface{}, error) {
	ctx := a.runContext()
	switch name {
	case JobBindingSweep:
		return a.bindings.Sweep(ctx)
	case JobCredentialRefresh:
		return a.credentials.RefreshAll(ctx)
	case JobTransportLogPrune:
		n, err := a.attemptLog.Prune(ctx, a.appConfig.Transport.LogRetentionDays)
		return map[string]int64{"deleted": n}, err
	default:
		return nil, domain.NewError(domain.KindNotFound, "app.RunJobNow", fmt.Sprintf("unknown job %q", name))
	}
}
