package app

import (
	"context"
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/leosozza/evowhats/config"
	"github.com/leosozza/evowhats/internal/binding"
	"github.com/leosozza/evowhats/internal/bitrix"
	"github.com/leosozza/evowhats/internal/credential"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/gateway"
	"github.com/leosozza/evowhats/internal/pairing"
	"github.com/leosozza/evowhats/internal/transport"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig   *config.AppConfig
	gormDB      *gorm.DB
	sched       *cron.Cron
	bus         EventBus.Bus
	node        *snowflake.Node
	ctx         context.Context
	cancel      context.CancelFunc
	stats       *transport.StatsObserver
	attemptLog  *TransportLogObserver
	transport   *transport.Client
	gateway     *gateway.Client
	crm         *bitrix.Client
	credentials *credential.Scheduler
	bindings    *binding.Coordinator
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ ServiceProvider   = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Init(cfg *config.AppConfig) {
	a.appConfig = cfg
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	zap.ReplaceGlobals(buildLogger(cfg.Logger))

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	cfg.InitDirs()
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	if err := a.InitServices(); err != nil {
		zap.S().Fatalf("service initialization failed: %v", err)
	}

	a.initJob()
}

func buildLogger(cfg config.LogConfig) *zap.Logger {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	if !cfg.FileEnable {
		logger, err := zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
		return logger
	}

	lumberJackLogger := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   false,
	}
	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(lumberJackLogger),
			zapConfig.Level,
		),
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			zapConfig.Level,
		),
	)
	return zap.New(core, zap.AddCaller())
}

// InitServices builds the transport, facades, credential scheduler and binding
// coordinator on top of the current database handle.
func (a *Application) InitServices() error {
	cfg := a.appConfig
	node, err := snowflake.NewNode(cfg.System.NodeID)
	if err != nil {
		return errors.Wrap(err, "snowflake node")
	}
	a.node = node
	a.bus = EventBus.New()
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.stats = transport.NewStatsObserver(200)
	a.attemptLog, err = NewTransportLogObserver(a.gormDB, node, 2)
	if err != nil {
		return errors.Wrap(err, "transport log pool")
	}
	a.transport = transport.New(transport.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Retries: cfg.Transport.Retries,
		Backoff: cfg.Transport.Backoff(),
		Timeout: cfg.Transport.Timeout(),
	}, transport.WithObserver(transport.MultiObserver{transport.LogObserver{}, a.stats, a.attemptLog}))

	a.gateway = gateway.New(a.transport, gateway.Config{
		ActionPath: cfg.Gateway.ActionPath,
		Timeout:    cfg.Gateway.Timeout(),
	})
	oauth := bitrix.New(a.transport, bitrix.Config{
		LinesPath:         cfg.Crm.LinesPath,
		ConnectorPath:     cfg.Crm.ConnectorPath,
		OAuthExchangePath: cfg.Crm.OAuthExchangePath,
		OAuthRefreshPath:  cfg.Crm.OAuthRefreshPath,
		ClientID:          cfg.Crm.ClientID,
		ClientSecret:      cfg.Crm.ClientSecret,
		Timeout:           cfg.Crm.Timeout(),
	})
	a.credentials = credential.NewScheduler(credential.NewGormRepository(a.gormDB, node), oauth, credential.Config{
		Margin:  cfg.Credential.Margin(),
		Period:  cfg.Credential.Period(),
		Workers: cfg.Credential.Workers,
	})
	a.crm = oauth.WithTokens(a.credentials)

	a.bindings = binding.NewCoordinator(binding.NewGormRepository(a.gormDB, node), a.gateway, a.bus, binding.Config{
		Pairing: pairing.Config{
			Interval: cfg.Pairing.Interval(),
			Timeout:  cfg.Pairing.Timeout(),
		},
		SweepWorkers: cfg.Binding.SweepWorkers,
	})
	if err := a.bus.SubscribeAsync(binding.TopicStatus, logStatusEvent, false); err != nil {
		return errors.Wrap(err, "subscribe status log")
	}
	return nil
}

func logStatusEvent(evt binding.StatusChanged) {
	zap.L().Debug("binding: status event",
		zap.String("tenant", evt.TenantID),
		zap.String("line", evt.LineID),
		zap.String("status", string(evt.Status)),
		zap.String("source", evt.Source))
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	if err := db.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
		return err
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

func (a *Application) Gateway() *gateway.Client {
	return a.gateway
}

func (a *Application) Crm() *bitrix.Client {
	return a.crm
}

func (a *Application) Credentials() *credential.Scheduler {
	return a.credentials
}

func (a *Application) Bindings() *binding.Coordinator {
	return a.bindings
}

// TransportStats returns per-path latency digests of recent outbound calls.
func (a *Application) TransportStats() []transport.LatencySummary {
	if a.stats == nil {
		return nil
	}
	return a.stats.Summary()
}

// Release releases application resources
func (a *Application) Release() {
	if a.credentials != nil {
		a.credentials.Stop()
	}
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.bus != nil {
		_ = a.bus.Unsubscribe(binding.TopicStatus, logStatusEvent)
		a.bus.WaitAsync()
	}
	if a.bindings != nil {
		a.bindings.Close()
	}
	if a.attemptLog != nil {
		a.attemptLog.Close()
	}
	_ = zap.L().Sync()
}
