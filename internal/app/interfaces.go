package app

import (
	"github.com/asaskevich/EventBus"
	"github.com/leosozza/evowhats/config"
	"github.com/leosozza/evowhats/internal/binding"
	"github.com/leosozza/evowhats/internal/bitrix"
	"github.com/leosozza/evowhats/internal/credential"
	"github.com/leosozza/evowhats/internal/gateway"
	"github.com/leosozza/evowhats/internal/transport"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// ServiceProvider exposes the connection-lifecycle services
type ServiceProvider interface {
	Bus() EventBus.Bus
	Gateway() *gateway.Client
	Crm() *bitrix.Client
	Credentials() *credential.Scheduler
	Bindings() *binding.Coordinator
	TransportStats() []transport.LatencySummary
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SchedulerProvider
	ServiceProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
	// RunJobNow runs a background job immediately by name
	RunJobNow(name string) (interface{}, error)
}
