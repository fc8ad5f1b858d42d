package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	NodeID   int64  `yaml:"node_id" json:"node_id"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WebConfig admin and webhook HTTP server. A non-empty JWTSecret turns on
// bearer token auth for the admin API.
type WebConfig struct {
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	WebhookSecret string `yaml:"webhook_secret" json:"webhook_secret"`
	JWTSecret     string `yaml:"jwt_secret" json:"jwt_secret"`
}

// DBConfig database settings, postgres in production and sqlite for local runs
type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// LogConfig logger settings
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// GatewayConfig messaging gateway (Evolution API connector) endpoint
type GatewayConfig struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	ActionPath string `yaml:"action_path" json:"action_path"`
	TimeoutMs  int    `yaml:"timeout_ms" json:"timeout_ms"`
}

// CrmConfig Bitrix24 line, connector and OAuth endpoints. Paths are relative
// to the gateway base URL, all calls go through the same transport.
type CrmConfig struct {
	LinesPath         string `yaml:"lines_path" json:"lines_path"`
	ConnectorPath     string `yaml:"connector_path" json:"connector_path"`
	OAuthExchangePath string `yaml:"oauth_exchange_path" json:"oauth_exchange_path"`
	OAuthRefreshPath  string `yaml:"oauth_refresh_path" json:"oauth_refresh_path"`
	ClientID          string `yaml:"client_id" json:"client_id"`
	ClientSecret      string `yaml:"client_secret" json:"client_secret"`
	TimeoutMs         int    `yaml:"timeout_ms" json:"timeout_ms"`
}

// TransportConfig retry policy shared by every outbound call
type TransportConfig struct {
	Retries          int `yaml:"retries" json:"retries"`
	BackoffMs        int `yaml:"backoff_ms" json:"backoff_ms"`
	TimeoutMs        int `yaml:"timeout_ms" json:"timeout_ms"`
	LogRetentionDays int `yaml:"log_retention_days" json:"log_retention_days"`
}

// PairingConfig pairing-code poll loop
type PairingConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	PollTimeoutMs  int `yaml:"poll_timeout_ms" json:"poll_timeout_ms"`
}

// CredentialConfig OAuth token freshness scheduler
type CredentialConfig struct {
	RefreshMarginMs int `yaml:"refresh_margin_ms" json:"refresh_margin_ms"`
	RefreshPeriodMs int `yaml:"refresh_period_ms" json:"refresh_period_ms"`
	Workers         int `yaml:"workers" json:"workers"`
}

// BindingConfig background status sweep of active bindings
type BindingConfig struct {
	SweepIntervalMs int `yaml:"sweep_interval_ms" json:"sweep_interval_ms"`
	SweepWorkers    int `yaml:"sweep_workers" json:"sweep_workers"`
}

type AppConfig struct {
	System     SysConfig        `yaml:"system" json:"system"`
	Web        WebConfig        `yaml:"web" json:"web"`
	Database   DBConfig         `yaml:"database" json:"database"`
	Logger     LogConfig        `yaml:"logger" json:"logger"`
	Gateway    GatewayConfig    `yaml:"gateway" json:"gateway"`
	Crm        CrmConfig        `yaml:"crm" json:"crm"`
	Transport  TransportConfig  `yaml:"transport" json:"transport"`
	Pairing    PairingConfig    `yaml:"pairing" json:"pairing"`
	Credential CredentialConfig `yaml:"credential" json:"credential"`
	Binding    BindingConfig    `yaml:"binding" json:"binding"`
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

// InitDirs creates the working directories
func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(c.GetLogDir(), 0o755)
	_ = os.MkdirAll(c.GetDataDir(), 0o755)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (c TransportConfig) Backoff() time.Duration { return ms(c.BackoffMs) }
func (c TransportConfig) Timeout() time.Duration { return ms(c.TimeoutMs) }
func (c GatewayConfig) Timeout() time.Duration   { return ms(c.TimeoutMs) }
func (c CrmConfig) Timeout() time.Duration       { return ms(c.TimeoutMs) }
func (c PairingConfig) Interval() time.Duration  { return ms(c.PollIntervalMs) }
func (c PairingConfig) Timeout() time.Duration   { return ms(c.PollTimeoutMs) }
func (c CredentialConfig) Margin() time.Duration { return ms(c.RefreshMarginMs) }
func (c CredentialConfig) Period() time.Duration { return ms(c.RefreshPeriodMs) }
func (c BindingConfig) SweepInterval() time.Duration {
	return ms(c.SweepIntervalMs)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "EvoWhats",
		Location: "America/Sao_Paulo",
		Workdir:  "/var/evowhats",
		NodeID:   1,
		Debug:    false,
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 8080,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "evowhats",
		User:     "postgres",
		Passwd:   "myroot",
		MaxConn:  20,
		IdleConn: 5,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/evowhats/logs/evowhats.log",
	},
	Gateway: GatewayConfig{
		ActionPath: "evolution-connector",
		TimeoutMs:  15000,
	},
	Crm: CrmConfig{
		LinesPath:         "bitrix-openlines",
		ConnectorPath:     "bitrix-connector",
		OAuthExchangePath: "bitrix-oauth-exchange",
		OAuthRefreshPath:  "bitrix-token-refresh",
		TimeoutMs:         15000,
	},
	Transport: TransportConfig{
		Retries:          2,
		BackoffMs:        500,
		TimeoutMs:        15000,
		LogRetentionDays: 7,
	},
	Pairing: PairingConfig{
		PollIntervalMs: 1500,
		PollTimeoutMs:  120000,
	},
	Credential: CredentialConfig{
		RefreshMarginMs: 300000,
		RefreshPeriodMs: 300000,
		Workers:         4,
	},
	Binding: BindingConfig{
		SweepIntervalMs: 60000,
		SweepWorkers:    8,
	},
}

// Default returns a copy of DefaultAppConfig
func Default() *AppConfig {
	cfg := *DefaultAppConfig
	return &cfg
}

// LoadConfig reads the YAML file at cfile on top of the defaults, then applies
// EVOWHATS_* environment overrides. An empty path loads defaults only.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := Default()
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfile, err)
		}
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults restores defaults for numeric settings a partial file zeroed out.
func (c *AppConfig) fillDefaults() {
	d := DefaultAppConfig
	if c.Gateway.ActionPath == "" {
		c.Gateway.ActionPath = d.Gateway.ActionPath
	}
	if c.Gateway.TimeoutMs <= 0 {
		c.Gateway.TimeoutMs = d.Gateway.TimeoutMs
	}
	if c.Crm.LinesPath == "" {
		c.Crm.LinesPath = d.Crm.LinesPath
	}
	if c.Crm.ConnectorPath == "" {
		c.Crm.ConnectorPath = d.Crm.ConnectorPath
	}
	if c.Crm.OAuthExchangePath == "" {
		c.Crm.OAuthExchangePath = d.Crm.OAuthExchangePath
	}
	if c.Crm.OAuthRefreshPath == "" {
		c.Crm.OAuthRefreshPath = d.Crm.OAuthRefreshPath
	}
	if c.Crm.TimeoutMs <= 0 {
		c.Crm.TimeoutMs = d.Crm.TimeoutMs
	}
	if c.Transport.BackoffMs <= 0 {
		c.Transport.BackoffMs = d.Transport.BackoffMs
	}
	if c.Transport.TimeoutMs <= 0 {
		c.Transport.TimeoutMs = d.Transport.TimeoutMs
	}
	if c.Transport.LogRetentionDays <= 0 {
		c.Transport.LogRetentionDays = d.Transport.LogRetentionDays
	}
	if c.Pairing.PollIntervalMs <= 0 {
		c.Pairing.PollIntervalMs = d.Pairing.PollIntervalMs
	}
	if c.Pairing.PollTimeoutMs <= 0 {
		c.Pairing.PollTimeoutMs = d.Pairing.PollTimeoutMs
	}
	if c.Credential.RefreshMarginMs <= 0 {
		c.Credential.RefreshMarginMs = d.Credential.RefreshMarginMs
	}
	if c.Credential.RefreshPeriodMs <= 0 {
		c.Credential.RefreshPeriodMs = d.Credential.RefreshPeriodMs
	}
	if c.Credential.Workers <= 0 {
		c.Credential.Workers = d.Credential.Workers
	}
	if c.Binding.SweepIntervalMs <= 0 {
		c.Binding.SweepIntervalMs = d.Binding.SweepIntervalMs
	}
	if c.Binding.SweepWorkers <= 0 {
		c.Binding.SweepWorkers = d.Binding.SweepWorkers
	}
}

func setEnvString(name string, val *string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*val = strings.TrimSpace(v)
	}
}

func setEnvInt(name string, val *int) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		if i, err := cast.ToIntE(strings.TrimSpace(v)); err == nil {
			*val = i
		}
	}
}

func setEnvBool(name string, val *bool) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		if b, err := cast.ToBoolE(strings.TrimSpace(v)); err == nil {
			*val = b
		}
	}
}

func (c *AppConfig) applyEnv() {
	setEnvString("EVOWHATS_SYSTEM_WORKDIR", &c.System.Workdir)
	setEnvString("EVOWHATS_SYSTEM_LOCATION", &c.System.Location)
	setEnvBool("EVOWHATS_SYSTEM_DEBUG", &c.System.Debug)
	if v, ok := os.LookupEnv("EVOWHATS_SYSTEM_NODE_ID"); ok {
		if id, err := cast.ToInt64E(strings.TrimSpace(v)); err == nil {
			c.System.NodeID = id
		}
	}

	setEnvString("EVOWHATS_WEB_HOST", &c.Web.Host)
	setEnvInt("EVOWHATS_WEB_PORT", &c.Web.Port)
	setEnvString("EVOWHATS_WEBHOOK_SECRET", &c.Web.WebhookSecret)
	setEnvString("EVOWHATS_WEB_JWT_SECRET", &c.Web.JWTSecret)

	setEnvString("EVOWHATS_DB_TYPE", &c.Database.Type)
	setEnvString("EVOWHATS_DB_HOST", &c.Database.Host)
	setEnvInt("EVOWHATS_DB_PORT", &c.Database.Port)
	setEnvString("EVOWHATS_DB_NAME", &c.Database.Name)
	setEnvString("EVOWHATS_DB_USER", &c.Database.User)
	setEnvString("EVOWHATS_DB_PWD", &c.Database.Passwd)
	setEnvBool("EVOWHATS_DB_DEBUG", &c.Database.Debug)

	setEnvString("EVOWHATS_LOGGER_MODE", &c.Logger.Mode)
	setEnvBool("EVOWHATS_LOGGER_FILE_ENABLE", &c.Logger.FileEnable)

	setEnvString("EVOWHATS_GATEWAY_BASE_URL", &c.Gateway.BaseURL)
	setEnvString("EVOWHATS_GATEWAY_API_KEY", &c.Gateway.APIKey)

	setEnvString("EVOWHATS_CRM_CLIENT_ID", &c.Crm.ClientID)
	setEnvString("EVOWHATS_CRM_CLIENT_SECRET", &c.Crm.ClientSecret)

	setEnvInt("EVOWHATS_TRANSPORT_RETRIES", &c.Transport.Retries)
	setEnvInt("EVOWHATS_TRANSPORT_BACKOFF_MS", &c.Transport.BackoffMs)
	setEnvInt("EVOWHATS_TRANSPORT_TIMEOUT_MS", &c.Transport.TimeoutMs)

	setEnvInt("EVOWHATS_POLL_INTERVAL_MS", &c.Pairing.PollIntervalMs)
	setEnvInt("EVOWHATS_POLL_TIMEOUT_MS", &c.Pairing.PollTimeoutMs)

	setEnvInt("EVOWHATS_REFRESH_MARGIN_MS", &c.Credential.RefreshMarginMs)
	setEnvInt("EVOWHATS_REFRESH_PERIOD_MS", &c.Credential.RefreshPeriodMs)
}

// Validate checks the settings the core cannot run without.
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Database.Type) {
	case "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("config: unsupported database type %q", c.Database.Type)
	}
	if c.Transport.Retries < 0 {
		return fmt.Errorf("config: transport.retries must be >= 0")
	}
	if c.System.NodeID < 0 || c.System.NodeID > 1023 {
		return fmt.Errorf("config: system.node_id %d out of range 0-1023", c.System.NodeID)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("config: web.port %d out of range", c.Web.Port)
	}
	return nil
}
