package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.Retries != 2 || cfg.Transport.Backoff() != 500*time.Millisecond {
		t.Fatalf("transport = %+v", cfg.Transport)
	}
	if cfg.Pairing.Interval() != 1500*time.Millisecond || cfg.Pairing.Timeout() != 2*time.Minute {
		t.Fatalf("pairing = %+v", cfg.Pairing)
	}
	if cfg.Credential.Margin() != 5*time.Minute || cfg.Credential.Period() != 5*time.Minute {
		t.Fatalf("credential = %+v", cfg.Credential)
	}
	if cfg.Gateway.ActionPath != "evolution-connector" || cfg.Crm.OAuthRefreshPath != "bitrix-token-refresh" {
		t.Fatalf("paths = %+v %+v", cfg.Gateway, cfg.Crm)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "evowhats.yml")
	yml := `
system:
  workdir: ` + dir + `
database:
  type: sqlite
gateway:
  base_url: https://functions.example.com
transport:
  retries: 4
pairing:
  poll_interval_ms: 1000
`
	if err := os.WriteFile(file, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EVOWHATS_TRANSPORT_RETRIES", "1")
	t.Setenv("EVOWHATS_GATEWAY_API_KEY", "secret")
	t.Setenv("EVOWHATS_WEB_PORT", "not-a-number")

	cfg, err := LoadConfig(file)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.Retries != 1 {
		t.Fatalf("env should override file, retries = %d", cfg.Transport.Retries)
	}
	if cfg.Gateway.APIKey != "secret" || cfg.Gateway.BaseURL != "https://functions.example.com" {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Pairing.PollIntervalMs != 1000 || cfg.Pairing.PollTimeoutMs != 120000 {
		t.Fatalf("pairing = %+v", cfg.Pairing)
	}
	if cfg.Web.Port != 8080 {
		t.Fatalf("bad env value should be ignored, port = %d", cfg.Web.Port)
	}
	if cfg.GetLogDir() != filepath.Join(dir, "logs") {
		t.Fatalf("log dir = %s", cfg.GetLogDir())
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Type = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("mysql should be rejected")
	}
	cfg = Default()
	cfg.Transport.Retries = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative retries should be rejected")
	}
}
