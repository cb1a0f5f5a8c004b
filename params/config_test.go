package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"LEDGER_RPC_URL", "LEDGER_CONTRACT", "LEDGER_FROM_BLOCK", "DISPLAY_TZ",
		"CANDLE_TZ", "VIEW_DEBOUNCE_MS", "API_ADDR", "CORS_ORIGINS", "DATA_DIR",
		"LOG_FILE", "LOG_LEVEL", "JOURNAL_ENABLED",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_CONTRACT", testContract)
	t.Setenv("LEDGER_FROM_BLOCK", "42")
	t.Setenv("VIEW_DEBOUNCE_MS", "250")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("JOURNAL_ENABLED", "false")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Ledger.Contract != testContract || cfg.Ledger.FromBlock != 42 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Views.Debounce() != 250*time.Millisecond {
		t.Errorf("debounce = %s", cfg.Views.Debounce())
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Errorf("cors = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Storage.JournalEnabled {
		t.Error("journal should be disabled")
	}
	if cfg.Views.CandleTZ != "UTC" {
		t.Errorf("candle tz default = %q", cfg.Views.CandleTZ)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_EnvWins(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
ledger:
  rpc_url: ws://node:8546
  contract: ` + testContract + `
  from_block: 7
views:
  display_tz: Asia/Kolkata
server:
  addr: ":9000"
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_ADDR", ":9100")

	cfg, err := LoadFile(path, filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Ledger.RPCURL != "ws://node:8546" || cfg.Ledger.FromBlock != 7 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Server.Addr != ":9100" {
		t.Errorf("addr = %q, env should win", cfg.Server.Addr)
	}
	if cfg.Views.DebounceMs != 100 {
		t.Errorf("debounce default lost: %d", cfg.Views.DebounceMs)
	}

	display, candles, err := cfg.Views.Locations()
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	if display.String() != "Asia/Kolkata" || candles != time.UTC {
		t.Errorf("locations = %s, %s", display, candles)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"no contract", func(c *Config) { c.Ledger.Contract = "" }},
		{"bad contract", func(c *Config) { c.Ledger.Contract = "0x12" }},
		{"no rpc", func(c *Config) { c.Ledger.RPCURL = "" }},
		{"negative debounce", func(c *Config) { c.Views.DebounceMs = -1 }},
		{"bad tz", func(c *Config) { c.Views.CandleTZ = "Mars/Olympus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Ledger.Contract = testContract
			tc.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
