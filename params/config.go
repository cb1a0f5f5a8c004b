package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Ledger struct {
	RPCURL    string `yaml:"rpc_url"`
	Contract  string `yaml:"contract"`
	FromBlock uint64 `yaml:"from_block"`
}

type Views struct {
	// DisplayTZ renders formattedTimestamp. Empty means the host's local zone.
	DisplayTZ string `yaml:"display_tz"`
	// CandleTZ defines hour boundaries for candles.
	CandleTZ   string `yaml:"candle_tz"`
	DebounceMs int    `yaml:"debounce_ms"`
}

type Server struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Storage struct {
	DataDir        string `yaml:"data_dir"`
	JournalEnabled bool   `yaml:"journal_enabled"`
}

type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

type Config struct {
	Ledger  Ledger  `yaml:"ledger"`
	Views   Views   `yaml:"views"`
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			RPCURL: "ws://127.0.0.1:8545",
		},
		Views: Views{
			CandleTZ:   "UTC",
			DebounceMs: 100,
		},
		Server: Server{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Storage: Storage{
			DataDir:        "./data",
			JournalEnabled: true,
		},
		Log: Log{Level: "info"},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()
	loadDotenv(envPath)
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML config on top of the defaults, then applies .env and
// environment overrides.
func LoadFile(path, envPath string) (Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config file: %w", err)
	}
	loadDotenv(envPath)
	cfg.applyEnv()
	return cfg, nil
}

func loadDotenv(envPath string) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}
}

func (c *Config) applyEnv() {
	c.Ledger.RPCURL = getEnv("LEDGER_RPC_URL", c.Ledger.RPCURL)
	c.Ledger.Contract = getEnv("LEDGER_CONTRACT", c.Ledger.Contract)
	if v := os.Getenv("LEDGER_FROM_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Ledger.FromBlock = n
		}
	}

	c.Views.DisplayTZ = getEnv("DISPLAY_TZ", c.Views.DisplayTZ)
	c.Views.CandleTZ = getEnv("CANDLE_TZ", c.Views.CandleTZ)
	if v := os.Getenv("VIEW_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Views.DebounceMs = ms
		}
	}

	c.Server.Addr = getEnv("API_ADDR", c.Server.Addr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)
	if v := os.Getenv("JOURNAL_ENABLED"); v != "" {
		c.Storage.JournalEnabled = v == "true"
	}

	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger rpc url is required")
	}
	if !common.IsHexAddress(c.Ledger.Contract) {
		return fmt.Errorf("ledger contract %q is not a hex address", c.Ledger.Contract)
	}
	if c.Views.DebounceMs < 0 {
		return fmt.Errorf("debounce must not be negative, got %dms", c.Views.DebounceMs)
	}
	if _, _, err := c.Views.Locations(); err != nil {
		return err
	}
	return nil
}

func (v Views) Debounce() time.Duration {
	return time.Duration(v.DebounceMs) * time.Millisecond
}

// Locations resolves the display and candle time zones.
func (v Views) Locations() (display, candles *time.Location, err error) {
	display = time.Local
	if v.DisplayTZ != "" {
		if display, err = time.LoadLocation(v.DisplayTZ); err != nil {
			return nil, nil, fmt.Errorf("invalid display tz %q: %w", v.DisplayTZ, err)
		}
	}
	candles = time.UTC
	if v.CandleTZ != "" {
		if candles, err = time.LoadLocation(v.CandleTZ); err != nil {
			return nil, nil, fmt.Errorf("invalid candle tz %q: %w", v.CandleTZ, err)
		}
	}
	return display, candles, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
