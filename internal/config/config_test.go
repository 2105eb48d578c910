package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a Config that passes validation, for tests to break
// one field at a time.
func validConfig() Config {
	cfg := Defaults()
	cfg.Chain.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	return cfg
}

func TestDefaultsValidateWithContract(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with a contract address should validate, got: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "turbo" },
			wantMsg: "unknown mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantMsg: "unknown log_level",
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *Config) { c.Chain.RPCURL = "" },
			wantMsg: "rpc_url",
		},
		{
			name:    "missing contract",
			mutate:  func(c *Config) { c.Chain.ContractAddress = "" },
			wantMsg: "contract_address",
		},
		{
			name:    "bad chain id",
			mutate:  func(c *Config) { c.Chain.ChainID = 0 },
			wantMsg: "chain_id",
		},
		{
			name: "full mode requires ws url",
			mutate: func(c *Config) {
				c.Mode = "full"
				c.Chain.WSURL = ""
			},
			wantMsg: "ws_url",
		},
		{
			name:    "missing keystore dir",
			mutate:  func(c *Config) { c.Keystore.Dir = "" },
			wantMsg: "keystore",
		},
		{
			name: "import path without password",
			mutate: func(c *Config) {
				c.Keystore.ImportKeyPath = "key.json"
				c.Keystore.ImportKeyPassword = ""
			},
			wantMsg: "import_key_password",
		},
		{
			name: "postgres enabled without host",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.Postgres.Host = ""
			},
			wantMsg: "postgres: host",
		},
		{
			name: "pool min above max",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.Postgres.PoolMinConns = 20
			},
			wantMsg: "pool_min_conns",
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *Config) {
				c.Redis.Addr = ""
			},
			wantMsg: "redis: addr",
		},
		{
			name: "s3 without postgres",
			mutate: func(c *Config) {
				c.S3.Enabled = true
			},
			wantMsg: "requires postgres",
		},
		{
			name: "s3 retention must be positive",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.S3.Enabled = true
				c.S3.Retention = duration{}
			},
			wantMsg: "retention",
		},
		{
			name:    "refresh interval must be positive",
			mutate:  func(c *Config) { c.Market.RefreshInterval = duration{} },
			wantMsg: "refresh_interval",
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantMsg: "server: port",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Server.RateLimit = -1 },
			wantMsg: "rate_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateAccumulatesProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Chain.RPCURL = ""
	cfg.Keystore.Dir = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate returned nil, want combined error")
	}
	for _, want := range []string{"unknown mode", "rpc_url", "keystore"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q: %v", want, err)
		}
	}
}

func TestServerModeDoesNotRequireWS(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "server"
	cfg.Chain.WSURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("server mode without ws_url should validate, got: %v", err)
	}
}

func TestDurationText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText returned error: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("parsed %v, want 90s", d.Duration)
	}

	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText returned error: %v", err)
	}
	if string(out) != "1m30s" {
		t.Errorf("MarshalText = %q, want 1m30s", out)
	}

	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("UnmarshalText should reject non-duration text")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CARMARKET_CHAIN_RPC_URL", "https://rpc.example")
	t.Setenv("CARMARKET_CHAIN_CHAIN_ID", "11155111")
	t.Setenv("CARMARKET_REDIS_ENABLED", "false")
	t.Setenv("CARMARKET_SERVER_PORT", "9001")
	t.Setenv("CARMARKET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CARMARKET_MARKET_REFRESH_INTERVAL", "30s")
	t.Setenv("CARMARKET_S3_INTERVAL", "not-a-duration") // ignored

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Chain.RPCURL != "https://rpc.example" {
		t.Errorf("rpc url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Chain.ChainID != 11155111 {
		t.Errorf("chain id = %d", cfg.Chain.ChainID)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by env override")
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Market.RefreshInterval.Duration != 30*time.Second {
		t.Errorf("refresh interval = %v", cfg.Market.RefreshInterval.Duration)
	}
	if cfg.S3.Interval.Duration != 24*time.Hour {
		t.Errorf("unparseable duration should leave the default, got %v", cfg.S3.Interval.Duration)
	}
}
