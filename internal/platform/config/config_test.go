package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const validConfig = `
chain:
  chain_id: 8453
  name: base
  rpc_endpoints:
    - url: https://mainnet.base.org
      weight: 1
  automation_address: "0x1111111111111111111111111111111111111111"
  quoter_address: "0x2222222222222222222222222222222222222222"
  wrapped_native: "0x4200000000000000000000000000000000000006"
  l1_gas_oracle_address: "0x420000000000000000000000000000000000000F"
fees:
  reinvest_fee:
    "500": 0.001
    "3000": 0.002
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Fees.ZapFee != 0.003 {
		t.Errorf("expected default zap fee 0.003, got %f", cfg.Fees.ZapFee)
	}
	if cfg.Chain.GasSafetyMultiplier != 1.25 {
		t.Errorf("expected default gas multiplier 1.25, got %f", cfg.Chain.GasSafetyMultiplier)
	}
	if !cfg.Solvers.SamePool.Enabled {
		t.Error("same-pool solver must be enabled by default")
	}
	if cfg.Solvers.OneInch.Enabled {
		t.Error("aggregator solvers must be disabled by default")
	}
	if cfg.Solvers.OneInch.RateLimit.MinCallInterval != time.Second {
		t.Errorf("expected 1s default call interval, got %v", cfg.Solvers.OneInch.RateLimit.MinCallInterval)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Observability.Metrics.Port != 9091 {
		t.Errorf("expected default metrics port 9091, got %d", cfg.Observability.Metrics.Port)
	}
}

func TestLoadParsesAddresses(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	want := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if cfg.Chain.AutomationContract() != want {
		t.Errorf("expected automation %s, got %s", want.Hex(), cfg.Chain.AutomationContract().Hex())
	}
	if !cfg.Chain.HasL1GasOracle() {
		t.Error("expected L1 gas oracle to be configured")
	}
	if cfg.Chain.L1GasOracle() != common.HexToAddress("0x420000000000000000000000000000000000000F") {
		t.Errorf("unexpected L1 oracle address %s", cfg.Chain.L1GasOracle().Hex())
	}
}

func TestLoadParsesReinvestFeeTiers(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	tiers := cfg.Fees.ReinvestFeeRatios()
	if tiers[500] != 0.001 {
		t.Errorf("expected tier 500 ratio 0.001, got %f", tiers[500])
	}
	if tiers[3000] != 0.002 {
		t.Errorf("expected tier 3000 ratio 0.002, got %f", tiers[3000])
	}
}

func validTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func TestParseRejectsBadAddress(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Chain.AutomationAddress = "not-an-address"

	err := cfg.parse()
	if err == nil || !strings.Contains(err.Error(), "automation_address") {
		t.Errorf("expected automation_address error, got %v", err)
	}
}

func TestParseRejectsBadReinvestTier(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Fees.ReinvestFee = map[string]float64{"tight": 0.001}

	err := cfg.parse()
	if err == nil || !strings.Contains(err.Error(), "reinvest fee tier") {
		t.Errorf("expected reinvest fee tier error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zap fee out of range",
			mutate:  func(c *Config) { c.Fees.ZapFee = 1.5 },
			wantErr: "zap_fee",
		},
		{
			name:    "gas multiplier below one",
			mutate:  func(c *Config) { c.Chain.GasSafetyMultiplier = 0.5 },
			wantErr: "gas safety multiplier",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Observability.Logging.Level = "loud" },
			wantErr: "log level",
		},
		{
			name:    "negative flat fee",
			mutate:  func(c *Config) { c.Fees.RebalanceFlatUSD = -1 },
			wantErr: "rebalance_flat_usd",
		},
		{
			name:    "redis enabled without address",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" },
			wantErr: "redis address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadRequiresRPCEndpoints(t *testing.T) {
	body := strings.Replace(validConfig,
		"  rpc_endpoints:\n    - url: https://mainnet.base.org\n      weight: 1\n", "", 1)

	_, err := Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "RPC endpoint") {
		t.Errorf("expected RPC endpoint error, got %v", err)
	}
}
