package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_AppliesDefaultsAndOverrides(t *testing.T) {
	path := writeTempConfig(t, `
network: testnet
dry_run_mode: true
risk_tolerance: low
scan_interval_hours: 2
`)

	conf, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if conf.Network != "testnet" {
		t.Errorf("expected network testnet, got %s", conf.Network)
	}
	if conf.MaxRebalancesPerDay != 10 {
		t.Errorf("expected default max_rebalances_per_day=10 to survive an unset field, got %d", conf.MaxRebalancesPerDay)
	}
	if conf.ScanInterval() != 2*time.Hour {
		t.Errorf("expected scan interval 2h, got %s", conf.ScanInterval())
	}
	if conf.NativeTokenSymbol != "ETH" {
		t.Errorf("expected default native_token_symbol ETH, got %s", conf.NativeTokenSymbol)
	}
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadConfig_InvalidNetworkFails(t *testing.T) {
	path := writeTempConfig(t, `
network: devnet
dry_run_mode: true
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for an unrecognized network")
	}
}

func TestLoadConfig_RequiresSigningKeyOutsideDryRun(t *testing.T) {
	path := writeTempConfig(t, `
network: mainnet
dry_run_mode: false
rpc_url: https://example.invalid
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error: encrypted_private_key must be set outside dry-run mode")
	}
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	path := writeTempConfig(t, `
network: mainnet
dry_run_mode: false
rpc_url: https://example.invalid
encrypted_private_key: CHANGEME
`)
	t.Setenv("OPTIMIZER_ENCRYPTED_PRIVATE_KEY", "0xdeadbeef")

	conf, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if conf.EncryptedKeyHex != "0xdeadbeef" {
		t.Errorf("expected env override to win over the YAML placeholder, got %s", conf.EncryptedKeyHex)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"bad risk tolerance", func(c *Config) { c.RiskTolerance = "extreme" }, true},
		{"zero scan interval", func(c *Config) { c.ScanIntervalHours = 0 }, true},
		{"concentration over 1", func(c *Config) { c.MaxConcentrationPct = 1.5 }, true},
		{"zero diversification target", func(c *Config) { c.DiversificationTarget = 0 }, true},
		{"premium pct out of range", func(c *Config) { c.PremiumRPCPercentage = 101 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			c.DryRunMode = true
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLimitsConfig_ProjectsSpendingFields(t *testing.T) {
	c := defaultConfig()
	lc := c.LimitsConfig()
	if got, _ := lc.MaxTransactionUSD.Float64(); got != c.MaxTransactionValueUSD {
		t.Errorf("expected MaxTransactionUSD to mirror MaxTransactionValueUSD, got %v want %v", got, c.MaxTransactionValueUSD)
	}
}
