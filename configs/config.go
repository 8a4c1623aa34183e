// Package configs loads and validates the optimizer's YAML configuration,
// covering every recognized option of spec.md §6. Grounded on the
// teacher's configs/config.go (os.ReadFile + yaml.v3.Unmarshal, flat YAML
// tags), generalized from the Blackhole DEX's single-strategy shape into
// the full option set this system recognizes.
package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/onchain-yield/optimizer/pkg/limits"
)

// Config is the entire configuration structure loaded from config.yml,
// optionally overridden by environment variables (see applyEnvOverrides).
type Config struct {
	Network    string `yaml:"network"`
	DryRunMode bool   `yaml:"dry_run_mode"`
	ReadOnly   bool   `yaml:"read_only"`
	RPCURL     string `yaml:"rpc_url"`

	ScanIntervalHours   float64 `yaml:"scan_interval_hours"`
	MaxRebalancesPerDay int     `yaml:"max_rebalances_per_day"`
	MaxGasPerDayUSD     float64 `yaml:"max_gas_per_day_usd"`

	MinAPYImprovement  float64 `yaml:"min_apy_improvement"`
	MinRebalanceAmount float64 `yaml:"min_rebalance_amount"`

	MinAnnualGainUSD float64 `yaml:"min_annual_gain_usd"`
	MaxBreakEvenDays int64   `yaml:"max_break_even_days"`
	MaxCostPct       float64 `yaml:"max_cost_pct"`

	RiskTolerance         string         `yaml:"risk_tolerance"` // low/medium/high
	AllowHighRisk         bool           `yaml:"allow_high_risk"`
	MaxConcentrationPct   float64        `yaml:"max_concentration_pct"`
	DiversificationTarget int            `yaml:"diversification_target"`
	ProtocolRiskScores    map[string]int `yaml:"protocol_risk_scores"`

	MaxTransactionValueUSD float64 `yaml:"max_transaction_value_usd"`
	DailySpendingLimitUSD  float64 `yaml:"daily_spending_limit_usd"`
	ApprovalThresholdUSD   float64 `yaml:"approval_threshold_usd"`

	PremiumRPCEnabled    bool `yaml:"premium_rpc_enabled"`
	PremiumRPCPercentage int  `yaml:"premium_rpc_percentage"`
	RPCFailureThreshold  int  `yaml:"rpc_failure_threshold"`
	RPCRecoveryTimeoutS  int  `yaml:"rpc_recovery_timeout"`

	ProviderRateLimits map[string]int `yaml:"provider_rate_limits"` // keyed "<provider>_rate_limit_per_second"

	SupportedProtocols []string `yaml:"supported_protocols"`

	NativeTokenSymbol string             `yaml:"native_token_symbol"`
	NativeTokenPrices map[string]float64 `yaml:"native_token_prices_usd"`

	DBDSN           string `yaml:"db_dsn"`
	AuditLogPath    string `yaml:"audit_log_path"`
	SentryDSN       string `yaml:"sentry_dsn"`
	MetricsAddr     string `yaml:"metrics_addr"`
	EncryptedKeyHex string `yaml:"encrypted_private_key"`
}

// ScanInterval returns ScanIntervalHours as a time.Duration.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalHours * float64(time.Hour))
}

// RPCRecoveryTimeout returns RPCRecoveryTimeoutS as a time.Duration.
func (c Config) RPCRecoveryTimeout() time.Duration {
	return time.Duration(c.RPCRecoveryTimeoutS) * time.Second
}

// LimitsConfig projects the spending-limit fields into pkg/limits.Config.
func (c Config) LimitsConfig() limits.Config {
	return limits.Config{
		MaxTransactionUSD:    decimal.NewFromFloat(c.MaxTransactionValueUSD),
		DailyLimitUSD:        decimal.NewFromFloat(c.DailySpendingLimitUSD),
		ApprovalThresholdUSD: decimal.NewFromFloat(c.ApprovalThresholdUSD),
	}
}

var validEnvironments = map[string]bool{"mainnet": true, "testnet": true, "local": true}
var validRiskTolerances = map[string]bool{"low": true, "medium": true, "high": true}

// Validate enforces spec.md §6: "Invalid config must fail at start, never
// at first use" — spending-limit hierarchy, environment enum, positivity
// of numeric fields, non-placeholder secrets.
func (c Config) Validate() error {
	if !validEnvironments[c.Network] {
		return fmt.Errorf("configs: network must be one of mainnet/testnet/local, got %q", c.Network)
	}
	if !validRiskTolerances[c.RiskTolerance] {
		return fmt.Errorf("configs: risk_tolerance must be one of low/medium/high, got %q", c.RiskTolerance)
	}
	if c.ScanIntervalHours <= 0 {
		return fmt.Errorf("configs: scan_interval_hours must be positive")
	}
	if c.MaxRebalancesPerDay <= 0 {
		return fmt.Errorf("configs: max_rebalances_per_day must be positive")
	}
	if c.MaxGasPerDayUSD <= 0 {
		return fmt.Errorf("configs: max_gas_per_day_usd must be positive")
	}
	if c.MaxConcentrationPct <= 0 || c.MaxConcentrationPct > 1 {
		return fmt.Errorf("configs: max_concentration_pct must be in (0, 1]")
	}
	if c.DiversificationTarget <= 0 {
		return fmt.Errorf("configs: diversification_target must be positive")
	}
	if c.PremiumRPCPercentage < 0 || c.PremiumRPCPercentage > 100 {
		return fmt.Errorf("configs: premium_rpc_percentage must be in [0, 100]")
	}
	if c.RPCFailureThreshold <= 0 {
		return fmt.Errorf("configs: rpc_failure_threshold must be positive")
	}
	if c.RPCRecoveryTimeoutS <= 0 {
		return fmt.Errorf("configs: rpc_recovery_timeout must be positive")
	}
	if err := c.LimitsConfig().Validate(); err != nil {
		return fmt.Errorf("configs: %w", err)
	}
	if !c.DryRunMode {
		if c.EncryptedKeyHex == "" || c.EncryptedKeyHex == "CHANGEME" {
			return fmt.Errorf("configs: encrypted_private_key must be set when dry_run_mode is false")
		}
		if c.RPCURL == "" {
			return fmt.Errorf("configs: rpc_url must be set when dry_run_mode is false")
		}
	}
	return nil
}

// LoadConfig reads path, parses YAML over a set of spec.md §6 defaults,
// applies environment overrides for secrets that should never live in a
// committed file, and validates the result. It returns an error rather
// than a partially-valid Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("configs: parse config YAML: %w", err)
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// defaultConfig mirrors spec.md §6's stated defaults (10/30/1%, 3/300s
// breaker, 0.4/3 concentration/diversification) so a minimal YAML file
// only needs to override what it cares about.
func defaultConfig() Config {
	return Config{
		Network:                "mainnet",
		NativeTokenSymbol:      "ETH",
		ScanIntervalHours:      1,
		MaxRebalancesPerDay:    10,
		MaxGasPerDayUSD:        50,
		MinAnnualGainUSD:       10,
		MaxBreakEvenDays:       30,
		MaxCostPct:             0.01,
		RiskTolerance:          "medium",
		MaxConcentrationPct:    0.4,
		DiversificationTarget:  3,
		PremiumRPCPercentage:   0,
		RPCFailureThreshold:    3,
		RPCRecoveryTimeoutS:    300,
		MaxTransactionValueUSD: 10_000,
		DailySpendingLimitUSD:  50_000,
		ApprovalThresholdUSD:   5_000,
	}
}

// applyEnvOverrides lets deployment secrets (encrypted key, DSNs, Sentry
// DSN) come from the environment instead of the YAML file, matching the
// teacher's pattern of keeping credentials out of configs/config.yml.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("OPTIMIZER_ENCRYPTED_PRIVATE_KEY"); v != "" {
		c.EncryptedKeyHex = v
	}
	if v := os.Getenv("OPTIMIZER_RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("OPTIMIZER_DB_DSN"); v != "" {
		c.DBDSN = v
	}
	if v := os.Getenv("OPTIMIZER_SENTRY_DSN"); v != "" {
		c.SentryDSN = v
	}
}
