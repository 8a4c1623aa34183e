// Command optimizer wires together the full rebalancing pipeline: decrypt
// the signing key, load and validate configuration, dial RPC endpoints,
// and run the Scheduled Optimizer until interrupted. Grounded on the
// teacher's cmd/main.go wiring style (env reads after godotenv.Load, Decrypt,
// LoadConfig, ethclient.Dial, TxListener construction), generalized from
// one DEX's strategy loop into the full component graph this spec
// describes.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/onchain-yield/optimizer/configs"
	"github.com/onchain-yield/optimizer/internal/rpc"
	"github.com/onchain-yield/optimizer/pkg/adapter"
	"github.com/onchain-yield/optimizer/pkg/audit"
	"github.com/onchain-yield/optimizer/pkg/executor"
	"github.com/onchain-yield/optimizer/pkg/gateway"
	"github.com/onchain-yield/optimizer/pkg/limits"
	"github.com/onchain-yield/optimizer/pkg/metrics"
	"github.com/onchain-yield/optimizer/pkg/profitability"
	"github.com/onchain-yield/optimizer/pkg/risk"
	"github.com/onchain-yield/optimizer/pkg/scanner"
	"github.com/onchain-yield/optimizer/pkg/scheduler"
	"github.com/onchain-yield/optimizer/pkg/store"
	"github.com/onchain-yield/optimizer/pkg/strategy"
	"github.com/onchain-yield/optimizer/pkg/txlistener"
	"github.com/onchain-yield/optimizer/pkg/types"
	"github.com/onchain-yield/optimizer/pkg/util"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	logger := log.Logger

	conf, err := configs.LoadConfig(configPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("optimizer: failed to load config")
	}

	key, err := loadSigningKey(conf)
	if err != nil {
		logger.Fatal().Err(err).Msg("optimizer: failed to load signing key")
	}
	logger.Info().Bool("signing_key_loaded", key != nil).Msg("optimizer: startup")

	if conf.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: conf.SentryDSN}); err != nil {
			logger.Warn().Err(err).Msg("optimizer: sentry init failed, continuing without it")
		}
		defer sentry.Flush(2 * time.Second)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)
	if conf.MetricsAddr != "" {
		go serveMetrics(conf.MetricsAddr, reg, logger)
	}

	auditLog := buildAuditSink(conf, logger)

	dispatcher, listener, err := buildChainLayer(conf, auditLog, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("optimizer: failed to build chain layer")
	}
	gasSource := &gateway.GasPriceOracle{
		Gateway:      gateway.NewEVMGateway(dispatcher, listener),
		Prices:       gateway.NewStaticPriceSource(conf.NativeTokenPrices),
		NativeSymbol: conf.NativeTokenSymbol,
	}

	// Concrete protocol adapters (pool addresses, ABIs) are deployment-
	// specific wiring outside this generic entrypoint's scope; the
	// registry starts empty and is populated by whatever deployment
	// configuration registers its adapters before Start is called.
	registry := adapter.NewRegistry()
	if conf.DryRunMode {
		wrapDryRun(registry, logger)
	}
	yieldScanner := scanner.New(registry)

	profitCalc := profitability.New(profitabilityThresholds(conf), gasSource)
	riskAssessor := risk.New(riskThresholds(conf))

	limitsConfig := conf.LimitsConfig()
	if err := limitsConfig.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("optimizer: invalid spending limit hierarchy")
	}
	limitsEnforcer := limits.New(limitsConfig, nil)

	execStrategy := buildStrategy(conf, profitCalc, riskAssessor)

	positionStore, err := store.NewGormPositionStore(conf.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("optimizer: failed to open position store")
	}

	rebalanceExecutor := executor.New(registry, gasSource, limitsEnforcer, auditLog, logger, conf.DryRunMode || conf.ReadOnly)

	sched := scheduler.New(
		positionStore,
		&strategy.Orchestrator{
			Scanner:  yieldScanner,
			Strategy: execStrategy,
			MinAPY:   conf.MinAPYImprovement,
		},
		rebalanceExecutor,
		auditLog,
		logger,
		m,
		conf.ScanInterval(),
		scheduler.DailyCaps{
			MaxRebalancesPerDay: conf.MaxRebalancesPerDay,
			MaxGasPerDayUSD:     decimal.NewFromFloat(conf.MaxGasPerDayUSD),
		},
		conf.ReadOnly,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go runUsageSummaryLoop(ctx, dispatcher, logger)

	sched.Start(ctx)
	logger.Info().Msg("optimizer: scheduler started")

	<-ctx.Done()
	logger.Info().Msg("optimizer: shutdown signal received, stopping scheduler")
	sched.Stop()
}

func configPath() string {
	if p := os.Getenv("OPTIMIZER_CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yml"
}

// loadSigningKey decrypts the signing key via pkg/util.Decrypt, matching
// the teacher's ENC_PK/KEY environment variable pair. A dry-run-only
// deployment never touches a real key, so an absent ENC_PK is tolerated
// when dry_run_mode is set.
func loadSigningKey(conf *configs.Config) (*ecdsa.PrivateKey, error) {
	encrypted := os.Getenv("ENC_PK")
	passphrase := os.Getenv("KEY")
	if encrypted == "" || passphrase == "" {
		if conf.DryRunMode {
			return nil, nil
		}
		return nil, fmt.Errorf("ENC_PK and KEY must be set when dry_run_mode is false")
	}

	plaintext, err := util.Decrypt([]byte(passphrase), encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt signing key: %w", err)
	}
	key, err := crypto.HexToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// buildChainLayer dials the configured network once for the txlistener/
// adapters (direct client, matching the teacher's cmd/main.go) and wraps
// the same RPC URL as a single-endpoint dispatcher for the Chain Gateway
// abstraction (multi-endpoint failover is config-driven via
// provider_rate_limits in a fuller deployment).
func buildChainLayer(conf *configs.Config, auditLog audit.Sink, m *metrics.Registry, logger zerolog.Logger) (*rpc.Dispatcher, *txlistener.TxListener, error) {
	if conf.RPCURL == "" {
		return rpc.NewDispatcher(conf.Network, nil, 0, rpc.NewUsageTracker(nil), auditLog, logger, m), nil, nil
	}

	client, err := ethclient.Dial(conf.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	listener := txlistener.NewTxListener(client, txlistener.WithPollInterval(3*time.Second), txlistener.WithTimeout(5*time.Minute))

	endpoint := rpc.NewEndpoint("primary", conf.RPCURL, types.PriorityPublic, 0, 0, conf.RPCFailureThreshold, conf.RPCRecoveryTimeout())
	usage := rpc.NewUsageTracker(nil)
	dispatcher := rpc.NewDispatcher(conf.Network, []*rpc.Endpoint{endpoint}, conf.PremiumRPCPercentage, usage, auditLog, logger, m)
	return dispatcher, listener, nil
}

// runUsageSummaryLoop periodically emits an rpc_usage_summary audit event
// until ctx is cancelled, matching original_source's periodic
// monitor_rpc_usage.py pattern.
func runUsageSummaryLoop(ctx context.Context, dispatcher *rpc.Dispatcher, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dispatcher.LogUsageSummary(now)
		}
	}
}

func buildAuditSink(conf *configs.Config, logger zerolog.Logger) audit.Sink {
	var sinks []audit.Sink
	if conf.AuditLogPath != "" {
		if fileSink, err := audit.NewFileSink(conf.AuditLogPath, logger); err == nil {
			sinks = append(sinks, fileSink)
		} else {
			logger.Warn().Err(err).Msg("optimizer: failed to open audit file sink")
		}
	}
	if conf.DBDSN != "" {
		if dbSink, err := audit.NewDBSink(conf.DBDSN, logger); err == nil {
			sinks = append(sinks, dbSink)
		} else {
			logger.Warn().Err(err).Msg("optimizer: failed to open audit db sink")
		}
	}
	if conf.SentryDSN != "" {
		sinks = append(sinks, audit.NewSentrySink(1, logger))
	}
	return audit.NewMultiSink(sinks...)
}

func profitabilityThresholds(conf *configs.Config) profitability.Thresholds {
	t := profitability.DefaultThresholds()
	if conf.MinAnnualGainUSD > 0 {
		t.MinAnnualGainUSD = decimal.NewFromFloat(conf.MinAnnualGainUSD)
	}
	if conf.MaxBreakEvenDays > 0 {
		t.MaxBreakEvenDays = int(conf.MaxBreakEvenDays)
	}
	if conf.MaxCostPct > 0 {
		t.MaxCostPct = decimal.NewFromFloat(conf.MaxCostPct)
	}
	return t
}

func riskThresholds(conf *configs.Config) risk.Thresholds {
	t := risk.DefaultThresholds()
	if conf.MaxConcentrationPct > 0 {
		t.MaxConcentrationPct = decimal.NewFromFloat(conf.MaxConcentrationPct)
	}
	if conf.DiversificationTarget > 0 {
		t.DiversificationTarget = conf.DiversificationTarget
	}
	if len(conf.ProtocolRiskScores) > 0 {
		t.ProtocolRiskScores = conf.ProtocolRiskScores
	}
	return t
}

func buildStrategy(conf *configs.Config, profitCalc *profitability.Calculator, riskAssessor *risk.Assessor) strategy.Strategy {
	thresholds := strategy.Thresholds{
		MinAPYImprovement:  decimal.NewFromFloat(conf.MinAPYImprovement),
		MinRebalanceAmount: decimal.NewFromFloat(conf.MinRebalanceAmount),
	}
	if conf.RiskTolerance == "low" {
		return &strategy.RiskAdjusted{
			Thresholds:       thresholds,
			Profitability:    profitCalc,
			Risk:             riskAssessor,
			AllowHighRisk:    conf.AllowHighRisk,
			DiversificationN: conf.DiversificationTarget,
			MaxConcentration: decimal.NewFromFloat(conf.MaxConcentrationPct),
		}
	}
	return &strategy.SimpleYield{Thresholds: thresholds, Profitability: profitCalc}
}

// wrapDryRun swaps every registered adapter for a dry-run wrapper so
// mutating calls are synthesized instead of sent to the Chain Gateway.
// The registry starts empty in this generic entrypoint (concrete
// protocol adapters are deployment-specific wiring); this runs over
// whatever a fuller deployment has registered by the time dry-run mode
// is known.
func wrapDryRun(registry *adapter.Registry, logger zerolog.Logger) {
	for _, a := range registry.All() {
		registry.Register(&adapter.DryRunAdapter{Inner: a, Log: logger})
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("optimizer: metrics server stopped")
	}
}
