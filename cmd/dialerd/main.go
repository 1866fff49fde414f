// dialerd orchestrates call-session lifecycles: it ingests voice-platform
// webhooks, tracks sessions and agent extensions, classifies call outcomes,
// and delivers dispositions to the external dialer system.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/audit"
	"github.com/fyrsmithlabs/dialerd/internal/config"
	"github.com/fyrsmithlabs/dialerd/internal/detect"
	"github.com/fyrsmithlabs/dialerd/internal/dialer"
	"github.com/fyrsmithlabs/dialerd/internal/dispatch"
	"github.com/fyrsmithlabs/dialerd/internal/httpapi"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
	"github.com/fyrsmithlabs/dialerd/internal/resilience"
	"github.com/fyrsmithlabs/dialerd/internal/session"
	"github.com/fyrsmithlabs/dialerd/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("dialerd", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "dialerd:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("DIALERD_CONFIG"); p != "" {
		return p
	}
	return "dialerd.yaml"
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg, err := logging.FromStrings(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OTEL)
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	logger, err := logging.New(logCfg, nil)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting dialerd",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	tel, err := telemetry.New(ctx, telemetry.FromApp(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown", zap.Error(err))
		}
	}()
	if tel.Degraded() {
		logger.Warn(ctx, "telemetry running degraded, exporters unavailable")
	}

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	srv := httpapi.NewServer(cfg.Server, deps.registry, deps.detector, deps.silence, deps.dispatcher, deps.auditStore, logger)

	watcher := startConfigWatcher(ctx, configPath, deps, logger)
	if watcher != nil {
		defer watcher.Stop()
	}

	logger.Info(ctx, "webhook server listening",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("extensions", deps.pool.Size()),
	)

	err = srv.Start(ctx)
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}

	drainSessions(deps, logger)
	logger.Info(context.Background(), "dialerd stopped")
	return nil
}

// dependencies holds all wired infrastructure and services.
type dependencies struct {
	natsConn   *nats.Conn
	pool       *session.Pool
	registry   *session.Registry
	detector   *detect.KeywordDetector
	silence    *detect.SilenceTracker
	executor   *resilience.Executor
	dispatcher *dispatch.Dispatcher
	auditStore audit.Store
	logger     *logging.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	hours := session.NewHours(cfg.Hours)
	pool := session.NewPool(cfg.Pool.Extensions)
	registry := session.NewRegistry(pool, hours, cfg.Sessions.MaxValidationRetries, logger,
		session.WithRegistryMetrics(session.NewMetrics(logger)))

	detector := detect.NewKeywordDetector(cfg.Detect)
	silence := detect.NewSilenceTracker()

	policies, err := buildPolicies(cfg)
	if err != nil {
		return nil, err
	}
	resilienceMetrics := resilience.NewMetrics(logger)
	executor := resilience.NewExecutor(policies, logger,
		resilience.WithMetrics(resilienceMetrics))
	breakers := resilience.NewBreakers(cfg.Breaker.Threshold, cfg.Breaker.ResetTimeout.Duration(), logger, resilienceMetrics)

	store, nc, err := initAuditStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := dialer.NewClient(cfg.Dialer, logger)
	dispatcher := dispatch.New(registry, client, executor, breakers, store, hours, cfg.Dialer, logger)

	logger.Info(ctx, "dependencies initialized",
		zap.Bool("nats_connected", nc != nil),
		zap.Int("retry_categories", len(policies)),
	)

	return &dependencies{
		natsConn:   nc,
		pool:       pool,
		registry:   registry,
		detector:   detector,
		silence:    silence,
		executor:   executor,
		dispatcher: dispatcher,
		auditStore: store,
		logger:     logger,
	}, nil
}

func buildPolicies(cfg *config.Config) (map[string]resilience.Policy, error) {
	policies := make(map[string]resilience.Policy, len(cfg.Retry))
	for category, rc := range cfg.Retry {
		p, err := resilience.PolicyFromConfig(rc)
		if err != nil {
			return nil, fmt.Errorf("retry policy %q: %w", category, err)
		}
		policies[category] = p
	}
	return policies, nil
}

// initAuditStore connects to NATS when auditing is enabled, falling back to
// the in-memory store so delivery records never block the call path.
func initAuditStore(cfg *config.Config, logger *logging.Logger) (audit.Store, *nats.Conn, error) {
	if !cfg.Audit.Enabled {
		return audit.NewMemoryStore(), nil, nil
	}

	nc, err := nats.Connect(cfg.Audit.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return audit.NewNATSStore(nc, cfg.Audit.SubjectPrefix, logger), nc, nil
}

// startConfigWatcher hot-reloads detection keywords and retry policies on
// config file changes. Reload failures keep the running configuration.
func startConfigWatcher(ctx context.Context, path string, deps *dependencies, logger *logging.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(path)
	if err != nil {
		logger.Warn(ctx, "config hot-reload disabled", zap.Error(err))
		return nil
	}
	watcher.Start()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-watcher.Updates():
				if !ok {
					return
				}
				deps.detector.Reload(cfg.Detect)
				if policies, err := buildPolicies(cfg); err == nil {
					deps.executor.SetPolicies(policies)
				} else {
					logger.Warn(ctx, "ignoring reloaded retry policies", zap.Error(err))
					continue
				}
				logger.Info(ctx, "configuration reloaded",
					zap.Int("voicemail_keywords", len(cfg.Detect.VoicemailKeywords)),
					zap.Int("retry_categories", len(cfg.Retry)),
				)
			case err, ok := <-watcher.Errors():
				if !ok {
					return
				}
				logger.Warn(ctx, "config reload failed, keeping current config", zap.Error(err))
			}
		}
	}()
	return watcher
}

// drainSessions logs a snapshot of whatever was still active at shutdown so
// interrupted calls can be reconciled afterwards.
func drainSessions(deps *dependencies, logger *logging.Logger) {
	active := deps.registry.Sessions()
	if len(active) == 0 {
		return
	}
	logger.Warn(context.Background(), "shutting down with active sessions",
		zap.Int("count", len(active)),
	)
	for _, s := range active {
		logger.Info(context.Background(), "abandoned session",
			zap.String("call_id", s.CallID),
			logging.Phone("phone_number", s.PhoneNumber),
			zap.String("state", string(s.State)),
			zap.String("status", string(s.Status)),
			zap.Bool("disposition_sent", s.DispositionSent),
		)
	}
}
