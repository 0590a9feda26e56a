package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spanexx/ACTA-sub001/internal/agent"
	"github.com/spanexx/ACTA-sub001/internal/audit"
	"github.com/spanexx/ACTA-sub001/internal/config"
	"github.com/spanexx/ACTA-sub001/internal/gateway"
	"github.com/spanexx/ACTA-sub001/internal/llm"
	"github.com/spanexx/ACTA-sub001/internal/llm/providers"
	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/internal/permission"
	"github.com/spanexx/ACTA-sub001/internal/planner"
	"github.com/spanexx/ACTA-sub001/internal/profile"
	"github.com/spanexx/ACTA-sub001/internal/safety"
	"github.com/spanexx/ACTA-sub001/internal/tasks"
	"github.com/spanexx/ACTA-sub001/internal/trust"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// shutdownGrace bounds how long the daemon waits for the gateway and the
// running task to wind down after a signal.
const shutdownGrace = 10 * time.Second

// activeRules resolves the persistent rule store of whatever profile is
// active at read time, so a profile switch redirects remembered rules without
// rebuilding the trust engine.
type activeRules struct {
	profiles *profile.Manager
}

func (a *activeRules) List() ([]models.TrustRule, error) {
	p, err := a.profiles.Active()
	if err != nil {
		return nil, err
	}
	return trust.NewRuleStore(a.profiles.TrustDir(p)).List()
}

// runServe wires the daemon together and blocks until ctx is cancelled.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		AddSource: debug,
	})

	metrics := observability.NewMetrics()

	traceEndpoint := ""
	if cfg.Tracing.Enabled {
		traceEndpoint = cfg.Tracing.Endpoint
	}
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "acta",
		ServiceVersion: version,
		Endpoint:       traceEndpoint,
	})

	auditor, err := audit.NewLogger(audit.Config{
		Enabled: cfg.Audit.Enabled,
		Output:  cfg.Audit.Output,
		Format:  cfg.Audit.Format,
	})
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditor.Close()

	// Profiles.
	manager := profile.NewManager(profile.NewStore(cfg.Profiles.Root),
		profile.WithLogger(logger),
		profile.WithAuditor(auditor),
	)
	active, err := manager.Init(ctx)
	if err != nil {
		return fmt.Errorf("init profiles: %w", err)
	}
	if err := manager.StartJanitor(ctx); err != nil {
		logger.Warn(ctx, "profile janitor not started", "error", err)
	}
	defer manager.StopJanitor()
	logger.Info(ctx, "profile store ready",
		"root", cfg.Profiles.Root,
		"active", active.ID,
	)

	// Trust.
	session := trust.NewSessionRules()
	engine := trust.NewEngine(cfg.Trust.HardBlock(),
		trust.MultiSource{session, &activeRules{profiles: manager}},
		trust.WithAuditor(auditor),
		trust.WithEngineLogger(logger),
	)

	// LLM transport and routing.
	client := llm.NewClient(
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLM.RequestTimeout}),
		llm.WithRetries(cfg.LLM.Retries()),
		llm.WithLogger(logger),
		llm.WithMetrics(metrics),
	)
	router := llm.NewRouter(client, llm.WithRouterLogger(logger))
	providers.RegisterAll(router)

	// Tools and the execution pipeline.
	registry := agent.NewMemoryRegistry()
	registerBuiltinTools(registry, manager)

	orchestrator := agent.NewOrchestrator(registry,
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
		agent.WithTracer(tracer),
	)

	server := gateway.NewServer(gateway.Config{
		Addr:           cfg.Gateway.Addr,
		Path:           cfg.Gateway.Path,
		OutboundBuffer: cfg.Gateway.OutboundBuffer,
	}, logger, metrics)

	coordinator := permission.NewCoordinator(server,
		permission.WithLogger(logger),
		permission.WithMetrics(metrics),
		permission.WithAuditor(auditor),
		permission.WithSessionRules(session),
		permission.WithRuleSink(func(profileID string) permission.RuleSink {
			p, err := manager.Get(profileID)
			if err != nil {
				return nil
			}
			return trust.NewRuleStore(manager.TrustDir(p))
		}),
	)

	plan := planner.New(router, planner.Config{
		BlockedTools:  cfg.Safety.BlockedTools,
		BlockedScopes: cfg.Safety.BlockedScopes,
	}, planner.WithLogger(logger))

	gate := safety.NewGate(safety.Config{
		BlockedTools:  cfg.Safety.BlockedTools,
		BlockedScopes: cfg.Safety.BlockedScopes,
	})

	service := tasks.NewService(plan, gate, orchestrator, engine, server,
		tasks.WithLogger(logger),
		tasks.WithMetrics(metrics),
		tasks.WithAuditor(auditor),
		tasks.WithWaiter(coordinator),
	)

	gateway.RegisterHandlers(server.Dispatcher(), &gateway.Runtime{
		Profiles:     manager,
		Tasks:        service,
		LLM:          router,
		Permissions:  coordinator,
		SessionRules: session,
		Logger:       logger,
	})

	// Hard-block policy follows the config file without a restart.
	var watcher *config.Watcher
	if _, statErr := os.Stat(configPath); statErr == nil {
		watcher, err = config.NewWatcher(configPath, func(c *config.Config) {
			engine.SetHardBlock(c.Trust.HardBlock())
		}, logger)
		if err != nil {
			logger.Warn(ctx, "config watcher not started", "error", err)
		}
	}
	if watcher != nil {
		defer watcher.Close()
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info(ctx, "metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(ctx, "metrics endpoint failed", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(ctx)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	service.Stop("")
	service.Wait()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "gateway shutdown", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "metrics shutdown", "error", err)
		}
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "tracer shutdown", "error", err)
	}
	return nil
}
