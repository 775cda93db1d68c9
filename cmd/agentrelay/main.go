package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	relaya2a "github.com/Strob0t/agentrelay/internal/adapter/a2a"
	relayhttp "github.com/Strob0t/agentrelay/internal/adapter/http"
	"github.com/Strob0t/agentrelay/internal/adapter/litellm"
	"github.com/Strob0t/agentrelay/internal/adapter/llmplanner"
	relaymcp "github.com/Strob0t/agentrelay/internal/adapter/mcp"
	"github.com/Strob0t/agentrelay/internal/adapter/memory"
	relaynats "github.com/Strob0t/agentrelay/internal/adapter/nats"
	"github.com/Strob0t/agentrelay/internal/adapter/natskv"
	relayotel "github.com/Strob0t/agentrelay/internal/adapter/otel"
	"github.com/Strob0t/agentrelay/internal/adapter/postgres"
	"github.com/Strob0t/agentrelay/internal/adapter/ristretto"
	"github.com/Strob0t/agentrelay/internal/adapter/tiered"
	"github.com/Strob0t/agentrelay/internal/adapter/ws"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain/agent"
	"github.com/Strob0t/agentrelay/internal/domain/pipeline"
	"github.com/Strob0t/agentrelay/internal/logger"
	"github.com/Strob0t/agentrelay/internal/middleware"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
	"github.com/Strob0t/agentrelay/internal/port/cache"
	"github.com/Strob0t/agentrelay/internal/port/executionstore"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
	"github.com/Strob0t/agentrelay/internal/port/notifier"
	"github.com/Strob0t/agentrelay/internal/port/planner"
	"github.com/Strob0t/agentrelay/internal/resilience"
	"github.com/Strob0t/agentrelay/internal/secrets"
	"github.com/Strob0t/agentrelay/internal/service"
	"github.com/Strob0t/agentrelay/internal/workpool"
)

const (
	serviceName = "agentrelay"

	// mcpKeySecret names the MCP API key in the secrets vault.
	mcpKeySecret = "AGENTRELAY_MCP_API_KEY"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"version", version,
		"port", cfg.Server.Port,
		"store", cfg.Executor.Store,
		"failure_policy", cfg.Executor.FailurePolicy,
		"max_parallel", cfg.Executor.MaxParallel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOtel, err := relayotel.Setup(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := relayotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	checks := map[string]relayhttp.HealthCheck{}

	// --- Execution state store ---

	var store executionstore.Store
	switch cfg.Executor.Store {
	case config.StoreMemory:
		store = memory.NewStore()
		slog.Warn("using in-memory execution store; state is lost on restart")
	default:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")

		pg := postgres.NewStore(pool)
		checks["postgres"] = pg.Ping
		store = pg
	}

	// --- NATS (optional) ---

	var (
		queue      messagequeue.Queue
		l2Cache    cache.Cache
		idempStore cache.Cache
	)
	if cfg.NATS.URL != "" {
		q, err := relaynats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		queue = q
		checks["nats"] = func(context.Context) error {
			if !q.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}

		kvCache, err := natskv.Open(ctx, q.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("llm cache bucket: %w", err)
		}
		l2Cache = kvCache

		kvIdem, err := natskv.Open(ctx, q.JetStream(), cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
		if err != nil {
			return fmt.Errorf("idempotency bucket: %w", err)
		}
		idempStore = kvIdem
	} else {
		slog.Warn("nats disabled; approvals resume in-process and notify agents cannot publish")
	}

	// --- LLM response cache ---

	l1Cache, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1Cache.Close()

	var llmCache cache.Cache = l1Cache
	if l2Cache != nil {
		llmCache = tiered.New(l1Cache, l2Cache, cfg.Cache.L2TTL)
	}

	// --- LLM + planner ---

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	checks["litellm"] = func(ctx context.Context) error {
		ok, err := llmClient.Health(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("unhealthy")
		}
		return nil
	}

	var plans planner.Planner
	if cfg.Planner.Model != "" {
		plans = llmplanner.New(llmClient, cfg.Planner.Model, cfg.Planner.MaxTokens)
	}

	// --- Agents and catalog ---

	registry := service.NewAgentRegistry(agentkind.Deps{
		LLM:    llmClient,
		Cache:  llmCache,
		Queue:  queue,
		Logger: log,
	})
	if err := registerAgents(registry, cfg.Catalog.AgentsFile, queue != nil); err != nil {
		return err
	}

	catalog, err := pipeline.LoadCatalog(cfg.Catalog.PipelineDir)
	if err != nil {
		return fmt.Errorf("pipelines: %w", err)
	}
	slog.Info("catalog loaded",
		"agents", registry.Len(),
		"pipelines", len(catalog.List()),
		"kinds", agentkind.Available(),
	)

	// --- Services ---

	workers := workpool.New(cfg.Executor.MaxParallel)

	orchestrator := service.NewOrchestratorService(catalog, registry)
	orchestrator.SetPool(workers)
	orchestrator.SetMetrics(metrics)
	orchestrator.SetStepTimeout(cfg.Executor.StepTimeout)

	executor := service.NewExecutorService(store, registry, &cfg.Executor)
	executor.SetPool(workers)
	executor.SetMetrics(metrics)
	if queue != nil {
		executor.SetQueue(queue)
		cancelResume, err := executor.StartResumeSubscriber(ctx)
		if err != nil {
			return fmt.Errorf("resume subscriber: %w", err)
		}
		defer cancelResume()
	}

	review := service.NewReviewService(store, executor)
	review.SetMetrics(metrics)

	notifications, err := buildNotifications(cfg.Notifications, cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("notifications: %w", err)
	}
	hub := ws.NewHub(cfg.Server.WSOrigins...)
	executor.AddObserver(hub)

	if notifications.NotifierCount() > 0 {
		executor.AddObserver(notifications)
		slog.Info("reviewer notifications enabled", "notifiers", notifications.NotifierCount())
	}

	if cfg.Executor.ResumeOnStartup {
		n, err := executor.RecoverPending(ctx)
		if err != nil {
			slog.Error("recover pending executions", "error", err)
		} else if n > 0 {
			slog.Info("resuming approved executions", "count", n)
		}
	}

	// --- HTTP ---

	handlers := &relayhttp.Handlers{
		Orchestrator: orchestrator,
		Executor:     executor,
		Review:       review,
		Agents:       registry,
		Planner:      plans,
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(relayotel.HTTPMiddleware(serviceName))
	r.Use(relayhttp.Logger)
	r.Use(relayhttp.SecurityHeaders)

	r.Get("/health", relayhttp.Health(checks))
	// Long-lived: outside the API group so the request timeout does not apply.
	r.With(limiter.Handler).Get("/ws", hub.HandleWS)

	apiMW := []func(http.Handler) http.Handler{
		chimw.Timeout(cfg.Server.RequestTimeout),
		limiter.Handler,
	}
	if idempStore != nil {
		apiMW = append(apiMW, middleware.Idempotency(idempStore, cfg.Idempotency.TTL))
	}
	relayhttp.MountRoutes(r, handlers, apiMW...)

	if cfg.MCP.Enabled {
		keys := secrets.Static(map[string]string{mcpKeySecret: cfg.MCP.APIKey})
		if cfg.MCP.KeyFile != "" {
			keys = secrets.Layered(keys, secrets.FileLoader(cfg.MCP.KeyFile))
		}
		vault, err := secrets.NewVault(keys)
		if err != nil {
			return fmt.Errorf("mcp api key: %w", err)
		}
		vault.ReloadOn(ctx, syscall.SIGHUP)

		mcpSrv := relaymcp.NewServer(relaymcp.ServerConfig{
			Name:    serviceName,
			Version: version,
			Path:    cfg.MCP.Path,
			APIKey:  vault.Func(mcpKeySecret),
		}, relaymcp.ServerDeps{
			Pipelines:  orchestrator,
			Executions: executor,
			Reviewer:   review,
		})
		r.Handle(mcpSrv.Path(), limiter.Handler(mcpSrv.Handler()))
		slog.Info("mcp tools mounted", "path", mcpSrv.Path())
	}

	if cfg.A2A.Enabled {
		card := relaya2a.BuildAgentCard(serviceName, version, cfg.Server.PublicURL, orchestrator)
		relaya2a.MountRoutes(r, card, relaya2a.NewExecutor(orchestrator), limiter.Handler)
		slog.Info("a2a endpoint mounted", "path", relaya2a.DefaultPath, "skills", len(card.Skills))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}

	// Let in-flight resumptions reach their next persisted state.
	executor.Wait()
	notifications.Wait()
	slog.Info("shutdown complete")
	return nil
}

// registerAgents registers the built-in agents plus those in agentsFile.
// Publish agents are skipped when no broker is available.
func registerAgents(registry *service.AgentRegistry, agentsFile string, haveQueue bool) error {
	defs := agent.BuiltinDefinitions()
	if agentsFile != "" {
		custom, err := agent.LoadDefinitions(agentsFile)
		if err != nil {
			return fmt.Errorf("agents: %w", err)
		}
		defs = append(defs, custom...)
	}
	if !haveQueue {
		defs = slices.DeleteFunc(defs, func(d agent.Definition) bool {
			if d.Kind != agent.KindPublish {
				return false
			}
			slog.Warn("skipping publish agent without nats", "agent", d.Name)
			return true
		})
	}
	if err := registry.RegisterAll(defs); err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	return nil
}

// buildNotifications creates a notifier for every configured webhook.
func buildNotifications(cfg config.Notifications, publicURL string) (*service.NotificationService, error) {
	webhooks := map[string]string{
		"slack":   cfg.SlackWebhookURL,
		"discord": cfg.DiscordWebhookURL,
	}
	var notifiers []notifier.Notifier
	for _, name := range notifier.Available() {
		n, err := notifier.New(name, map[string]string{"webhook_url": webhooks[name]})
		if errors.Is(err, notifier.ErrNotConfigured) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		notifiers = append(notifiers, n)
	}
	return service.NewNotificationService(notifiers, cfg.Events, publicURL), nil
}
