package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/davidcastane/delega/internal/assertion"
	"github.com/davidcastane/delega/internal/cache"
	"github.com/davidcastane/delega/internal/config"
	httpx "github.com/davidcastane/delega/internal/http"
	"github.com/davidcastane/delega/internal/logout"
	"github.com/davidcastane/delega/internal/metrics"
	"github.com/davidcastane/delega/internal/observability/logger"
	"github.com/davidcastane/delega/internal/orchestrator"
	"github.com/davidcastane/delega/internal/policy"
	"github.com/davidcastane/delega/internal/provider/factory"
	"github.com/davidcastane/delega/internal/session"
	"github.com/davidcastane/delega/internal/strategy"
	"github.com/davidcastane/delega/internal/webflow"
)

var version = "dev"

func main() {
	// .env es opcional; en deploys reales las vars vienen del entorno.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "delega",
		Short: "Servidor de autenticación delegada a identity providers externos",
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", envOr("DELEGA_CONFIG", "config.yaml"), "ruta del archivo de configuración")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfgPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("delega", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "delega",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheClient, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		RedisAddr:  cfg.Cache.Redis.Addr,
		RedisDB:    cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: config.Dur(cfg.Cache.Memory.DefaultTTL, 2*time.Minute),
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() { _ = cacheClient.Close() }()

	// Policy lookup: estático desde config o service registry en Postgres.
	var (
		lookup policy.Lookup
		static *policy.StaticLookup
	)
	switch cfg.Policy.Source {
	case "postgres":
		pg, err := policy.NewPostgresLookup(ctx, cfg.Policy.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("policy: %w", err)
		}
		defer pg.Close()
		lookup = pg
	default:
		static = policy.NewStaticLookup(cfg.Policy.Services)
		lookup = static
	}
	enforcer := policy.NewEnforcer(lookup)

	registry, err := factory.Build(ctx, cfg.Server.BaseURL, cfg.Providers)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	log.Info("providers registered", logger.Count(len(registry.Names())))

	resolveStrategy := func() strategy.Strategy {
		if cfg.Strategy.Override == "disabled" {
			return strategy.NewChain(&strategy.Disabled{})
		}
		return strategy.NewChain(&strategy.Default{Registry: registry, Enforcer: enforcer})
	}
	swappable := strategy.NewSwappable(resolveStrategy)

	issuer, err := assertion.NewIssuer(
		cfg.Assertion.Issuer,
		cfg.Assertion.SigningKey,
		config.Dur(cfg.Assertion.TTL, 2*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("assertion: %w", err)
	}

	usage := session.NewUsageStore(cacheClient, 24*time.Hour)
	codes := assertion.NewResultCodes(cacheClient, config.Dur(cfg.Assertion.CodeTTL, 60*time.Second))

	orch := orchestrator.New(orchestrator.Deps{
		Registry: registry,
		Enforcer: enforcer,
		Strategy: swappable,
		Webflow:  webflow.NewManager(cacheClient, config.Dur(cfg.Webflow.TTL, 2*time.Minute)),
		Usage:    usage,
		Issuer:   issuer,
		Codes:    codes,
	})

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	handler := httpx.NewRouter(&httpx.Server{
		Orch:     orch,
		Registry: registry,
		Enforcer: enforcer,
		Codes:    codes,
		Logout:   logout.NewCoordinator(registry, usage, config.Dur(cfg.Logout.Timeout, 3*time.Second)),
		Cache:    cacheClient,
	})

	// SIGHUP recarga config: políticas estáticas y estrategia, sin reinicio.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			next, err := config.Load(cfgPath)
			if err != nil {
				log.Warn("config reload failed", logger.Err(err))
				continue
			}
			cfg.Strategy.Override = next.Strategy.Override
			if static != nil {
				static.Replace(next.Policy.Services)
			}
			swappable.Reload()
			log.Info("config reloaded")
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  config.Dur(cfg.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: config.Dur(cfg.Server.WriteTimeout, 30*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			logger.String("addr", cfg.Server.Addr),
			logger.String("base_url", cfg.Server.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
