package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"autoelite.com/storefront/internal/api"
	"autoelite.com/storefront/internal/auth"
	"autoelite.com/storefront/internal/cache"
	"autoelite.com/storefront/internal/config"
	"autoelite.com/storefront/internal/core"
	"autoelite.com/storefront/internal/logger"
	"autoelite.com/storefront/internal/metrics"
	"autoelite.com/storefront/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "autoelite",
	Short: "AutoElite dealership storefront",
	Long: `Vehicle catalog, chat lead capture and seller console for the
AutoElite storefront.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(); err != nil {
			return err
		}
		logger.Init(logger.Config{
			Level:  config.AppConfig.LogLevel,
			Pretty: config.AppConfig.LogPretty,
		})
		return nil
	},
}

// serveCmd runs the HTTP server until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired services shared by the commands.
type app struct {
	cfg       config.Config
	log       zerolog.Logger
	store     *store.SQLStore
	metrics   *metrics.Metrics
	vehicles  *core.VehicleService
	responder *core.Responder
	sessions  *core.SessionManager
	leads     *core.LeadService
	closers   []io.Closer
}

func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	dbStore, err := store.NewSQLStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: dbStore, metrics: metrics.New(), closers: []io.Closer{dbStore}}

	queryCache := cache.New(cfg.CacheSize)
	queryCache.OnLookup = a.metrics.RecordCacheLookup
	a.vehicles = core.NewVehicleService(dbStore, queryCache, logger.Component(log, "vehicles"))

	completer, err := a.newCompleter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.responder = core.NewResponder(core.ResponderConfig{
		Completer: completer,
		Vehicles:  a.vehicles,
		Timeout:   cfg.AssistantTimeout,
		Metrics:   a.metrics,
		Logger:    logger.Component(log, "assistant"),
	})
	a.sessions = core.NewSessionManager(core.SessionManagerConfig{
		Store:       dbStore,
		Assistant:   a.responder,
		Vehicles:    a.vehicles,
		Metrics:     a.metrics,
		Logger:      logger.Component(log, "chat"),
		IdleTTL:     cfg.ChatSessionTTL,
		MaxSessions: cfg.ChatMaxSessions,
	})
	a.leads = core.NewLeadService(dbStore, logger.Component(log, "leads"))
	return a, nil
}

// newCompleter picks the completion backend; nil means degraded mode.
func (a *app) newCompleter(ctx context.Context) (core.Completer, error) {
	switch a.cfg.AssistantMode() {
	case "gateway":
		a.log.Info().Str("base_url", a.cfg.CompletionBaseURL).Str("model", a.cfg.CompletionModel).Msg("assistant uses the completion gateway")
		return core.NewGatewayCompleter(a.cfg.CompletionAPIKey, a.cfg.CompletionBaseURL, a.cfg.CompletionModel, nil), nil
	case "gemini":
		gemini, err := core.NewGeminiCompleter(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gemini)
		a.log.Info().Str("model", a.cfg.GeminiModel).Msg("assistant uses Gemini")
		return gemini, nil
	default:
		a.log.Warn().Msg("no completion credential configured, assistant runs in degraded mode")
		return nil, nil
	}
}

// bootstrapAdmin creates the configured admin account if it is missing.
func (a *app) bootstrapAdmin(ctx context.Context) error {
	if a.cfg.AdminEmail == "" {
		return nil
	}
	existing, err := a.store.GetUserByEmail(ctx, a.cfg.AdminEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hash, err := auth.HashPassword(a.cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	user, err := a.store.CreateUser(ctx, a.cfg.AdminEmail, hash, store.RoleAdmin)
	if err != nil {
		return err
	}
	a.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("admin account created")
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Error().Err(err).Msg("failed to close resource")
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Component(zlog.Logger, "server")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, config.AppConfig, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.bootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap admin account: %w", err)
	}

	go a.sessions.Run(ctx)

	apiHandler := api.NewAPIHandler(api.Deps{
		Vehicles:  a.vehicles,
		Sessions:  a.sessions,
		Assistant: a.responder,
		Leads:     a.leads,
		Users:     a.store,
		Metrics:   a.metrics,
		Logger:    logger.Component(log, "http"),
	})

	serverAddr := fmt.Sprintf(":%s", a.cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      api.NewRouter(apiHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.cfg.AssistantTimeout + 30*time.Second, // assistant calls can take time
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serverAddr).Str("assistant_mode", a.cfg.AssistantMode()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.sessions.CloseAll()

	log.Info().Msg("server exiting gracefully")
	return nil
}
