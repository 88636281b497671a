package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/riandyrn/otelchi"
	"github.com/spf13/cobra"

	"github.com/neomorfeo/caseflow/internal/adapter/fsm"
	handler "github.com/neomorfeo/caseflow/internal/adapter/http"
	"github.com/neomorfeo/caseflow/internal/adapter/otel"
	"github.com/neomorfeo/caseflow/internal/adapter/redis"
	"github.com/neomorfeo/caseflow/internal/adapter/river"
	"github.com/neomorfeo/caseflow/internal/adapter/sqlite"
	"github.com/neomorfeo/caseflow/internal/app"
	"github.com/neomorfeo/caseflow/internal/config"
	"github.com/neomorfeo/caseflow/internal/domain"
	"github.com/neomorfeo/caseflow/internal/waitlist"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), c.cfg, c.logger)
		},
	}
	cmd.Flags().Int("port", 0, "HTTP port")
	cmd.Flags().String("seed", "", "programs file applied before serving")
	return cmd
}

// stack is the wired application shared by the commands.
type stack struct {
	store    *sqlite.Store
	queue    *river.Client
	stats    *redis.StatsPublisher
	programs *app.ProgramService
	registry *app.CaseRegistry
	closers  []func() error
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openStack wires storage, the job queue, telemetry decorators and the
// application services. Jobs enqueued before the queue is started stay in
// the database until a server picks them up.
func openStack(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stack, error) {
	s := &stack{}

	db, err := otel.OpenDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	s.store, err = sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	s.closers = append(s.closers, s.store.Close)

	metrics, err := otel.NewMetricsPublisher()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("metrics publisher: %w", err)
	}
	sink := app.MultiPublisher{metrics}

	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, rdb.Close)
		s.stats = redis.NewStatsPublisher(rdb, redis.WithPrefix(cfg.Redis.Prefix))
		if err := s.stats.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		sink = append(sink, s.stats)
	}

	s.queue, err = river.Setup(ctx, db, river.Config{
		Catalog:    s.store.Catalog(),
		Sink:       sink,
		MaxWorkers: cfg.Queue.Workers,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("river: %w", err)
	}
	publisher := river.NewPublisher(s.queue)

	store, err := otel.NewTracingStore(s.store)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("tracing store: %w", err)
	}

	opts := []app.Option{app.WithLogger(logger)}
	s.programs = app.NewProgramService(store, otel.NewTracingCatalogPublisher(publisher), s.store.Catalog(), opts...)
	s.registry = app.NewCaseRegistry(store, fsm.New(), waitlist.New(), otel.NewTracingPublisher(publisher), opts...)
	return s, nil
}

// seedPrograms creates the programs of a seed file, skipping those that
// already exist.
func seedPrograms(ctx context.Context, programs *app.ProgramService, path string, logger *slog.Logger) (int, error) {
	defs, err := config.ProgramsFromFile(path)
	if err != nil {
		return 0, fmt.Errorf("loading %s: %w", path, err)
	}

	created := 0
	for _, p := range defs {
		_, err := programs.Create(ctx, p)
		switch {
		case errors.Is(err, domain.ErrProgramExists):
			logger.InfoContext(ctx, "program already exists, skipping", "program_id", p.ID)
		case err != nil:
			return created, fmt.Errorf("creating program %s: %w", p.ID, err)
		default:
			created++
			logger.InfoContext(ctx, "program created", "program_id", p.ID, "family", p.Family)
		}
	}
	return created, nil
}

func newRouter(s *stack, limiter *handler.RateLimiter) *chi.Mux {
	router := chi.NewMux()
	router.Use(otelchi.Middleware("caseflow", otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig("caseflow", version))
	handler.Register(api, s.programs, s.registry, limiter)
	return router
}

// run serves the API until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	s, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Seed.File != "" {
		if _, err := seedPrograms(ctx, s.programs, cfg.Seed.File, logger); err != nil {
			return err
		}
	}

	n, err := s.registry.WarmWaitlist(ctx)
	if err != nil {
		return fmt.Errorf("warming waitlist: %w", err)
	}
	logger.InfoContext(ctx, "waitlist warmed", "pending_cases", n)

	if err := s.queue.Start(ctx); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.queue.Stop(stopCtx); err != nil {
			logger.Error("river shutdown", "error", err)
		}
	}()

	var limiter *handler.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = handler.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		limiter.StartJanitor(ctx, 2*time.Minute)
	}

	port := strconv.Itoa(cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(s, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("caseflow listening", "port", port, "docs", "http://localhost:"+port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}
