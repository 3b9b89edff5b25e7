package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/definition"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/middleware"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var (
	serveMigrate bool
	serveNoAPI   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poller and the HTTP API until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before starting (postgres only)")
	serveCmd.Flags().BoolVar(&serveNoAPI, "no-api", false, "run the poller without the HTTP API")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if serveMigrate && cfg.Store.Driver == "postgres" {
		if err := storage.RunMigrations(&cfg.DB, cfg.Store.MigrationsPath); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Definitions != "" {
		defs, err := definition.NewParser().ParseFile(cfg.Definitions)
		if err != nil {
			return err
		}
		n, err := definition.Seed(ctx, a.svc, defs)
		if err != nil {
			return err
		}
		a.log.Info("Seeded dag definitions", logger.IntField("count", n), logger.StringField("file", cfg.Definitions))
	}

	poller, err := a.newPoller()
	if err != nil {
		return err
	}
	if err := poller.Start(); err != nil {
		return err
	}
	a.log.Info("Scheduler started", logger.StringField("poll_spec", cfg.Scheduler.PollSpec))

	var server *http.Server
	var limiter *middleware.RateLimiter
	if cfg.API.Enabled && !serveNoAPI {
		server, limiter, err = newHTTPServer(a, poller)
		if err != nil {
			poller.Stop()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if server != nil {
		g.Go(func() error {
			a.log.Info("HTTP server listening", logger.StringField("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("Shutting down gracefully")
		if server == nil {
			return nil
		}
		defer limiter.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Error("HTTP server shutdown failed", logger.ErrorField(err))
		}
		return nil
	})

	err = g.Wait()
	if stopErr := poller.Stop(); stopErr != nil {
		a.log.Error("Scheduler stop failed", logger.ErrorField(stopErr))
	}
	return err
}

func newHTTPServer(a *app, poller *scheduler.Poller) (*http.Server, *middleware.RateLimiter, error) {
	gin.SetMode(a.cfg.API.Mode)

	cfg := api.RouterConfig{
		Service: a.svc,
		Trigger: poller,
		Health:  a.health,
		Log:     a.accessLog(),
	}
	if a.cfg.API.JWTSecret != "" {
		jwt, err := middleware.NewJWTConfig(a.cfg.API.JWTSecret, 0)
		if err != nil {
			return nil, nil, err
		}
		cfg.JWT = jwt
	} else {
		a.log.Warn("api.jwt_secret is empty, the HTTP API is unauthenticated")
	}

	limiter := middleware.NewRateLimiter(a.cfg.API.RateLimit, a.cfg.API.RateBurst, 5*time.Minute)
	if a.cfg.API.RateLimit > 0 {
		cfg.Limiter = limiter
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.API.Port),
		Handler:           api.NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}, limiter, nil
}
