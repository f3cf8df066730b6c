package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"

	"vn.io.arda/realtime/internal/application"
	"vn.io.arda/realtime/internal/classify/handlers"
	"vn.io.arda/realtime/internal/config"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/infrastructure/memory"
	"vn.io.arda/realtime/internal/infrastructure/postgres"
	"vn.io.arda/realtime/internal/infrastructure/rest"
	"vn.io.arda/realtime/internal/logging"
	"vn.io.arda/realtime/internal/transport"
	transporthttp "vn.io.arda/realtime/internal/transport/http"
	"vn.io.arda/realtime/internal/transport/kafka"
	"vn.io.arda/realtime/internal/transport/redis"
	"vn.io.arda/realtime/internal/transport/ws"
)

// Build information. Populated at build-time via -ldflags flag.
var (
	version = "dev"
	commit  = "HEAD"
)

func main() {
	var (
		configPath string
		cfg        *config.Config
	)

	app := &cli.Command{
		Name:    "realtimed",
		Usage:   "Real-time notification delivery for the Arda web client",
		Version: version + " (" + commit + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (defaults to ./config.yaml when present)",
				Sources:     cli.EnvVars("ARDA_RT_CONFIG"),
				Destination: &configPath,
			},
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			loaded, err := config.Load(configPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if err := loaded.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid config: %w", err)
			}
			cfg = loaded
			logging.Setup(cfg.Server.Env, os.Stderr)
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the local API and SSE stream for the UI",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return serve(ctx, cfg)
				},
			},
			{
				Name:  "watch",
				Usage: "open one session and log every notification to the console",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "token",
						Usage:   "bearer token for the session",
						Sources: cli.EnvVars("ARDA_RT_TOKEN"),
					},
					&cli.StringFlag{Name: "token-url", Usage: "OAuth2 token endpoint for client credentials"},
					&cli.StringFlag{Name: "client-id", Sources: cli.EnvVars("ARDA_RT_CLIENT_ID")},
					&cli.StringFlag{Name: "client-secret", Sources: cli.EnvVars("ARDA_RT_CLIENT_SECRET")},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return watch(ctx, cfg, c)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("realtimed failed")
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().Str("env", cfg.Server.Env).Str("port", cfg.Server.Port).Str("version", version).Msg("starting realtimed")

	// ── SSE Hub & Coordinator ────────────────────────────────────────────────
	hub := transporthttp.NewHub()
	coord, cleanup, err := buildCoordinator(ctx, cfg, hub, hub)
	if err != nil {
		return err
	}
	defer cleanup()
	defer coord.Deactivate()

	// ── HTTP Server ──────────────────────────────────────────────────────────
	handler := transporthttp.NewHandler(ctx, coord, hub)
	router := transporthttp.NewRouter(handler, transporthttp.RouterOptions{
		APIToken:     cfg.Server.APIToken,
		AllowOrigins: cfg.Server.AllowOrigins,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := router.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ── Graceful Shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := router.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("realtimed stopped")
	return err
}

func watch(ctx context.Context, cfg *config.Config, c *cli.Command) error {
	sess, err := watchSession(ctx, c)
	if err != nil {
		return err
	}

	out := consoleNotifier{log: logging.Component("watch")}
	coord, cleanup, err := buildCoordinator(ctx, cfg, out, out)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := coord.Activate(ctx, sess); err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	defer coord.Deactivate()

	log.Info().Str("user", sess.UserID).Msg("watching, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func watchSession(ctx context.Context, c *cli.Command) (*application.Session, error) {
	if token := c.String("token"); token != "" {
		return application.SessionFromToken(token)
	}
	if c.String("token-url") == "" {
		return nil, errors.New("either --token or --token-url with client credentials is required")
	}
	cc := clientcredentials.Config{
		ClientID:     c.String("client-id"),
		ClientSecret: c.String("client-secret"),
		TokenURL:     c.String("token-url"),
	}
	return application.NewSession(cc.TokenSource(ctx))
}

// buildCoordinator wires store, classifier, transports and poll source from cfg.
func buildCoordinator(ctx context.Context, cfg *config.Config, notifier application.Notifier, alerter memory.Alerter) (*application.Coordinator, func(), error) {
	cleanup := func() {}

	// ── Notification Store ───────────────────────────────────────────────────
	store := memory.NewStore(cfg.Notifications.StoreOptions(alerter))

	// ── Transports ───────────────────────────────────────────────────────────
	mux := transport.NewMux().
		Handle(&ws.Dialer{}, "ws", "wss").
		Handle(&kafka.Dialer{}, "kafka").
		Handle(redis.Dialer{}, "redis", "rediss")
	if u := cfg.Transport.URL; u != "" && !mux.Supports(u) {
		return nil, cleanup, fmt.Errorf("transport.url: unsupported scheme, want one of %v", mux.Schemes())
	}

	// ── Poll Source ──────────────────────────────────────────────────────────
	var source application.PollSource
	switch cfg.Poll.Source {
	case config.PollSourceHTTP:
		src, err := rest.New(cfg.Poll.URL, nil)
		if err != nil {
			return nil, cleanup, err
		}
		source = src

	case config.PollSourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, cleanup, fmt.Errorf("postgres ping failed: %w", err)
		}
		log.Info().Msg("postgres connected")
		cleanup = pool.Close
		source = postgres.New(pool, cfg.Poll.Limit)
	}

	logger := logging.Component("coordinator")
	coord, err := application.NewCoordinator(store, handlers.Default(), application.Options{
		Dialer:       mux,
		Connection:   cfg.Transport.ConnectionOptions(),
		PollSource:   source,
		PollInterval: cfg.Poll.Interval(),
		Notifier:     notifier,
		Logger:       &logger,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return coord, cleanup, nil
}

// consoleNotifier logs coordinator output for the watch command.
type consoleNotifier struct {
	log zerolog.Logger
}

func (n consoleNotifier) Broadcast(nt domain.Notification) {
	n.log.Info().
		Str("kind", string(nt.Kind)).
		Str("title", nt.Title).
		Msg(nt.Message)
}

func (n consoleNotifier) BroadcastStatus(status string, connected bool) {
	n.log.Info().Bool("connected", connected).Msg(status)
}

func (n consoleNotifier) Alert(nt domain.Notification) {
	n.log.Warn().Str("kind", string(nt.Kind)).Str("title", nt.Title).Msg("ALERT")
}
