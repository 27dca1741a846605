package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/abdotop/cartpay/internal/checkout"
	"github.com/abdotop/cartpay/internal/config"
	"github.com/abdotop/cartpay/internal/orders"
	"github.com/abdotop/cartpay/internal/payment"
	"github.com/abdotop/cartpay/internal/provider"
	"github.com/abdotop/cartpay/internal/server"
	"github.com/abdotop/cartpay/internal/state"
	"github.com/abdotop/cartpay/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "cartpay",
		Usage: "Storefront checkout with a card payment provider simulator",
		Flags: config.Flags(),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the storefront and, unless disabled, the provider simulator",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "Apply the storefront database migrations and exit",
				Action: func(c *cli.Context) error {
					cfg := config.FromContext(c)
					setupLogger(cfg)
					st, err := store.New(cfg.DBPath)
					if err != nil {
						return fmt.Errorf("failed to initialize database: %w", err)
					}
					defer st.Close()
					return st.AutoMigrate(cfg.MigrationsDir)
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(cfg config.Config) {
	var h slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LogJSON {
		h = slog.NewJSONHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(h))
}

func serve(c *cli.Context) error {
	cfg := config.FromContext(c)
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DefaultAPISecret() {
		slog.Warn("API_SECRET not set, tokens are signed with the built-in default secret")
	}

	// SQLite store; the file is created on first run.
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()
	if err := st.AutoMigrate(cfg.MigrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var kv state.RedisClient = state.NewMemoryClient()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		kv = rdb
	} else {
		slog.Warn("REDIS_ADDR not set, cart state is kept in memory")
	}

	var producer sarama.SyncProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = orders.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("failed to initialize kafka producer: %w", err)
		}
		defer producer.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	var servers []*http.Server

	webhooks := provider.NewWebhookSender(cfg.WebhookURL, cfg.WebhookSecret)
	if cfg.ProviderPort > 0 {
		var repo provider.Repository = provider.NewMemoryRepo()
		if cfg.DBSource != "" {
			pg, err := provider.NewPostgresRepo(ctx, cfg.DBSource)
			if err != nil {
				return fmt.Errorf("failed to open provider database: %w", err)
			}
			defer pg.Close()
			repo = pg
		}
		keys := provider.Keys{Secret: cfg.SecretKey, Publishable: cfg.PublishableKey}
		servers = append(servers, &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.ProviderPort),
			Handler:      provider.NewServer(repo, keys, webhooks).Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
	}

	pc := provider.NewClient(cfg.ProviderURL, cfg.SecretKey, cfg.PublishableKey)
	processor := payment.NewProcessor(pc, cfg.Currency)
	var secrets checkout.SecretRequester = processor
	if cfg.CheckoutAPIURL != "" {
		secrets = payment.NewClient(cfg.CheckoutAPIURL)
	}

	srv := server.NewServer(server.Deps{
		Store:         st,
		State:         state.New(kv),
		Orders:        orders.NewService(st.Queries(), producer, cfg.KafkaTopic),
		Processor:     processor,
		Secrets:       secrets,
		Payments:      pc,
		Intents:       pc,
		JWTSecret:     cfg.APISecret,
		WebhookSecret: cfg.WebhookSecret,
	})
	servers = append(servers, &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	for _, hs := range servers {
		g.Go(func() error {
			slog.Info("starting server", "addr", hs.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", hs.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, hs := range servers {
			if err := hs.Shutdown(sctx); err != nil {
				slog.Error("server shutdown", "addr", hs.Addr, "err", err)
			}
		}
		return nil
	})

	err = g.Wait()
	webhooks.Wait()
	slog.Info("server stopped")
	return err
}
