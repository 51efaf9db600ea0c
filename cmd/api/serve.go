package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/webforge/backend/internal/appeal"
	"github.com/webforge/backend/internal/blob"
	"github.com/webforge/backend/internal/config"
	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/events"
	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/ledger"
	"github.com/webforge/backend/internal/memstore"
	"github.com/webforge/backend/internal/notify"
	"github.com/webforge/backend/internal/pricing"
	"github.com/webforge/backend/internal/router"
	"github.com/webforge/backend/internal/stats"
	"github.com/webforge/backend/internal/teams"
	"github.com/webforge/backend/internal/workorder"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrateFirst)
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply migrations before serving (postgres only)")
	if err := settings.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
		panic(fmt.Sprintf("bind port flag: %v", err))
	}
	return cmd
}

// orderStore is what both the work order and appeal services need from order storage.
type orderStore interface {
	workorder.Store
	appeal.OrderReader
}

// stores holds the persistence backends the services are built on.
type stores struct {
	teams   teams.Store
	ledger  ledger.Store
	tariffs pricing.Store
	orders  orderStore
	appeals appeal.Store
	txs     db.TxBeginner
}

func serve(ctx context.Context, cfg *config.Config, migrateFirst bool) error {
	log := slog.Default()
	var (
		st       stores
		notifier notify.Dispatcher
		sink     notify.Sink = notify.LogSink{Log: log}
	)
	if cfg.NotifyWebhook != "" {
		sink = notify.NewWebhookSink(cfg.NotifyWebhook)
	}

	switch cfg.Store {
	case config.StoreMemory:
		mem := memstore.New()
		st = stores{
			teams: mem.Teams(), ledger: mem.Ledger(), tariffs: mem.Tariffs(),
			orders: mem.Orders(), appeals: mem.Appeals(), txs: mem,
		}
		notifier = notify.Direct{Sink: sink, Log: log}
		log.Warn("using in-memory store; data is lost on exit")

	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("connected to PostgreSQL")
		if migrateFirst {
			if err := migrate(ctx, pool); err != nil {
				return err
			}
		}
		st = stores{
			teams:   teams.NewRepository(pool),
			ledger:  ledger.NewRepository(pool),
			tariffs: pricing.NewRepository(pool),
			orders:  workorder.NewRepository(pool),
			appeals: appeal.NewRepository(pool),
			txs:     pool,
		}

		workers := river.NewWorkers()
		river.AddWorker(workers, notify.NewSendWorker(sink))
		riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 10},
			},
			Workers: workers,
		})
		if err != nil {
			return fmt.Errorf("create river client: %w", err)
		}
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		defer stopRiver(riverClient, log)
		notifier = &notify.RiverDispatcher{Client: riverClient, Log: log}
	}

	var blobs blob.Store = blob.NewMemoryStore()
	if cfg.MinIO.Enabled() {
		m := cfg.MinIO
		store, err := blob.NewMinIOStore(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL, log)
		if err != nil {
			return err
		}
		blobs = store
	}

	var bus events.Bus = events.LogBus{Log: log}
	if cfg.Kafka.Enabled() {
		kb := events.NewKafkaBus(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kb.Close()
		bus = kb
	}

	resolver, err := pricing.NewResolver(st.tariffs, cfg.TariffCacheSize, log)
	if err != nil {
		return err
	}
	ledgerSvc := ledger.NewService(st.ledger, st.txs)
	teamSvc := teams.NewService(st.teams, ledgerSvc, resolver, st.txs, bus, log)
	orderSvc := workorder.NewService(workorder.Deps{
		Store:    st.orders,
		Teams:    st.teams,
		Pricer:   resolver,
		Ledger:   ledgerSvc,
		Blobs:    blobs,
		Txs:      st.txs,
		Notifier: notifier,
		Bus:      bus,
		Log:      log,
	}, workorder.Config{BulkConcurrency: cfg.BulkConcurrency})
	appealSvc := appeal.NewService(appeal.Deps{
		Store:    st.appeals,
		Orders:   st.orders,
		Ledger:   ledgerSvc,
		Txs:      st.txs,
		Notifier: notifier,
		Bus:      bus,
		Log:      log,
	}, cfg.BulkConcurrency)

	tokens, err := identity.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	handler := router.New(router.Handlers{
		Orders:  workorder.NewHandler(orderSvc, log),
		Appeals: appeal.NewHandler(appealSvc, st.orders, log),
		Teams:   teams.NewHandler(teamSvc, log),
		Pricing: pricing.NewHandler(resolver, log),
		Stats:   stats.NewHandler(st.orders, log),
	}, tokens, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "addr", srv.Addr, "store", cfg.Store)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopRiver(c *river.Client[pgx.Tx], log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		log.Error("river client stop", "error", err)
	}
}
