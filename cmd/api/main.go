package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/inventory"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/application/report"
	"github.com/jhoicas/pos-multitienda/internal/application/sale"
	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/application/usecase"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/cache"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/centralclient"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/postgres"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/sqlite"
	httpRouter "github.com/jhoicas/pos-multitienda/internal/interfaces/http"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/config"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
		Node:  cfg.App.NodeRole,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuración")
	}
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("role", cfg.App.NodeRole).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migración del esquema")
	}

	clk := clock.NewSystem()
	txRunner := postgres.NewTxRunner(pool)
	guard := access.NewGuard()
	admission := httpRouter.NewAdmission(cfg.HTTP.MaxInFlight, time.Second)

	// Redis es opcional: sin REDIS_ADDR se lee directo del ledger y el candado por tienda es solo el de Postgres.
	var (
		reader   ledger.Reader
		cached   *ledger.CachedReader
		syncOpts = []syncer.Option{syncer.WithLoadGauge(admission)}
		ledgOpts []ledger.Option
	)
	if cfg.Redis.Enabled() {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		defer rdb.Close()
		cached = ledger.NewCachedReader(nil, cache.NewPositionCache(rdb), cfg.Redis.CacheTTL, log)
		ledgOpts = append(ledgOpts, ledger.WithCommitListener(cached))
		syncOpts = append(syncOpts, syncer.WithEdgeLocker(cache.NewEdgeLocker(rdb, cfg.HTTP.RequestDeadline)))
	}
	l := ledger.New(txRunner, clk, log, ledgOpts...)
	reader = l
	if cached != nil {
		cached.SetSource(l)
		reader = cached
	}

	var (
		saleOpts     []sale.Option
		transferOpts []transfer.Option
		adjustOpts   []inventory.Option
		journal      *sqlite.Journal
	)
	if cfg.IsEdge() {
		journal, err = sqlite.Open(cfg.Edge.JournalPath, clk)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Edge.JournalPath).Msg("abrir journal de la tienda")
		}
		defer journal.Close()
		saleOpts = append(saleOpts, sale.WithJournal(journal))
		transferOpts = append(transferOpts, transfer.WithJournal(journal))
		adjustOpts = append(adjustOpts, inventory.WithJournal(journal))
	}

	sales := sale.NewService(txRunner, l, guard, clk, log, saleOpts...)
	transfers := transfer.NewService(txRunner, l, guard, clk, log, transferOpts...)
	adjustments := inventory.NewAdjustmentUseCase(txRunner, l, guard, clk, log, adjustOpts...)

	deps := httpRouter.RouterDeps{
		StoreUC:         usecase.NewStoreUseCase(txRunner, guard, clk),
		ProductUC:       usecase.NewProductUseCase(txRunner, guard, clk),
		Sales:           sales,
		Transfers:       transfers,
		Adjustments:     adjustments,
		InventoryQuery:  inventory.NewQueryUseCase(reader, l, guard),
		Admission:       admission,
		RequestDeadline: cfg.HTTP.RequestDeadline,
		JWTSecret:       cfg.JWT.Secret,
	}
	if !cfg.IsEdge() {
		checkCentralStore(ctx, txRunner, cfg.Core.CentralStoreID, log)
		deps.Reporter = report.NewReporter(txRunner, guard, clk, log, report.Config{
			StalenessBound:    cfg.Core.StalenessBound,
			LowStockThreshold: cfg.Core.LowStockThreshold,
		})
		deps.Coordinator = syncer.NewCoordinator(txRunner, sales, transfers, adjustments, guard, clk, log,
			syncer.Config{MaxOps: cfg.Sync.EnvelopeMaxOps, BackoffBase: cfg.Sync.BackoffBase},
			syncOpts...)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
		ErrorHandler: httpRouter.ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "POS Multitienda API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "role": cfg.App.NodeRole})
	})

	httpRouter.Router(app, deps)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return app.Listen(cfg.HTTP.Addr())
	})
	if journal != nil && cfg.Edge.CentralURL != "" {
		transport := centralclient.New(cfg.Edge.CentralURL, cfg.Edge.CentralToken, cfg.HTTP.RequestDeadline*3)
		pusher := syncer.NewPusher(journal, transport, cfg.Edge.StoreID, cfg.Sync.EnvelopeMaxOps, cfg.Sync.BackoffBase, log)
		g.Go(func() error {
			if err := pusher.Loop(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else if journal != nil {
		log.Warn().Msg("CENTRAL_URL vacío: el journal acumula sobres hasta que se envíen con edge-sync")
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("aplicación finalizada con error")
	}
	log.Info().Msg("aplicación detenida")
}

// checkCentralStore avisa si CENTRAL_STORE_ID no coincide con la tienda CENTRAL registrada.
func checkCentralStore(ctx context.Context, runner repository.TxRunner, id string, log *logger.Logger) {
	if id == "" {
		return
	}
	err := runner.ReadOnly(ctx, func(tx repository.Tx) error {
		st, err := tx.Stores().GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case st == nil:
			log.Warn().Str("store_id", id).Msg("la tienda central aún no está registrada")
		case !st.IsCentral():
			log.Fatal().Str("store_id", id).Str("kind", st.Kind).Msg("CENTRAL_STORE_ID no es una tienda CENTRAL")
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("verificar tienda central")
	}
}
