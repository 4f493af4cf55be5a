package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/seat-hold-engine/internal/clock"
	"github.com/iliyamo/seat-hold-engine/internal/config"
	"github.com/iliyamo/seat-hold-engine/internal/database"
	"github.com/iliyamo/seat-hold-engine/internal/handler"
	"github.com/iliyamo/seat-hold-engine/internal/ledger"
	"github.com/iliyamo/seat-hold-engine/internal/logging"
	"github.com/iliyamo/seat-hold-engine/internal/middleware"
	"github.com/iliyamo/seat-hold-engine/internal/queue"
	"github.com/iliyamo/seat-hold-engine/internal/repository"
	"github.com/iliyamo/seat-hold-engine/internal/router"
	"github.com/iliyamo/seat-hold-engine/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load() // .env is optional outside development
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	engine := ledger.NewEngine(store, clock.Real{}, cfg.Layout)
	sweeper := ledger.NewSweeper(engine, cfg.SweepInterval, cfg.SweepMinGap)

	// Redis backs rate limiting and response caching; both pass through
	// when it is unreachable.
	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logrus.Warn("redis unavailable: rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	var publisher handler.EventPublisher
	var consumer *queue.ConfirmationConsumer
	if cfg.EventsEnabled && cfg.AMQPURL != "" {
		p := service.NewPublisher(cfg.AMQPURL)
		defer p.Close()
		publisher = p
		consumer = queue.NewConfirmationConsumer(cfg.AMQPURL, cfg.ConfirmationLogDir)
	} else {
		logrus.Info("seats.confirmed events disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.CorrelationID())
	router.RegisterRoutes(e)
	router.RegisterSeats(e, router.SeatRoutes{
		Handler:   handler.NewSeatHandler(engine, publisher, cfg.HoldTTL, cfg.MaxSeatsPerOrder),
		Ops:       handler.NewOpsHandler(engine),
		Sweeper:   sweeper,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		JWTSecret: cfg.JWTSecret,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		addr := ":" + cfg.Port
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "ledger": cfg.LedgerDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
	logrus.Info("server stopped")
}

// openStore builds the ledger store selected by LEDGER_DRIVER and returns
// a function releasing it.
func openStore(ctx context.Context, cfg config.Config) (ledger.Store, func()) {
	if cfg.LedgerDriver == config.DriverMemory {
		logrus.Warn("using in-memory seat ledger: state is lost on restart")
		return ledger.NewMemoryStore(), func() {}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.WithError(err).Fatal("connect to mysql")
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		logrus.WithError(err).Fatal("ensure schema")
	}
	return repository.NewDefaultSeatLedger(db), func() { _ = db.Close() }
}
