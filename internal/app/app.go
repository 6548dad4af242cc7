// Package app wires configuration, storage, domain services, and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tokoku/commerce/internal/cart"
	"github.com/tokoku/commerce/internal/domain/checkout"
	"github.com/tokoku/commerce/internal/domain/inventory"
	"github.com/tokoku/commerce/internal/domain/order"
	"github.com/tokoku/commerce/internal/domain/pickup"
	"github.com/tokoku/commerce/internal/handler"
	"github.com/tokoku/commerce/internal/notify"
	"github.com/tokoku/commerce/internal/payment"
	"github.com/tokoku/commerce/internal/repository"
	"github.com/tokoku/commerce/internal/shipping"
	"github.com/tokoku/commerce/internal/worker"
	"github.com/tokoku/commerce/pkg/health"
	"github.com/tokoku/commerce/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis for carts.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Storage.
	store := repository.NewStore(pool)
	carts := cart.NewStore(rdb, cfg.Cart.TTL)

	// Notification dispatcher: Kafka when brokers are configured, logs
	// otherwise.
	var notifier order.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kd := notify.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kd.Close() }()
		notifier = kd
	} else {
		lg.Info("No Kafka brokers configured, notifications go to the log")
		notifier = notify.NewLogDispatcher(lg)
	}

	// Domain services.
	pickupSvc := pickup.NewService(pickup.Config{
		Store:  store,
		Events: store,
		Logger: lg.Named("pickup"),
	})
	engine := order.NewEngine(order.EngineConfig{
		Store:    store,
		Notifier: notifier,
		Tokens:   pickupSvc,
		Logger:   lg.Named("engine"),
	})
	pickupSvc.SetEngine(engine)

	checkoutSvc := checkout.NewService(checkout.Config{
		Store:          repository.CheckoutStore{Store: store},
		Variants:       store,
		Addresses:      store,
		Shipping:       shipping.DefaultTable(),
		Carts:          carts,
		ReservationTTL: cfg.Reservations.TTL,
		Logger:         lg.Named("checkout"),
	})
	ledger := inventory.NewLedger(store, nil)

	// Payments.
	var provider payment.Provider
	var webhookProc *payment.WebhookProcessor
	if cfg.Stripe.APIKey != "" {
		sp, err := payment.NewStripeProvider(cfg.Stripe.APIKey)
		if err != nil {
			return errors.Wrap(err, "create stripe provider")
		}
		provider = sp
		webhookProc = payment.NewWebhookProcessor(store, engine, cfg.Stripe.WebhookSecret, nil, lg.Named("webhook"))
	} else {
		lg.Info("No Stripe API key configured, payment endpoints are disabled")
	}

	// Background reservation sweep.
	sweeper := worker.NewReservationSweeper(ledger, cfg.Reservations.SweepInterval, lg.Named("sweeper"))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// HTTP handlers.
	h := handler.NewHandler(handler.Config{
		Checkout: checkoutSvc,
		Engine:   engine,
		Orders:   store,
		Pickup:   pickupSvc,
		Webhook:  webhookProc,
		Carts:    carts,
		Variants: store,
		Ledger:   ledger,
		Payments: provider,
		Security: handler.NewSecurityHandler(store, []byte(cfg.APIKeyPepper)),
		Logger:   lg.Named("http"),
	})

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Register(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "X-Customer-Ref", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
