package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/shopcore-backend/api/controllers"
	"github.com/angelmondragon/shopcore-backend/api/routes"
	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/checkout"
	"github.com/angelmondragon/shopcore-backend/internal/cron"
	"github.com/angelmondragon/shopcore-backend/internal/discounts"
	"github.com/angelmondragon/shopcore-backend/internal/inventory"
	"github.com/angelmondragon/shopcore-backend/internal/notifications"
	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/payments"
	"github.com/angelmondragon/shopcore-backend/internal/purchaseorders"
	paymentwebhook "github.com/angelmondragon/shopcore-backend/internal/webhooks/payments"
	"github.com/angelmondragon/shopcore-backend/pkg/bankfeed"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/idempotency"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/migrate"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/redis"
)

const webhookIdempotencyScope = "payments-webhook"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	svcs, err := buildServices(cfg, logg, dbClient, redisClient, orderMetrics)
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Params{
		Config: cfg,
		Logger: logg,
		Health: map[string]controllers.Pinger{
			"postgres": dbClient,
			"redis":    redisClient,
		},
		Cache:          redisClient,
		Gatherer:       registry,
		Checkout:       svcs.checkout,
		Orders:         svcs.orders,
		Payments:       svcs.payments,
		Inventory:      svcs.inventory,
		PurchaseOrders: svcs.purchaseOrders,
		PaymentWebhook: svcs.webhook,
	})

	addr := ":" + cfg.App.Port
	server := &http.Server{Addr: addr, Handler: handler}
	logCtx := logg.WithField(ctx, "addr", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "api server shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if cfg.FeatureFlags.EmbeddedSweeper {
		sweeper, err := newEmbeddedSweeper(cfg, logg, dbClient, redisClient, svcs, orderMetrics, registry)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logg.Info(logCtx, "starting embedded sweeper")
			if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

type services struct {
	checkout       checkout.Service
	orders         orders.Service
	payments       payments.Service
	inventory      inventory.Service
	purchaseOrders purchaseorders.Service
	webhook        *paymentwebhook.Service
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, orderMetrics *metrics.OrderMetrics) (*services, error) {
	conn := dbClient.DB()

	notifier, err := notifications.NewService(dbClient, outbox.NewService(outbox.NewRepository(conn), logg), logg)
	if err != nil {
		return nil, err
	}
	inventorySvc, err := inventory.NewService(dbClient, inventory.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Tx:        dbClient,
		Repo:      ordersRepo,
		Inventory: inventorySvc,
		Notifier:  notifier,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}
	cartSvc, err := cart.NewService(cart.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	discountsSvc, err := discounts.NewService(discounts.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:        dbClient,
		Cart:      cartSvc,
		Inventory: inventorySvc,
		Discounts: discountsSvc,
		Orders:    ordersRepo,
		Notifier:  notifier,
		Metrics:   orderMetrics,
		Logger:    logg,
		Config:    cfg.Checkout,
	})
	if err != nil {
		return nil, err
	}

	paymentParams := payments.ServiceParams{
		Tx:       dbClient,
		Repo:     payments.NewRepository(conn),
		Orders:   ordersRepo,
		Payments: ordersSvc,
		Notifier: notifier,
		Metrics:  orderMetrics,
		Logger:   logg,
		Config:   cfg.Payments,
	}
	if cfg.Payments.PollingEnabled() {
		feed, err := bankfeed.NewClient(cfg.Payments.ProviderToken,
			bankfeed.WithBaseURL(cfg.Payments.ProviderBaseURL),
			bankfeed.WithTimeout(cfg.Payments.RequestTimeout),
		)
		if err != nil {
			return nil, err
		}
		paymentParams.Feed = feed
	}
	paymentsSvc, err := payments.NewService(paymentParams)
	if err != nil {
		return nil, err
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookIdempotencyScope)
	if err != nil {
		return nil, err
	}
	webhookSvc, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Payments: paymentsSvc,
		Guard:    guard,
		APIKey:   cfg.Payments.WebhookAPIKey,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	poSvc, err := purchaseorders.NewService(dbClient, purchaseorders.NewRepository(conn), inventorySvc, logg)
	if err != nil {
		return nil, err
	}

	return &services{
		checkout:       checkoutSvc,
		orders:         ordersSvc,
		payments:       paymentsSvc,
		inventory:      inventorySvc,
		purchaseOrders: poSvc,
		webhook:        webhookSvc,
	}, nil
}

func newEmbeddedSweeper(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, svcs *services, orderMetrics *metrics.OrderMetrics, reg prometheus.Registerer) (*cron.Service, error) {
	jobs, err := cron.NewDefaultRegistry(cron.DefaultJobsParams{
		Logger:   logg,
		Orders:   svcs.orders,
		Payments: svcs.payments,
		DB:       dbClient,
		Outbox:   outbox.NewRepository(dbClient.DB()),
		Metrics:  orderMetrics,
		Checkout: cfg.Checkout,
		Polling:  cfg.Payments,
	})
	if err != nil {
		return nil, err
	}
	lock, err := cron.NewRedisLock(redisClient, 0)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
}
