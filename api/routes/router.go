package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopcore-backend/api/controllers"
	invcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/orders"
	pocontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/purchaseorders"
	webhookcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/shopcore-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/shopcore-backend/internal/checkout"
	"github.com/angelmondragon/shopcore-backend/internal/payments"
	"github.com/angelmondragon/shopcore-backend/pkg/bankfeed"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

const checkoutRateScope = "checkout"

// Cache backs request idempotency and per-user rate limits.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type OrderService interface {
	ordercontrollers.CustomerService
	ordercontrollers.AdminService
}

type PaymentConfirmer interface {
	ConfirmManual(ctx context.Context, orderID uuid.UUID, actor uuid.UUID) (*payments.Result, error)
}

type PaymentWebhook interface {
	Authorize(header string) bool
	Handle(ctx context.Context, payload bankfeed.WebhookPayload) (*payments.Result, error)
}

// Params carries everything the HTTP surface needs. Cache and Gatherer are optional.
type Params struct {
	Config         *config.Config
	Logger         *logger.Logger
	Health         map[string]controllers.Pinger
	Cache          Cache
	Gatherer       prometheus.Gatherer
	Checkout       checkoutsvc.Service
	Orders         OrderService
	Payments       PaymentConfirmer
	Inventory      invcontrollers.Service
	PurchaseOrders pocontrollers.Service
	PaymentWebhook PaymentWebhook
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Health))
	})
	r.Handle("/metrics", metricsHandler(p.Gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/payments", webhookcontrollers.PaymentWebhook(p.PaymentWebhook, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			checkout := r.With()
			if p.Cache != nil {
				checkout = r.With(
					middleware.RateLimitPerUser(checkoutRateScope, cfg.HTTP.CheckoutRateLimit, cfg.HTTP.CheckoutRateWindow, p.Cache, logg),
					middleware.Idempotency(p.Cache, cfg.HTTP.IdempotencyTTL, logg),
				)
			}
			checkout.Post("/checkout", controllers.Checkout(p.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(p.Orders, logg))
				r.Get("/by-number/{orderNumber}", ordercontrollers.GetByNumber(p.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Get(p.Orders, logg))
				r.Post("/{orderId}/cancel", ordercontrollers.Cancel(p.Orders, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))
		if p.Cache != nil {
			r.Use(middleware.Idempotency(p.Cache, cfg.HTTP.IdempotencyTTL, logg))
		}

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.AdminList(p.Orders, logg))
			r.Patch("/{orderId}/status", ordercontrollers.AdminUpdateStatus(p.Orders, logg))
			r.Patch("/{orderId}/payment-status", ordercontrollers.AdminUpdatePaymentStatus(p.Orders, logg))
			r.Patch("/{orderId}/shipping", ordercontrollers.AdminUpdateShipping(p.Orders, logg))
			r.Post("/{orderId}/confirm-payment", ordercontrollers.AdminConfirmPayment(p.Payments, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/transactions", invcontrollers.AppendTransaction(p.Inventory, logg))
			r.Get("/transactions", invcontrollers.ListTransactions(p.Inventory, logg))
			r.Post("/adjust", invcontrollers.Adjust(p.Inventory, logg))
			r.Get("/history", invcontrollers.History(p.Inventory, logg))
		})

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Post("/", pocontrollers.Create(p.PurchaseOrders, logg))
			r.Get("/", pocontrollers.List(p.PurchaseOrders, logg))
			r.Get("/{poId}", pocontrollers.Get(p.PurchaseOrders, logg))
			r.Patch("/{poId}/status", pocontrollers.UpdateStatus(p.PurchaseOrders, logg))
			r.Post("/{poId}/items/{itemId}/receive", pocontrollers.ReceiveItem(p.PurchaseOrders, logg))
			r.Post("/{poId}/receive", pocontrollers.ReceiveAll(p.PurchaseOrders, logg))
		})
	})

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
