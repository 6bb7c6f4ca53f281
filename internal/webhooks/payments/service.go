package paymentwebhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/shopcore-backend/internal/payments"
	"github.com/angelmondragon/shopcore-backend/pkg/bankfeed"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

const apiKeyScheme = "apikey"

type reconciler interface {
	HandleTransfer(ctx context.Context, source enums.PaymentSource, transfer payments.Transfer) (*payments.Result, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// ServiceParams wires the webhook service. Guard and Logger are optional.
type ServiceParams struct {
	Payments reconciler
	Guard    deliveryGuard
	APIKey   string
	Logger   *logger.Logger
}

// Service authenticates provider pushes and hands them to payment reconciliation.
type Service struct {
	payments reconciler
	guard    deliveryGuard
	apiKey   string
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		payments: params.Payments,
		guard:    params.Guard,
		apiKey:   strings.TrimSpace(params.APIKey),
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Authorize checks the Authorization header, accepting "Apikey <key>" or the bare
// key. Every request is refused while no key is configured.
func (s *Service) Authorize(header string) bool {
	if s.apiKey == "" {
		return false
	}
	provided := strings.TrimSpace(header)
	if scheme, rest, ok := strings.Cut(provided, " "); ok && strings.EqualFold(scheme, apiKeyScheme) {
		provided = strings.TrimSpace(rest)
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) == 1
}

// Handle reconciles one delivery. Replays of a transaction id already seen are
// answered from Redis without touching the database; if Redis is unavailable the
// delivery still goes through and the database constraints decide.
func (s *Service) Handle(ctx context.Context, payload bankfeed.WebhookPayload) (*payments.Result, error) {
	transfer := payments.TransferFromWebhook(payload, s.now())
	ctx = s.logg.WithField(ctx, "transaction_id", transfer.TransactionID)

	marked := false
	if s.guard != nil && transfer.TransactionID != "" {
		seen, err := s.guard.CheckAndMark(ctx, transfer.TransactionID)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook idempotency check failed")
		case seen:
			s.logg.Info(ctx, "duplicate webhook delivery")
			return &payments.Result{Outcome: metrics.PaymentAlreadyProcessed, Message: "duplicate delivery"}, nil
		default:
			marked = true
		}
	}

	result, err := s.payments.HandleTransfer(ctx, enums.PaymentSourceWebhook, transfer)
	if err != nil && marked {
		if delErr := s.guard.Delete(ctx, transfer.TransactionID); delErr != nil {
			s.logg.Error(ctx, "release webhook idempotency key", delErr)
		}
	}
	return result, err
}
