package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/checkout/helpers"
	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/pkg/bankfeed"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

const pollPageLimit = 100

var errAlreadyProcessed = errors.New("payment already processed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentStateMachine interface {
	UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, error)
}

type confirmationNotifier interface {
	SendOrderConfirmed(ctx context.Context, order *models.Order)
}

type transactionFeed interface {
	ListTransactions(ctx context.Context, params bankfeed.ListParams) ([]bankfeed.Transaction, error)
}

// Transfer is a provider-neutral view of one bank movement.
type Transfer struct {
	TransactionID string
	AccountNumber string
	Incoming      bool
	Amount        decimal.Decimal
	Content       string
	ReceivedAt    time.Time
	Raw           json.RawMessage
}

// TransferFromWebhook maps a pushed provider payload.
func TransferFromWebhook(payload bankfeed.WebhookPayload, now time.Time) Transfer {
	return Transfer{
		TransactionID: payload.ID.String(),
		AccountNumber: strings.TrimSpace(payload.AccountNumber),
		Incoming:      payload.Incoming(),
		Amount:        payload.TransferAmount,
		Content:       payload.SearchText(),
		ReceivedAt:    payload.ReceivedAt(now),
		Raw:           payload.Body(),
	}
}

// TransferFromFeed maps a polled feed transaction.
func TransferFromFeed(txn bankfeed.Transaction) Transfer {
	return Transfer{
		TransactionID: txn.ID,
		AccountNumber: txn.AccountNumber,
		Incoming:      txn.Incoming(),
		Amount:        txn.AmountIn,
		Content:       txn.Content,
		ReceivedAt:    txn.TransactionDate,
		Raw:           txn.Raw,
	}
}

// Result describes what a reconciliation attempt did. Outcome is one of the
// metrics payment results: paid, already_processed or rejected.
type Result struct {
	Outcome     string     `json:"outcome"`
	Message     string     `json:"message"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
	OrderNumber string     `json:"order_number,omitempty"`
}

// Paid reports whether this attempt moved the order to PAID.
func (r *Result) Paid() bool {
	return r != nil && r.Outcome == metrics.PaymentPaid
}

// PollSummary tallies one pass over the provider feed.
type PollSummary struct {
	Fetched          int `json:"fetched"`
	Paid             int `json:"paid"`
	AlreadyProcessed int `json:"already_processed"`
	Rejected         int `json:"rejected"`
	Failed           int `json:"failed"`
}

// Service reconciles incoming transfers against pending orders.
type Service interface {
	ConfirmManual(ctx context.Context, orderID uuid.UUID, actor uuid.UUID) (*Result, error)
	HandleTransfer(ctx context.Context, source enums.PaymentSource, transfer Transfer) (*Result, error)
	PollOnce(ctx context.Context) (PollSummary, error)
}

// ServiceParams wires the payments service. Feed, Notifier, Metrics and Logger are optional.
type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Orders   orders.Repository
	Payments paymentStateMachine
	Feed     transactionFeed
	Notifier confirmationNotifier
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Config   config.PaymentsConfig
}

type service struct {
	tx       txRunner
	repo     Repository
	orders   orders.Repository
	payments paymentStateMachine
	feed     transactionFeed
	notifier confirmationNotifier
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	cfg      config.PaymentsConfig
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment state machine required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		orders:   params.Orders,
		payments: params.Payments,
		feed:     params.Feed,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     logg,
		cfg:      params.Config,
		now:      time.Now,
	}, nil
}

// ConfirmManual marks an order paid on an operator's word, recording the full
// order total as the received amount.
func (s *service) ConfirmManual(ctx context.Context, orderID uuid.UUID, actor uuid.UUID) (*Result, error) {
	source := enums.PaymentSourceManual
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		s.metrics.IncPayment(string(source), metrics.PaymentRejected)
		return nil, db.ClassifyError(err, "find order")
	}

	raw, err := json.Marshal(map[string]string{"confirmed_by": actor.String()})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal manual confirmation")
	}
	transfer := Transfer{
		TransactionID: "manual-" + order.ID.String(),
		Incoming:      true,
		Amount:        decimal.NewFromInt(order.TotalAmount),
		Content:       order.OrderNumber,
		ReceivedAt:    s.now().UTC(),
		Raw:           raw,
	}
	result, err := s.settle(ctx, source, order, transfer)
	s.record(ctx, source, result, err)
	return result, err
}

// HandleTransfer reconciles one pushed or polled transfer. Transfers that cannot
// be matched to a payable order come back as rejected results, not errors.
func (s *service) HandleTransfer(ctx context.Context, source enums.PaymentSource, transfer Transfer) (*Result, error) {
	if !source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment source")
	}
	result, err := s.handleTransfer(ctx, source, transfer)
	s.record(ctx, source, result, err)
	return result, err
}

func (s *service) handleTransfer(ctx context.Context, source enums.PaymentSource, transfer Transfer) (*Result, error) {
	if strings.TrimSpace(transfer.TransactionID) == "" {
		return rejected("missing transaction id", nil), nil
	}
	if !transfer.Incoming {
		return rejected("not an incoming transfer", nil), nil
	}
	if account := strings.TrimSpace(s.cfg.AccountNumber); account != "" &&
		transfer.AccountNumber != "" && transfer.AccountNumber != account {
		return rejected("transfer to unknown account", nil), nil
	}

	orderNumber, ok := helpers.FindOrderNumber(transfer.Content)
	if !ok {
		return rejected("no order reference in transfer content", nil), nil
	}
	order, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Result{Outcome: metrics.PaymentRejected, Message: "order not found", OrderNumber: orderNumber}, nil
		}
		return nil, db.ClassifyError(err, "find order by number")
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return resultFor(metrics.PaymentAlreadyProcessed, "payment already processed", order), nil
	}
	if !coversTotal(transfer.Amount, order.TotalAmount) {
		return resultFor(metrics.PaymentRejected, "transfer amount below order total", order), nil
	}
	return s.settle(ctx, source, order, transfer)
}

// settle records the payment and moves the order to PAID in one transaction.
// The order row lock serializes racing webhook and poller deliveries; the loser
// observes a non-pending payment status and reports already_processed.
func (s *service) settle(ctx context.Context, source enums.PaymentSource, order *models.Order, transfer Transfer) (*Result, error) {
	var (
		updated *models.Order
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByTransactionID(ctx, transfer.TransactionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errAlreadyProcessed
		}

		locked, err := s.orders.WithTx(tx).LockByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus != enums.PaymentStatusPending {
			return errAlreadyProcessed
		}
		if locked.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cancelled").
				WithDetails(map[string]any{"order_number": locked.OrderNumber})
		}
		if !coversTotal(transfer.Amount, locked.TotalAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "transfer amount below order total")
		}

		completedAt := transfer.ReceivedAt
		if completedAt.IsZero() {
			completedAt = s.now().UTC()
		}
		payment := &models.Payment{
			OrderID:         locked.ID,
			Amount:          transfer.Amount.Round(0).IntPart(),
			TransactionID:   transfer.TransactionID,
			Source:          source,
			Status:          enums.PaymentStatusPaid,
			GatewayResponse: transfer.Raw,
			CompletedAt:     &completedAt,
		}
		if err := repo.Create(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errAlreadyProcessed
			}
			return err
		}

		updated, changed, err = s.payments.UpdatePaymentStatusTx(ctx, tx, locked.ID, enums.PaymentStatusPaid)
		if err != nil {
			return err
		}
		if !changed {
			return errAlreadyProcessed
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyProcessed):
		return resultFor(metrics.PaymentAlreadyProcessed, "payment already processed", order), nil
	case pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return resultFor(metrics.PaymentRejected, "transfer amount below order total", order), nil
	case err != nil:
		return nil, err
	}

	if changed && s.notifier != nil {
		s.notifier.SendOrderConfirmed(ctx, updated)
	}
	return resultFor(metrics.PaymentPaid, "payment confirmed", updated), nil
}

// PollOnce pulls recent incoming transfers from the provider feed and reconciles
// each. One failing transfer never stops the rest.
func (s *service) PollOnce(ctx context.Context) (PollSummary, error) {
	var summary PollSummary
	if s.feed == nil {
		return summary, pkgerrors.New(pkgerrors.CodeDependency, "payment polling not configured")
	}

	since := time.Time{}
	if s.cfg.PollLookback > 0 {
		since = s.now().Add(-s.cfg.PollLookback)
	}
	txns, err := s.feed.ListTransactions(ctx, bankfeed.ListParams{
		AccountNumber: s.cfg.AccountNumber,
		Since:         since,
		Limit:         pollPageLimit,
	})
	if err != nil {
		return summary, err
	}
	summary.Fetched = len(txns)

	var errs error
	for _, txn := range txns {
		if !txn.Incoming() {
			continue
		}
		if _, ok := helpers.FindOrderNumber(txn.Content); !ok {
			continue
		}
		result, err := s.HandleTransfer(ctx, enums.PaymentSourcePoll, TransferFromFeed(txn))
		if err != nil {
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("transaction %s: %w", txn.ID, err))
			continue
		}
		switch result.Outcome {
		case metrics.PaymentPaid:
			summary.Paid++
		case metrics.PaymentAlreadyProcessed:
			summary.AlreadyProcessed++
		default:
			summary.Rejected++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"fetched":           summary.Fetched,
		"paid":              summary.Paid,
		"already_processed": summary.AlreadyProcessed,
		"rejected":          summary.Rejected,
		"failed":            summary.Failed,
	})
	s.logg.Info(logCtx, "payment poll completed")
	return summary, errs
}

func (s *service) record(ctx context.Context, source enums.PaymentSource, result *Result, err error) {
	fields := map[string]any{"source": string(source)}
	if result != nil && result.OrderNumber != "" {
		fields["order_number"] = result.OrderNumber
	}
	logCtx := s.logg.WithFields(ctx, fields)

	if err != nil {
		s.metrics.IncPayment(string(source), metrics.PaymentError)
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			s.logg.Error(logCtx, "payment received for cancelled order, manual refund required", err)
			return
		}
		s.logg.Error(logCtx, "payment reconciliation failed", err)
		return
	}

	s.metrics.IncPayment(string(source), result.Outcome)
	switch result.Outcome {
	case metrics.PaymentPaid:
		s.logg.Info(logCtx, "payment confirmed")
	case metrics.PaymentRejected:
		s.logg.Warn(s.logg.WithField(logCtx, "reason", result.Message), "payment rejected")
	}
}

func coversTotal(amount decimal.Decimal, total int64) bool {
	return amount.GreaterThanOrEqual(decimal.NewFromInt(total))
}

func rejected(message string, order *models.Order) *Result {
	return resultFor(metrics.PaymentRejected, message, order)
}

func resultFor(outcome, message string, order *models.Order) *Result {
	result := &Result{Outcome: outcome, Message: message}
	if order != nil {
		id := order.ID
		result.OrderID = &id
		result.OrderNumber = order.OrderNumber
	}
	return result
}
