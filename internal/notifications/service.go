// Package notifications queues customer and staff notifications for orders.
// Delivery happens downstream of the outbox publisher; failures here never affect the order.
package notifications

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

// Service sends order notifications on a best-effort basis.
type Service interface {
	SendNewOrder(ctx context.Context, order *models.Order)
	SendOrderConfirmed(ctx context.Context, order *models.Order)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	tx     txRunner
	outbox emitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(tx txRunner, outboxSvc emitter, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{tx: tx, outbox: outboxSvc, logg: logg, now: time.Now}, nil
}

func (s *service) SendNewOrder(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	lines := make([]payloads.NotificationLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.NotificationLine{
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	s.emit(ctx, order, enums.EventNotificationNewOrder, payloads.NewOrderNotification{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		CustomerPhone:  order.CustomerPhone,
		ShippingCity:   order.ShippingCity,
		Subtotal:       order.Subtotal,
		ShippingFee:    order.ShippingFee,
		DiscountAmount: order.DiscountAmount,
		DiscountCode:   order.DiscountCode,
		TotalAmount:    order.TotalAmount,
		Items:          lines,
		OrderDate:      order.OrderDate,
	})
}

func (s *service) SendOrderConfirmed(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	confirmedAt := s.now().UTC()
	if order.ConfirmedAt != nil {
		confirmedAt = *order.ConfirmedAt
	}
	s.emit(ctx, order, enums.EventNotificationOrderConfirmed, payloads.OrderConfirmedNotification{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount,
		ConfirmedAt:   confirmedAt,
	})
}

func (s *service) emit(ctx context.Context, order *models.Order, eventType enums.OutboxEventType, data any) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          data,
		})
	})
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_number": order.OrderNumber,
			"event_type":   eventType,
		})
		s.logg.Error(logCtx, "failed to queue notification", err)
	}
}
