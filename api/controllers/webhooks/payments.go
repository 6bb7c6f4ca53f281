package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	"github.com/angelmondragon/shopcore-backend/internal/payments"
	"github.com/angelmondragon/shopcore-backend/pkg/bankfeed"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

const maxWebhookBody = 64 << 10

type paymentWebhookHandler interface {
	Authorize(header string) bool
	Handle(ctx context.Context, payload bankfeed.WebhookPayload) (*payments.Result, error)
}

// PaymentWebhook accepts bank transfer notifications from the payment provider.
// Business rejections are acknowledged with a 200 so the provider stops retrying.
func PaymentWebhook(svc paymentWebhookHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !svc.Authorize(r.Header.Get("Authorization")) {
			logg.Warn(ctx, "payment webhook unauthorized")
			responses.WriteWebhookAck(w, http.StatusUnauthorized, false, "unauthorized")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "payment webhook read failed")
			responses.WriteWebhookAck(w, http.StatusBadRequest, false, "invalid payload")
			return
		}

		var payload bankfeed.WebhookPayload
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&payload); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "payment webhook decode failed")
			responses.WriteWebhookAck(w, http.StatusBadRequest, false, "invalid payload")
			return
		}
		if json.Valid(body) {
			payload.Raw = json.RawMessage(body)
		}
		if err := validators.Struct(payload); err != nil {
			_, message := responses.Describe(err)
			responses.WriteWebhookAck(w, http.StatusBadRequest, false, message)
			return
		}

		result, err := svc.Handle(ctx, payload)
		if err != nil {
			status, message := responses.Describe(err)
			if status >= http.StatusInternalServerError {
				logg.Error(ctx, "payment webhook failed", err)
			}
			responses.WriteWebhookAck(w, status, false, message)
			return
		}

		switch result.Outcome {
		case metrics.PaymentPaid, metrics.PaymentAlreadyProcessed:
			responses.WriteWebhookAck(w, http.StatusOK, true, result.Message)
		default:
			responses.WriteWebhookAck(w, http.StatusOK, false, result.Message)
		}
	}
}
