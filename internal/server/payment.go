package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/payment"
	"github.com/abdotop/cartpay/internal/provider"
	"github.com/abdotop/cartpay/internal/utils"
)

const (
	maxWebhookBody   = 64 << 10
	webhookTolerance = 5 * time.Minute
)

// HandleProcessPayment POST /api/v1/payment/process
func (s *server) HandleProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := mustUser(w, r); !ok {
		return
	}
	if s.processor == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "payments-unavailable", "Payment processing is not configured")
		return
	}

	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid-json", "Invalid JSON body")
		return
	}

	secret, err := s.processor.RequestSecret(ctx, req)
	if errors.Is(err, payment.ErrInvalidRequest) {
		writeAPIError(w, http.StatusBadRequest, "request-validation-error", err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create payment intent", "error", err)
		writeAPIError(w, http.StatusBadGateway, "payment-provider-error", "Failed to create payment")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.PaymentResponse{Success: true, ClientSecret: secret})
}

// HandlePaymentWebhook POST /api/v1/payment/webhook
func (s *server) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeAPIError(w, http.StatusRequestEntityTooLarge, "payload-too-large", "Webhook payload too large")
		return
	}
	if err := provider.VerifySignature(r.Header.Get(provider.SignatureHeader), body, s.webhookSecret, webhookTolerance, s.now()); err != nil {
		slog.InfoContext(ctx, "Rejected webhook", "error", err)
		writeAPIError(w, http.StatusBadRequest, "invalid-signature", err.Error())
		return
	}

	var event provider.Event
	if err := json.Unmarshal(body, &event); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid-json", "Invalid event payload")
		return
	}
	intent := event.Data.Object

	switch event.Type {
	case provider.EventIntentSucceeded:
		matched, err := s.orders.MarkPaymentVerified(ctx, intent.ID, intent.Status)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to verify order payment", "intent_id", intent.ID, "error", err)
			writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to process event")
			return
		}
		slog.InfoContext(ctx, "Payment verified", "intent_id", intent.ID, "order_found", matched)
	case provider.EventIntentPaymentFailed:
		code := ""
		if intent.LastPaymentError != nil {
			code = intent.LastPaymentError.Code
		}
		slog.InfoContext(ctx, "Payment failed", "intent_id", intent.ID, "code", code)
	default:
		slog.InfoContext(ctx, "Unhandled webhook event", "type", event.Type)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
