package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/orders"
	"github.com/abdotop/cartpay/internal/payment"
	"github.com/abdotop/cartpay/internal/provider"
	"github.com/abdotop/cartpay/internal/utils"
)

var (
	errPaymentUnknown  = errors.New("payment not found at the provider")
	errPaymentMismatch = errors.New("payment does not match the order")
)

// verifyPayment checks the draft's payment against the provider: the intent
// must exist, have succeeded and charge exactly the order total.
func (s *server) verifyPayment(ctx context.Context, draft *domain.Order) error {
	if draft.PaymentInfo == nil || draft.PaymentInfo.ID == "" {
		return orders.ErrNotPaid
	}
	in, err := s.intents.GetIntent(ctx, draft.PaymentInfo.ID)
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return errPaymentUnknown
	}
	if err != nil {
		return fmt.Errorf("get payment intent: %w", err)
	}
	if in.Status != domain.PaymentStatusSucceeded {
		return fmt.Errorf("%w: status is %s", orders.ErrNotPaid, in.Status)
	}
	if want := payment.Amount(draft.TotalPrice); in.Amount != want {
		return fmt.Errorf("%w: charged %d, order total is %d", errPaymentMismatch, in.Amount, want)
	}
	draft.PaymentInfo.Status = in.Status
	return nil
}

// HandleNewOrder POST /api/v1/order/new
func (s *server) HandleNewOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	var draft domain.Order
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid-json", "Invalid JSON body")
		return
	}

	if s.intents == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "payments-unavailable", "Payments cannot be verified")
		return
	}
	err := s.verifyPayment(r.Context(), &draft)
	switch {
	case errors.Is(err, orders.ErrNotPaid), errors.Is(err, errPaymentUnknown), errors.Is(err, errPaymentMismatch):
		slog.InfoContext(r.Context(), "Rejected unverified order", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusBadRequest, "payment-not-verified", err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to verify payment", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusBadGateway, "payment-provider-error", "Failed to verify payment")
		return
	}

	o, err := s.orders.Create(r.Context(), u.ID, draft)
	switch {
	case errors.Is(err, orders.ErrNotPaid), errors.Is(err, orders.ErrEmptyOrder):
		writeAPIError(w, http.StatusBadRequest, "invalid-order", err.Error())
		return
	case errors.Is(err, orders.ErrDuplicatePayment):
		writeAPIError(w, http.StatusConflict, "duplicate-payment", err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to create order", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to create order")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "order": o})
}

// HandleMyOrders GET /api/v1/orders/me
func (s *server) HandleMyOrders(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	list, err := s.orders.ListByUser(r.Context(), u.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list orders", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to list orders")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "orders": list})
}

// HandleGetOrder GET /api/v1/order/{id}
func (s *server) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	o, err := s.orders.Get(r.Context(), r.PathValue("id"))
	// other users' orders are reported as missing
	if errors.Is(err, orders.ErrNotFound) || (err == nil && o.UserID != u.ID) {
		writeAPIError(w, http.StatusNotFound, "order-not-found", "Order not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load order", "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to load order")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}
