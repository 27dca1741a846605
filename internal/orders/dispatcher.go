package orders

import (
	"context"
	"errors"
	"log/slog"

	"github.com/abdotop/cartpay/internal/domain"
)

type creator interface {
	Create(ctx context.Context, userID string, o domain.Order) (domain.Order, error)
}

// ErrorRecorder stores the message shown on the next visit to the payment page.
type ErrorRecorder interface {
	SetOrderError(ctx context.Context, uid, msg string) error
}

// Dispatcher runs order creation for the payment page. Failures do not reach
// the caller; they are recorded as the user's pending order error.
type Dispatcher struct {
	orders creator
	errs   ErrorRecorder
}

func NewDispatcher(orders creator, errs ErrorRecorder) *Dispatcher {
	return &Dispatcher{orders: orders, errs: errs}
}

func (d *Dispatcher) CreateOrder(ctx context.Context, userID string, o domain.Order) error {
	_, err := d.orders.Create(ctx, userID, o)
	if err == nil {
		return nil
	}
	slog.ErrorContext(ctx, "Order creation failed", "user_id", userID, "error", err)
	msg := "Order could not be saved. Please contact support."
	switch {
	case errors.Is(err, ErrNotPaid):
		msg = "Order was not saved because the payment did not succeed."
	case errors.Is(err, ErrEmptyOrder):
		msg = "Order was not saved because the cart was empty."
	case errors.Is(err, ErrDuplicatePayment):
		msg = "This payment was already used for another order."
	}
	if rerr := d.errs.SetOrderError(ctx, userID, msg); rerr != nil {
		slog.ErrorContext(ctx, "Failed to record order error", "user_id", userID, "error", rerr)
	}
	return nil
}
