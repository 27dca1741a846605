package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/provider"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	Description      = "TEST PAYMENT"
	integrationCheck = "accept_payment"
)

var ErrInvalidRequest = errors.New("invalid payment request")

var validate = validator.New()

// Amount converts a total in major units to integer minor units, rounding
// half away from zero: 49.99 becomes 4999.
func Amount(total float64) int64 {
	return decimal.NewFromFloat(total).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// NewRequest builds the payment payload the checkout page sends. A missing
// order info yields a zero amount.
func NewRequest(user domain.User, info *domain.OrderInfo, shipping domain.ShippingInfo) domain.PaymentRequest {
	var amount int64
	if info != nil {
		amount = Amount(info.TotalPrice)
	}
	return domain.PaymentRequest{
		Amount:   amount,
		Shipping: domain.NewShipping(user.Name, shipping),
	}
}

// IntentCreator is the part of the provider API the processor needs.
type IntentCreator interface {
	CreateIntent(ctx context.Context, params provider.CreateIntentParams) (provider.Intent, error)
}

// Processor creates payment intents and hands back their client secret.
type Processor struct {
	provider IntentCreator
	currency string
}

func NewProcessor(p IntentCreator, currency string) *Processor {
	return &Processor{provider: p, currency: currency}
}

func (p *Processor) RequestSecret(ctx context.Context, req domain.PaymentRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	shipping := req.Shipping
	in, err := p.provider.CreateIntent(ctx, provider.CreateIntentParams{
		Amount:      req.Amount,
		Currency:    p.currency,
		Description: Description,
		Metadata:    map[string]string{"integration_check": integrationCheck},
		Shipping:    &shipping,
	})
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	slog.InfoContext(ctx, "Payment intent requested", "intent_id", in.ID, "amount", in.Amount)
	return in.ClientSecret, nil
}
