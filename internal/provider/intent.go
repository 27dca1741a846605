package provider

import (
	"regexp"
	"time"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Intent is a payment intent as held by the simulator.
type Intent struct {
	ID               string                 `json:"id"`
	Object           string                 `json:"object"`
	Amount           int64                  `json:"amount"`
	Currency         string                 `json:"currency"`
	Description      string                 `json:"description,omitempty"`
	Metadata         map[string]string      `json:"metadata,omitempty"`
	Shipping         *domain.Shipping       `json:"shipping,omitempty"`
	ClientSecret     string                 `json:"client_secret"`
	Status           string                 `json:"status"`
	LastPaymentError *domain.PaymentError   `json:"last_payment_error,omitempty"`
	BillingDetails   *domain.BillingDetails `json:"billing_details,omitempty"`
	Created          time.Time              `json:"created"`
	Updated          time.Time              `json:"updated"`
}

// CreateIntentParams is the body of POST /v1/payment_intents.
type CreateIntentParams struct {
	Amount      int64             `json:"amount" validate:"gt=0"`
	Currency    string            `json:"currency" validate:"required,currency"`
	Description string            `json:"description,omitempty" validate:"max=255"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Shipping    *domain.Shipping  `json:"shipping,omitempty"`
}

// ConfirmRequest is the body of POST /v1/payment_intents/{id}/confirm.
type ConfirmRequest struct {
	ClientSecret  string               `json:"client_secret" validate:"required"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

type confirmResponse struct {
	PaymentIntent *Intent `json:"payment_intent,omitempty"`
}

type errorResponse struct {
	Error domain.PaymentError `json:"error"`
}

var validate *validator.Validate

var currencyRe = regexp.MustCompile(`^[a-z]{3}$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("currency", validateCurrency)
}

// validateCurrency implements validator.Func for lower-case ISO 4217 codes.
func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRe.MatchString(fl.Field().String())
}
