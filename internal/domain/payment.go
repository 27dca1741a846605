package domain

const (
	PaymentStatusSucceeded             = "succeeded"
	PaymentStatusRequiresPaymentMethod = "requires_payment_method"
	PaymentStatusRequiresAction        = "requires_action"
	PaymentStatusCanceled              = "canceled"
)

// PaymentRequest is the body of POST /api/v1/payment/process.
type PaymentRequest struct {
	Amount   int64    `json:"amount" validate:"gt=0"`
	Shipping Shipping `json:"shipping"`
}

type Shipping struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
	Phone   string  `json:"phone"`
}

type Address struct {
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	State      string `json:"state"`
	Line1      string `json:"line1"`
}

// NewShipping maps the storefront shipping info to the provider shipping object.
func NewShipping(name string, info ShippingInfo) Shipping {
	return Shipping{
		Name: name,
		Address: Address{
			City:       info.City,
			PostalCode: info.PostalCode,
			Country:    info.Country,
			State:      info.State,
			Line1:      info.Address,
		},
		Phone: info.PhoneNo,
	}
}

type PaymentResponse struct {
	Success      bool   `json:"success"`
	ClientSecret string `json:"client_secret"`
}

// Card is the raw card input collected by the payment form.
type Card struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVC      string `json:"cvc"`
}

type BillingDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PaymentMethod struct {
	Card           Card           `json:"card"`
	BillingDetails BillingDetails `json:"billing_details"`
}

type ConfirmParams struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// PaymentError is the provider's refusal of a confirmation attempt.
type PaymentError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PaymentIntentRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PaymentResult carries either Error or PaymentIntent, never both.
type PaymentResult struct {
	Error         *PaymentError     `json:"error,omitempty"`
	PaymentIntent *PaymentIntentRef `json:"paymentIntent,omitempty"`
}
