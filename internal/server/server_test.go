package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/orders"
	"github.com/abdotop/cartpay/internal/payment"
	"github.com/abdotop/cartpay/internal/provider"
	"github.com/abdotop/cartpay/internal/state"
	"github.com/abdotop/cartpay/internal/store"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

type testEnv struct {
	srv      *server
	handler  http.Handler
	provider *provider.Client
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	st, err := store.New(filepath.Join(tmp, "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.AutoMigrate(filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	keys := provider.Keys{Secret: "sk_test_server", Publishable: "pk_test_server"}
	ps := httptest.NewServer(provider.NewServer(provider.NewMemoryRepo(), keys, nil).Handler())
	t.Cleanup(ps.Close)
	pc := provider.NewClient(ps.URL, keys.Secret, keys.Publishable)
	processor := payment.NewProcessor(pc, "usd")

	srv := NewServer(Deps{
		Store:         st,
		State:         state.New(state.NewMemoryClient()),
		Orders:        orders.NewService(st.Queries(), nil, ""),
		Processor:     processor,
		Secrets:       processor,
		Payments:      pc,
		Intents:       pc,
		JWTSecret:     "test-secret",
		WebhookSecret: testWebhookSecret,
	})
	return &testEnv{srv: srv, handler: srv.Routes(), provider: pc}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) form(t *testing.T, path, token string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"name": gofakeit.Name(), "email": email, "password": "secret123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 created, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return resp.Token
}

func shippingForm() url.Values {
	return url.Values{
		"address":    {"12 St James's Sq"},
		"city":       {"London"},
		"phoneNo":    {"0201234567"},
		"postalCode": {"SW1Y4JH"},
		"country":    {"GB"},
		"state":      {"LDN"},
	}
}

// readyToPay fills the cart, posts shipping and checks the redirect to /payment.
func (e *testEnv) readyToPay(t *testing.T, token string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/cart/items", token, domain.CartItem{Product: "p1", Name: "Mug", Price: 12.5, Quantity: 2, Stock: 10})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.form(t, "/shipping", token, shippingForm())
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	require.Equal(t, "/payment", rr.Header().Get("Location"))
}

func TestRegisterLoginMe(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")

	rr := e.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "ada@example.com")

	rr = e.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{"name": "Ada", "email": "ADA@example.com", "password": "secret123"})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{"email": "ada@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Result().Cookies())

	rr = e.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{"name": "Bob", "email": "bob@example.com", "password": "123"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogin_WrongPasswordTriggersLockout(t *testing.T) {
	e := newTestServer(t)
	e.register(t, "ada@example.com")

	bad := map[string]string{"email": "ada@example.com", "password": "wrong-password"}
	for i := 0; i < 5; i++ {
		rr := e.do(t, http.MethodPost, "/api/v1/login", "", bad)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 on wrong password, got %d", rr.Code)
		}
	}
	rr := e.do(t, http.MethodPost, "/api/v1/login", "", bad)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after lockout, got %d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestServer(t)
	for _, path := range []string{"/api/v1/me", "/api/v1/cart", "/payment", "/api/v1/orders/me"} {
		rr := e.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
	rr := e.do(t, http.MethodGet, "/api/v1/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCartConfirmComputesOrderInfo(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")

	rr := e.do(t, http.MethodPost, "/api/v1/cart/confirm", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/v1/cart/items", token, domain.CartItem{Product: "p1", Name: "Mug", Price: 19.99, Quantity: 2})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodPut, "/api/v1/cart/shipping", token, domain.ShippingInfo{City: "London"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPut, "/api/v1/cart/shipping", token, domain.ShippingInfo{
		Address: "12 St James's Sq", City: "London", PhoneNo: "0201234567", PostalCode: "SW1Y4JH", Country: "GB", State: "LDN",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/v1/cart/confirm", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var info domain.OrderInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	require.Equal(t, domain.OrderInfo{ItemsPrice: 39.98, ShippingPrice: 25, TaxPrice: 2, TotalPrice: 66.98}, info)

	rr = e.do(t, http.MethodDelete, "/api/v1/cart/items/p1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var c domain.Cart
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	require.Empty(t, c.Items)
}

func TestPaymentPageRedirectsWithoutShipping(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")

	rr := e.do(t, http.MethodGet, "/payment", token, nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/shipping", rr.Header().Get("Location"))
}

func TestCheckoutSucceeds(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")
	e.readyToPay(t, token)

	rr := e.do(t, http.MethodGet, "/payment", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Pay - $51.25")
	require.Contains(t, rr.Body.String(), `id="pay_btn"`)

	rr = e.form(t, "/payment", token, url.Values{
		"card_number": {provider.CardSucceeds},
		"card_expiry": {"12 / 40"},
		"card_cvc":    {"123"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	require.Equal(t, "/order/success", rr.Header().Get("Location"))

	rr = e.do(t, http.MethodGet, "/api/v1/orders/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Orders []domain.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	o := resp.Orders[0]
	require.Equal(t, domain.PaymentStatusSucceeded, o.PaymentInfo.Status)
	require.True(t, strings.HasPrefix(o.PaymentInfo.ID, "pi_"))
	require.Equal(t, 51.25, o.TotalPrice)
	require.Equal(t, domain.OrderProcessing, o.OrderStatus)

	rr = e.do(t, http.MethodGet, "/api/v1/order/"+o.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	other := e.register(t, "bob@example.com")
	rr = e.do(t, http.MethodGet, "/api/v1/order/"+o.ID, other, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	var c domain.Cart
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	require.Empty(t, c.Items)
}

func TestCheckoutDeclined(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")
	e.readyToPay(t, token)

	rr := e.form(t, "/payment", token, url.Values{
		"card_number": {provider.CardDeclined},
		"card_expiry": {"12 / 40"},
		"card_cvc":    {"123"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Your card was declined.")

	rr = e.do(t, http.MethodGet, "/api/v1/orders/me", token, nil)
	require.NotContains(t, rr.Body.String(), "pi_")
}

func TestCheckoutWithoutCardFields(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")
	e.readyToPay(t, token)

	rr := e.form(t, "/payment", token, url.Values{})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Payment processing error. Please try again.")
}

func TestProcessPayment(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")

	rr := e.do(t, http.MethodPost, "/api/v1/payment/process", token, domain.PaymentRequest{
		Amount:   4999,
		Shipping: domain.Shipping{Name: "Ada", Address: domain.Address{City: "London"}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp domain.PaymentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	_, err := provider.IntentID(resp.ClientSecret)
	require.NoError(t, err)

	rr = e.do(t, http.MethodPost, "/api/v1/payment/process", token, domain.PaymentRequest{Amount: 0})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

// paidIntent creates an intent for amount at the provider and, when pay is
// set, confirms it with a card that succeeds.
func (e *testEnv) paidIntent(t *testing.T, amount int64, pay bool) string {
	t.Helper()
	ctx := context.Background()
	in, err := e.provider.CreateIntent(ctx, provider.CreateIntentParams{Amount: amount, Currency: "usd"})
	require.NoError(t, err)
	if pay {
		res, err := e.provider.ConfirmCardPayment(ctx, in.ClientSecret, domain.ConfirmParams{PaymentMethod: domain.PaymentMethod{
			Card: domain.Card{Number: provider.CardSucceeds, ExpMonth: 12, ExpYear: 2040, CVC: "123"},
		}})
		require.NoError(t, err)
		require.Equal(t, domain.PaymentStatusSucceeded, res.PaymentIntent.Status)
	}
	return in.ID
}

func orderDraft(total float64, paymentID string) domain.Order {
	return domain.Order{
		OrderItems:  []domain.CartItem{{Product: "p1", Name: "Mug", Price: 1, Quantity: 1}},
		TotalPrice:  total,
		PaymentInfo: &domain.PaymentInfo{ID: paymentID, Status: domain.PaymentStatusSucceeded},
	}
}

func TestNewOrderRequiresVerifiedPayment(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")

	paid := e.paidIntent(t, 2605, true)
	unpaid := e.paidIntent(t, 2605, false)

	tests := []struct {
		name  string
		draft domain.Order
	}{
		{"no payment info", domain.Order{OrderItems: []domain.CartItem{{Product: "p1", Name: "Mug", Price: 1, Quantity: 1}}}},
		{"unknown intent", orderDraft(0.01, "pi_never_existed")},
		{"intent not confirmed", orderDraft(26.05, unpaid)},
		{"total differs from charge", orderDraft(0.01, paid)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, "/api/v1/order/new", token, tt.draft)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}

	rr := e.do(t, http.MethodGet, "/api/v1/orders/me", token, nil)
	require.NotContains(t, rr.Body.String(), "pi_")

	rr = e.do(t, http.MethodPost, "/api/v1/order/new", token, orderDraft(26.05, paid))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodPost, "/api/v1/order/new", token, orderDraft(26.05, paid))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestPaymentWebhook(t *testing.T) {
	e := newTestServer(t)
	token := e.register(t, "ada@example.com")
	paid := e.paidIntent(t, 2605, true)

	rr := e.do(t, http.MethodPost, "/api/v1/order/new", token, orderDraft(26.05, paid))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Order domain.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.False(t, created.Order.PaymentInfo.Verified)

	payload, err := json.Marshal(provider.Event{
		ID:   "evt_1",
		Type: provider.EventIntentSucceeded,
		Data: provider.EventData{Object: provider.Intent{ID: paid, Status: domain.PaymentStatusSucceeded}},
	})
	require.NoError(t, err)

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(payload))
		req.Header.Set(provider.SignatureHeader, sig)
		rr := httptest.NewRecorder()
		e.handler.ServeHTTP(rr, req)
		return rr
	}

	rr = send(provider.SignPayload("wrong", time.Now(), payload))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = send(provider.SignPayload(testWebhookSecret, time.Now(), payload))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/v1/order/"+created.Order.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Order domain.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.True(t, got.Order.PaymentInfo.Verified)
}

func TestHealth(t *testing.T) {
	e := newTestServer(t)
	rr := e.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
