package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abdotop/cartpay/internal/domain"
)

var ErrMalformedSecret = errors.New("malformed client secret")

// APIError is a non-card failure returned by the provider.
type APIError struct {
	Status int
	Err    domain.PaymentError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: %d %s: %s", e.Status, e.Err.Code, e.Err.Message)
}

// Client talks to the provider API. CreateIntent and GetIntent use the secret
// key; ConfirmCardPayment uses the publishable key like a browser would.
type Client struct {
	baseURL        string
	secretKey      string
	publishableKey string
	http           *http.Client
}

func NewClient(baseURL, secretKey, publishableKey string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		secretKey:      secretKey,
		publishableKey: publishableKey,
		http:           &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path, key string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &APIError{Status: resp.StatusCode, Err: domain.PaymentError{Code: "unknown", Message: resp.Status}}
	}
	return &APIError{Status: resp.StatusCode, Err: body.Error}
}

func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams) (Intent, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/payment_intents", c.secretKey, params)
	if err != nil {
		return Intent{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Intent{}, decodeAPIError(resp)
	}
	var in Intent
	if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
		return Intent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	return in, nil
}

func (c *Client) GetIntent(ctx context.Context, id string) (Intent, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), c.secretKey, nil)
	if err != nil {
		return Intent{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Intent{}, decodeAPIError(resp)
	}
	var in Intent
	if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
		return Intent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	return in, nil
}

// IntentID extracts the intent id from a client secret "<id>_secret_<random>".
func IntentID(clientSecret string) (string, error) {
	id, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok || !strings.HasPrefix(id, "pi_") {
		return "", ErrMalformedSecret
	}
	return id, nil
}

// ConfirmCardPayment confirms the intent behind clientSecret with card details.
// Card declines and state conflicts come back in PaymentResult.Error; only
// transport and unexpected failures are returned as errors.
func (c *Client) ConfirmCardPayment(ctx context.Context, clientSecret string, params domain.ConfirmParams) (domain.PaymentResult, error) {
	id, err := IntentID(clientSecret)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	body := ConfirmRequest{ClientSecret: clientSecret, PaymentMethod: params.PaymentMethod}
	resp, err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+id+"/confirm", c.publishableKey, body)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out confirmResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return domain.PaymentResult{}, fmt.Errorf("decode confirm response: %w", err)
		}
		if out.PaymentIntent == nil {
			return domain.PaymentResult{}, errors.New("confirm response without payment_intent")
		}
		return domain.PaymentResult{PaymentIntent: &domain.PaymentIntentRef{
			ID:     out.PaymentIntent.ID,
			Status: out.PaymentIntent.Status,
		}}, nil
	case http.StatusPaymentRequired, http.StatusBadRequest:
		var out errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return domain.PaymentResult{}, fmt.Errorf("decode confirm error: %w", err)
		}
		return domain.PaymentResult{Error: &out.Error}, nil
	default:
		return domain.PaymentResult{}, decodeAPIError(resp)
	}
}
