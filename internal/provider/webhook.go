package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" on every webhook delivery.
const SignatureHeader = "Provider-Signature"

const (
	EventIntentSucceeded     = "payment_intent.succeeded"
	EventIntentPaymentFailed = "payment_intent.payment_failed"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

type EventData struct {
	Object Intent `json:"object"`
}

// WebhookSender posts signed intent events to a single endpoint. Deliveries
// run in the background; Wait blocks until all of them have returned.
type WebhookSender struct {
	url     string
	secret  string
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		timeout: 10 * time.Second,
	}
}

// Send delivers eventType for in. It is a no-op when no endpoint is configured.
func (s *WebhookSender) Send(eventType string, in Intent) {
	if s == nil || s.url == "" {
		return
	}
	event := Event{
		ID:      "evt_" + uuid.NewString(),
		Type:    eventType,
		Created: time.Now().Unix(),
		Data:    EventData{Object: in},
	}

	slog.Info("Sending webhook", "event_id", event.ID, "event_type", eventType, "intent_id", in.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.send(ctx, event)
	}()
}

func (s *WebhookSender) Wait() {
	if s != nil {
		s.wg.Wait()
	}
}

func (s *WebhookSender) send(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("Failed to create webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, SignPayload(s.secret, time.Now(), payload))

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("Failed to send webhook", "event_id", event.ID, "error", err)
		return
	}
	defer resp.Body.Close()

	slog.Info("Webhook sent", "url", s.url, "status", resp.Status, "event_id", event.ID)
}

func sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload builds the signature header value for payload at time at.
func SignPayload(secret string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, sign(secret, ts, payload))
}

// VerifySignature checks header against payload. Timestamps further than
// tolerance from now are rejected; a zero tolerance disables the check.
func VerifySignature(header string, payload []byte, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrMissingSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrBadSignature)
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return ErrStaleSignature
		}
	}
	if !hmac.Equal([]byte(sign(secret, ts, payload)), []byte(v1)) {
		return ErrBadSignature
	}
	return nil
}
