package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/domain/permission"
	"github.com/abdotop/cartpay/internal/utils"
	"github.com/segmentio/ksuid"
)

// Keys are the API keys the simulator accepts.
type Keys struct {
	Secret      string
	Publishable string
}

// Server simulates a card payment provider: intents are created with the
// secret key and confirmed with the publishable key and raw card details.
type Server struct {
	repo     Repository
	keys     Keys
	webhooks *WebhookSender
	now      func() time.Time
}

func NewServer(repo Repository, keys Keys, webhooks *WebhookSender) *Server {
	return &Server{repo: repo, keys: keys, webhooks: webhooks, now: time.Now}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/payment_intents", s.RequireScope(permission.INTENTS_WRITE)(http.HandlerFunc(s.createIntent)))
	mux.Handle("GET /v1/payment_intents/{id}", s.RequireScope(permission.INTENTS_WRITE)(http.HandlerFunc(s.getIntent)))
	mux.Handle("POST /v1/payment_intents/{id}/confirm", s.RequireScope(permission.INTENTS_CONFIRM)(http.HandlerFunc(s.confirmIntent)))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func returnError(w http.ResponseWriter, perr domain.PaymentError, status int) {
	if perr.Type == "" {
		perr.Type = ErrTypeInvalidRequest
	}
	utils.WriteJSON(w, status, errorResponse{Error: perr})
}

// keyKind maps a presented key to its kind, or "" when it matches no key.
func (s *Server) keyKind(key string) string {
	switch {
	case strings.HasPrefix(key, permission.KeySecret) && utils.SameKey(key, s.keys.Secret):
		return permission.KeySecret
	case strings.HasPrefix(key, permission.KeyPublishable) && utils.SameKey(key, s.keys.Publishable):
		return permission.KeyPublishable
	default:
		return ""
	}
}

// RequireScope validates the bearer API key and checks it grants scope.
func (s *Server) RequireScope(scope permission.Permission) func(http.Handler) http.Handler {
	if !permission.IsValid(scope) {
		panic("provider: unknown scope " + string(scope))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				returnError(w, domain.PaymentError{
					Code:    "missing_auth_header",
					Message: "Missing authorization header",
				}, http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				returnError(w, domain.PaymentError{
					Code:    "invalid_auth",
					Message: "Missing Bearer authorization header",
				}, http.StatusUnauthorized)
				return
			}

			apiKey := parts[1]
			kind := s.keyKind(apiKey)
			if kind == "" {
				suffix := apiKey
				if len(suffix) > 4 {
					suffix = suffix[len(suffix)-4:]
				}
				returnError(w, domain.PaymentError{
					Code:    "invalid_api_key",
					Message: fmt.Sprintf("No API key found ending in '%s'", suffix),
				}, http.StatusUnauthorized)
				return
			}

			if !slices.Contains(permission.ScopesFor(kind), scope) {
				returnError(w, domain.PaymentError{
					Code:    "insufficient_scope",
					Message: fmt.Sprintf("API key does not have the required scope: %s", scope),
				}, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateIntentParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		returnError(w, domain.PaymentError{Code: "parameter_invalid", Message: "Invalid JSON body"}, http.StatusBadRequest)
		return
	}
	req.Currency = strings.ToLower(req.Currency)
	if err := validate.Struct(req); err != nil {
		returnError(w, domain.PaymentError{Code: "parameter_invalid", Message: err.Error()}, http.StatusBadRequest)
		return
	}

	secret, err := utils.NewSecret()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to generate client secret", "error", err)
		returnError(w, domain.PaymentError{Type: "api_error", Code: "internal_error", Message: "Failed to create payment intent"}, http.StatusInternalServerError)
		return
	}

	now := s.now().UTC()
	id := "pi_" + ksuid.New().String()
	in := Intent{
		ID:           id,
		Object:       "payment_intent",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Description:  req.Description,
		Metadata:     req.Metadata,
		Shipping:     req.Shipping,
		ClientSecret: id + "_secret_" + secret[:24],
		Status:       domain.PaymentStatusRequiresPaymentMethod,
		Created:      now,
		Updated:      now,
	}
	if err := s.repo.Create(ctx, in); err != nil {
		slog.ErrorContext(ctx, "Failed to store payment intent", "error", err)
		returnError(w, domain.PaymentError{Type: "api_error", Code: "internal_error", Message: "Failed to create payment intent"}, http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "Payment intent created", "intent_id", in.ID, "amount", in.Amount, "currency", in.Currency)
	utils.WriteJSON(w, http.StatusOK, in)
}

func (s *Server) lookup(ctx context.Context, w http.ResponseWriter, id string) (Intent, bool) {
	in, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		returnError(w, domain.PaymentError{Code: "resource_missing", Message: fmt.Sprintf("No such payment_intent: '%s'", id)}, http.StatusNotFound)
		return Intent{}, false
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load payment intent", "intent_id", id, "error", err)
		returnError(w, domain.PaymentError{Type: "api_error", Code: "internal_error", Message: "Failed to load payment intent"}, http.StatusInternalServerError)
		return Intent{}, false
	}
	return in, true
}

func (s *Server) getIntent(w http.ResponseWriter, r *http.Request) {
	in, ok := s.lookup(r.Context(), w, r.PathValue("id"))
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, in)
}

func (s *Server) confirmIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		returnError(w, domain.PaymentError{Code: "parameter_invalid", Message: "Invalid JSON body"}, http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		returnError(w, domain.PaymentError{Code: "parameter_missing", Message: err.Error()}, http.StatusBadRequest)
		return
	}

	in, ok := s.lookup(ctx, w, r.PathValue("id"))
	if !ok {
		return
	}
	if !utils.SameKey(req.ClientSecret, in.ClientSecret) {
		returnError(w, domain.PaymentError{Code: "client_secret_mismatch", Message: "The client_secret provided does not match this payment intent."}, http.StatusBadRequest)
		return
	}
	if in.Status == domain.PaymentStatusSucceeded || in.Status == domain.PaymentStatusCanceled {
		returnError(w, domain.PaymentError{
			Code:    "payment_intent_unexpected_state",
			Message: fmt.Sprintf("This PaymentIntent's status is %s and cannot be confirmed.", in.Status),
		}, http.StatusBadRequest)
		return
	}

	prev := in.Status
	billing := req.PaymentMethod.BillingDetails
	in.BillingDetails = &billing
	in.Updated = s.now().UTC()

	status, perr := evaluateCard(req.PaymentMethod.Card, s.now())
	if perr != nil {
		in.Status = domain.PaymentStatusRequiresPaymentMethod
		in.LastPaymentError = perr
	} else {
		in.Status = status
		in.LastPaymentError = nil
	}

	err := s.repo.Update(ctx, in, prev)
	if errors.Is(err, ErrStatusChanged) {
		// another confirm won the race
		returnError(w, domain.PaymentError{
			Code:    "payment_intent_unexpected_state",
			Message: "This PaymentIntent was confirmed concurrently and cannot be confirmed again.",
		}, http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to update payment intent", "intent_id", in.ID, "error", err)
		returnError(w, domain.PaymentError{Type: "api_error", Code: "internal_error", Message: "Failed to confirm payment intent"}, http.StatusInternalServerError)
		return
	}

	if perr != nil {
		slog.InfoContext(ctx, "Payment declined", "intent_id", in.ID, "code", perr.Code)
		s.webhooks.Send(EventIntentPaymentFailed, in)
		returnError(w, *perr, http.StatusPaymentRequired)
		return
	}

	slog.InfoContext(ctx, "Payment intent confirmed", "intent_id", in.ID, "status", in.Status)
	if in.Status == domain.PaymentStatusSucceeded {
		s.webhooks.Send(EventIntentSucceeded, in)
	}
	utils.WriteJSON(w, http.StatusOK, confirmResponse{PaymentIntent: &in})
}
