package server

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/abdotop/cartpay/internal/checkout"
	"github.com/abdotop/cartpay/internal/db"
	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/orders"
	"github.com/abdotop/cartpay/internal/payment"
	"github.com/abdotop/cartpay/internal/provider"
	"github.com/abdotop/cartpay/internal/shipping"
	"github.com/abdotop/cartpay/internal/state"
	"github.com/abdotop/cartpay/internal/store"
	"github.com/abdotop/cartpay/internal/utils"
	"github.com/go-playground/validator/v10"
)

//go:embed templates/*.html
var templateFS embed.FS

var validate = validator.New()

// IntentGetter looks up a payment intent at the provider.
type IntentGetter interface {
	GetIntent(ctx context.Context, id string) (provider.Intent, error)
}

// Deps are the collaborators of the storefront server. Payments may be nil
// when no provider is reachable; Processor may be nil when this instance does
// not serve the payment backend route. Without Intents, orders posted to the
// API are refused because their payment cannot be checked.
type Deps struct {
	Store         *store.Store
	State         *state.Store
	Orders        *orders.Service
	Processor     *payment.Processor
	Secrets       checkout.SecretRequester
	Payments      checkout.CardConfirmer
	Intents       IntentGetter
	JWTSecret     string
	WebhookSecret string
}

type server struct {
	query     *db.Queries
	state     *state.Store
	orders    *orders.Service
	processor *payment.Processor
	intents   IntentGetter
	page      *checkout.Page
	pages     *template.Template

	jwtSecret     []byte
	webhookSecret string
	now           func() time.Time

	mu sync.Mutex
	rl map[string]*lockout
}

type lockout struct {
	fails int
	until time.Time
}

func NewServer(d Deps) *server {
	s := &server{
		query:         d.Store.Queries(),
		state:         d.State,
		orders:        d.Orders,
		processor:     d.Processor,
		intents:       d.Intents,
		pages:         template.Must(template.ParseFS(templateFS, "templates/*.html")),
		jwtSecret:     []byte(d.JWTSecret),
		webhookSecret: d.WebhookSecret,
		now:           time.Now,
		rl:            make(map[string]*lockout),
	}
	s.page = &checkout.Page{
		Store:    d.State,
		Storage:  d.State,
		Secrets:  d.Secrets,
		Payments: d.Payments,
		Orders:   orders.NewDispatcher(d.Orders, d.State),
		Shipping: shipping.Validator{},
	}
	return s
}

// Routes returns the storefront handler.
func (s *server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/v1/register", s.HandleRegister)
	mux.HandleFunc("POST /api/v1/login", s.HandleLogin)
	mux.HandleFunc("GET /api/v1/logout", s.HandleLogout)
	mux.Handle("GET /api/v1/me", s.AuthMiddleware(http.HandlerFunc(s.HandleMe)))

	mux.Handle("GET /api/v1/cart", s.AuthMiddleware(http.HandlerFunc(s.HandleGetCart)))
	mux.Handle("POST /api/v1/cart/items", s.AuthMiddleware(http.HandlerFunc(s.HandleAddItem)))
	mux.Handle("DELETE /api/v1/cart/items/{product}", s.AuthMiddleware(http.HandlerFunc(s.HandleRemoveItem)))
	mux.Handle("PUT /api/v1/cart/shipping", s.AuthMiddleware(http.HandlerFunc(s.HandleSaveShipping)))
	mux.Handle("POST /api/v1/cart/confirm", s.AuthMiddleware(http.HandlerFunc(s.HandleConfirmOrder)))

	mux.Handle("POST /api/v1/payment/process", s.AuthMiddleware(http.HandlerFunc(s.HandleProcessPayment)))
	mux.HandleFunc("POST /api/v1/payment/webhook", s.HandlePaymentWebhook)

	mux.Handle("POST /api/v1/order/new", s.AuthMiddleware(http.HandlerFunc(s.HandleNewOrder)))
	mux.Handle("GET /api/v1/orders/me", s.AuthMiddleware(http.HandlerFunc(s.HandleMyOrders)))
	mux.Handle("GET /api/v1/order/{id}", s.AuthMiddleware(http.HandlerFunc(s.HandleGetOrder)))

	mux.Handle("GET /shipping", s.AuthMiddleware(http.HandlerFunc(s.HandleShippingPage)))
	mux.Handle("POST /shipping", s.AuthMiddleware(http.HandlerFunc(s.HandleShippingSubmit)))
	mux.Handle("GET /payment", s.AuthMiddleware(http.HandlerFunc(s.HandlePaymentPage)))
	mux.Handle("POST /payment", s.AuthMiddleware(http.HandlerFunc(s.HandlePaymentSubmit)))
	mux.Handle("GET /order/success", s.AuthMiddleware(http.HandlerFunc(s.HandleOrderSuccess)))

	return mux
}

// Context key for storing the authenticated user in request context
type contextKey string

const userContextKey contextKey = "user"

func GetUserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userContextKey).(domain.User)
	return u, ok
}

// APIError represents a standard error response for API endpoints
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeAPIError writes a standard API error response
func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
	if err != nil {
		slog.Error("Failed to write API error response", slog.String("error", err.Error()))
	}
}

// mustUser returns the user set by AuthMiddleware.
func mustUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, ok := GetUserFromContext(r.Context())
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "Login first to access this resource")
	}
	return u, ok
}
