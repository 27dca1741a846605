package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/payment"
	"github.com/shopspring/decimal"
)

// SuccessPath is where a paid checkout lands.
const SuccessPath = "/order/success"

// Notification texts shown by the payment page.
const (
	MsgUnavailable  = "Payment processing error. Please try again."
	MsgSuccess      = "Payment Success!"
	MsgNotCompleted = "Payment not completed. Please try again."
	MsgFailed       = "An error occurred while processing payment."
	MsgInProgress   = "A payment is already being processed. Please wait."
)

// Store is the shared cart and order state the page reads and updates.
type Store interface {
	Cart(ctx context.Context, uid string) (domain.Cart, error)
	OrderError(ctx context.Context, uid string) (string, error)
	ClearOrderError(ctx context.Context, uid string) error
	OrderCompleted(ctx context.Context, uid string) error
}

// Storage holds the confirmed price breakdown. OrderInfo returns nil when absent.
type Storage interface {
	OrderInfo(ctx context.Context, uid string) (*domain.OrderInfo, error)
}

type SecretRequester interface {
	RequestSecret(ctx context.Context, req domain.PaymentRequest) (string, error)
}

type CardConfirmer interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, params domain.ConfirmParams) (domain.PaymentResult, error)
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, userID string, o domain.Order) error
}

type ShippingValidator interface {
	Redirect(info domain.ShippingInfo) string
}

// Session identifies the signed-in customer paying.
type Session struct {
	User domain.User
}

// CardElements are the three card inputs of the payment form.
type CardElements struct {
	Number string
	Expiry string
	CVC    string
}

// Card parses the inputs. Unparseable expiry parts are left zero so the
// provider reports them.
func (e CardElements) Card() domain.Card {
	c := domain.Card{Number: strings.TrimSpace(e.Number), CVC: strings.TrimSpace(e.CVC)}
	mm, yy, ok := strings.Cut(e.Expiry, "/")
	if !ok {
		return c
	}
	c.ExpMonth, _ = strconv.Atoi(strings.TrimSpace(mm))
	c.ExpYear, _ = strconv.Atoi(strings.TrimSpace(yy))
	return c
}

// View is what the payment page renders.
type View struct {
	Draft         domain.Order
	PayLabel      string
	Notifications []domain.Notification
	Redirect      string
	Submitting    bool
}

// Result is the outcome of one submission. A non-empty Redirect means the
// customer leaves the payment page.
type Result struct {
	Notifications []domain.Notification
	Redirect      string
	Submitting    bool
}

// Page is the checkout payment form. A nil Payments means card confirmation
// is unavailable.
type Page struct {
	Store    Store
	Storage  Storage
	Secrets  SecretRequester
	Payments CardConfirmer
	Orders   OrderCreator
	Shipping ShippingValidator

	mu       sync.Mutex
	inflight map[string]struct{}
}

// PayLabel is the submit control text for a draft total.
func PayLabel(info *domain.OrderInfo) string {
	total := "0.00"
	if info != nil {
		total = decimal.NewFromFloat(info.TotalPrice).StringFixed(2)
	}
	return "Pay - $" + total
}

// Mount prepares the page. Incomplete shipping sets Redirect; a pending order
// error is returned once as a warning and cleared.
func (p *Page) Mount(ctx context.Context, sess Session) (View, error) {
	uid := sess.User.ID
	cart, err := p.Store.Cart(ctx, uid)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	info, err := p.Storage.OrderInfo(ctx, uid)
	if err != nil {
		return View{}, fmt.Errorf("load order info: %w", err)
	}

	v := View{
		Draft:      domain.NewOrderDraft(cart, info),
		PayLabel:   PayLabel(info),
		Redirect:   p.Shipping.Redirect(cart.ShippingInfo),
		Submitting: p.submitting(uid),
	}

	msg, err := p.Store.OrderError(ctx, uid)
	if err != nil {
		return View{}, fmt.Errorf("load order error: %w", err)
	}
	if msg != "" {
		v.Notifications = append(v.Notifications, domain.Warning(msg))
		if err := p.Store.ClearOrderError(ctx, uid); err != nil {
			return View{}, fmt.Errorf("clear order error: %w", err)
		}
	}
	return v, nil
}

func (p *Page) submitting(uid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[uid]
	return ok
}

// begin marks uid as submitting; it fails when a submission is already running.
func (p *Page) begin(uid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight == nil {
		p.inflight = make(map[string]struct{})
	}
	if _, ok := p.inflight[uid]; ok {
		return false
	}
	p.inflight[uid] = struct{}{}
	return true
}

func (p *Page) end(uid string) {
	p.mu.Lock()
	delete(p.inflight, uid)
	p.mu.Unlock()
}

// Submit pays for the current draft with the given card inputs. A nil el means
// the card inputs are unavailable. Only one submission per customer runs at a
// time; the flag is released on every path.
func (p *Page) Submit(ctx context.Context, sess Session, el *CardElements) (res Result) {
	uid := sess.User.ID
	if !p.begin(uid) {
		return Result{
			Notifications: []domain.Notification{domain.Warning(MsgInProgress)},
			Submitting:    true,
		}
	}
	defer func() {
		p.end(uid)
		res.Submitting = p.submitting(uid)
	}()

	warn := func(msg string) Result {
		res.Notifications = append(res.Notifications, domain.Warning(msg))
		return res
	}
	fail := func(err error) Result {
		slog.ErrorContext(ctx, "Payment error", "user_id", uid, "error", err)
		return warn(MsgFailed)
	}

	if p.Payments == nil || el == nil {
		return warn(MsgUnavailable)
	}
	info, err := p.Storage.OrderInfo(ctx, uid)
	if err != nil {
		return fail(fmt.Errorf("load order info: %w", err))
	}
	if info == nil {
		return warn(MsgUnavailable)
	}
	cart, err := p.Store.Cart(ctx, uid)
	if err != nil {
		return fail(fmt.Errorf("load cart: %w", err))
	}
	order := domain.NewOrderDraft(cart, info)

	secret, err := p.Secrets.RequestSecret(ctx, payment.NewRequest(sess.User, info, cart.ShippingInfo))
	if err != nil {
		return fail(fmt.Errorf("request payment secret: %w", err))
	}

	result, err := p.Payments.ConfirmCardPayment(ctx, secret, domain.ConfirmParams{
		PaymentMethod: domain.PaymentMethod{
			Card: el.Card(),
			BillingDetails: domain.BillingDetails{
				Name:  sess.User.Name,
				Email: sess.User.Email,
			},
		},
	})
	if err != nil {
		return fail(fmt.Errorf("confirm card payment: %w", err))
	}

	switch {
	case result.Error != nil:
		return warn(result.Error.Message)
	case result.PaymentIntent != nil && result.PaymentIntent.Status == domain.PaymentStatusSucceeded:
		res.Notifications = append(res.Notifications, domain.Success(MsgSuccess))
		order.PaymentInfo = &domain.PaymentInfo{
			ID:     result.PaymentIntent.ID,
			Status: result.PaymentIntent.Status,
		}
		// the charge went through; a stale cart must not block the order
		if err := p.Store.OrderCompleted(ctx, uid); err != nil {
			slog.ErrorContext(ctx, "Failed to clear completed cart", "user_id", uid, "error", err)
		}
		if err := p.Orders.CreateOrder(ctx, uid, order); err != nil {
			return fail(fmt.Errorf("create order: %w", err))
		}
		slog.InfoContext(ctx, "Payment succeeded", "user_id", uid, "payment_id", order.PaymentInfo.ID)
		res.Redirect = SuccessPath
		return res
	default:
		return warn(MsgNotCompleted)
	}
}
