package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/abdotop/cartpay/internal/checkout"
	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/shipping"
)

const flashCookie = "flash"

type shippingPageData struct {
	User          domain.User
	Info          domain.ShippingInfo
	Notifications []domain.Notification
}

type paymentPageData struct {
	User domain.User
	checkout.View
}

type successPageData struct {
	User          domain.User
	Notifications []domain.Notification
}

func (s *server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Failed to render page", "page", name, "error", err)
	}
}

// setFlash carries notifications across a redirect.
func setFlash(w http.ResponseWriter, notes []domain.Notification) {
	if len(notes) == 0 {
		return
	}
	v := url.Values{}
	for _, n := range notes {
		v.Add(string(n.Level), n.Message)
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: v.Encode(), Path: "/", MaxAge: 60, HttpOnly: true})
}

func popFlash(w http.ResponseWriter, r *http.Request) []domain.Notification {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	v, err := url.ParseQuery(c.Value)
	if err != nil {
		return nil
	}
	var notes []domain.Notification
	for _, level := range []domain.NotificationLevel{domain.NotifySuccess, domain.NotifyWarning} {
		for _, msg := range v[string(level)] {
			notes = append(notes, domain.Notification{Level: level, Message: msg})
		}
	}
	return notes
}

func (s *server) pageUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, ok := GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "login required", http.StatusUnauthorized)
	}
	return u, ok
}

// HandleShippingPage GET /shipping
func (s *server) HandleShippingPage(w http.ResponseWriter, r *http.Request) {
	u, ok := s.pageUser(w, r)
	if !ok {
		return
	}
	c, err := s.state.Cart(r.Context(), u.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load cart", "user_id", u.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "shipping.html", shippingPageData{User: u, Info: c.ShippingInfo, Notifications: popFlash(w, r)})
}

// HandleShippingSubmit POST /shipping saves the address, confirms the order
// prices and moves on to payment.
func (s *server) HandleShippingSubmit(w http.ResponseWriter, r *http.Request) {
	u, ok := s.pageUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	info := domain.ShippingInfo{
		Address:    strings.TrimSpace(r.PostForm.Get("address")),
		City:       strings.TrimSpace(r.PostForm.Get("city")),
		PhoneNo:    strings.TrimSpace(r.PostForm.Get("phoneNo")),
		PostalCode: strings.TrimSpace(r.PostForm.Get("postalCode")),
		Country:    strings.TrimSpace(r.PostForm.Get("country")),
		State:      strings.TrimSpace(r.PostForm.Get("state")),
	}
	if err := shipping.Validate(info); err != nil {
		s.render(w, r, http.StatusUnprocessableEntity, "shipping.html", shippingPageData{
			User:          u,
			Info:          info,
			Notifications: []domain.Notification{domain.Warning("Please fill in all shipping fields.")},
		})
		return
	}
	if _, err := s.state.SaveShipping(r.Context(), u.ID, info); err != nil {
		slog.ErrorContext(r.Context(), "Failed to save shipping", "user_id", u.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := s.confirmOrder(r, u.ID); err != nil {
		slog.InfoContext(r.Context(), "Order not confirmed", "user_id", u.ID, "error", err)
		setFlash(w, []domain.Notification{domain.Warning("Your cart is empty.")})
		http.Redirect(w, r, shipping.Path, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/payment", http.StatusSeeOther)
}

func (s *server) renderPayment(w http.ResponseWriter, r *http.Request, u domain.User, extra []domain.Notification) {
	sess := checkout.Session{User: u}
	v, err := s.page.Mount(r.Context(), sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to mount payment page", "user_id", u.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if v.Redirect != "" {
		setFlash(w, append(extra, v.Notifications...))
		http.Redirect(w, r, v.Redirect, http.StatusSeeOther)
		return
	}
	v.Notifications = append(append(popFlash(w, r), extra...), v.Notifications...)
	s.render(w, r, http.StatusOK, "payment.html", paymentPageData{User: u, View: v})
}

// HandlePaymentPage GET /payment
func (s *server) HandlePaymentPage(w http.ResponseWriter, r *http.Request) {
	u, ok := s.pageUser(w, r)
	if !ok {
		return
	}
	s.renderPayment(w, r, u, nil)
}

// HandlePaymentSubmit POST /payment
func (s *server) HandlePaymentSubmit(w http.ResponseWriter, r *http.Request) {
	u, ok := s.pageUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	var el *checkout.CardElements
	if r.PostForm.Has("card_number") {
		el = &checkout.CardElements{
			Number: r.PostForm.Get("card_number"),
			Expiry: r.PostForm.Get("card_expiry"),
			CVC:    r.PostForm.Get("card_cvc"),
		}
	}

	res := s.page.Submit(r.Context(), checkout.Session{User: u}, el)
	if res.Redirect != "" {
		setFlash(w, res.Notifications)
		http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
		return
	}
	s.renderPayment(w, r, u, res.Notifications)
}

// HandleOrderSuccess GET /order/success
func (s *server) HandleOrderSuccess(w http.ResponseWriter, r *http.Request) {
	u, ok := s.pageUser(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "success.html", successPageData{User: u, Notifications: popFlash(w, r)})
}
