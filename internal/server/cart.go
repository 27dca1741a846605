package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/abdotop/cartpay/internal/cart"
	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/shipping"
	"github.com/abdotop/cartpay/internal/utils"
)

// HandleGetCart GET /api/v1/cart
func (s *server) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	c, err := s.state.Cart(r.Context(), u.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load cart", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to load cart")
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

// HandleAddItem POST /api/v1/cart/items
func (s *server) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	var item domain.CartItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid-json", "Invalid JSON body")
		return
	}
	if err := validate.Struct(item); err != nil {
		writeAPIError(w, http.StatusBadRequest, "request-validation-error", err.Error())
		return
	}
	if item.Stock > 0 && item.Quantity > item.Stock {
		writeAPIError(w, http.StatusBadRequest, "out-of-stock", "Quantity exceeds available stock")
		return
	}
	c, err := s.state.AddItem(r.Context(), u.ID, item)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to add cart item", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to update cart")
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

// HandleRemoveItem DELETE /api/v1/cart/items/{product}
func (s *server) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	c, err := s.state.RemoveItem(r.Context(), u.ID, r.PathValue("product"))
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to remove cart item", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to update cart")
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

// HandleSaveShipping PUT /api/v1/cart/shipping
func (s *server) HandleSaveShipping(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	var info domain.ShippingInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid-json", "Invalid JSON body")
		return
	}
	if err := shipping.Validate(info); err != nil {
		writeAPIError(w, http.StatusBadRequest, "shipping-incomplete", err.Error())
		return
	}
	c, err := s.state.SaveShipping(r.Context(), u.ID, info)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to save shipping", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to save shipping info")
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

var errEmptyCart = errors.New("cart is empty")

// confirmOrder prices the cart and keeps the breakdown for the payment page.
func (s *server) confirmOrder(r *http.Request, uid string) (domain.OrderInfo, error) {
	c, err := s.state.Cart(r.Context(), uid)
	if err != nil {
		return domain.OrderInfo{}, err
	}
	if len(c.Items) == 0 {
		return domain.OrderInfo{}, errEmptyCart
	}
	if err := shipping.Validate(c.ShippingInfo); err != nil {
		return domain.OrderInfo{}, err
	}
	info := cart.Price(c.Items)
	if err := s.state.SetOrderInfo(r.Context(), uid, info); err != nil {
		return domain.OrderInfo{}, err
	}
	return info, nil
}

// HandleConfirmOrder POST /api/v1/cart/confirm
func (s *server) HandleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	info, err := s.confirmOrder(r, u.ID)
	switch {
	case errors.Is(err, errEmptyCart):
		writeAPIError(w, http.StatusBadRequest, "empty-cart", "Your cart is empty")
		return
	case errors.Is(err, shipping.ErrIncomplete):
		writeAPIError(w, http.StatusBadRequest, "shipping-incomplete", err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to confirm order", "user_id", u.ID, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to confirm order")
		return
	}
	utils.WriteJSON(w, http.StatusOK, info)
}
