package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderDelivered  OrderStatus = "Delivered"
)

func (e OrderStatus) String() string {
	return string(e)
}

func (e *OrderStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderStatus(s)
	case string:
		*e = OrderStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderStatus: %T", src)
	}
	return nil
}

func (e OrderStatus) Value() (driver.Value, error) {
	return string(e), nil
}

// PaymentInfo is attached to an order only after the provider reports success.
type PaymentInfo struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Verified bool   `json:"verified,omitempty"`
}

// Order is both the draft built on the payment page and the persisted record.
type Order struct {
	ID            string       `json:"_id,omitempty"`
	UserID        string       `json:"user,omitempty"`
	OrderItems    []CartItem   `json:"orderItems"`
	ShippingInfo  ShippingInfo `json:"shippingInfo"`
	ItemsPrice    float64      `json:"itemsPrice"`
	ShippingPrice float64      `json:"shippingPrice"`
	TaxPrice      float64      `json:"taxPrice"`
	TotalPrice    float64      `json:"totalPrice"`
	PaymentInfo   *PaymentInfo `json:"paymentInfo,omitempty"`
	PaidAt        *time.Time   `json:"paidAt,omitempty"`
	OrderStatus   OrderStatus  `json:"orderStatus,omitempty"`
	CreatedAt     time.Time    `json:"createdAt,omitempty"`
}

// NewOrderDraft builds the draft the payment page submits. Prices are only
// copied when the order info is present.
func NewOrderDraft(cart Cart, info *OrderInfo) Order {
	o := Order{
		OrderItems:   cart.Items,
		ShippingInfo: cart.ShippingInfo,
	}
	if info != nil {
		o.ItemsPrice = info.ItemsPrice
		o.ShippingPrice = info.ShippingPrice
		o.TaxPrice = info.TaxPrice
		o.TotalPrice = info.TotalPrice
	}
	return o
}
