package domain

// User is the authenticated storefront customer.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CartItem is one product line in the cart.
type CartItem struct {
	Product  string  `json:"product" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Image    string  `json:"image,omitempty"`
	Stock    int     `json:"stock"`
	Quantity int     `json:"quantity" validate:"gte=1"`
}

// ShippingInfo is the address entered on the shipping step.
type ShippingInfo struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PhoneNo    string `json:"phoneNo" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required,alphanum"`
	Country    string `json:"country" validate:"required"`
	State      string `json:"state" validate:"required"`
}

type Cart struct {
	Items        []CartItem   `json:"items"`
	ShippingInfo ShippingInfo `json:"shippingInfo"`
}

// OrderInfo is the price breakdown kept in transient page storage between the
// confirm step and the payment page.
type OrderInfo struct {
	ItemsPrice    float64 `json:"itemsPrice"`
	ShippingPrice float64 `json:"shippingPrice"`
	TaxPrice      float64 `json:"taxPrice"`
	TotalPrice    float64 `json:"totalPrice"`
}
