package db

import (
	"database/sql"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    string
}

type Order struct {
	ID              string
	UserID          string
	OrderItems      string
	ShippingInfo    string
	ItemsPrice      float64
	ShippingPrice   float64
	TaxPrice        float64
	TotalPrice      float64
	PaymentID       string
	PaymentStatus   string
	PaymentVerified bool
	PaidAt          sql.NullString
	OrderStatus     string
	CreatedAt       string
}
