package db

import (
	"context"
	"database/sql"
)

const createOrder = `
INSERT INTO orders (
    id, user_id, order_items, shipping_info,
    items_price, shipping_price, tax_price, total_price,
    payment_id, payment_status, paid_at, order_status, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateOrderParams struct {
	ID            string
	UserID        string
	OrderItems    string
	ShippingInfo  string
	ItemsPrice    float64
	ShippingPrice float64
	TaxPrice      float64
	TotalPrice    float64
	PaymentID     string
	PaymentStatus string
	PaidAt        sql.NullString
	OrderStatus   string
	CreatedAt     string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) error {
	_, err := q.db.ExecContext(ctx, createOrder,
		arg.ID,
		arg.UserID,
		arg.OrderItems,
		arg.ShippingInfo,
		arg.ItemsPrice,
		arg.ShippingPrice,
		arg.TaxPrice,
		arg.TotalPrice,
		arg.PaymentID,
		arg.PaymentStatus,
		arg.PaidAt,
		arg.OrderStatus,
		arg.CreatedAt,
	)
	return err
}

const orderColumns = `id, user_id, order_items, shipping_info,
    items_price, shipping_price, tax_price, total_price,
    payment_id, payment_status, payment_verified, paid_at, order_status, created_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.OrderItems,
		&i.ShippingInfo,
		&i.ItemsPrice,
		&i.ShippingPrice,
		&i.TaxPrice,
		&i.TotalPrice,
		&i.PaymentID,
		&i.PaymentStatus,
		&i.PaymentVerified,
		&i.PaidAt,
		&i.OrderStatus,
		&i.CreatedAt,
	)
	return i, err
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = ? LIMIT 1`

func (q *Queries) GetOrder(ctx context.Context, id string) (Order, error) {
	return scanOrder(q.db.QueryRowContext(ctx, getOrder, id))
}

const listOrdersByUser = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC`

func (q *Queries) ListOrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx, listOrdersByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markOrderPaymentVerified = `
UPDATE orders SET payment_verified = 1, payment_status = ?
WHERE payment_id = ?
`

type MarkOrderPaymentVerifiedParams struct {
	PaymentStatus string
	PaymentID     string
}

func (q *Queries) MarkOrderPaymentVerified(ctx context.Context, arg MarkOrderPaymentVerifiedParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markOrderPaymentVerified, arg.PaymentStatus, arg.PaymentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
