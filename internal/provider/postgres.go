package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createIntentsTable = `
CREATE TABLE IF NOT EXISTS payment_intents (
    id                 TEXT PRIMARY KEY,
    client_secret      TEXT NOT NULL,
    amount             BIGINT NOT NULL,
    currency           TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    metadata           JSONB,
    shipping           JSONB,
    status             TEXT NOT NULL,
    last_payment_error JSONB,
    billing_name       TEXT,
    billing_email      TEXT,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
)`

// PostgresRepo stores intents in Postgres so several simulator instances can
// share them.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, dsn string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createIntentsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create payment_intents table: %w", err)
	}
	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func billingColumns(b *domain.BillingDetails) (pgtype.Text, pgtype.Text) {
	if b == nil {
		return pgtype.Text{}, pgtype.Text{}
	}
	return pgtype.Text{String: b.Name, Valid: true}, pgtype.Text{String: b.Email, Valid: true}
}

func (r *PostgresRepo) Create(ctx context.Context, in Intent) error {
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	shipping, err := json.Marshal(in.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO payment_intents (id, client_secret, amount, currency, description, metadata, shipping, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		in.ID, in.ClientSecret, in.Amount, in.Currency, in.Description,
		metadata, shipping, in.Status,
		pgtype.Timestamptz{Time: in.Created, Valid: true},
		pgtype.Timestamptz{Time: in.Updated, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Intent, error) {
	var (
		in                       Intent
		metadata, shipping, perr []byte
		billingName, billingMail pgtype.Text
		created, updated         pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `
SELECT id, client_secret, amount, currency, description, metadata, shipping, status,
       last_payment_error, billing_name, billing_email, created_at, updated_at
FROM payment_intents WHERE id = $1`, id).Scan(
		&in.ID, &in.ClientSecret, &in.Amount, &in.Currency, &in.Description,
		&metadata, &shipping, &in.Status, &perr, &billingName, &billingMail, &created, &updated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Intent{}, ErrNotFound
	}
	if err != nil {
		return Intent{}, fmt.Errorf("get payment intent: %w", err)
	}

	in.Object = "payment_intent"
	in.Created = created.Time
	in.Updated = updated.Time
	if err := decodeColumns(&in, metadata, shipping, perr); err != nil {
		return Intent{}, fmt.Errorf("payment intent %s: %w", id, err)
	}
	if billingName.Valid {
		in.BillingDetails = &domain.BillingDetails{Name: billingName.String, Email: billingMail.String}
	}
	return in, nil
}

// decodeColumns fills the jsonb columns of in. Empty columns are skipped.
func decodeColumns(in *Intent, metadata, shipping, perr []byte) error {
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &in.Metadata); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &in.Shipping); err != nil {
			return fmt.Errorf("decode shipping: %w", err)
		}
	}
	if len(perr) > 0 {
		if err := json.Unmarshal(perr, &in.LastPaymentError); err != nil {
			return fmt.Errorf("decode last payment error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepo) Update(ctx context.Context, in Intent, prev string) error {
	var perr []byte
	if in.LastPaymentError != nil {
		b, err := json.Marshal(in.LastPaymentError)
		if err != nil {
			return fmt.Errorf("encode last payment error: %w", err)
		}
		perr = b
	}
	name, email := billingColumns(in.BillingDetails)
	tag, err := r.pool.Exec(ctx, `
UPDATE payment_intents
SET status = $2, last_payment_error = $3, billing_name = $4, billing_email = $5, updated_at = $6
WHERE id = $1 AND status = $7`,
		in.ID, in.Status, perr, name, email, pgtype.Timestamptz{Time: in.Updated, Valid: true}, prev,
	)
	if err != nil {
		return fmt.Errorf("update payment intent: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payment_intents WHERE id = $1)`, in.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check payment intent: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusChanged
}
