package provider

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/stretchr/testify/require"
)

// Runs only against a real database: PROVIDER_TEST_DB_SOURCE=postgres://...
func TestPostgresRepo(t *testing.T) {
	dsn := os.Getenv("PROVIDER_TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("PROVIDER_TEST_DB_SOURCE not set")
	}
	ctx := context.Background()
	repo, err := NewPostgresRepo(ctx, dsn)
	require.NoError(t, err)
	defer repo.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	in := Intent{
		ID:           "pi_test_" + now.Format("150405.000000"),
		ClientSecret: "secret",
		Amount:       4999,
		Currency:     "usd",
		Metadata:     map[string]string{"integration_check": "accept_payment"},
		Shipping:     &domain.Shipping{Name: "Ada"},
		Status:       domain.PaymentStatusRequiresPaymentMethod,
		Created:      now,
		Updated:      now,
	}
	require.NoError(t, repo.Create(ctx, in))

	in.Status = domain.PaymentStatusSucceeded
	in.BillingDetails = &domain.BillingDetails{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, repo.Update(ctx, in, domain.PaymentStatusRequiresPaymentMethod))
	require.ErrorIs(t, repo.Update(ctx, in, domain.PaymentStatusRequiresPaymentMethod), ErrStatusChanged)

	got, err := repo.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSucceeded, got.Status)
	require.Equal(t, "ada@example.com", got.BillingDetails.Email)
	require.Equal(t, "Ada", got.Shipping.Name)
	require.Equal(t, "accept_payment", got.Metadata["integration_check"])

	_, err = repo.Get(ctx, "pi_missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, Intent{ID: "pi_missing"}, ""), ErrNotFound)

	_, err = repo.pool.Exec(ctx, `UPDATE payment_intents SET shipping = '"not an object"' WHERE id = $1`, in.ID)
	require.NoError(t, err)
	_, err = repo.Get(ctx, in.ID)
	require.ErrorContains(t, err, "decode shipping")
}

func TestMemoryRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	require.ErrorIs(t, repo.Update(ctx, Intent{ID: "pi_1"}, ""), ErrNotFound)
	require.NoError(t, repo.Create(ctx, Intent{ID: "pi_1", Status: domain.PaymentStatusRequiresPaymentMethod}))
	require.NoError(t, repo.Update(ctx, Intent{ID: "pi_1", Status: domain.PaymentStatusSucceeded}, domain.PaymentStatusRequiresPaymentMethod))
	got, err := repo.Get(ctx, "pi_1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSucceeded, got.Status)

	// a second writer holding the old status loses
	err = repo.Update(ctx, Intent{ID: "pi_1", Status: domain.PaymentStatusSucceeded}, domain.PaymentStatusRequiresPaymentMethod)
	require.ErrorIs(t, err, ErrStatusChanged)
}

func TestDecodeColumns(t *testing.T) {
	var in Intent
	require.NoError(t, decodeColumns(&in, []byte(`{"integration_check":"accept_payment"}`), nil, nil))
	require.Equal(t, "accept_payment", in.Metadata["integration_check"])

	err := decodeColumns(&in, nil, []byte(`{"name":`), nil)
	require.ErrorContains(t, err, "decode shipping")

	err = decodeColumns(&in, nil, nil, []byte(`[1]`))
	require.ErrorContains(t, err, "decode last payment error")
}
