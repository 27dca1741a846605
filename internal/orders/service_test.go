package orders

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/abdotop/cartpay/internal/db"
	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestQueries(t *testing.T) *db.Queries {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.AutoMigrate(filepath.Join("..", "..", "db", "migrations")))

	q := s.Queries()
	require.NoError(t, q.CreateUser(context.Background(), db.CreateUserParams{
		ID: "u1", Name: "Ada", Email: "ada@example.com", PasswordHash: "x", CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}))
	return q
}

func paidDraft(paymentID string) domain.Order {
	return domain.Order{
		OrderItems:    []domain.CartItem{{Product: "p1", Name: "Mug", Price: 19.99, Quantity: 2}},
		ShippingInfo:  domain.ShippingInfo{Address: "1 Main St", City: "Austin", PhoneNo: "5551234", PostalCode: "73301", Country: "US", State: "TX"},
		ItemsPrice:    39.98,
		ShippingPrice: 25,
		TaxPrice:      2,
		TotalPrice:    66.98,
		PaymentInfo:   &domain.PaymentInfo{ID: paymentID, Status: domain.PaymentStatusSucceeded},
	}
}

func TestCreatePersistsAndPublishes(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()

	var event orderEvent
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &event)
	})

	svc := NewService(newTestQueries(t), producer, "orders")
	fixed := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	o, err := svc.Create(context.Background(), "u1", paidDraft("pi_1"))
	require.NoError(t, err)
	require.NotEmpty(t, o.ID)
	require.Equal(t, domain.OrderProcessing, o.OrderStatus)
	require.Equal(t, fixed, *o.PaidAt)

	require.Equal(t, EventOrderCreated, event.Type)
	require.Equal(t, o.ID, event.Order.ID)
	require.NotEmpty(t, event.ID)

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, 66.98, got.TotalPrice)
	require.Equal(t, "pi_1", got.PaymentInfo.ID)
	require.False(t, got.PaymentInfo.Verified)
	require.Len(t, got.OrderItems, 1)
	require.Equal(t, "Austin", got.ShippingInfo.City)
	require.True(t, fixed.Equal(*got.PaidAt))

	list, err := svc.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateRefusesUnpaidDraft(t *testing.T) {
	svc := NewService(newTestQueries(t), nil, "")

	draft := paidDraft("pi_1")
	draft.PaymentInfo = nil
	_, err := svc.Create(context.Background(), "u1", draft)
	require.ErrorIs(t, err, ErrNotPaid)

	draft.PaymentInfo = &domain.PaymentInfo{ID: "pi_1", Status: domain.PaymentStatusRequiresAction}
	_, err = svc.Create(context.Background(), "u1", draft)
	require.ErrorIs(t, err, ErrNotPaid)

	empty := paidDraft("pi_2")
	empty.OrderItems = nil
	_, err = svc.Create(context.Background(), "u1", empty)
	require.ErrorIs(t, err, ErrEmptyOrder)

	list, err := svc.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCreateRejectsReusedPayment(t *testing.T) {
	svc := NewService(newTestQueries(t), nil, "")
	_, err := svc.Create(context.Background(), "u1", paidDraft("pi_1"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "u1", paidDraft("pi_1"))
	require.ErrorIs(t, err, ErrDuplicatePayment)
}

func TestPublishFailureKeepsOrder(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	svc := NewService(newTestQueries(t), producer, "orders")
	o, err := svc.Create(context.Background(), "u1", paidDraft("pi_1"))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
}

func TestGetMissing(t *testing.T) {
	svc := NewService(newTestQueries(t), nil, "")
	_, err := svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkPaymentVerified(t *testing.T) {
	svc := NewService(newTestQueries(t), nil, "")
	o, err := svc.Create(context.Background(), "u1", paidDraft("pi_1"))
	require.NoError(t, err)

	ok, err := svc.MarkPaymentVerified(context.Background(), "pi_1", domain.PaymentStatusSucceeded)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.True(t, got.PaymentInfo.Verified)

	ok, err = svc.MarkPaymentVerified(context.Background(), "pi_unknown", domain.PaymentStatusSucceeded)
	require.NoError(t, err)
	require.False(t, ok)
}

type fakeCreator struct{ err error }

func (f fakeCreator) Create(ctx context.Context, userID string, o domain.Order) (domain.Order, error) {
	return o, f.err
}

type recorder struct {
	uid, msg string
}

func (r *recorder) SetOrderError(ctx context.Context, uid, msg string) error {
	r.uid, r.msg = uid, msg
	return nil
}

func TestDispatcher(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(fakeCreator{}, rec)
	require.NoError(t, d.CreateOrder(context.Background(), "u1", domain.Order{}))
	require.Empty(t, rec.msg)

	d = NewDispatcher(fakeCreator{err: ErrDuplicatePayment}, rec)
	require.NoError(t, d.CreateOrder(context.Background(), "u1", domain.Order{}))
	require.Equal(t, "u1", rec.uid)
	require.Equal(t, "This payment was already used for another order.", rec.msg)

	d = NewDispatcher(fakeCreator{err: errors.New("disk full")}, rec)
	require.NoError(t, d.CreateOrder(context.Background(), "u1", domain.Order{}))
	require.Equal(t, "Order could not be saved. Please contact support.", rec.msg)
}
