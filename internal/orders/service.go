package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/abdotop/cartpay/internal/db"
	"github.com/abdotop/cartpay/internal/domain"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/segmentio/ksuid"
)

const EventOrderCreated = "order.created"

var (
	ErrNotFound         = errors.New("order not found")
	ErrNotPaid          = errors.New("order has no successful payment")
	ErrEmptyOrder       = errors.New("order has no items")
	ErrDuplicatePayment = errors.New("payment already used by another order")
)

// Service persists orders and announces them on Kafka when a producer is set.
type Service struct {
	q        *db.Queries
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

func NewService(q *db.Queries, producer sarama.SyncProducer, topic string) *Service {
	return &Service{q: q, producer: producer, topic: topic, now: time.Now}
}

// NewProducer connects a synchronous Kafka producer that waits for all replicas.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// Create stores a paid order for userID. The draft must carry a succeeded
// payment; id, paidAt, status and createdAt are assigned here.
func (s *Service) Create(ctx context.Context, userID string, o domain.Order) (domain.Order, error) {
	if o.PaymentInfo == nil || o.PaymentInfo.Status != domain.PaymentStatusSucceeded {
		return domain.Order{}, ErrNotPaid
	}
	if len(o.OrderItems) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}

	now := s.now().UTC()
	o.ID = ksuid.New().String()
	o.UserID = userID
	o.PaidAt = &now
	o.OrderStatus = domain.OrderProcessing
	o.CreatedAt = now

	items, err := json.Marshal(o.OrderItems)
	if err != nil {
		return domain.Order{}, fmt.Errorf("encode order items: %w", err)
	}
	shipping, err := json.Marshal(o.ShippingInfo)
	if err != nil {
		return domain.Order{}, fmt.Errorf("encode shipping info: %w", err)
	}

	err = s.q.CreateOrder(ctx, db.CreateOrderParams{
		ID:            o.ID,
		UserID:        userID,
		OrderItems:    string(items),
		ShippingInfo:  string(shipping),
		ItemsPrice:    o.ItemsPrice,
		ShippingPrice: o.ShippingPrice,
		TaxPrice:      o.TaxPrice,
		TotalPrice:    o.TotalPrice,
		PaymentID:     o.PaymentInfo.ID,
		PaymentStatus: o.PaymentInfo.Status,
		PaidAt:        sql.NullString{String: now.Format(time.RFC3339Nano), Valid: true},
		OrderStatus:   o.OrderStatus.String(),
		CreatedAt:     now.Format(time.RFC3339Nano),
	})
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return domain.Order{}, ErrDuplicatePayment
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	slog.InfoContext(ctx, "Order created", "order_id", o.ID, "user_id", userID, "payment_id", o.PaymentInfo.ID)
	s.publish(ctx, o)
	return o, nil
}

type orderEvent struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Order      domain.Order `json:"order"`
	OccurredAt string       `json:"occurred_at"`
}

// publish is best effort: the order is already stored.
func (s *Service) publish(ctx context.Context, o domain.Order) {
	if s.producer == nil {
		return
	}
	b, err := json.Marshal(orderEvent{
		ID:         uuid.NewString(),
		Type:       EventOrderCreated,
		Order:      o,
		OccurredAt: o.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode order event", "order_id", o.ID, "error", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(o.ID),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish order event", "order_id", o.ID, "error", err)
	}
}

func toDomain(row db.Order) (domain.Order, error) {
	o := domain.Order{
		ID:            row.ID,
		UserID:        row.UserID,
		ItemsPrice:    row.ItemsPrice,
		ShippingPrice: row.ShippingPrice,
		TaxPrice:      row.TaxPrice,
		TotalPrice:    row.TotalPrice,
		OrderStatus:   domain.OrderStatus(row.OrderStatus),
		PaymentInfo: &domain.PaymentInfo{
			ID:       row.PaymentID,
			Status:   row.PaymentStatus,
			Verified: row.PaymentVerified,
		},
	}
	if err := json.Unmarshal([]byte(row.OrderItems), &o.OrderItems); err != nil {
		return domain.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal([]byte(row.ShippingInfo), &o.ShippingInfo); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping info: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse created_at: %w", err)
	}
	o.CreatedAt = created
	if row.PaidAt.Valid {
		paid, err := time.Parse(time.RFC3339Nano, row.PaidAt.String)
		if err != nil {
			return domain.Order{}, fmt.Errorf("parse paid_at: %w", err)
		}
		o.PaidAt = &paid
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	row, err := s.q.GetOrder(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return toDomain(row)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.q.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		o, err := toDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// MarkPaymentVerified flags the order paid by paymentID as confirmed by the
// provider's webhook. It reports whether an order matched.
func (s *Service) MarkPaymentVerified(ctx context.Context, paymentID, status string) (bool, error) {
	n, err := s.q.MarkOrderPaymentVerified(ctx, db.MarkOrderPaymentVerifiedParams{
		PaymentStatus: status,
		PaymentID:     paymentID,
	})
	if err != nil {
		return false, fmt.Errorf("mark payment verified: %w", err)
	}
	return n > 0, nil
}
