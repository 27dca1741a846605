package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abdotop/cartpay/internal/cart"
	"github.com/abdotop/cartpay/internal/domain"
	"github.com/redis/go-redis/v9"
)

// OrderInfoTTL bounds how long a confirmed price breakdown survives, the
// server-side stand-in for browser session storage.
const OrderInfoTTL = 30 * time.Minute

// RedisClient defines the interface for Redis operations.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store keeps per-user cart and order state. Keys are scoped by user id.
type Store struct {
	redis RedisClient
}

func New(redis RedisClient) *Store {
	return &Store{redis: redis}
}

func cartKey(uid string) string       { return "cart:" + uid }
func orderErrorKey(uid string) string { return "order_error:" + uid }
func orderInfoKey(uid string) string  { return "order_info:" + uid }

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Cart returns the user's cart; an unknown user has an empty one.
func (s *Store) Cart(ctx context.Context, uid string) (domain.Cart, error) {
	var c domain.Cart
	if _, err := s.getJSON(ctx, cartKey(uid), &c); err != nil {
		return domain.Cart{}, err
	}
	return c, nil
}

func (s *Store) SaveCart(ctx context.Context, uid string, c domain.Cart) error {
	return s.setJSON(ctx, cartKey(uid), c, 0)
}

func (s *Store) AddItem(ctx context.Context, uid string, item domain.CartItem) (domain.Cart, error) {
	c, err := s.Cart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	c.Items = cart.Add(c.Items, item)
	return c, s.SaveCart(ctx, uid, c)
}

func (s *Store) RemoveItem(ctx context.Context, uid, product string) (domain.Cart, error) {
	c, err := s.Cart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	c.Items = cart.Remove(c.Items, product)
	return c, s.SaveCart(ctx, uid, c)
}

func (s *Store) SaveShipping(ctx context.Context, uid string, info domain.ShippingInfo) (domain.Cart, error) {
	c, err := s.Cart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	c.ShippingInfo = info
	return c, s.SaveCart(ctx, uid, c)
}

// OrderError returns the pending order error message, "" when none.
func (s *Store) OrderError(ctx context.Context, uid string) (string, error) {
	msg, err := s.redis.Get(ctx, orderErrorKey(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get order error: %w", err)
	}
	return msg, nil
}

func (s *Store) SetOrderError(ctx context.Context, uid, msg string) error {
	if err := s.redis.Set(ctx, orderErrorKey(uid), msg, 0).Err(); err != nil {
		return fmt.Errorf("set order error: %w", err)
	}
	return nil
}

func (s *Store) ClearOrderError(ctx context.Context, uid string) error {
	if err := s.redis.Del(ctx, orderErrorKey(uid)).Err(); err != nil {
		return fmt.Errorf("clear order error: %w", err)
	}
	return nil
}

// OrderCompleted empties the cart, forgets the shipping address and drops the
// confirmed order info.
func (s *Store) OrderCompleted(ctx context.Context, uid string) error {
	if err := s.redis.Del(ctx, cartKey(uid), orderInfoKey(uid)).Err(); err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	return nil
}

// OrderInfo returns nil when no breakdown was confirmed or it expired.
func (s *Store) OrderInfo(ctx context.Context, uid string) (*domain.OrderInfo, error) {
	var info domain.OrderInfo
	ok, err := s.getJSON(ctx, orderInfoKey(uid), &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

func (s *Store) SetOrderInfo(ctx context.Context, uid string, info domain.OrderInfo) error {
	return s.setJSON(ctx, orderInfoKey(uid), info, OrderInfoTTL)
}
