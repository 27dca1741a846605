package provider

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound      = errors.New("payment intent not found")
	ErrStatusChanged = errors.New("payment intent status changed")
)

// Repository persists payment intents. Update only applies when the stored
// status still equals prev, otherwise it returns ErrStatusChanged.
type Repository interface {
	Create(ctx context.Context, in Intent) error
	Get(ctx context.Context, id string) (Intent, error)
	Update(ctx context.Context, in Intent, prev string) error
}

type MemoryRepo struct {
	mu      sync.RWMutex
	intents map[string]Intent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{intents: make(map[string]Intent)}
}

func (r *MemoryRepo) Create(ctx context.Context, in Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[in.ID] = in
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.intents[id]
	if !ok {
		return Intent{}, ErrNotFound
	}
	return in, nil
}

func (r *MemoryRepo) Update(ctx context.Context, in Intent, prev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.intents[in.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != prev {
		return ErrStatusChanged
	}
	r.intents[in.ID] = in
	return nil
}
