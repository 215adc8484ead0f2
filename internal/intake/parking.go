package intake

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-order-timing/internal/redisx"
	"github.com/ariefcatur/go-order-timing/internal/timing"
)

// Parking holds status changes that arrived before their order, in arrival
// order, until the order is enqueued.
type Parking interface {
	Park(ctx context.Context, orderID string, to timing.Status) error
	Parked(ctx context.Context, orderID string) ([]timing.Status, error)
	// Drop removes the first n parked statuses of orderID.
	Drop(ctx context.Context, orderID string, n int) error
}

// RedisParking keeps parked statuses in a list per order so they survive a
// restart after the status message was committed.
type RedisParking struct {
	Redis redis.Cmdable
}

func (p *RedisParking) Park(ctx context.Context, orderID string, to timing.Status) error {
	key := redisx.ParkedKey(orderID)
	_, err := p.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, string(to))
		pipe.Expire(ctx, key, redisx.TTLParked)
		return nil
	})
	return err
}

func (p *RedisParking) Parked(ctx context.Context, orderID string) ([]timing.Status, error) {
	vals, err := p.Redis.LRange(ctx, redisx.ParkedKey(orderID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]timing.Status, 0, len(vals))
	for _, v := range vals {
		out = append(out, timing.Status(v))
	}
	return out, nil
}

func (p *RedisParking) Drop(ctx context.Context, orderID string, n int) error {
	if n <= 0 {
		return nil
	}
	// an empty remaining range deletes the key
	return p.Redis.LTrim(ctx, redisx.ParkedKey(orderID), int64(n), -1).Err()
}

// MemoryParking is the in-process Parking used without Redis.
type MemoryParking struct {
	mu sync.Mutex
	m  map[string][]timing.Status
}

func NewMemoryParking() *MemoryParking {
	return &MemoryParking{m: map[string][]timing.Status{}}
}

func (p *MemoryParking) Park(_ context.Context, orderID string, to timing.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[orderID] = append(p.m[orderID], to)
	return nil
}

func (p *MemoryParking) Parked(_ context.Context, orderID string) ([]timing.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]timing.Status(nil), p.m[orderID]...), nil
}

func (p *MemoryParking) Drop(_ context.Context, orderID string, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rest := p.m[orderID]
	if n >= len(rest) {
		delete(p.m, orderID)
		return nil
	}
	if n > 0 {
		p.m[orderID] = rest[n:]
	}
	return nil
}
