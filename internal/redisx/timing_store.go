package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-order-timing/internal/timing"
)

// TimingStore keeps one JSON document per order plus an index set. Writes go
// through MULTI/EXEC so SaveAll is all-or-nothing.
type TimingStore struct {
	Redis redis.UniversalClient
}

var _ timing.Store = (*TimingStore)(nil)

func (s *TimingStore) Load(ctx context.Context) ([]timing.Record, error) {
	ids, err := s.Redis.SMembers(ctx, KeyTimingIndex).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = TimingRecordKey(id)
	}
	vals, err := s.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]timing.Record, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// indexed but document gone; the index is repaired on next write
			continue
		}
		r, err := decodeRecord(str)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *TimingStore) Save(ctx context.Context, r timing.Record) error {
	return s.SaveAll(ctx, []timing.Record{r})
}

func (s *TimingStore) SaveAll(ctx context.Context, recs []timing.Record) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([][]byte, len(recs))
	for i, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		docs[i] = b
	}
	_, err := s.Redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, r := range recs {
			p.Set(ctx, TimingRecordKey(r.OrderID), docs[i], 0)
			p.SAdd(ctx, KeyTimingIndex, r.OrderID)
		}
		return nil
	})
	return err
}

func (s *TimingStore) Delete(ctx context.Context, orderID string) error {
	_, err := s.Redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, TimingRecordKey(orderID))
		p.SRem(ctx, KeyTimingIndex, orderID)
		return nil
	})
	return err
}

func decodeRecord(s string) (timing.Record, error) {
	var r timing.Record
	err := json.Unmarshal([]byte(s), &r)
	return r, err
}
