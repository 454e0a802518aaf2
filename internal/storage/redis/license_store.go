package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	maxTxRetries = 100
	listChunk    = 200
)

var errTxRetriesExhausted = errors.New("redis transaction retries exhausted")

// LicenseStore keeps each record as a JSON string under "<prefix>:key:<KEY>"
// and the set of all keys under "<prefix>:keys".
type LicenseStore struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func NewLicenseStore(rdb *redis.Client, prefix string, logger *zap.Logger) *LicenseStore {
	return &LicenseStore{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.Named("RedisLicenseStore"),
	}
}

var _ license.Store = (*LicenseStore)(nil)

func namespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

func (s *LicenseStore) recordKey(key string) string {
	return namespaceKey(s.prefix, namespaceKey("key", key))
}

func (s *LicenseStore) indexKey() string {
	return namespaceKey(s.prefix, "keys")
}

func decodeRecord(key string, data []byte) (*license.Record, error) {
	var rec license.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("malformed license record %s: %w", key, err)
	}
	rec.Key = key
	return &rec, nil
}

func (s *LicenseStore) Get(ctx context.Context, key string) (*license.Record, error) {
	data, err := s.rdb.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, license.ErrNotFound
		}
		return nil, fmt.Errorf("redis get license: %w", err)
	}
	return decodeRecord(key, data)
}

func (s *LicenseStore) Put(ctx context.Context, rec *license.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode license record: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.Key), data, 0)
		pipe.SAdd(ctx, s.indexKey(), rec.Key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put license: %w", err)
	}
	return nil
}

// update runs fn on the current record inside WATCH/MULTI and retries when
// another client modified the key in between. fn returns false to skip the write.
func (s *LicenseStore) update(ctx context.Context, key string, fn func(rec *license.Record) bool) (*license.Record, error) {
	rk := s.recordKey(key)
	var result *license.Record

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, rk).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return license.ErrNotFound
			}
			return err
		}
		rec, err := decodeRecord(key, data)
		if err != nil {
			return err
		}
		if !fn(rec) {
			result = rec
			return nil
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, encoded, 0)
			return nil
		})
		if err == nil {
			result = rec
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, rk)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, license.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("redis update license: %w", err)
	}

	s.logger.Warn("Giving up on contended license update", zap.Int("attempts", maxTxRetries))
	return nil, errTxRetriesExhausted
}

func (s *LicenseStore) Patch(ctx context.Context, key string, p license.Patch) error {
	_, err := s.update(ctx, key, func(rec *license.Record) bool {
		p.Apply(rec)
		return true
	})
	return err
}

func (s *LicenseStore) List(ctx context.Context) ([]*license.Record, error) {
	keys, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list license keys: %w", err)
	}

	records := make([]*license.Record, 0, len(keys))
	for start := 0; start < len(keys); start += listChunk {
		end := start + listChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		redisKeys := make([]string, len(chunk))
		for i, k := range chunk {
			redisKeys[i] = s.recordKey(k)
		}
		values, err := s.rdb.MGet(ctx, redisKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget licenses: %w", err)
		}
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				s.logger.Warn("Indexed license has no record", zap.String("key", chunk[i]))
				continue
			}
			rec, err := decodeRecord(chunk[i], []byte(str))
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *LicenseStore) BindIfAbsent(ctx context.Context, key, machineID string, at time.Time) (*license.Record, bool, error) {
	bound := false
	rec, err := s.update(ctx, key, func(rec *license.Record) bool {
		if rec.IsBound() {
			return false
		}
		rec.Bind(machineID, at)
		bound = true
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return rec, bound, nil
}

func (s *LicenseStore) RecordUse(ctx context.Context, key string, at time.Time) (*license.Record, error) {
	return s.update(ctx, key, func(rec *license.Record) bool {
		rec.Touch(at)
		return true
	})
}
