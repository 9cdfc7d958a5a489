package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActiveStore holds the bounded working set.
type ActiveStore interface {
	Add(ctx context.Context, rec Record) error
	// List returns every active record, oldest created first.
	List(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int64, error)
	Remove(ctx context.Context, ids ...uuid.UUID) error
	// Search returns records whose content contains query, newest first.
	Search(ctx context.Context, query string, limit int) ([]Record, error)
	Touch(ctx context.Context, at time.Time, ids ...uuid.UUID) error
	Ping(ctx context.Context) error
}

// touchScript only stamps records still present in the index, so a touch
// racing a sweep cannot leave an orphaned access time behind.
var touchScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
  return 1
end
return 0
`)

// RedisActiveStore keeps active records in Redis:
//
//	<prefix>:records   hash  id -> JSON record
//	<prefix>:index     zset  id scored by creation time (unix ms)
//	<prefix>:accessed  hash  id -> last access (unix ms)
type RedisActiveStore struct {
	client *redis.Client
	prefix string
}

// NewRedisActiveStore creates a new active-tier store.
func NewRedisActiveStore(client *redis.Client, prefix string) *RedisActiveStore {
	return &RedisActiveStore{client: client, prefix: prefix}
}

func (s *RedisActiveStore) recordsKey() string  { return s.prefix + ":records" }
func (s *RedisActiveStore) indexKey() string    { return s.prefix + ":index" }
func (s *RedisActiveStore) accessedKey() string { return s.prefix + ":accessed" }

func (s *RedisActiveStore) Add(ctx context.Context, rec Record) error {
	rec.Tier = TierActive
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	id := rec.ID.String()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordsKey(), id, data)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: id})
	pipe.HSet(ctx, s.accessedKey(), id, rec.LastAccessedAt.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("adding active record %s: %w", id, err)
	}
	return nil
}

func (s *RedisActiveStore) List(ctx context.Context) ([]Record, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", s.indexKey(), err)
	}
	return s.load(ctx, ids)
}

func (s *RedisActiveStore) load(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return []Record{}, nil
	}

	pipe := s.client.Pipeline()
	recCmd := pipe.HMGet(ctx, s.recordsKey(), ids...)
	accCmd := pipe.HMGet(ctx, s.accessedKey(), ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("loading active records: %w", err)
	}

	raws := recCmd.Val()
	accessed := accCmd.Val()
	out := make([]Record, 0, len(ids))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // indexed but not stored yet, or already removed
		}
		var rec Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue // skip malformed entries
		}
		if ms, ok := accessed[i].(string); ok {
			if v, err := strconv.ParseInt(ms, 10, 64); err == nil {
				rec.LastAccessedAt = time.UnixMilli(v).UTC()
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisActiveStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", s.indexKey(), err)
	}
	return n, nil
}

func (s *RedisActiveStore) Remove(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]string, len(ids))
	zmembers := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id.String()
		zmembers[i] = members[i]
	}

	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.indexKey(), zmembers...)
	pipe.HDel(ctx, s.recordsKey(), members...)
	pipe.HDel(ctx, s.accessedKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing %d active records: %w", len(ids), err)
	}
	return nil
}

func (s *RedisActiveStore) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	matches := make([]Record, 0)
	for _, rec := range all {
		if q == "" || strings.Contains(strings.ToLower(rec.Content), q) {
			matches = append(matches, rec)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *RedisActiveStore) Touch(ctx context.Context, at time.Time, ids ...uuid.UUID) error {
	keys := []string{s.indexKey(), s.accessedKey()}
	for _, id := range ids {
		if err := touchScript.Run(ctx, s.client, keys, id.String(), at.UnixMilli()).Err(); err != nil {
			return fmt.Errorf("touching active record %s: %w", id, err)
		}
	}
	return nil
}

func (s *RedisActiveStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
