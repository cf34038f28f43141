package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/riffid/internal/principal"
)

// DefaultRedisPrefix namespaces principal documents.
const DefaultRedisPrefix = "riff:principal:"

// Redis reads principal data stored as a JSON document at <prefix><userID>.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

var _ Loader = (*Redis)(nil)

// NewRedis returns a loader over rdb. An empty prefix selects DefaultRedisPrefix.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// Supports matches StrategyRedis.
func (r *Redis) Supports(strategy string) bool { return strategy == StrategyRedis }

// Key returns the document key for userID.
func (r *Redis) Key(userID int64) string { return r.prefix + strconv.FormatInt(userID, 10) }

// Load fetches and decodes the document. A missing key is not an error.
func (r *Redis) Load(ctx context.Context, userID int64) (*principal.Data, error) {
	raw, err := r.rdb.Get(ctx, r.Key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var d principal.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode principal document: %w", err)
	}
	return &d, nil
}
