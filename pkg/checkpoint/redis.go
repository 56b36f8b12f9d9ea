package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tokengraph/transfer-indexer/pkg/graph"
)

// RedisStore keeps checkpoints in Redis, one record per depth under the key
// <prefix>:step:<depth>. It lets diskless deployments resume a crawl, at the
// cost of checkpoint durability being only as strong as the Redis persistence
// configuration.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. The prefix namespaces one
// crawl's checkpoints; the token address is the natural choice.
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client must not be nil")
	}
	if prefix == "" {
		return nil, errors.New("redis key prefix must not be empty")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(depth int) string {
	return fmt.Sprintf("%s:step:%d", s.prefix, depth)
}

// Exists reports whether a checkpoint has been written for the depth.
func (s *RedisStore) Exists(ctx context.Context, depth int) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(depth)).Result()
	if err != nil {
		return false, fmt.Errorf("check checkpoint %d: %w", depth, err)
	}
	return n > 0, nil
}

// Write persists the checkpoint record for the depth.
func (s *RedisStore) Write(ctx context.Context, depth int, root *graph.Node, frontier []string) error {
	data, err := json.Marshal(encodeRecord(root, frontier))
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", depth, err)
	}
	if err := s.client.Set(ctx, s.key(depth), data, 0).Err(); err != nil {
		return fmt.Errorf("write checkpoint %d: %w", depth, err)
	}
	return nil
}

// Read loads and decodes the checkpoint record for the depth.
func (s *RedisStore) Read(ctx context.Context, depth int) (*graph.Node, []string, error) {
	data, err := s.client.Get(ctx, s.key(depth)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, fmt.Errorf("%w: depth %d", ErrNotFound, depth)
		}
		return nil, nil, fmt.Errorf("read checkpoint %d: %w", depth, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: depth %d: %w", ErrMalformed, depth, err)
	}
	return decodeRecord(rec)
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
