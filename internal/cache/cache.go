// Package cache puts a two-tier tile cache in front of the backing
// queries: an in-process LRU backed by Redis. Cache failures are logged
// and bypassed; the fetch path never fails because the cache did.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/geoatlas/tileserv/internal/catalog"
	"github.com/geoatlas/tileserv/internal/observability"
	"github.com/geoatlas/tileserv/internal/tms"
)

// TileSource matches routes.TileSource; declared here so the cache can
// wrap any fetcher without importing the routes package.
type TileSource interface {
	Tile(ctx context.Context, layer catalog.Layer, addr tms.TileAddress, scheme tms.TilingScheme, params []catalog.Param) ([]byte, error)
}

type Config struct {
	RedisAddr string
	LRUSize   int
	TTL       time.Duration
	OpTimeout time.Duration
}

// Tiles is a caching TileSource.
type Tiles struct {
	next      TileSource
	logger    *slog.Logger
	mem       *lru.Cache[string, []byte]
	rdb       *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

// New builds the cache. An empty RedisAddr disables the Redis tier; a
// zero LRUSize disables the memory tier. At least one tier must remain.
func New(ctx context.Context, cfg Config, next TileSource, logger *slog.Logger) (*Tiles, error) {
	t := &Tiles{
		next:      next,
		logger:    logger,
		ttl:       cfg.TTL,
		opTimeout: cfg.OpTimeout,
	}
	if t.ttl <= 0 {
		t.ttl = time.Minute
	}
	if t.opTimeout <= 0 {
		t.opTimeout = 250 * time.Millisecond
	}
	if cfg.LRUSize > 0 {
		mem, err := lru.New[string, []byte](cfg.LRUSize)
		if err != nil {
			return nil, fmt.Errorf("lru: %w", err)
		}
		t.mem = mem
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			PoolSize:     64,
			MinIdleConns: 4,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		t.rdb = rdb
	}
	if t.mem == nil && t.rdb == nil {
		return nil, fmt.Errorf("cache enabled with no tiers configured")
	}
	return t, nil
}

func (t *Tiles) Tile(ctx context.Context, layer catalog.Layer, addr tms.TileAddress, scheme tms.TilingScheme, params []catalog.Param) ([]byte, error) {
	key := Key(layer.ID(), addr, params)

	if t.mem != nil {
		if data, ok := t.mem.Get(key); ok {
			observability.IncCacheResult("memory", "hit")
			return data, nil
		}
		observability.IncCacheResult("memory", "miss")
	}

	if t.rdb != nil {
		opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
		data, err := t.rdb.Get(opCtx, key).Bytes()
		cancel()
		switch {
		case err == nil:
			observability.IncCacheResult("redis", "hit")
			if t.mem != nil {
				t.mem.Add(key, data)
			}
			return data, nil
		case err == redis.Nil:
			observability.IncCacheResult("redis", "miss")
		default:
			observability.IncCacheResult("redis", "error")
			t.logger.WarnContext(ctx, "redis get failed", "key", key, "err", err)
		}
	}

	data, err := t.next.Tile(ctx, layer, addr, scheme, params)
	if err != nil {
		return nil, err
	}
	t.store(ctx, key, data)
	return data, nil
}

func (t *Tiles) store(ctx context.Context, key string, data []byte) {
	if t.mem != nil {
		t.mem.Add(key, data)
	}
	if t.rdb != nil {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opTimeout)
		defer cancel()
		if err := t.rdb.Set(opCtx, key, data, t.ttl).Err(); err != nil {
			t.logger.WarnContext(ctx, "redis set failed", "key", key, "err", err)
		}
	}
}

func (t *Tiles) Close() error {
	if t.rdb != nil {
		if err := t.rdb.Close(); err != nil {
			return fmt.Errorf("redis close: %w", err)
		}
	}
	return nil
}
