package catalog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geoatlas/tileserv/internal/observability"
	"github.com/geoatlas/tileserv/internal/tms"
)

// Fetcher executes a layer's tile capability against the shared pgx pool.
// The pool bounds concurrent borrows; a busy pool surfaces as a context
// deadline from Acquire, not a hang, and cancellation propagates into the
// running query.
type Fetcher struct {
	pool *pgxpool.Pool
}

func NewFetcher(pool *pgxpool.Pool) *Fetcher {
	return &Fetcher{pool: pool}
}

func (f *Fetcher) Tile(ctx context.Context, layer Layer, addr tms.TileAddress, scheme tms.TilingScheme, params []Param) ([]byte, error) {
	start := time.Now()
	data, err := layer.Tile(ctx, f.pool, addr, scheme, params)
	observability.ObserveTileFetch(string(layer.Kind()), err, time.Since(start).Seconds())
	return data, err
}
