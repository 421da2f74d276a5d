package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/geoatlas/tileserv/internal/catalog"
	"github.com/geoatlas/tileserv/internal/tms"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSource struct {
	calls int
	data  []byte
	err   error
}

func (s *countingSource) Tile(context.Context, catalog.Layer, tms.TileAddress, tms.TilingScheme, []catalog.Param) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

func testLayer() catalog.Layer {
	return &catalog.TableLayer{
		LayerID: "public.roads", Schema: "public", Table: "roads",
		GeometryColumn: "geom", SRID: 4326,
	}
}

func newMiniCache(t *testing.T, next TileSource, lruSize int, ttl time.Duration) (*Tiles, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := New(context.Background(), Config{
		RedisAddr: mr.Addr(),
		LRUSize:   lruSize,
		TTL:       ttl,
	}, next, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestTiles_MissFillHit(t *testing.T) {
	src := &countingSource{data: []byte("payload")}
	c, _ := newMiniCache(t, src, 8, time.Minute)

	scheme := tms.WebMercatorQuad()
	addr := tms.TileAddress{Scheme: scheme.ID, Z: 3, X: 1, Y: 2}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := c.Tile(ctx, testLayer(), addr, scheme, nil)
		if err != nil {
			t.Fatalf("Tile (call %d): %v", i, err)
		}
		if string(data) != "payload" {
			t.Fatalf("data = %q", data)
		}
	}
	if src.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", src.calls)
	}
}

func TestTiles_RedisTierSurvivesLRUEviction(t *testing.T) {
	src := &countingSource{data: []byte("payload")}
	c, mr := newMiniCache(t, src, 1, time.Minute)

	scheme := tms.WebMercatorQuad()
	ctx := context.Background()

	a := tms.TileAddress{Scheme: scheme.ID, Z: 3, X: 0, Y: 0}
	b := tms.TileAddress{Scheme: scheme.ID, Z: 3, X: 1, Y: 0}

	if _, err := c.Tile(ctx, testLayer(), a, scheme, nil); err != nil {
		t.Fatalf("fill a: %v", err)
	}
	// Evicts a from the single-slot LRU.
	if _, err := c.Tile(ctx, testLayer(), b, scheme, nil); err != nil {
		t.Fatalf("fill b: %v", err)
	}
	if _, err := c.Tile(ctx, testLayer(), a, scheme, nil); err != nil {
		t.Fatalf("re-read a: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("backend calls = %d, want 2 (a came back from redis)", src.calls)
	}
	if got := len(mr.Keys()); got != 2 {
		t.Fatalf("redis keys = %d, want 2", got)
	}
}

func TestTiles_TTLApplied(t *testing.T) {
	src := &countingSource{data: []byte("x")}
	c, mr := newMiniCache(t, src, 0, 30*time.Second)

	scheme := tms.WebMercatorQuad()
	addr := tms.TileAddress{Scheme: scheme.ID, Z: 0, X: 0, Y: 0}
	if _, err := c.Tile(context.Background(), testLayer(), addr, scheme, nil); err != nil {
		t.Fatalf("Tile: %v", err)
	}
	key := Key("public.roads", addr, nil)
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestTiles_BackendErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	c, mr := newMiniCache(t, src, 8, time.Minute)

	scheme := tms.WebMercatorQuad()
	addr := tms.TileAddress{Scheme: scheme.ID, Z: 1, X: 0, Y: 0}
	if _, err := c.Tile(context.Background(), testLayer(), addr, scheme, nil); err == nil {
		t.Fatal("expected backend error")
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("error result was cached: %v", mr.Keys())
	}
}

func TestKey_ParamsChangeKey(t *testing.T) {
	addr := tms.TileAddress{Scheme: "WebMercatorQuad", Z: 2, X: 1, Y: 3}
	base := Key("public.roads", addr, nil)
	filtered := Key("public.roads", addr, []catalog.Param{{Key: "where", Value: "a=1"}})
	reordered := Key("public.roads", addr, []catalog.Param{{Key: "where", Value: "a=1"}})

	if base == filtered {
		t.Fatal("params did not affect key")
	}
	if filtered != reordered {
		t.Fatal("identical params produced different keys")
	}
	if other := Key("public.roads", tms.TileAddress{Scheme: "WorldCRS84Quad", Z: 2, X: 1, Y: 3}, nil); other == base {
		t.Fatal("scheme did not affect key")
	}
}
