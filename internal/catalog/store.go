package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/geoatlas/tileserv/internal/observability"
)

// Snapshot is an immutable view of the catalog. Readers hold one snapshot
// for the whole request, so a concurrent refresh never mixes old and new
// layer definitions.
type Snapshot struct {
	order []string
	byID  map[string]Layer
}

func NewSnapshot(layers []Layer) (*Snapshot, error) {
	s := &Snapshot{byID: make(map[string]Layer, len(layers))}
	for _, l := range layers {
		if _, dup := s.byID[l.ID()]; dup {
			return nil, fmt.Errorf("duplicate layer id %q", l.ID())
		}
		s.order = append(s.order, l.ID())
		s.byID[l.ID()] = l
	}
	return s, nil
}

// Lookup resolves a layer id.
func (s *Snapshot) Lookup(id string) (Layer, error) {
	l, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	return l, nil
}

// All returns every layer in load order.
func (s *Snapshot) All() []Layer {
	out := make([]Layer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Tables returns the table-backed layers in load order.
func (s *Snapshot) Tables() []*TableLayer {
	var out []*TableLayer
	for _, l := range s.All() {
		if t, ok := l.(*TableLayer); ok {
			out = append(out, t)
		}
	}
	return out
}

// Functions returns the function-backed layers in load order.
func (s *Snapshot) Functions() []*FunctionLayer {
	var out []*FunctionLayer
	for _, l := range s.All() {
		if f, ok := l.(*FunctionLayer); ok {
			out = append(out, f)
		}
	}
	return out
}

// Loader produces the full layer set from the backing source.
type Loader interface {
	Load(ctx context.Context) ([]Layer, error)
}

// Store publishes catalog snapshots. Refresh builds a complete new
// snapshot and swaps the published pointer; readers never block and never
// observe a half-updated catalog.
type Store struct {
	loader Loader
	logger *slog.Logger
	cur    atomic.Pointer[Snapshot]
	kick   chan struct{}
}

func NewStore(loader Loader, logger *slog.Logger) *Store {
	st := &Store{
		loader: loader,
		logger: logger,
		kick:   make(chan struct{}, 1),
	}
	empty, _ := NewSnapshot(nil)
	st.cur.Store(empty)
	return st
}

// Current returns the published snapshot.
func (st *Store) Current() *Snapshot {
	return st.cur.Load()
}

// Refresh loads the catalog wholesale and publishes it. On failure the
// previous snapshot stays published.
func (st *Store) Refresh(ctx context.Context) error {
	layers, err := st.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	snap, err := NewSnapshot(layers)
	if err != nil {
		return fmt.Errorf("build catalog snapshot: %w", err)
	}
	st.cur.Store(snap)
	observability.SetCatalogSize(len(snap.Tables()), len(snap.Functions()))
	st.logger.Info("catalog refreshed",
		"tables", len(snap.Tables()), "functions", len(snap.Functions()))
	return nil
}

// Trigger schedules an immediate refresh on the Run loop. It never
// blocks; a refresh already pending absorbs the trigger.
func (st *Store) Trigger() {
	select {
	case st.kick <- struct{}{}:
	default:
	}
}

// Run refreshes on the given interval and on Trigger until ctx is done.
// An interval of zero disables periodic refresh.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-st.kick:
		}
		if err := st.Refresh(ctx); err != nil {
			st.logger.Error("catalog refresh failed", "err", err)
		}
	}
}
