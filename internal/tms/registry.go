package tms

import (
	"errors"
	"fmt"
)

// ErrSchemeNotFound reports a tiling scheme identifier with no definition.
var ErrSchemeNotFound = errors.New("tiling scheme not found")

// Registry holds the supported tiling schemes. It is built once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	order []string
	byID  map[string]TilingScheme
	def   string
}

// NewRegistry builds a registry from the given schemes, preserving their
// order for List. The scheme named def is returned by Resolve("").
func NewRegistry(def string, schemes []TilingScheme) (*Registry, error) {
	r := &Registry{byID: make(map[string]TilingScheme, len(schemes))}
	for _, s := range schemes {
		if s.ID == "" {
			return nil, errors.New("tiling scheme with empty id")
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate tiling scheme %q", s.ID)
		}
		if s.MatrixWidth < 1 || s.MatrixHeight < 1 {
			return nil, fmt.Errorf("tiling scheme %q: matrix dimensions must be >= 1", s.ID)
		}
		if s.MinZoom < 0 || s.MaxZoom < s.MinZoom {
			return nil, fmt.Errorf("tiling scheme %q: invalid zoom range %d..%d", s.ID, s.MinZoom, s.MaxZoom)
		}
		r.order = append(r.order, s.ID)
		r.byID[s.ID] = s
	}
	if _, ok := r.byID[def]; !ok {
		return nil, fmt.Errorf("default tiling scheme %q is not registered", def)
	}
	r.def = def
	return r, nil
}

// List returns all schemes in registration order. The order is stable
// across calls; it backs the public tileMatrixSets listing.
func (r *Registry) List() []TilingScheme {
	out := make([]TilingScheme, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Get resolves an identifier, case-sensitively.
func (r *Registry) Get(id string) (TilingScheme, error) {
	s, ok := r.byID[id]
	if !ok {
		return TilingScheme{}, fmt.Errorf("%w: %q", ErrSchemeNotFound, id)
	}
	return s, nil
}

// Resolve is Get with the empty identifier mapping to the default scheme.
func (r *Registry) Resolve(id string) (TilingScheme, error) {
	if id == "" {
		id = r.def
	}
	return r.Get(id)
}

// Default returns the configured default scheme.
func (r *Registry) Default() TilingScheme {
	return r.byID[r.def]
}
