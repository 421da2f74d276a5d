// Package catalog holds the set of servable layers and the capability to
// fetch a tile from each. Layers come in two closed variants: table-backed
// and function-backed.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/geoatlas/tileserv/internal/tms"
)

var (
	// ErrLayerNotFound reports an unknown layer id.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrMissingParameter reports a required function parameter with no
	// value and no default.
	ErrMissingParameter = errors.New("missing required parameter")
)

// Param is one forwarded query parameter. Order matters: parameters keep
// the order they appeared in the request.
type Param struct {
	Key   string
	Value string
}

// Querier is the slice of pgxpool.Pool the fetch path needs. Tests supply
// a stub.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Kind string

const (
	KindTable    Kind = "table"
	KindFunction Kind = "function"
)

// Layer is a servable tile source. The variant set is closed: TableLayer
// and FunctionLayer are the only implementations.
type Layer interface {
	ID() string
	Kind() Kind
	// Bounds returns [minx, miny, maxx, maxy] in lon/lat, or nil when
	// unknown.
	Bounds() []float64
	// MinZoom and MaxZoom return nil when the layer declares no limit.
	// A tile outside the declared range is still fetched; layers define
	// their own out-of-range policy (typically an empty tile).
	MinZoom() *int
	MaxZoom() *int
	// Tile fetches the encoded vector tile for addr using q.
	Tile(ctx context.Context, q Querier, addr tms.TileAddress, scheme tms.TilingScheme, params []Param) ([]byte, error)
}

const (
	mvtExtent = 4096
	mvtBuffer = 256
)

// TableLayer serves tiles straight from a geometry table via ST_AsMVT.
type TableLayer struct {
	LayerID        string            `json:"id"`
	Schema         string            `json:"schema"`
	Table          string            `json:"table"`
	GeometryColumn string            `json:"geometry_column"`
	SRID           int               `json:"srid"`
	GeometryType   string            `json:"geometry_type,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
	Bbox           []float64         `json:"bounds,omitempty"`
	MinZ           *int              `json:"minzoom,omitempty"`
	MaxZ           *int              `json:"maxzoom,omitempty"`
}

func (l *TableLayer) ID() string       { return l.LayerID }
func (l *TableLayer) Kind() Kind       { return KindTable }
func (l *TableLayer) Bounds() []float64 { return l.Bbox }
func (l *TableLayer) MinZoom() *int    { return l.MinZ }
func (l *TableLayer) MaxZoom() *int    { return l.MaxZ }

// Tile builds and runs the ST_AsMVT query for one tile. Extra request
// parameters are ignored for table layers.
func (l *TableLayer) Tile(ctx context.Context, q Querier, addr tms.TileAddress, scheme tms.TilingScheme, _ []Param) ([]byte, error) {
	ext := scheme.TileExtent(addr)

	cols := make([]string, 0, len(l.Properties))
	for name := range l.Properties {
		if name == l.GeometryColumn {
			continue
		}
		cols = append(cols, ", t."+quoteIdent(name))
	}

	rel := quoteIdent(l.Schema) + "." + quoteIdent(l.Table)
	geom := "t." + quoteIdent(l.GeometryColumn)

	sql := fmt.Sprintf(`WITH bounds AS (
  SELECT ST_MakeEnvelope($1, $2, $3, $4, %d) AS geom
), mvtgeom AS (
  SELECT ST_AsMVTGeom(ST_Transform(%s, %d), bounds.geom, %d, %d) AS geom%s
  FROM %s t, bounds
  WHERE ST_Intersects(%s, ST_Transform(bounds.geom, %d))
)
SELECT ST_AsMVT(mvtgeom.*, $5, %d, 'geom') FROM mvtgeom`,
		scheme.SRID,
		geom, scheme.SRID, mvtExtent, mvtBuffer, strings.Join(cols, ""),
		rel,
		geom, l.SRID,
		mvtExtent,
	)

	var data []byte
	if err := q.QueryRow(ctx, sql, ext[0], ext[1], ext[2], ext[3], l.LayerID).Scan(&data); err != nil {
		return nil, fmt.Errorf("table %s: tile %s: %w", l.LayerID, addr, err)
	}
	return data, nil
}

// FunctionParam declares one parameter of a function layer. A parameter
// with no default is required.
type FunctionParam struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Default *string `json:"default,omitempty"`
}

// FunctionLayer serves tiles by calling a SQL function that returns the
// encoded tile. The function receives z, x, y plus the declared
// parameters.
type FunctionLayer struct {
	LayerID  string          `json:"id"`
	Schema   string          `json:"schema"`
	Function string          `json:"function"`
	Params   []FunctionParam `json:"parameters,omitempty"`
	Bbox     []float64       `json:"bounds,omitempty"`
	MinZ     *int            `json:"minzoom,omitempty"`
	MaxZ     *int            `json:"maxzoom,omitempty"`
}

func (l *FunctionLayer) ID() string       { return l.LayerID }
func (l *FunctionLayer) Kind() Kind       { return KindFunction }
func (l *FunctionLayer) Bounds() []float64 { return l.Bbox }
func (l *FunctionLayer) MinZoom() *int    { return l.MinZ }
func (l *FunctionLayer) MaxZoom() *int    { return l.MaxZ }

func (l *FunctionLayer) Tile(ctx context.Context, q Querier, addr tms.TileAddress, _ tms.TilingScheme, params []Param) ([]byte, error) {
	byKey := make(map[string]string, len(params))
	for _, p := range params {
		byKey[p.Key] = p.Value
	}

	args := []any{int64(addr.Z), int64(addr.X), int64(addr.Y)}
	call := make([]string, 0, 3+len(l.Params))
	call = append(call, "z => $1", "x => $2", "y => $3")

	for _, fp := range l.Params {
		val, ok := byKey[fp.Name]
		if !ok {
			if fp.Default == nil {
				return nil, fmt.Errorf("%w: %q for function %s", ErrMissingParameter, fp.Name, l.LayerID)
			}
			val = *fp.Default
		}
		args = append(args, val)
		call = append(call, fmt.Sprintf("%s => $%d%s", quoteIdent(fp.Name), len(args), castFor(fp.Type)))
	}

	sql := fmt.Sprintf("SELECT %s.%s(%s)",
		quoteIdent(l.Schema), quoteIdent(l.Function), strings.Join(call, ", "))

	var data []byte
	if err := q.QueryRow(ctx, sql, args...).Scan(&data); err != nil {
		return nil, fmt.Errorf("function %s: tile %s: %w", l.LayerID, addr, err)
	}
	return data, nil
}

var typeNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_ ]*$`)

// castFor turns a declared parameter type into an explicit SQL cast so
// text-typed placeholders coerce to the function's signature.
func castFor(typ string) string {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || typ == "text" || !typeNamePattern.MatchString(typ) {
		return ""
	}
	return "::" + typ
}

func quoteIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}
