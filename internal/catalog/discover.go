package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgisLoader discovers table layers from geometry_columns and appends
// the operator-configured function layers.
type PostgisLoader struct {
	Pool      *pgxpool.Pool
	Functions []*FunctionLayer
	// Schemas limits discovery; empty means every non-system schema.
	Schemas []string
	// DefaultMinZoom and DefaultMaxZoom apply to discovered tables that
	// declare no zoom range of their own. Nil leaves the range open.
	DefaultMinZoom *int
	DefaultMaxZoom *int

	Logger *slog.Logger
}

const discoverTablesSQL = `
SELECT f_table_schema, f_table_name, f_geometry_column, srid, type
FROM geometry_columns
WHERE f_table_schema NOT IN ('pg_catalog', 'information_schema')
  AND (cardinality($1::text[]) = 0 OR f_table_schema = ANY($1::text[]))
ORDER BY f_table_schema, f_table_name, f_geometry_column`

const tableColumnsSQL = `
SELECT column_name, udt_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

const estimatedExtentSQL = `
SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e)
FROM (
  SELECT ST_Transform(ST_SetSRID(ST_EstimatedExtent($1, $2, $3), $4), 4326) AS e
) sub`

func (pl *PostgisLoader) Load(ctx context.Context) ([]Layer, error) {
	schemas := pl.Schemas
	if schemas == nil {
		schemas = []string{}
	}
	rows, err := pl.Pool.Query(ctx, discoverTablesSQL, schemas)
	if err != nil {
		return nil, fmt.Errorf("discover geometry tables: %w", err)
	}
	defer rows.Close()

	var tables []*TableLayer
	for rows.Next() {
		t := &TableLayer{MinZ: pl.DefaultMinZoom, MaxZ: pl.DefaultMaxZoom}
		if err := rows.Scan(&t.Schema, &t.Table, &t.GeometryColumn, &t.SRID, &t.GeometryType); err != nil {
			return nil, fmt.Errorf("scan geometry table row: %w", err)
		}
		t.LayerID = t.Schema + "." + t.Table
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("discover geometry tables: %w", err)
	}

	layers := make([]Layer, 0, len(tables)+len(pl.Functions))
	for _, t := range tables {
		if err := pl.fillColumns(ctx, t); err != nil {
			return nil, err
		}
		pl.fillBounds(ctx, t)
		layers = append(layers, t)
	}
	for _, f := range pl.Functions {
		layers = append(layers, f)
	}
	return layers, nil
}

func (pl *PostgisLoader) fillColumns(ctx context.Context, t *TableLayer) error {
	rows, err := pl.Pool.Query(ctx, tableColumnsSQL, t.Schema, t.Table)
	if err != nil {
		return fmt.Errorf("columns of %s: %w", t.LayerID, err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return fmt.Errorf("scan column of %s: %w", t.LayerID, err)
		}
		if name == t.GeometryColumn || typ == "geometry" || typ == "geography" {
			continue
		}
		props[name] = typ
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("columns of %s: %w", t.LayerID, err)
	}
	t.Properties = props
	return nil
}

// fillBounds estimates lon/lat bounds from table statistics. Tables
// without stats simply get no bounds.
func (pl *PostgisLoader) fillBounds(ctx context.Context, t *TableLayer) {
	var minx, miny, maxx, maxy *float64
	err := pl.Pool.QueryRow(ctx, estimatedExtentSQL,
		t.Schema, t.Table, t.GeometryColumn, t.SRID).
		Scan(&minx, &miny, &maxx, &maxy)
	if err != nil || minx == nil || miny == nil || maxx == nil || maxy == nil {
		if pl.Logger != nil {
			pl.Logger.Debug("no estimated extent", "layer", t.LayerID)
		}
		return
	}
	t.Bbox = []float64{*minx, *miny, *maxx, *maxy}
}
