package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/geoatlas/tileserv/internal/tms"
)

type fakeRow struct {
	data []byte
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

type fakeQuerier struct {
	sql  string
	args []any
	data []byte
	err  error
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return &fakeRow{data: q.data, err: q.err}
}

func TestTableLayer_TileSQL(t *testing.T) {
	l := &TableLayer{
		LayerID:        "public.parcels",
		Schema:         "public",
		Table:          "parcels",
		GeometryColumn: "geom",
		SRID:           4326,
		Properties:     map[string]string{"owner": "text"},
	}
	scheme := tms.WebMercatorQuad()
	addr := tms.TileAddress{Scheme: scheme.ID, Z: 2, X: 1, Y: 1}

	q := &fakeQuerier{data: []byte("tile")}
	data, err := l.Tile(context.Background(), q, addr, scheme, []Param{{Key: "ignored", Value: "x"}})
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if string(data) != "tile" {
		t.Fatalf("data = %q", data)
	}

	for _, frag := range []string{`"public"."parcels"`, `ST_AsMVT`, `ST_AsMVTGeom`, `"owner"`, `3857`} {
		if !strings.Contains(q.sql, frag) {
			t.Fatalf("sql missing %q:\n%s", frag, q.sql)
		}
	}

	ext := scheme.TileExtent(addr)
	if len(q.args) != 5 {
		t.Fatalf("args = %v", q.args)
	}
	for i := 0; i < 4; i++ {
		if q.args[i] != ext[i] {
			t.Fatalf("arg %d = %v, want %v", i, q.args[i], ext[i])
		}
	}
	if q.args[4] != "public.parcels" {
		t.Fatalf("mvt layer name arg = %v", q.args[4])
	}
}

func TestFunctionLayer_TileParams(t *testing.T) {
	def := "10"
	l := &FunctionLayer{
		LayerID:  "hexes",
		Schema:   "public",
		Function: "hexes",
		Params: []FunctionParam{
			{Name: "step", Type: "integer"},
			{Name: "label", Type: "text", Default: &def},
		},
	}
	scheme := tms.WebMercatorQuad()
	addr := tms.TileAddress{Scheme: scheme.ID, Z: 5, X: 3, Y: 7}

	t.Run("missing required", func(t *testing.T) {
		q := &fakeQuerier{}
		_, err := l.Tile(context.Background(), q, addr, scheme, nil)
		if !errors.Is(err, ErrMissingParameter) {
			t.Fatalf("err = %v, want ErrMissingParameter", err)
		}
	})

	t.Run("supplied and defaulted", func(t *testing.T) {
		q := &fakeQuerier{data: []byte{}}
		_, err := l.Tile(context.Background(), q, addr, scheme, []Param{{Key: "step", Value: "4"}})
		if err != nil {
			t.Fatalf("Tile: %v", err)
		}
		if !strings.Contains(q.sql, `"public"."hexes"(`) {
			t.Fatalf("sql = %s", q.sql)
		}
		if !strings.Contains(q.sql, `"step" => $4::integer`) {
			t.Fatalf("typed cast missing: %s", q.sql)
		}
		want := []any{int64(5), int64(3), int64(7), "4", "10"}
		if len(q.args) != len(want) {
			t.Fatalf("args = %v", q.args)
		}
		for i := range want {
			if q.args[i] != want[i] {
				t.Fatalf("arg %d = %v, want %v", i, q.args[i], want[i])
			}
		}
	})

	t.Run("unknown extra key ignored", func(t *testing.T) {
		q := &fakeQuerier{data: []byte{}}
		_, err := l.Tile(context.Background(), q, addr, scheme,
			[]Param{{Key: "step", Value: "4"}, {Key: "bogus", Value: "z"}})
		if err != nil {
			t.Fatalf("Tile: %v", err)
		}
		if len(q.args) != 5 {
			t.Fatalf("unexpected arg for unknown key: %v", q.args)
		}
	})
}

func TestCastFor(t *testing.T) {
	cases := map[string]string{
		"integer":          "::integer",
		"INTEGER":          "::integer",
		"text":             "",
		"":                 "",
		"double precision": "::double precision",
		"int4; DROP":       "",
	}
	for in, want := range cases {
		if got := castFor(in); got != want {
			t.Errorf("castFor(%q) = %q, want %q", in, got, want)
		}
	}
}
