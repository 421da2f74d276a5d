package tms

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_ListOrderIsStable(t *testing.T) {
	custom := TilingScheme{
		ID: "ArcticQuad", CRS: "EPSG:5936", SRID: 5936,
		MaxZoom: 15, Extent: Extent{-4194304, -4194304, 4194304, 4194304},
		MatrixWidth: 1, MatrixHeight: 1, TileSize: 256,
	}
	reg, err := NewRegistry("WebMercatorQuad", append(Defaults(), custom))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	want := []string{"WebMercatorQuad", "WorldCRS84Quad", "ArcticQuad"}
	for i := 0; i < 3; i++ {
		var got []string
		for _, s := range reg.List() {
			got = append(got, s.ID)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("List order (call %d) mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestRegistry_GetAndResolve(t *testing.T) {
	reg, err := NewRegistry("WebMercatorQuad", Defaults())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := reg.Get("webmercatorquad"); !errors.Is(err, ErrSchemeNotFound) {
		t.Fatalf("lookup is case-sensitive; err = %v", err)
	}
	if _, err := reg.Get("nope"); !errors.Is(err, ErrSchemeNotFound) {
		t.Fatalf("unknown id: err = %v", err)
	}

	s, err := reg.Resolve("")
	if err != nil {
		t.Fatalf("Resolve empty: %v", err)
	}
	if s.ID != "WebMercatorQuad" {
		t.Fatalf("Resolve empty = %q, want default", s.ID)
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	if _, err := NewRegistry("x", Defaults()); err == nil {
		t.Fatal("unknown default accepted")
	}
	dup := []TilingScheme{WebMercatorQuad(), WebMercatorQuad()}
	if _, err := NewRegistry("WebMercatorQuad", dup); err == nil {
		t.Fatal("duplicate scheme accepted")
	}
}
