// Package tms defines tiling schemes (OGC tile matrix sets), the registry
// of supported schemes, and tile address validation.
package tms

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Extent is a bounding box in scheme CRS units: minx, miny, maxx, maxy.
type Extent [4]float64

// TilingScheme describes how geographic space is cut into a pyramid of
// square tiles. The tile matrix at zoom z is (MatrixWidth<<z) by
// (MatrixHeight<<z), with the tile origin at the top-left corner of Extent.
type TilingScheme struct {
	ID           string `json:"id"`
	Title        string `json:"title,omitempty"`
	CRS          string `json:"crs"`
	SRID         int    `json:"srid"`
	MinZoom      int    `json:"minzoom"`
	MaxZoom      int    `json:"maxzoom"`
	Extent       Extent `json:"extent"`
	MatrixWidth  int    `json:"matrixWidth"`
	MatrixHeight int    `json:"matrixHeight"`
	TileSize     int    `json:"tileSize"`
}

// MatrixSize returns the tile matrix dimensions at zoom z.
func (s TilingScheme) MatrixSize(z uint32) (width, height uint64) {
	return uint64(s.MatrixWidth) << z, uint64(s.MatrixHeight) << z
}

// TileExtent returns the bounding box of a tile in scheme CRS units.
func (s TilingScheme) TileExtent(a TileAddress) Extent {
	w, h := s.MatrixSize(a.Z)
	tw := (s.Extent[2] - s.Extent[0]) / float64(w)
	th := (s.Extent[3] - s.Extent[1]) / float64(h)
	minx := s.Extent[0] + float64(a.X)*tw
	maxy := s.Extent[3] - float64(a.Y)*th
	return Extent{minx, maxy - th, minx + tw, maxy}
}

// WebMercatorQuad is the default spherical-mercator pyramid.
func WebMercatorQuad() TilingScheme {
	max := project.WGS84.ToMercator(orb.Point{180, 0})[0]
	return TilingScheme{
		ID:           "WebMercatorQuad",
		Title:        "Google Maps Compatible for the World",
		CRS:          "EPSG:3857",
		SRID:         3857,
		MinZoom:      0,
		MaxZoom:      24,
		Extent:       Extent{-max, -max, max, max},
		MatrixWidth:  1,
		MatrixHeight: 1,
		TileSize:     256,
	}
}

// WorldCRS84Quad is the plate-carree pyramid with a 2x1 tile matrix at
// zoom 0.
func WorldCRS84Quad() TilingScheme {
	return TilingScheme{
		ID:           "WorldCRS84Quad",
		Title:        "CRS84 for the World",
		CRS:          "EPSG:4326",
		SRID:         4326,
		MinZoom:      0,
		MaxZoom:      17,
		Extent:       Extent{-180, -90, 180, 90},
		MatrixWidth:  2,
		MatrixHeight: 1,
		TileSize:     256,
	}
}

// Defaults returns the built-in schemes in listing order.
func Defaults() []TilingScheme {
	return []TilingScheme{WebMercatorQuad(), WorldCRS84Quad()}
}
