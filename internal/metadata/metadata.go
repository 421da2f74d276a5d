// Package metadata builds the TileJSON and catalog-listing documents
// served alongside tiles.
package metadata

import (
	"github.com/geoatlas/tileserv/internal/catalog"
)

const tileJSONVersion = "2.2.0"

// TileJSON is the per-layer tile metadata document.
type TileJSON struct {
	TileJSON string    `json:"tilejson"`
	Name     string    `json:"name"`
	MinZoom  int       `json:"minzoom"`
	MaxZoom  int       `json:"maxzoom"`
	Bounds   []float64 `json:"bounds,omitempty"`
	Tiles    []string  `json:"tiles"`
}

// ZoomRange is an optional zoom override where nil means unset. A zero
// value is a valid override, distinct from absent.
type ZoomRange struct {
	Min *int
	Max *int
}

// ResolveZoom applies the precedence request override > layer-declared >
// scheme default, independently for each end of the range.
func ResolveZoom(override ZoomRange, layer catalog.Layer, schemeMin, schemeMax int) (minzoom, maxzoom int) {
	minzoom = pick(override.Min, layer.MinZoom(), schemeMin)
	maxzoom = pick(override.Max, layer.MaxZoom(), schemeMax)
	return minzoom, maxzoom
}

func pick(override, declared *int, fallback int) int {
	if override != nil {
		return *override
	}
	if declared != nil {
		return *declared
	}
	return fallback
}

// NewTileJSON assembles the document for one layer. An empty template
// means the tile route could not be inverted; the tiles list stays empty
// rather than failing the document.
func NewTileJSON(layer catalog.Layer, tileTemplate string, override ZoomRange, schemeMin, schemeMax int) TileJSON {
	minzoom, maxzoom := ResolveZoom(override, layer, schemeMin, schemeMax)
	doc := TileJSON{
		TileJSON: tileJSONVersion,
		Name:     layer.ID(),
		MinZoom:  minzoom,
		MaxZoom:  maxzoom,
		Bounds:   layer.Bounds(),
		Tiles:    []string{},
	}
	if tileTemplate != "" {
		doc.Tiles = []string{tileTemplate}
	}
	return doc
}

// TableDoc is a table layer plus its resolved tile URL. TileURL is null
// when the tile route could not be inverted for the layer.
type TableDoc struct {
	*catalog.TableLayer
	TileURL *string `json:"tileurl"`
}

// FunctionDoc is the function-layer counterpart. The backing SQL never
// leaves the server.
type FunctionDoc struct {
	*catalog.FunctionLayer
	TileURL *string `json:"tileurl"`
}

// Link is a typed relation in a listing document.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
	Type string `json:"type"`
}

// SchemeSummary is one entry of the tileMatrixSets listing.
type SchemeSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Links []Link `json:"links"`
}

// SchemeList is the tileMatrixSets listing document.
type SchemeList struct {
	TileMatrixSets []SchemeSummary `json:"tileMatrixSets"`
}
