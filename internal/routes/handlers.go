package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/geoatlas/tileserv/internal/catalog"
	"github.com/geoatlas/tileserv/internal/metadata"
	"github.com/geoatlas/tileserv/internal/tms"
)

const mvtMediaType = "application/x-protobuf"

func (c *Composer) handleTile(w http.ResponseWriter, r *http.Request) {
	scheme, err := c.registry.Resolve(chi.URLParam(r, "tileMatrixSetId"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	layer, err := c.layers.Current().Lookup(chi.URLParam(r, "layer"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	addr, err := tms.ParseTileAddress(
		chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"), scheme)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	params := FilterParams(ParseQuery(r.URL.RawQuery), reservedTile)

	data, err := c.tiles.Tile(r.Context(), layer, addr, scheme, params)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mvtMediaType)
	_, _ = w.Write(data)
}

func (c *Composer) handleTileJSON(w http.ResponseWriter, r *http.Request) {
	scheme, err := c.registry.Resolve(chi.URLParam(r, "tileMatrixSetId"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	layer, err := c.layers.Current().Lookup(chi.URLParam(r, "layer"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	raw := ParseQuery(r.URL.RawQuery)
	override, err := zoomOverride(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The template keeps z/x/y symbolic; only layer and scheme are bound.
	tileTemplate, err := c.URLFor(r, routeTile, map[string]string{
		"tileMatrixSetId": scheme.ID,
		"layer":           layer.ID(),
		"z":               "{z}",
		"x":               "{x}",
		"y":               "{y}",
	})
	if err != nil {
		c.logger.WarnContext(r.Context(), "tile route not invertible", "layer", layer.ID(), "err", err)
	}
	// Forward the request's own filtering context onto the template so
	// clients reproduce it when fetching tiles.
	if forwarded := FilterParams(raw, reservedTileJSON); tileTemplate != "" && len(forwarded) > 0 {
		tileTemplate += "?" + EncodeQuery(forwarded)
	}

	doc := metadata.NewTileJSON(layer, tileTemplate, override, scheme.MinZoom, scheme.MaxZoom)
	writeJSON(w, doc)
}

func (c *Composer) handleTableIndex(w http.ResponseWriter, r *http.Request) {
	tables := c.layers.Current().Tables()
	docs := make([]metadata.TableDoc, 0, len(tables))
	for _, t := range tables {
		docs = append(docs, metadata.TableDoc{TableLayer: t, TileURL: c.tileURLFor(r, t.LayerID)})
	}
	writeJSON(w, docs)
}

func (c *Composer) handleTableInfo(w http.ResponseWriter, r *http.Request) {
	layer, err := c.layers.Current().Lookup(chi.URLParam(r, "layer"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	t, ok := layer.(*catalog.TableLayer)
	if !ok {
		c.writeError(w, r, catalog.ErrLayerNotFound)
		return
	}
	writeJSON(w, metadata.TableDoc{TableLayer: t, TileURL: c.tileURLFor(r, t.LayerID)})
}

func (c *Composer) handleFunctionIndex(w http.ResponseWriter, r *http.Request) {
	funcs := c.layers.Current().Functions()
	docs := make([]metadata.FunctionDoc, 0, len(funcs))
	for _, f := range funcs {
		docs = append(docs, metadata.FunctionDoc{FunctionLayer: f, TileURL: c.tileURLFor(r, f.LayerID)})
	}
	writeJSON(w, docs)
}

func (c *Composer) handleFunctionInfo(w http.ResponseWriter, r *http.Request) {
	layer, err := c.layers.Current().Lookup(chi.URLParam(r, "layer"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	f, ok := layer.(*catalog.FunctionLayer)
	if !ok {
		c.writeError(w, r, catalog.ErrLayerNotFound)
		return
	}
	writeJSON(w, metadata.FunctionDoc{FunctionLayer: f, TileURL: c.tileURLFor(r, f.LayerID)})
}

func (c *Composer) handleSchemeList(w http.ResponseWriter, r *http.Request) {
	schemes := c.registry.List()
	doc := metadata.SchemeList{TileMatrixSets: make([]metadata.SchemeSummary, 0, len(schemes))}
	for _, s := range schemes {
		summary := metadata.SchemeSummary{ID: s.ID, Title: s.Title, Links: []metadata.Link{}}
		href, err := c.URLFor(r, routeSchemeInfo, map[string]string{"tileMatrixSetId": s.ID})
		if err == nil {
			summary.Links = append(summary.Links, metadata.Link{
				Href: href, Rel: "item", Type: "application/json",
			})
		}
		doc.TileMatrixSets = append(doc.TileMatrixSets, summary)
	}
	writeJSON(w, doc)
}

func (c *Composer) handleSchemeInfo(w http.ResponseWriter, r *http.Request) {
	scheme, err := c.registry.Get(chi.URLParam(r, "tileMatrixSetId"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, scheme)
}

// tileURLFor inverts the default-scheme tile route for one layer,
// returning nil when the route cannot be resolved. A listing with a few
// null links is still a valid listing.
func (c *Composer) tileURLFor(r *http.Request, layerID string) *string {
	u, err := c.URLFor(r, routeTile, map[string]string{
		"layer": layerID, "z": "{z}", "x": "{x}", "y": "{y}",
	})
	if err != nil {
		c.logger.WarnContext(r.Context(), "tile route not invertible", "layer", layerID, "err", err)
		return nil
	}
	return &u
}

// zoomOverride reads the TileJSON minzoom/maxzoom overrides. Unset and
// zero are distinct: only a present key produces a non-nil value.
func zoomOverride(params []catalog.Param) (metadata.ZoomRange, error) {
	var zr metadata.ZoomRange
	for _, p := range params {
		var dst **int
		switch {
		case strings.EqualFold(p.Key, "minzoom"):
			dst = &zr.Min
		case strings.EqualFold(p.Key, "maxzoom"):
			dst = &zr.Max
		default:
			continue
		}
		v, err := strconv.Atoi(p.Value)
		if err != nil {
			return metadata.ZoomRange{}, errors.New("invalid zoom override: " + p.Key)
		}
		*dst = &v
	}
	return zr, nil
}

func (c *Composer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tms.ErrOutOfBounds):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalog.ErrLayerNotFound), errors.Is(err, tms.ErrSchemeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, catalog.ErrMissingParameter):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "tile backend unavailable", http.StatusServiceUnavailable)
	default:
		c.logger.ErrorContext(r.Context(), "tile request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
