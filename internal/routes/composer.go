// Package routes registers the HTTP endpoint families for an arbitrary
// runtime-discovered catalog and inverts registered routes back into
// absolute URLs.
//
// Every endpoint kind is registered under one logical name with two path
// templates: one with the default tiling scheme implied, one with an
// explicit {tileMatrixSetId} segment. Reverse URL generation is a
// name+bindings lookup against that table, never string assembly in
// handlers, so generated links stay correct wherever the service is
// mounted.
package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/geoatlas/tileserv/internal/catalog"
	"github.com/geoatlas/tileserv/internal/observability"
	"github.com/geoatlas/tileserv/internal/tms"
)

// ErrRouteNotFound reports a reverse-URL lookup that cannot be satisfied.
// Callers degrade the affected link to null instead of failing.
var ErrRouteNotFound = errors.New("route not found")

// Logical route names, shared by both path variants of each endpoint.
const (
	routeTile          = "tile"
	routeTileJSON      = "tilejson"
	routeTableIndex    = "tables_index"
	routeTableInfo     = "table_info"
	routeFunctionIndex = "functions_index"
	routeFunctionInfo  = "function_info"
	routeSchemeList    = "tilematrixset_list"
	routeSchemeInfo    = "tilematrixset_info"
)

// TileSource produces the binary tile payload for a resolved layer,
// address, and parameter set. The catalog fetcher implements it; the
// cache wraps it.
type TileSource interface {
	Tile(ctx context.Context, layer catalog.Layer, addr tms.TileAddress, scheme tms.TilingScheme, params []catalog.Param) ([]byte, error)
}

type routeTemplate struct {
	pattern string
	params  []string
}

// Composer owns the route table and the handlers that consult it.
type Composer struct {
	logger   *slog.Logger
	basePath string
	registry *tms.Registry
	layers   *catalog.Store
	tiles    TileSource

	routes map[string][]routeTemplate
}

func NewComposer(logger *slog.Logger, basePath string, registry *tms.Registry, layers *catalog.Store, tiles TileSource) *Composer {
	c := &Composer{
		logger:   logger,
		basePath: strings.TrimRight(basePath, "/"),
		registry: registry,
		layers:   layers,
		tiles:    tiles,
		routes:   make(map[string][]routeTemplate),
	}
	c.register(routeTile,
		"/tiles/{tileMatrixSetId}/{layer}/{z}/{x}/{y}.pbf",
		"/tiles/{layer}/{z}/{x}/{y}.pbf")
	c.register(routeTileJSON,
		"/{tileMatrixSetId}/{layer}/tilejson.json",
		"/{layer}/tilejson.json")
	c.register(routeTableIndex, "/tables.json")
	c.register(routeTableInfo, "/table/{layer}.json")
	c.register(routeFunctionIndex, "/functions.json")
	c.register(routeFunctionInfo, "/function/{layer}.json")
	c.register(routeSchemeList, "/tileMatrixSets")
	c.register(routeSchemeInfo, "/tileMatrixSets/{tileMatrixSetId}")
	return c
}

var placeholderPattern = regexp.MustCompile(`\{([^/{}]+)\}`)

func (c *Composer) register(name string, patterns ...string) {
	for _, p := range patterns {
		var params []string
		for _, m := range placeholderPattern.FindAllStringSubmatch(p, -1) {
			params = append(params, m[1])
		}
		c.routes[name] = append(c.routes[name], routeTemplate{pattern: p, params: params})
	}
}

// Mount attaches every registered route to r. Both path variants of an
// endpoint share one handler; the explicit-scheme variant simply binds
// the extra path parameter.
func (c *Composer) Mount(r chi.Router) {
	handlers := map[string]http.HandlerFunc{
		routeTile:          c.handleTile,
		routeTileJSON:      c.handleTileJSON,
		routeTableIndex:    c.handleTableIndex,
		routeTableInfo:     c.handleTableInfo,
		routeFunctionIndex: c.handleFunctionIndex,
		routeFunctionInfo:  c.handleFunctionInfo,
		routeSchemeList:    c.handleSchemeList,
		routeSchemeInfo:    c.handleSchemeInfo,
	}
	for name, templates := range c.routes {
		h := c.instrument(name, handlers[name])
		for _, t := range templates {
			r.Get(t.pattern, h)
		}
	}
}

// URLFor reconstructs the absolute URL of a named route from placeholder
// bindings. The template whose parameter set exactly matches the bindings
// wins; otherwise the first template fully covered by the bindings is
// used. No usable template means ErrRouteNotFound.
func (c *Composer) URLFor(r *http.Request, name string, bind map[string]string) (string, error) {
	templates, ok := c.routes[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}
	tpl, ok := pickTemplate(templates, bind)
	if !ok {
		return "", fmt.Errorf("%w: %q has no template for bindings %v", ErrRouteNotFound, name, bind)
	}
	path := tpl.pattern
	for _, p := range tpl.params {
		path = strings.ReplaceAll(path, "{"+p+"}", bind[p])
	}
	return requestBaseURL(r) + c.basePath + path, nil
}

func pickTemplate(templates []routeTemplate, bind map[string]string) (routeTemplate, bool) {
	for _, t := range templates {
		if len(t.params) == len(bind) && allBound(t.params, bind) {
			return t, true
		}
	}
	for _, t := range templates {
		if allBound(t.params, bind) {
			return t, true
		}
	}
	return routeTemplate{}, false
}

func allBound(params []string, bind map[string]string) bool {
	for _, p := range params {
		if _, ok := bind[p]; !ok {
			return false
		}
	}
	return true
}

// ParsePath matches an absolute or mount-relative path against the named
// route's templates and recovers the placeholder bindings. It is the
// inverse of URLFor's path resolution.
func (c *Composer) ParsePath(name, path string) (map[string]string, bool) {
	if c.basePath != "" {
		path = strings.TrimPrefix(path, c.basePath)
	}
	for _, t := range c.routes[name] {
		if bind, ok := matchTemplate(t, path); ok {
			return bind, true
		}
	}
	return nil, false
}

func matchTemplate(t routeTemplate, path string) (map[string]string, bool) {
	want := strings.Split(t.pattern, "/")
	have := strings.Split(path, "/")
	if len(want) != len(have) {
		return nil, false
	}
	bind := make(map[string]string, len(t.params))
	for i := range want {
		m := placeholderPattern.FindStringSubmatchIndex(want[i])
		if m == nil {
			if want[i] != have[i] {
				return nil, false
			}
			continue
		}
		prefix, suffix := want[i][:m[0]], want[i][m[1]:]
		val := have[i]
		if !strings.HasPrefix(val, prefix) || !strings.HasSuffix(val, suffix) ||
			len(val) < len(prefix)+len(suffix) {
			return nil, false
		}
		bind[want[i][m[2]:m[3]]] = val[len(prefix) : len(val)-len(suffix)]
	}
	return bind, true
}

// requestBaseURL derives scheme://host from the incoming request so
// generated links survive any deployment topology.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (c *Composer) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, name, sw.code, time.Since(start).Seconds())
	}
}
