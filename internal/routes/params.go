package routes

import (
	"net/url"
	"strings"

	"github.com/geoatlas/tileserv/internal/catalog"
)

// Reserved query keys, matched case-insensitively. The tiling-scheme key
// is reserved on every endpoint; the zoom overrides only on the TileJSON
// path.
var (
	reservedTile     = []string{"tilematrixsetid"}
	reservedTileJSON = []string{"tilematrixsetid", "minzoom", "maxzoom"}
)

// ParseQuery decodes a raw query string into ordered parameters.
// url.Values would lose the order, which must survive into regenerated
// tile templates.
func ParseQuery(rawQuery string) []catalog.Param {
	var out []catalog.Param
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, val, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		v, err := url.QueryUnescape(val)
		if err != nil {
			continue
		}
		out = append(out, catalog.Param{Key: k, Value: v})
	}
	return out
}

// FilterParams drops reserved keys and keeps the rest in order.
func FilterParams(params []catalog.Param, reserved []string) []catalog.Param {
	var out []catalog.Param
	for _, p := range params {
		if isReserved(p.Key, reserved) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func isReserved(key string, reserved []string) bool {
	for _, r := range reserved {
		if strings.EqualFold(key, r) {
			return true
		}
	}
	return false
}

// EncodeQuery renders ordered parameters back into a query string.
func EncodeQuery(params []catalog.Param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}
