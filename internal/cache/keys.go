package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/geoatlas/tileserv/internal/catalog"
	"github.com/geoatlas/tileserv/internal/tms"
)

// Key builds the cache key for one tile. The forwarded parameters are
// folded in as an xxhash of their ordered encoding, so two requests with
// the same parameters in the same order share a key.
func Key(layerID string, addr tms.TileAddress, params []catalog.Param) string {
	var enc strings.Builder
	for i, p := range params {
		if i > 0 {
			enc.WriteByte('&')
		}
		enc.WriteString(p.Key)
		enc.WriteByte('=')
		enc.WriteString(p.Value)
	}
	return fmt.Sprintf("tile:%s:%s:%d/%d/%d:p=%016x",
		sanitize(layerID), sanitize(addr.Scheme), addr.Z, addr.X, addr.Y,
		xxhash.Sum64String(enc.String()))
}

// sanitize keeps keys within the colon-delimited scheme even when ids
// carry odd characters.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
