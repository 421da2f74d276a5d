package tms

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrOutOfBounds reports a tile coordinate outside the resolved scheme's
// matrix. Out-of-range addresses are rejected, never clamped.
var ErrOutOfBounds = errors.New("tile address out of bounds")

// TileAddress is a validated (scheme, z, x, y) tile coordinate. It is
// immutable once constructed.
type TileAddress struct {
	Scheme string
	Z      uint32
	X      uint32
	Y      uint32
}

func (a TileAddress) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", a.Scheme, a.Z, a.X, a.Y)
}

// ParseTileAddress validates raw path coordinates against a scheme and
// returns the canonical address. It is pure: same inputs, same result.
func ParseTileAddress(rawZ, rawX, rawY string, scheme TilingScheme) (TileAddress, error) {
	z, err := parseCoord("z", rawZ)
	if err != nil {
		return TileAddress{}, err
	}
	x, err := parseCoord("x", rawX)
	if err != nil {
		return TileAddress{}, err
	}
	y, err := parseCoord("y", rawY)
	if err != nil {
		return TileAddress{}, err
	}
	if int64(z) < int64(scheme.MinZoom) || int64(z) > int64(scheme.MaxZoom) {
		return TileAddress{}, fmt.Errorf("%w: zoom %d outside %d..%d for %s",
			ErrOutOfBounds, z, scheme.MinZoom, scheme.MaxZoom, scheme.ID)
	}
	w, h := scheme.MatrixSize(z)
	if uint64(x) >= w || uint64(y) >= h {
		return TileAddress{}, fmt.Errorf("%w: tile %d/%d/%d outside %dx%d matrix for %s",
			ErrOutOfBounds, z, x, y, w, h, scheme.ID)
	}
	return TileAddress{Scheme: scheme.ID, Z: z, X: x, Y: y}, nil
}

func parseCoord(name, raw string) (uint32, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a tile coordinate", ErrOutOfBounds, name, raw)
	}
	return uint32(v), nil
}
