package gpkg

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// GeoPackage binary header flag bits.
const (
	flagLittleEndian = 0x01
	flagEmpty        = 0x10
	envelopeXY       = 1 << 1
)

var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// EncodeGeometry wraps a geometry in the GeoPackage binary header. Points are
// written without an envelope, everything else with an XY envelope.
func EncodeGeometry(g geom.T, srsID int) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: marshal wkb")
	}

	flags := byte(flagLittleEndian)
	var env []float64
	if len(g.FlatCoords()) == 0 {
		flags |= flagEmpty
	} else if _, isPoint := g.(*geom.Point); !isPoint {
		b := g.Bounds()
		env = []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)}
		flags |= envelopeXY
	}

	out := make([]byte, 8, 8+len(env)*8+len(body))
	out[0], out[1], out[2], out[3] = 'G', 'P', 0, flags
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(srsID)))
	for _, v := range env {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
	}
	return append(out, body...), nil
}

// DecodeGeometry parses a GeoPackage binary geometry.
func DecodeGeometry(b []byte) (geom.T, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, eris.New("gpkg: not a geopackage geometry")
	}
	flags := b[3]
	if flags&0x20 != 0 {
		return nil, eris.New("gpkg: extended geometry types are not supported")
	}
	size, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, eris.Errorf("gpkg: invalid envelope indicator in flags %#x", flags)
	}
	if len(b) < 8+size {
		return nil, eris.New("gpkg: truncated geometry header")
	}
	g, err := wkb.Unmarshal(b[8+size:])
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: unmarshal wkb")
	}
	return g, nil
}
