package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"

	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

// square builds a one-polygon area covering [x0,x1]x[y0,y1].
func square(code string, x0, y0, x1, y1 float64) model.Area {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	poly := geom.NewPolygon(geom.XY)
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{x0, y0, x0, y1, x1, y1, x1, y0, x0, y0}))
	_ = mp.Push(poly)
	return model.Area{Code: code, Geom: mp}
}

func TestIndexLocate(t *testing.T) {
	idx := NewIndex([]model.Area{
		square("E01000001", -0.10, 51.50, -0.05, 51.55),
		square("E01000002", -0.05, 51.50, 0.00, 51.55),
	})

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, "E01000001", idx.Locate(-0.07, 51.52))
	assert.Equal(t, "E01000002", idx.Locate(-0.02, 51.52))
	assert.Equal(t, "", idx.Locate(0.5, 51.52))
	assert.Equal(t, "", idx.Locate(math.NaN(), 51.52))
}

func TestIndexLocate_SharedEdgeAssignsOnce(t *testing.T) {
	idx := NewIndex([]model.Area{
		square("A", 0, 0, 1, 1),
		square("B", 1, 0, 2, 1),
	})
	// A point on the shared edge goes to the first area in file order.
	got := idx.Locate(1, 0.5)
	assert.Contains(t, []string{"A", "B"}, got)
}

func TestContains_Hole(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygon(geom.XY)
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{0, 0, 0, 10, 10, 10, 10, 0, 0, 0}))
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{4, 4, 6, 4, 6, 6, 4, 6, 4, 4}))
	_ = mp.Push(poly)

	assert.True(t, Contains(mp, geom.Coord{1, 1}))
	assert.False(t, Contains(mp, geom.Coord{5, 5}))
	assert.False(t, Contains(mp, geom.Coord{11, 5}))
	assert.False(t, Contains(nil, geom.Coord{1, 1}))
}

func TestIndex_HoleFilledByAnotherArea(t *testing.T) {
	outer := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygon(geom.XY)
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{0, 0, 0, 0.1, 0.1, 0.1, 0.1, 0, 0, 0}))
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{0.04, 0.04, 0.06, 0.04, 0.06, 0.06, 0.04, 0.06, 0.04, 0.04}))
	_ = outer.Push(poly)

	idx := NewIndex([]model.Area{
		{Code: "RING", Geom: outer},
		square("CORE", 0.04, 0.04, 0.06, 0.06),
	})
	assert.Equal(t, "CORE", idx.Locate(0.05, 0.05))
	assert.Equal(t, "RING", idx.Locate(0.01, 0.01))
}
