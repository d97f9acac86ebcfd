package geo

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

// defaultCellSize is the grid cell edge in degrees, roughly 1km at London's
// latitude.
const defaultCellSize = 0.01

type cellKey struct{ x, y int }

// Index answers point-in-polygon queries over a fixed set of areas. Areas are
// bucketed into a uniform grid by bounding box; candidates are then tested
// exactly, in the order the areas were given.
type Index struct {
	areas  []model.Area
	bounds []*geom.Bounds
	cells  map[cellKey][]int
	size   float64
}

// NewIndex builds an Index over areas.
func NewIndex(areas []model.Area) *Index {
	idx := &Index{
		areas:  areas,
		bounds: make([]*geom.Bounds, len(areas)),
		cells:  make(map[cellKey][]int),
		size:   defaultCellSize,
	}
	for i, a := range areas {
		if a.Geom == nil {
			continue
		}
		b := a.Geom.Bounds()
		idx.bounds[i] = b
		x0, y0 := idx.cell(b.Min(0), b.Min(1))
		x1, y1 := idx.cell(b.Max(0), b.Max(1))
		for x := x0; x <= x1; x++ {
			for y := y0; y <= y1; y++ {
				k := cellKey{x, y}
				idx.cells[k] = append(idx.cells[k], i)
			}
		}
	}
	return idx
}

func (idx *Index) cell(lon, lat float64) (int, int) {
	return int(math.Floor(lon / idx.size)), int(math.Floor(lat / idx.size))
}

// Len returns the number of indexed areas.
func (idx *Index) Len() int { return len(idx.areas) }

// Locate returns the code of the first area containing (lon, lat), or "" when
// no area does.
func (idx *Index) Locate(lon, lat float64) string {
	if i := idx.locate(lon, lat); i >= 0 {
		return idx.areas[i].Code
	}
	return ""
}

func (idx *Index) locate(lon, lat float64) int {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return -1
	}
	cx, cy := idx.cell(lon, lat)
	pt := geom.Coord{lon, lat}
	for _, i := range idx.cells[cellKey{cx, cy}] {
		b := idx.bounds[i]
		if lon < b.Min(0) || lon > b.Max(0) || lat < b.Min(1) || lat > b.Max(1) {
			continue
		}
		if Contains(idx.areas[i].Geom, pt) {
			return i
		}
	}
	return -1
}

// Contains reports whether pt lies inside mp: inside some exterior ring and
// outside that polygon's holes.
func Contains(mp *geom.MultiPolygon, pt geom.Coord) bool {
	if mp == nil {
		return false
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(geom.XY, pt, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < poly.NumLinearRings(); r++ {
			if xy.IsPointInRing(geom.XY, pt, poly.LinearRing(r).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
