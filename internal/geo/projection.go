package geo

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/wroge/wgs84"
)

// Projection converts source coordinates to WGS84 longitude/latitude.
type Projection func(x, y float64) (lon, lat float64)

var projectionAliases = map[string]int{
	"":       4326,
	"wgs84":  4326,
	"bng":    27700,
	"osgb36": 27700,
}

// ProjectionFor returns the projection for an EPSG code such as "epsg:27700".
// The short names bng, osgb36 and wgs84 are accepted too.
func ProjectionFor(code string) (Projection, error) {
	name := strings.ToLower(strings.TrimSpace(code))

	epsg, ok := projectionAliases[name]
	if !ok {
		n, err := strconv.Atoi(strings.TrimPrefix(name, "epsg:"))
		if err != nil || !strings.HasPrefix(name, "epsg:") {
			return nil, eris.Errorf("geo: unsupported projection %q", code)
		}
		epsg = n
	}
	if epsg == 4326 {
		return func(x, y float64) (float64, float64) { return x, y }, nil
	}

	crs := wgs84.EPSG().Code(epsg)
	if crs == nil {
		return nil, eris.Errorf("geo: unsupported projection %q", code)
	}
	toLonLat := wgs84.Transform(crs, wgs84.LonLat())
	return func(x, y float64) (float64, float64) {
		lon, lat, _ := toLonLat(x, y, 0)
		return lon, lat
	}, nil
}
