package lfr

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/pkg/geocode"
)

// GeocodeOptions configures Geocode.
type GeocodeOptions struct {
	QuerySuffix string // appended to every address, e.g. ", London, UK"
}

// GeocodeStats summarizes a geocoding pass.
type GeocodeStats struct {
	Matched    int
	Failed     int // still without coordinates
	Overridden int
}

// Geocode normalizes each deployment location in place and looks it up with
// client, one request at a time. A lookup error or miss leaves the row
// without coordinates and is logged; there is no retry. Overrides are
// applied after the bulk pass and replace whatever the geocoder returned.
func Geocode(ctx context.Context, client geocode.Client, deployments []Deployment, overrides *geocode.Overrides, opts GeocodeOptions) (GeocodeStats, error) {
	log := zap.L().With(zap.String("component", "lfr.geocode"))

	var stats GeocodeStats
	for i := range deployments {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "lfr: geocode cancelled")
		}
		d := &deployments[i]
		d.Fields[0] = geocode.NormalizeAddress(d.Fields[0])
		d.Lat, d.Lon, d.HasCoords, d.Source = 0, 0, false, ""

		query := d.Location() + opts.QuerySuffix
		res, err := client.Geocode(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return stats, eris.Wrap(ctx.Err(), "lfr: geocode cancelled")
			}
			stats.Failed++
			log.Warn("geocode failed", zap.Int("row", d.RowID), zap.String("query", query), zap.Error(err))
			continue
		}
		if !res.Matched {
			stats.Failed++
			log.Warn("address could not be geocoded", zap.Int("row", d.RowID), zap.String("query", query))
			continue
		}
		d.Lat, d.Lon, d.HasCoords, d.Source = res.Latitude, res.Longitude, true, res.Source
		stats.Matched++
	}

	for i := range deployments {
		d := &deployments[i]
		p, ok := overrides.Lookup(d.RowID, d.Location())
		if !ok {
			continue
		}
		if d.HasCoords {
			stats.Matched--
		} else {
			stats.Failed--
		}
		d.Lat, d.Lon, d.HasCoords, d.Source = p.Lat, p.Lon, true, "override"
		stats.Overridden++
	}

	log.Info("geocoding complete",
		zap.Int("matched", stats.Matched),
		zap.Int("failed", stats.Failed),
		zap.Int("overridden", stats.Overridden),
	)
	return stats, nil
}
