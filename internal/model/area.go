package model

import "github.com/twpayne/go-geom"

// Area is one LSOA boundary polygon. Geometry is in EPSG:4326.
type Area struct {
	Code    string
	Name    string
	Borough string
	Geom    *geom.MultiPolygon
}

// AreaRecord is one row of the combined table: per-year stop-and-search
// counts, LFR deployments and deprivation for a single area code.
type AreaRecord struct {
	Code          string
	Name          string
	Counts        map[int]int
	LFRCount      int
	Decile        int // 0 when the area has no IMD row
	AbsDifference int
	Geom          *geom.MultiPolygon
}

// Count returns the stop-and-search count for year, zero when absent.
func (r AreaRecord) Count(year int) int {
	return r.Counts[year]
}
