// Package aggregate joins point events to LSOA polygons, counts them per area
// and merges the per-source counts with deprivation deciles into one table.
package aggregate

import (
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/lfr-analysis/lsoa-pipeline/internal/geo"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

var (
	// ErrDuplicateAreaCode is returned when two polygons share an area code.
	ErrDuplicateAreaCode = eris.New("aggregate: duplicate area code")
	// ErrAreaCodeMismatch is returned when a polygon code is not an LSOA code.
	ErrAreaCodeMismatch = eris.New("aggregate: area code is not an LSOA code")
)

var lsoaCode = regexp.MustCompile(`^E0\d{7}$`)

// Joined is an event with the code of the area containing it, "" when the
// event has no coordinates or falls outside every area.
type Joined struct {
	Event model.Event
	Code  string
}

// JoinStats counts how events fared in a spatial join.
type JoinStats struct {
	Matched  int
	Outside  int
	NoCoords int
}

// SpatialJoin assigns each event to at most one area. Every event appears in
// the output exactly once, in input order.
func SpatialJoin(events []model.Event, idx *geo.Index) ([]Joined, JoinStats) {
	out := make([]Joined, len(events))
	var st JoinStats
	for i, e := range events {
		out[i].Event = e
		if !e.HasCoords {
			st.NoCoords++
			continue
		}
		out[i].Code = idx.Locate(e.Lon, e.Lat)
		if out[i].Code == "" {
			st.Outside++
			continue
		}
		st.Matched++
	}
	return out, st
}

// CountByArea counts joined events per area code. Every area gets an entry,
// zero when no event fell inside it.
func CountByArea(joined []Joined, areas []model.Area) map[string]int {
	counts := make(map[string]int, len(areas))
	for _, a := range areas {
		counts[a.Code] = 0
	}
	for _, j := range joined {
		if j.Code == "" {
			continue
		}
		if _, ok := counts[j.Code]; ok {
			counts[j.Code]++
		}
	}
	return counts
}

// Merge builds one record per area, in area order. Counts and deciles missing
// for an area are zero. AbsDifference is the compare year count minus the
// baseline year count.
func Merge(areas []model.Area, yearCounts map[int]map[string]int, lfrCounts, deciles map[string]int, baseline, compare int) []model.AreaRecord {
	records := make([]model.AreaRecord, 0, len(areas))
	for _, a := range areas {
		r := model.AreaRecord{
			Code:     a.Code,
			Name:     a.Name,
			Counts:   make(map[int]int, len(yearCounts)),
			LFRCount: lfrCounts[a.Code],
			Decile:   deciles[a.Code],
			Geom:     a.Geom,
		}
		for year, counts := range yearCounts {
			r.Counts[year] = counts[a.Code]
		}
		r.AbsDifference = r.Count(compare) - r.Count(baseline)
		records = append(records, r)
	}
	return records
}

// ValidationReport describes how the boundary codes line up with the IMD
// table.
type ValidationReport struct {
	Areas      int
	MissingIMD []string // boundary codes with no IMD row, in area order
}

// ValidateAreaCodes checks that every polygon has a unique, well-formed LSOA
// code. Codes absent from deciles are reported rather than rejected, since
// the boundary set covers London only.
func ValidateAreaCodes(areas []model.Area, deciles map[string]int) (ValidationReport, error) {
	rep := ValidationReport{Areas: len(areas)}
	seen := make(map[string]bool, len(areas))
	for _, a := range areas {
		if !lsoaCode.MatchString(a.Code) {
			return rep, eris.Wrapf(ErrAreaCodeMismatch, "code %q (%s)", a.Code, a.Name)
		}
		if seen[a.Code] {
			return rep, eris.Wrapf(ErrDuplicateAreaCode, "code %s", a.Code)
		}
		seen[a.Code] = true
		if _, ok := deciles[a.Code]; !ok {
			rep.MissingIMD = append(rep.MissingIMD, a.Code)
		}
	}
	return rep, nil
}
