package aggregate

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lfr-analysis/lsoa-pipeline/internal/geo"
	"github.com/lfr-analysis/lsoa-pipeline/internal/imd"
	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
	"github.com/lfr-analysis/lsoa-pipeline/internal/points"
)

// Inputs names every file the aggregation reads.
type Inputs struct {
	BoundaryZip    string
	BoundaryMember string
	Boundary       geo.LoadOptions
	StopSearch     map[int]string // year -> point layer path
	LFR            string
	LFRYear        int
	IMD            string
	IMDKeyColumn   string
	IMDDecileCol   string
	BaselineYear   int
	CompareYear    int
}

// Result is the combined table plus the join bookkeeping.
type Result struct {
	Years      []int
	Records    []model.AreaRecord
	Validation ValidationReport
	Joins      map[string]JoinStats // keyed by layer, e.g. "stop_search_2023"
}

type loaded struct {
	areas   []model.Area
	years   map[int][]model.Event
	lfr     []model.Event
	deciles map[string]int
}

// Run loads the boundary polygons, point layers and IMD deciles concurrently,
// then joins, counts and merges them.
func Run(ctx context.Context, in Inputs) (*Result, error) {
	log := zap.L().With(zap.String("component", "aggregate"))

	data, err := load(ctx, in)
	if err != nil {
		return nil, err
	}

	report, err := ValidateAreaCodes(data.areas, data.deciles)
	if err != nil {
		return nil, err
	}
	if len(report.MissingIMD) > 0 {
		log.Warn("boundary codes missing from IMD table",
			zap.Int("missing", len(report.MissingIMD)),
			zap.Int("areas", report.Areas),
		)
	}

	idx := geo.NewIndex(data.areas)
	res := &Result{Years: in.years(), Validation: report, Joins: map[string]JoinStats{}}

	yearCounts := make(map[int]map[string]int, len(data.years))
	for _, y := range res.Years {
		joined, st := SpatialJoin(data.years[y], idx)
		res.Joins[CountColumn(y)] = st
		logJoin(log, CountColumn(y), st)
		yearCounts[y] = CountByArea(joined, data.areas)
	}
	joined, st := SpatialJoin(data.lfr, idx)
	res.Joins[ColLFRCount] = st
	logJoin(log, ColLFRCount, st)
	lfrCounts := CountByArea(joined, data.areas)

	res.Records = Merge(data.areas, yearCounts, lfrCounts, data.deciles, in.BaselineYear, in.CompareYear)
	log.Info("aggregation complete", zap.Int("areas", len(res.Records)), zap.Ints("years", res.Years))
	return res, nil
}

func (in Inputs) years() []int {
	years := make([]int, 0, len(in.StopSearch))
	for y := range in.StopSearch {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func load(ctx context.Context, in Inputs) (*loaded, error) {
	data := &loaded{years: make(map[int][]model.Event, len(in.StopSearch))}
	yearEvents := make([][]model.Event, len(in.StopSearch))
	years := in.years()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		areas, err := geo.LoadShapefileZip(in.BoundaryZip, in.BoundaryMember, in.Boundary)
		if err != nil {
			return eris.Wrap(err, "aggregate: load boundaries")
		}
		data.areas = areas
		return nil
	})
	for i, y := range years {
		g.Go(func() error {
			events, err := points.Read(gctx, in.StopSearch[y], model.SourceStopSearch, y)
			if err != nil {
				return eris.Wrapf(err, "aggregate: load stop-and-search %d", y)
			}
			yearEvents[i] = events
			return nil
		})
	}
	g.Go(func() error {
		events, err := points.Read(gctx, in.LFR, model.SourceLFR, in.LFRYear)
		if err != nil {
			return eris.Wrap(err, "aggregate: load lfr deployments")
		}
		data.lfr = events
		return nil
	})
	g.Go(func() error {
		deciles, err := imd.ReadDeciles(gctx, in.IMD, in.IMDKeyColumn, in.IMDDecileCol)
		if err != nil {
			return eris.Wrap(err, "aggregate: load imd deciles")
		}
		data.deciles = deciles
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, y := range years {
		data.years[y] = yearEvents[i]
	}
	return data, nil
}

func logJoin(log *zap.Logger, layer string, st JoinStats) {
	log.Info("spatial join",
		zap.String("layer", layer),
		zap.Int("matched", st.Matched),
		zap.Int("outside", st.Outside),
		zap.Int("no_coords", st.NoCoords),
	)
	if st.Outside > 0 {
		log.Warn("events outside every area", zap.String("layer", layer), zap.Int("count", st.Outside))
	}
	if st.NoCoords > 0 {
		log.Warn("events without coordinates", zap.String("layer", layer), zap.Int("count", st.NoCoords))
	}
}
