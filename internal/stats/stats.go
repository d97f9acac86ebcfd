// Package stats computes the summary statistics relating LFR deployments to
// stop-and-search activity and deprivation across LSOAs.
package stats

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/model"
)

// ErrZeroTotal is returned by Percent when the total is zero.
var ErrZeroTotal = eris.New("stats: percentage of a zero total")

// Percent returns part as a percentage of total.
func Percent(part, total float64) (float64, error) {
	if total == 0 {
		return 0, ErrZeroTotal
	}
	return part / total * 100, nil
}

// pct is Percent with a zero total mapped to nil.
func pct(part, total int) *float64 {
	p, err := Percent(float64(part), float64(total))
	if err != nil {
		return nil
	}
	return &p
}

// Quantile returns the q-th quantile of values using linear interpolation
// between the closest ranks.
func Quantile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return 0, eris.New("stats: quantile of no values")
	}
	if q < 0 || q > 1 || math.IsNaN(q) {
		return 0, eris.Errorf("stats: quantile %g outside [0,1]", q)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// HighActivity holds deployments in areas whose stop-and-search count is at
// or above a quantile threshold.
type HighActivity struct {
	Quantile  float64
	Threshold float64
	LFR       int
	Pct       *float64 // nil when there are no deployments
}

// HighActivityFor computes the quantile threshold of year's counts and the
// deployments in areas at or above it.
func HighActivityFor(records []model.AreaRecord, year int, q float64, totalLFR int) (HighActivity, error) {
	counts := make([]float64, len(records))
	for i, r := range records {
		counts[i] = float64(r.Count(year))
	}
	threshold, err := Quantile(counts, q)
	if err != nil {
		return HighActivity{}, err
	}

	h := HighActivity{Quantile: q, Threshold: threshold}
	for _, r := range records {
		if float64(r.Count(year)) >= threshold {
			h.LFR += r.LFRCount
		}
	}
	h.Pct = pct(h.LFR, totalLFR)
	return h, nil
}

// Trend splits deployments by the direction of the stop-and-search change.
type Trend struct {
	Rising      int
	NoChange    int
	Falling     int
	PctRising   *float64
	PctNoChange *float64
	PctFalling  *float64
}

// TrendFor sums deployments in areas where stop-and-search rose, held or fell.
func TrendFor(records []model.AreaRecord, totalLFR int) Trend {
	var t Trend
	for _, r := range records {
		switch {
		case r.AbsDifference > 0:
			t.Rising += r.LFRCount
		case r.AbsDifference < 0:
			t.Falling += r.LFRCount
		default:
			t.NoChange += r.LFRCount
		}
	}
	t.PctRising = pct(t.Rising, totalLFR)
	t.PctNoChange = pct(t.NoChange, totalLFR)
	t.PctFalling = pct(t.Falling, totalLFR)
	return t
}

// Deprivation counts areas and deployments in the most deprived deciles.
type Deprivation struct {
	AreasDecile1  int
	AreasDecile13 int
	LFRDecile1    int
	LFRDecile13   int
	PctDecile1    *float64
	PctDecile13   *float64
}

// DeprivationFor counts areas in decile 1 and deciles 1 to 3 and the
// deployments in them. Areas with an unknown decile are never counted.
func DeprivationFor(records []model.AreaRecord, totalLFR int) Deprivation {
	var d Deprivation
	for _, r := range records {
		if r.Decile < 1 {
			continue
		}
		if r.Decile == 1 {
			d.AreasDecile1++
			d.LFRDecile1 += r.LFRCount
		}
		if r.Decile <= 3 {
			d.AreasDecile13++
			d.LFRDecile13 += r.LFRCount
		}
	}
	d.PctDecile1 = pct(d.LFRDecile1, totalLFR)
	d.PctDecile13 = pct(d.LFRDecile13, totalLFR)
	return d
}

// Options configures Summarize.
type Options struct {
	Year      int       // stop-and-search year the quantiles are taken over
	Quantiles []float64 // default 0.9, 0.8
}

// Summary is the full set of summary statistics.
type Summary struct {
	TotalLFR     int
	HighActivity []HighActivity
	Trend        Trend
	Deprivation  Deprivation
}

// Summarize computes every statistic over records.
func Summarize(records []model.AreaRecord, opts Options) (*Summary, error) {
	if len(opts.Quantiles) == 0 {
		opts.Quantiles = []float64{0.9, 0.8}
	}

	s := &Summary{}
	for _, r := range records {
		s.TotalLFR += r.LFRCount
	}
	if s.TotalLFR == 0 {
		zap.L().Warn("stats: no lfr deployments in any area, percentages left empty",
			zap.Int("areas", len(records)))
	}

	for _, q := range opts.Quantiles {
		h, err := HighActivityFor(records, opts.Year, q, s.TotalLFR)
		if err != nil {
			return nil, eris.Wrapf(err, "stats: high activity at %g", q)
		}
		s.HighActivity = append(s.HighActivity, h)
	}
	s.Trend = TrendFor(records, s.TotalLFR)
	s.Deprivation = DeprivationFor(records, s.TotalLFR)
	return s, nil
}
