package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// Rounded is a float written with at most two decimals.
type Rounded float64

// MarshalText implements encoding.TextMarshaler.
func (r Rounded) MarshalText() ([]byte, error) {
	v := math.Round(float64(r)*100) / 100
	if v == 0 {
		v = 0 // drop negative zero
	}
	return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
}

func rounded(p *float64) *Rounded {
	if p == nil {
		return nil
	}
	r := Rounded(*p)
	return &r
}

// summaryRow is the fixed part of the summary CSV. The per-quantile columns
// are spliced in after total_lfr.
type summaryRow struct {
	TotalLFR int `csv:"total_lfr"`

	LFRRising      int      `csv:"lfr_rising"`
	LFRNoChange    int      `csv:"lfr_no_change"`
	LFRFalling     int      `csv:"lfr_falling"`
	PctLFRRising   *Rounded `csv:"pct_lfr_rising"`
	PctLFRNoChange *Rounded `csv:"pct_lfr_no_change"`
	PctLFRFalling  *Rounded `csv:"pct_lfr_falling"`

	LSOAsHighestIMD int      `csv:"lsoas_highest_imd_decile"`
	LSOAsTop3IMD    int      `csv:"lsoas_top_3_imd_deciles"`
	LFRHighestIMD   int      `csv:"lfr_in_highest_imd"`
	LFRTop3IMD      int      `csv:"lfr_in_top_3_imd"`
	PctHighestIMD   *Rounded `csv:"pct_lfr_highest_imd"`
	PctTop3IMD      *Rounded `csv:"pct_lfr_top_3_imd"`
}

// QuantileLabel names a quantile by the share of areas above it: 0.9 is
// "top_10".
func QuantileLabel(q float64) string {
	return fmt.Sprintf("top_%d", int(math.Round((1-q)*100)))
}

// quantileWriter inserts the per-quantile columns after the first column of
// the header and value rows csvutil produces.
type quantileWriter struct {
	w      *csv.Writer
	header []string
	values []string
	rows   int
}

func (q *quantileWriter) Write(record []string) error {
	extra := q.values
	if q.rows == 0 {
		extra = q.header
	}
	q.rows++
	out := make([]string, 0, len(record)+len(extra))
	out = append(out, record[0])
	out = append(out, extra...)
	out = append(out, record[1:]...)
	return q.w.Write(out)
}

// WriteSummaryCSV writes s as one header row and one value row. Values are
// rounded to two decimals and percentages are empty when there were no
// deployments.
func WriteSummaryCSV(w io.Writer, s *Summary) error {
	cw := csv.NewWriter(w)
	qw := &quantileWriter{w: cw}
	for _, h := range s.HighActivity {
		label := QuantileLabel(h.Quantile)
		qw.header = append(qw.header,
			label+"_stop_search_threshold",
			"lfr_in_"+label,
			"pct_lfr_in_"+label,
		)
		th, _ := Rounded(h.Threshold).MarshalText()
		p := ""
		if r := rounded(h.Pct); r != nil {
			b, _ := r.MarshalText()
			p = string(b)
		}
		qw.values = append(qw.values, string(th), strconv.Itoa(h.LFR), p)
	}

	row := summaryRow{
		TotalLFR:        s.TotalLFR,
		LFRRising:       s.Trend.Rising,
		LFRNoChange:     s.Trend.NoChange,
		LFRFalling:      s.Trend.Falling,
		PctLFRRising:    rounded(s.Trend.PctRising),
		PctLFRNoChange:  rounded(s.Trend.PctNoChange),
		PctLFRFalling:   rounded(s.Trend.PctFalling),
		LSOAsHighestIMD: s.Deprivation.AreasDecile1,
		LSOAsTop3IMD:    s.Deprivation.AreasDecile13,
		LFRHighestIMD:   s.Deprivation.LFRDecile1,
		LFRTop3IMD:      s.Deprivation.LFRDecile13,
		PctHighestIMD:   rounded(s.Deprivation.PctDecile1),
		PctTop3IMD:      rounded(s.Deprivation.PctDecile13),
	}
	if err := csvutil.NewEncoder(qw).Encode(row); err != nil {
		return eris.Wrap(err, "stats: encode summary")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "stats: flush summary")
}

// WriteSummaryFile writes the summary CSV to path, creating parent
// directories.
func WriteSummaryFile(path string, s *Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "stats: create parent directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "stats: create %s", path)
	}
	if err := WriteSummaryCSV(f, s); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "stats: close %s", path)
}
