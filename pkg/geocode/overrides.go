package geocode

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Override pins the coordinates of one deployment. Exactly one of Address
// or Row identifies the deployment; Row is the 1-based row id of the cleaned
// deployment table.
type Override struct {
	Address   string  `yaml:"address,omitempty"`
	Row       int     `yaml:"row,omitempty"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Note      string  `yaml:"note,omitempty"`
}

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// Overrides is a lookup table of manual coordinates applied after the bulk
// geocoding pass. Address matches win over row matches.
type Overrides struct {
	byAddress map[string]Point
	byRow     map[int]Point
}

type overridesFile struct {
	Overrides []Override `yaml:"overrides"`
}

// NewOverrides builds a table from entries. Entries without a key, with both
// keys, with coordinates out of range, or repeating a key are rejected.
func NewOverrides(entries []Override) (*Overrides, error) {
	o := &Overrides{byAddress: map[string]Point{}, byRow: map[int]Point{}}
	for i, e := range entries {
		if (e.Address == "") == (e.Row == 0) {
			return nil, eris.Errorf("geocode: override %d must set exactly one of address or row", i)
		}
		if e.Row < 0 {
			return nil, eris.Errorf("geocode: override %d has negative row %d", i, e.Row)
		}
		if e.Latitude < -90 || e.Latitude > 90 || e.Longitude < -180 || e.Longitude > 180 {
			return nil, eris.Errorf("geocode: override %d coordinates (%g, %g) out of range", i, e.Latitude, e.Longitude)
		}
		p := Point{Lat: e.Latitude, Lon: e.Longitude}
		if e.Address != "" {
			key := AddressKey(e.Address)
			if _, dup := o.byAddress[key]; dup {
				return nil, eris.Errorf("geocode: duplicate override for address %q", e.Address)
			}
			o.byAddress[key] = p
			continue
		}
		if _, dup := o.byRow[e.Row]; dup {
			return nil, eris.Errorf("geocode: duplicate override for row %d", e.Row)
		}
		o.byRow[e.Row] = p
	}
	return o, nil
}

// LoadOverrides reads an overrides YAML file of the form
//
//	overrides:
//	  - address: "Ealing Broadway"
//	    latitude: 51.51498
//	    longitude: -0.300407
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: read overrides %s", path)
	}
	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "geocode: parse overrides %s", path)
	}
	o, err := NewOverrides(f.Overrides)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: overrides %s", path)
	}
	return o, nil
}

// defaultOverrides are the manual corrections for the 2025 deployment record,
// identified by row in the cleaned table.
var defaultOverrides = []Override{
	{Row: 27, Latitude: 51.506255, Longitude: -0.220575},
	{Row: 40, Latitude: 51.51498, Longitude: -0.300407},
	{Row: 88, Latitude: 51.427739, Longitude: -0.16829},
	{Row: 95, Latitude: 51.51498, Longitude: -0.300407},
	{Row: 99, Latitude: 51.511903, Longitude: -0.014372},
	{Row: 103, Latitude: 51.531707, Longitude: -0.124766},
	{Row: 104, Latitude: 51.506295, Longitude: -0.231435},
	{Row: 120, Latitude: 51.509759, Longitude: -0.13355},
	{Row: 131, Latitude: 51.544337, Longitude: -0.00632},
	{Row: 172, Latitude: 51.543793, Longitude: 0.049819},
	{Row: 199, Latitude: 51.509759, Longitude: -0.13355},
	{Row: 208, Latitude: 51.507459, Longitude: -0.222272},
	{Row: 228, Latitude: 51.545284, Longitude: -0.074968},
}

// DefaultOverrides returns the built-in correction table.
func DefaultOverrides() *Overrides {
	o, err := NewOverrides(defaultOverrides)
	if err != nil {
		panic(err)
	}
	return o
}

// With returns a new table holding o's entries overlaid by other's.
func (o *Overrides) With(other *Overrides) *Overrides {
	out := &Overrides{byAddress: map[string]Point{}, byRow: map[int]Point{}}
	for _, src := range []*Overrides{o, other} {
		if src == nil {
			continue
		}
		for k, v := range src.byAddress {
			out.byAddress[k] = v
		}
		for k, v := range src.byRow {
			out.byRow[k] = v
		}
	}
	return out
}

// Lookup returns the pinned coordinates for a deployment, matching first by
// normalized address and then by row id.
func (o *Overrides) Lookup(row int, address string) (Point, bool) {
	if o == nil {
		return Point{}, false
	}
	if address != "" {
		if p, ok := o.byAddress[AddressKey(address)]; ok {
			return p, true
		}
	}
	p, ok := o.byRow[row]
	return p, ok
}

// Len returns the number of entries.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.byAddress) + len(o.byRow)
}
