// Package model defines the records passed between pipeline stages.
package model

// Source identifies which raw dataset an event came from.
type Source string

const (
	SourceStopSearch Source = "stop_search"
	SourceLFR        Source = "lfr"
)

// Attribute is one named source column carried through unchanged.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Event is a single point event: one stop-and-search record or one LFR
// deployment. Events are not modified after extraction.
type Event struct {
	ID         int64       `json:"id"`
	Source     Source      `json:"source"`
	Year       int         `json:"year"`
	Category   string      `json:"category"`
	Location   string      `json:"location,omitempty"`
	Date       string      `json:"date"`
	Lat        float64     `json:"lat"`
	Lon        float64     `json:"lon"`
	HasCoords  bool        `json:"has_coords"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Attr returns the value of the named attribute, or "" when absent.
func (e Event) Attr(name string) string {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}
