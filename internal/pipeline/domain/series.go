package domain

import "fmt"

// Series defines a document-number series: a prefix, a zero-pad width and
// the counter name used by the atomic storage-side generator. Numbers are
// strictly increasing within a series, never reused, tolerant of gaps.
type Series struct {
	Name   string
	Prefix string
	Width  int
}

var (
	// SeriesDispatch numbers dispatch events: D-01, D-02, ...
	SeriesDispatch = Series{Name: "dispatch", Prefix: "D", Width: 2}
	// SeriesLogistics numbers logistics assignments: LGST-001, LGST-002, ...
	SeriesLogistics = Series{Name: "logistics", Prefix: "LGST", Width: 3}
)

// Format renders the n-th identifier of the series. The pad width is a
// minimum; counters past the width simply grow longer.
func (s Series) Format(n int64) string {
	return fmt.Sprintf("%s-%0*d", s.Prefix, s.Width, n)
}

// Seed returns the first identifier of the series.
func (s Series) Seed() string {
	return s.Format(1)
}
