// Package analytics provides the shared time-series types used by the
// aggregation, forecasting and session packages.
package analytics

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date layout used for keys and persisted dates.
const DateLayout = "2006-01-02"

// TimeSeriesPoint represents one aggregated period: a calendar date, its value
// and free-form metadata describing how the value was produced.
type TimeSeriesPoint struct {
	Time     time.Time              `json:"date"`
	Value    float64                `json:"value"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the point, including its metadata map.
func (p TimeSeriesPoint) Clone() TimeSeriesPoint {
	out := TimeSeriesPoint{Time: p.Time, Value: p.Value}
	if p.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// TimeSeriesData represents a collection of time-series data points
type TimeSeriesData []TimeSeriesPoint

// Clone deep-copies the series.
func (ts TimeSeriesData) Clone() TimeSeriesData {
	if ts == nil {
		return nil
	}
	out := make(TimeSeriesData, len(ts))
	for i, p := range ts {
		out[i] = p.Clone()
	}
	return out
}

// Within returns the points whose date falls inside r.
func (ts TimeSeriesData) Within(r DateRange) TimeSeriesData {
	out := make(TimeSeriesData, 0, len(ts))
	for _, p := range ts {
		if r.Contains(p.Time) {
			out = append(out, p)
		}
	}
	return out
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewDateRange normalizes both ends to UTC calendar dates.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: TruncateToDay(from), To: TruncateToDay(to)}
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", from, err)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", to, err)
	}
	r := NewDateRange(f, t)
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks that the range is not inverted.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("date range requires both start and end")
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("date range end %s is before start %s", r.To.Format(DateLayout), r.From.Format(DateLayout))
	}
	return nil
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := TruncateToDay(t)
	return !d.Before(r.From) && !d.After(r.To)
}

// Covers reports whether other lies entirely inside r.
func (r DateRange) Covers(other DateRange) bool {
	return !other.From.Before(r.From) && !other.To.After(r.To)
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

// TruncateToDay drops the clock part of t and moves it to UTC.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
