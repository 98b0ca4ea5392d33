// Package aggregation buckets raw ledger rows into periodic time series.
package aggregation

import (
	"math"
	"sort"
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
)

// Metadata keys written on every aggregated point.
const (
	MetaCount       = "count"
	MetaAverage     = "average"
	MetaAggregation = "aggregation"
	MetaMin         = "min"
	MetaMax         = "max"
	MetaStdDev      = "std_dev"
	MetaPeriod      = "period"
	MetaWeek        = "week"
	MetaISOYear     = "iso_year"

	AggregationSum = "sum"
)

// AggregatedField represents running statistics for one period bucket
type AggregatedField struct {
	Count      int64   // Number of raw rows
	Sum        float64 // Sum of values
	Avg        float64 // Average
	Min        float64 // Minimum
	Max        float64 // Maximum
	SumSquares float64 // For variance calculation
}

// NewAggregatedField creates a new aggregated field from a single value
func NewAggregatedField(value float64) *AggregatedField {
	return &AggregatedField{
		Count:      1,
		Sum:        value,
		Avg:        value,
		Min:        value,
		Max:        value,
		SumSquares: value * value,
	}
}

// AddValue adds a single value to the aggregation
func (af *AggregatedField) AddValue(value float64) {
	af.Count++
	af.Sum += value
	af.SumSquares += value * value
	if value < af.Min {
		af.Min = value
	}
	if value > af.Max {
		af.Max = value
	}
	af.Avg = af.Sum / float64(af.Count)
}

// Variance calculates the population variance of the aggregated values
func (af *AggregatedField) Variance() float64 {
	if af.Count <= 1 {
		return 0
	}
	// Var = E[X²] - (E[X])²
	v := (af.SumSquares / float64(af.Count)) - (af.Avg * af.Avg)
	if v < 0 {
		return 0
	}
	return v
}

// StdDev calculates the standard deviation
func (af *AggregatedField) StdDev() float64 {
	return math.Sqrt(af.Variance())
}

type bucket struct {
	start time.Time
	field *AggregatedField
}

// Aggregate groups rows into periods of p. Each output point carries the
// period's sum as its value, the first day of the period as its date, and
// count/average/min/max/std_dev in metadata. Output is sorted by date; empty
// input yields an empty series.
func Aggregate(rows []analytics.TimeSeriesPoint, p analytics.Periodicity) []analytics.TimeSeriesPoint {
	buckets := make(map[string]*bucket)
	for _, row := range rows {
		key := p.PeriodKey(row.Time)
		b, ok := buckets[key]
		if !ok {
			buckets[key] = &bucket{start: p.PeriodStart(row.Time), field: NewAggregatedField(row.Value)}
			continue
		}
		b.field.AddValue(row.Value)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return buckets[keys[i]].start.Before(buckets[keys[j]].start)
	})

	out := make([]analytics.TimeSeriesPoint, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		meta := map[string]interface{}{
			MetaCount:       b.field.Count,
			MetaAverage:     b.field.Avg,
			MetaAggregation: AggregationSum,
			MetaMin:         b.field.Min,
			MetaMax:         b.field.Max,
			MetaStdDev:      b.field.StdDev(),
			MetaPeriod:      k,
		}
		if p == analytics.Weekly {
			year, week := b.start.ISOWeek()
			meta[MetaWeek] = week
			meta[MetaISOYear] = year
		}
		out = append(out, analytics.TimeSeriesPoint{
			Time:     b.start,
			Value:    b.field.Sum,
			Metadata: meta,
		})
	}
	return out
}
