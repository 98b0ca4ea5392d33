// Package downsampling thins aggregated series for charting. Long daily or
// weekly histories are reduced to a bounded number of points while keeping
// their visual shape.
package downsampling

import (
	"fmt"
	"math"
	"strings"

	"github.com/soltixdb/ledgercast/internal/analytics"
)

// Mode selects the downsampling algorithm
type Mode string

const (
	// ModeNone returns the series unchanged
	ModeNone Mode = "none"
	// ModeAuto picks an algorithm from the shape of the series
	ModeAuto Mode = "auto"
	// ModeLTTB keeps the points forming the largest triangles between buckets
	ModeLTTB Mode = "lttb"
	// ModeMinMax keeps the minimum and maximum of each bucket
	ModeMinMax Mode = "minmax"
	// ModeAverage replaces each bucket with its mean
	ModeAverage Mode = "avg"
	// ModeM4 keeps first, min, max and last of each bucket
	ModeM4 Mode = "m4"
)

// MinPoints is the smallest accepted target size
const MinPoints = 3

// Modes lists every accepted mode
var Modes = []Mode{ModeNone, ModeAuto, ModeLTTB, ModeMinMax, ModeAverage, ModeM4}

// ParseMode resolves a query or flag value. Empty means auto.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAuto, nil
	}
	m := Mode(strings.ToLower(s))
	for _, valid := range Modes {
		if m == valid {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown downsampling mode %q (available: %v)", s, Modes)
}

// Apply reduces points to at most maxPoints. Series already within the
// limit and ModeNone are returned as is. Selecting modes return original
// points; ModeAverage returns new points carrying a bucket_size metadata
// entry.
func Apply(points []analytics.TimeSeriesPoint, mode Mode, maxPoints int) ([]analytics.TimeSeriesPoint, error) {
	if mode == ModeNone || len(points) <= maxPoints {
		return points, nil
	}
	if maxPoints < MinPoints {
		return nil, fmt.Errorf("max points must be at least %d, got %d", MinPoints, maxPoints)
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	if mode == ModeAuto {
		mode = detectBestAlgorithm(values)
	}

	var indices []int
	switch mode {
	case ModeLTTB:
		indices = lttb(values, maxPoints)
	case ModeMinMax:
		indices = minmax(values, maxPoints)
	case ModeM4:
		indices = m4(values, maxPoints)
	case ModeAverage:
		return average(points, maxPoints), nil
	default:
		return nil, fmt.Errorf("unknown downsampling mode %q", mode)
	}

	out := make([]analytics.TimeSeriesPoint, len(indices))
	for i, idx := range indices {
		out[i] = points[idx]
	}
	return out, nil
}

// detectBestAlgorithm prefers peak-preserving modes for spiky series and
// LTTB for smooth ones
func detectBestAlgorithm(values []float64) Mode {
	spikiness := calculateSpikiness(values)
	switch {
	case spikiness > 0.2:
		return ModeMinMax
	case spikiness > 0.1:
		return ModeM4
	default:
		return ModeLTTB
	}
}

// calculateSpikiness scores a series between 0 (smooth) and 1 (spiky) from
// the share of points beyond two standard deviations and the share of steps
// larger than one standard deviation
func calculateSpikiness(values []float64) float64 {
	n := len(values)
	if n < 10 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(n))
	if stdDev == 0 {
		return 0
	}

	outliers, jumps := 0, 0
	for i, v := range values {
		if math.Abs(v-mean) > 2*stdDev {
			outliers++
		}
		if i > 0 && math.Abs(v-values[i-1]) > stdDev {
			jumps++
		}
	}

	score := (float64(outliers)/float64(n) + 1.5*float64(jumps)/float64(n-1)) / 2.5
	return math.Min(score, 1)
}

// lttb implements Largest-Triangle-Three-Buckets over the point index as x.
// The first and last points are always kept.
func lttb(values []float64, threshold int) []int {
	n := len(values)
	sampled := make([]int, 0, threshold)
	sampled = append(sampled, 0)

	bucketSize := float64(n-2) / float64(threshold-2)
	a := 0

	for i := 0; i < threshold-2; i++ {
		nextStart := int(math.Floor(float64(i+1)*bucketSize)) + 1
		nextEnd := int(math.Floor(float64(i+2)*bucketSize)) + 1
		if nextEnd > n {
			nextEnd = n
		}

		avgX, avgY := 0.0, 0.0
		for j := nextStart; j < nextEnd; j++ {
			avgX += float64(j)
			avgY += values[j]
		}
		if span := nextEnd - nextStart; span > 0 {
			avgX /= float64(span)
			avgY /= float64(span)
		} else {
			avgX, avgY = float64(n-1), values[n-1]
		}

		from := int(math.Floor(float64(i)*bucketSize)) + 1
		to := int(math.Floor(float64(i+1)*bucketSize)) + 1

		ax, ay := float64(a), values[a]
		maxArea := -1.0
		chosen := from
		for j := from; j < to; j++ {
			area := math.Abs((ax-avgX)*(values[j]-ay)-(ax-float64(j))*(avgY-ay)) * 0.5
			if area > maxArea {
				maxArea = area
				chosen = j
			}
		}

		sampled = append(sampled, chosen)
		a = chosen
	}

	return append(sampled, n-1)
}

type bucket struct{ start, end int }

func buckets(n, count int) []bucket {
	if count < 1 {
		count = 1
	}
	size := float64(n) / float64(count)
	out := make([]bucket, 0, count)
	for i := 0; i < count; i++ {
		b := bucket{start: int(float64(i) * size), end: int(float64(i+1) * size)}
		if i == count-1 || b.end > n {
			b.end = n
		}
		if b.start < b.end {
			out = append(out, b)
		}
	}
	return out
}

func extremes(values []float64, b bucket) (minIdx, maxIdx int) {
	minIdx, maxIdx = b.start, b.start
	for j := b.start + 1; j < b.end; j++ {
		if values[j] < values[minIdx] {
			minIdx = j
		}
		if values[j] > values[maxIdx] {
			maxIdx = j
		}
	}
	return minIdx, maxIdx
}

// minmax keeps the extremes of threshold/2 buckets in time order
func minmax(values []float64, threshold int) []int {
	var sampled []int
	for _, b := range buckets(len(values), threshold/2) {
		lo, hi := extremes(values, b)
		if lo > hi {
			lo, hi = hi, lo
		}
		sampled = append(sampled, lo)
		if hi != lo {
			sampled = append(sampled, hi)
		}
	}
	return sampled
}

// m4 keeps first, min, max and last of threshold/4 buckets in time order
func m4(values []float64, threshold int) []int {
	if threshold < 4 {
		return minmax(values, threshold)
	}
	var sampled []int
	for _, b := range buckets(len(values), threshold/4) {
		lo, hi := extremes(values, b)
		if lo > hi {
			lo, hi = hi, lo
		}
		last := -1
		for _, idx := range []int{b.start, lo, hi, b.end - 1} {
			if idx > last {
				sampled = append(sampled, idx)
				last = idx
			}
		}
	}
	return sampled
}

// average emits one point per bucket dated at the bucket's middle point
func average(points []analytics.TimeSeriesPoint, threshold int) []analytics.TimeSeriesPoint {
	bs := buckets(len(points), threshold)
	out := make([]analytics.TimeSeriesPoint, 0, len(bs))
	for _, b := range bs {
		sum := 0.0
		for j := b.start; j < b.end; j++ {
			sum += points[j].Value
		}
		size := b.end - b.start
		out = append(out, analytics.TimeSeriesPoint{
			Time:     points[b.start+size/2].Time,
			Value:    sum / float64(size),
			Metadata: map[string]interface{}{"bucket_size": size},
		})
	}
	return out
}
