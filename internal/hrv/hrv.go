// Package hrv derives heart-rate-variability statistics from a trailing
// window of RR intervals. The original source left this computation as an
// empty TODO stub; this package is a from-specification implementation,
// checked in hrv_test.go against a five-interval reference window.
package hrv

import "math"

// Stats holds the seven §4.G filter outputs computed over a window of RR
// intervals, all in milliseconds except the two percentage fields.
type Stats struct {
	SDNN  float64 // standard deviation of NN intervals
	RMSSD float64 // root mean square of successive differences
	SDSD  float64 // standard deviation of successive differences
	NN50  int     // count of successive diffs >= 50ms
	PNN50 float64 // NN50 / (count of diffs)
	NN20  int     // count of successive diffs >= 20ms
	PNN20 float64 // NN20 / (count of diffs)
}

// Compute derives Stats from a window of RR intervals (milliseconds, in
// chronological order). A window of fewer than 2 intervals yields all-zero
// Stats: successive differences are undefined with fewer than two samples.
func Compute(rrMillis []float64) Stats {
	n := len(rrMillis)
	if n == 0 {
		return Stats{}
	}

	mean := 0.0
	for _, v := range rrMillis {
		mean += v
	}
	mean /= float64(n)

	sdnn := 0.0
	if n >= 2 {
		var sumSq float64
		for _, v := range rrMillis {
			d := v - mean
			sumSq += d * d
		}
		sdnn = math.Sqrt(sumSq / float64(n))
	}

	if n < 2 {
		return Stats{SDNN: sdnn}
	}

	diffs := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		diffs = append(diffs, rrMillis[i]-rrMillis[i-1])
	}

	var sumSqDiff float64
	var nn50, nn20 int
	for _, d := range diffs {
		sumSqDiff += d * d
		ad := math.Abs(d)
		if ad >= 50 {
			nn50++
		}
		if ad >= 20 {
			nn20++
		}
	}
	rmssd := math.Sqrt(sumSqDiff / float64(len(diffs)))

	diffMean := 0.0
	for _, d := range diffs {
		diffMean += d
	}
	diffMean /= float64(len(diffs))

	var sumSqD float64
	for _, d := range diffs {
		dd := d - diffMean
		sumSqD += dd * dd
	}
	sdsd := math.Sqrt(sumSqD / float64(len(diffs)))

	return Stats{
		SDNN:  sdnn,
		RMSSD: rmssd,
		SDSD:  sdsd,
		NN50:  nn50,
		PNN50: float64(nn50) / float64(len(diffs)),
		NN20:  nn20,
		PNN20: float64(nn20) / float64(len(diffs)),
	}
}
