// Package detector implements nearest-neighbor anomaly scoring, threshold calibration and detection.
//
// A log line's anomaly score is 1 - s, where s is a similarity aggregated from its nearest
// baseline neighbors. The threshold is a quantile of leave-one-out scores of baseline entries.
package detector

import (
	"fmt"
	"sort"

	"github.com/hyperjump/logsentry/internal/models"
)

// Method selects how neighbor similarities are aggregated into one score.
type Method string

const (
	// MethodKth uses the k-th ranked similarity, clamped to the last available neighbor.
	MethodKth Method = models.MethodKth
	// MethodAvg uses the mean of all returned similarities.
	MethodAvg Method = models.MethodAvg
	// MethodMax uses the closest neighbor's similarity.
	MethodMax Method = models.MethodMax
)

// ParseMethod validates a method name. Empty selects MethodKth.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodKth, "":
		return MethodKth, nil
	case MethodAvg:
		return MethodAvg, nil
	case MethodMax:
		return MethodMax, nil
	}
	return "", fmt.Errorf("unknown score method %q (supported: kth, avg, max)", s)
}

// Score reduces neighbor similarities to an anomaly score of 1 - aggregate(similarities).
// The second result is false when hits is empty: there is nothing to compare against,
// which is not the same as a score of 0. Unknown methods behave as MethodKth.
func Score(hits []*models.NeighborHit, k int, method Method) (float64, bool) {
	if len(hits) == 0 {
		return 0, false
	}
	sims := make([]float64, len(hits))
	for i, h := range hits {
		sims[i] = h.Similarity
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sims)))

	var chosen float64
	switch method {
	case MethodAvg:
		var sum float64
		for _, s := range sims {
			sum += s
		}
		chosen = sum / float64(len(sims))
	case MethodMax:
		chosen = sims[0]
	default:
		idx := k - 1
		if idx > len(sims)-1 {
			idx = len(sims) - 1
		}
		if idx < 0 {
			idx = 0
		}
		chosen = sims[idx]
	}
	return 1.0 - chosen, true
}
