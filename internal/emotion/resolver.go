package emotion

import (
	"fmt"
	"math"
)

// Resolve picks the most probable class of dist and returns its label and
// index. The first maximum wins, so exact ties resolve to the lowest index.
// NaN entries never win.
func Resolve(dist []float32) (Label, int, error) {
	if len(dist) != len(Labels) {
		return "", -1, fmt.Errorf("%w: got %d values, expected %d", ErrDistribution, len(dist), len(Labels))
	}

	maxIdx := -1
	var maxVal float32
	for i, val := range dist {
		if math.IsNaN(float64(val)) {
			continue
		}
		if maxIdx == -1 || val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	if maxIdx == -1 {
		return "", -1, fmt.Errorf("%w: no finite values", ErrDistribution)
	}

	return Labels[maxIdx], maxIdx, nil
}
