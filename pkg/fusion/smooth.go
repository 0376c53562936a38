package fusion

import (
	"fmt"

	"dsmfusion/internal/models"
)

// MissingPolicy decides how missing cells take part in the median filter
type MissingPolicy int

const (
	// ExcludeMissing leaves missing cells missing and computes the median of
	// every valid cell over the valid values of its window only
	ExcludeMissing MissingPolicy = iota

	// PropagateMissing turns a valid cell missing when any cell of its
	// window is missing
	PropagateMissing
)

// ParseMissingPolicy maps the configuration names to a policy
func ParseMissingPolicy(name string) (MissingPolicy, error) {
	switch name {
	case "", "exclude":
		return ExcludeMissing, nil
	case "propagate":
		return PropagateMissing, nil
	}
	return ExcludeMissing, fmt.Errorf("%w: unknown missing policy %q", ErrConfig, name)
}

func (p MissingPolicy) String() string {
	if p == PropagateMissing {
		return "propagate"
	}
	return "exclude"
}

// MedianFilter smooths grid in place with a window x window median.
// Windows reaching past the border replicate the edge cells. Missing
// cells never contribute a value to a median; see MissingPolicy.
func MedianFilter(grid *models.Grid, window int, policy MissingPolicy) error {
	if grid == nil || grid.Rows <= 0 || grid.Cols <= 0 {
		return fmt.Errorf("%w: cannot filter an empty grid", ErrInvalidGridShape)
	}
	if window < 3 || window%2 == 0 {
		return fmt.Errorf("%w: window must be odd and at least 3, got %d", ErrInvalidGridShape, window)
	}

	src := grid.Clone()
	half := window / 2
	buf := make([]float64, 0, window*window)

	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			if !src.IsValid(r, c) {
				continue
			}

			buf = buf[:0]
			sawMissing := false
			for dr := -half; dr <= half; dr++ {
				rr := clamp(r+dr, grid.Rows)
				for dc := -half; dc <= half; dc++ {
					cc := clamp(c+dc, grid.Cols)
					v, ok := src.At(rr, cc)
					if !ok {
						sawMissing = true
						continue
					}
					buf = append(buf, v)
				}
			}

			if policy == PropagateMissing && sawMissing {
				grid.SetMissing(r, c)
				continue
			}
			grid.Set(r, c, models.Median(buf))
		}
	}
	return nil
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
