package fusion

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"dsmfusion/internal/models"
)

// DefaultMinSupport is the number of views that must agree a cell exists
const DefaultMinSupport = 3

// CellStats describes how one cell was reduced
type CellStats struct {
	// Support is the number of valid measurements before filtering
	Support int

	// SupportRejected is set when the cell had too few measurements
	SupportRejected bool

	// Outliers is the number of measurements rejected by the MAD test
	Outliers int
}

// Summary aggregates CellStats over a whole reduction
type Summary struct {
	Cells           int `yaml:"cells"`
	SupportRejected int `yaml:"supportRejected"`
	Outliers        int `yaml:"outliers"`
	Empty           int `yaml:"empty"`
}

func (s *Summary) add(o Summary) {
	s.Cells += o.Cells
	s.SupportRejected += o.SupportRejected
	s.Outliers += o.Outliers
	s.Empty += o.Empty
}

// Estimator reduces a measurement stack to a consensus grid
type Estimator struct {
	// MinSupport is the smallest number of valid measurements a cell needs
	MinSupport int

	// NumCores bounds the number of tiles reduced concurrently
	NumCores int

	// TileRows is the number of grid rows per work package
	TileRows int
}

// NewEstimator returns an estimator with the default support threshold
// using all available cores
func NewEstimator() *Estimator {
	return &Estimator{
		MinSupport: DefaultMinSupport,
		NumCores:   runtime.NumCPU(),
		TileRows:   64,
	}
}

// Reduce computes the consensus grid. Rows are split into tiles that are
// reduced concurrently; every tile owns a disjoint row range of the output,
// so the result does not depend on scheduling. Missing data is never an
// error: cells without enough agreeing measurements are simply missing.
func (e *Estimator) Reduce(stack *models.Stack) (*models.Grid, Summary, error) {
	var summary Summary
	if stack == nil || stack.Rows <= 0 || stack.Cols <= 0 {
		return nil, summary, fmt.Errorf("%w: empty measurement stack", ErrDegenerateGeometry)
	}

	minSupport := e.MinSupport
	if minSupport < 1 {
		minSupport = DefaultMinSupport
	}
	tileRows := e.TileRows
	if tileRows < 1 {
		tileRows = 64
	}
	numCores := e.NumCores
	if numCores < 1 {
		numCores = 1
	}

	out := models.NewGrid(stack.Rows, stack.Cols)
	numTiles := (stack.Rows + tileRows - 1) / tileRows
	tileSummaries := make([]Summary, numTiles)

	var g errgroup.Group
	g.SetLimit(numCores)
	for t := 0; t < numTiles; t++ {
		t := t
		lower := t * tileRows
		upper := lower + tileRows
		if upper > stack.Rows {
			upper = stack.Rows
		}
		g.Go(func() error {
			tileSummaries[t] = reduceRows(stack, out, lower, upper, minSupport)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, summary, err
	}

	for _, s := range tileSummaries {
		summary.add(s)
	}
	return out, summary, nil
}

// reduceRows reduces rows [lower, upper) of stack into out
func reduceRows(stack *models.Stack, out *models.Grid, lower, upper, minSupport int) Summary {
	var s Summary
	scratch := newCellScratch(stack.Depth)
	for r := lower; r < upper; r++ {
		for c := 0; c < stack.Cols; c++ {
			start := (r*stack.Cols + c) * stack.Depth
			v, ok, cs := scratch.reduce(stack.Values[start:start+stack.Depth], stack.Valid[start:start+stack.Depth], minSupport)

			s.Cells++
			s.Outliers += cs.Outliers
			if cs.SupportRejected {
				s.SupportRejected++
			}
			if ok {
				out.Set(r, c, v)
			} else {
				s.Empty++
			}
		}
	}
	return s
}

// ReduceCell applies support filtering, MAD outlier rejection and the mean
// to the measurements of a single cell. The boolean result is false when
// the cell ends up missing.
func ReduceCell(values []float64, valid []bool, minSupport int) (float64, bool, CellStats) {
	return newCellScratch(len(values)).reduce(values, valid, minSupport)
}

// cellScratch holds per-worker buffers so that reducing a tile does not
// allocate per cell
type cellScratch struct {
	samples []float64
	sorted  []float64
	devs    []float64
	kept    []float64
}

func newCellScratch(depth int) *cellScratch {
	return &cellScratch{
		samples: make([]float64, 0, depth),
		sorted:  make([]float64, 0, depth),
		devs:    make([]float64, 0, depth),
		kept:    make([]float64, 0, depth),
	}
}

func (cs *cellScratch) reduce(values []float64, valid []bool, minSupport int) (float64, bool, CellStats) {
	var st CellStats

	cs.samples = cs.samples[:0]
	for k, v := range values {
		if k < len(valid) && valid[k] {
			cs.samples = append(cs.samples, v)
		}
	}
	st.Support = len(cs.samples)

	// support is checked before the MAD test
	if st.Support == 0 || st.Support < minSupport {
		st.SupportRejected = st.Support < minSupport
		return math.NaN(), false, st
	}

	cs.sorted = append(cs.sorted[:0], cs.samples...)
	med := models.Median(cs.sorted)

	cs.devs = cs.devs[:0]
	for _, v := range cs.samples {
		cs.devs = append(cs.devs, math.Abs(v-med))
	}
	mad := models.Median(cs.devs)

	// strictly greater: with MAD == 0 every value off the median is dropped
	cs.kept = cs.kept[:0]
	for _, v := range cs.samples {
		if math.Abs(v-med) > mad {
			st.Outliers++
			continue
		}
		cs.kept = append(cs.kept, v)
	}
	if len(cs.kept) == 0 {
		return math.NaN(), false, st
	}

	return stat.Mean(cs.kept, nil), true, st
}
