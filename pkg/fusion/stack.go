package fusion

import (
	"fmt"
	"path/filepath"
	"sort"

	"dsmfusion/internal/models"
)

// geoTolerance is the largest origin or resolution difference, in ground
// units, tolerated between co-registered inputs
const geoTolerance = 1e-6

// LoadFunc loads one elevation raster; raster.Load satisfies it
type LoadFunc func(path string) (*models.Grid, models.GeoReference, error)

// InputStats is the data-quality diagnostic recorded for one input raster
type InputStats struct {
	Name         string  `yaml:"name"`
	Missing      int     `yaml:"missing"`
	Total        int     `yaml:"total"`
	MissingRatio float64 `yaml:"missingRatio"`
}

// OrderedInputs returns a lexically sorted copy of ids. Directory scans go
// through it so that a run does not depend on listing order.
func OrderedInputs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// BuildStack loads every input in the given order and assembles the
// measurement stack. It returns the georeference shared by the inputs and
// the per-input missing-cell statistics, which are also logged.
func BuildStack(load LoadFunc, ids []string, logger Logger) (*models.Stack, models.GeoReference, []InputStats, error) {
	var geo models.GeoReference
	logger = orNop(logger)

	if len(ids) == 0 {
		return nil, geo, nil, ErrEmptyInput
	}

	grids := make([]*models.Grid, 0, len(ids))
	names := make([]string, 0, len(ids))
	stats := make([]InputStats, 0, len(ids))
	for i, id := range ids {
		grid, g, err := load(id)
		if err != nil {
			return nil, geo, nil, fmt.Errorf("%w: loading %s: %v", ErrInput, id, err)
		}

		if i == 0 {
			geo = g
		} else if !grid.SameShape(grids[0]) {
			return nil, geo, nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d like %s",
				ErrShapeMismatch, id, grid.Rows, grid.Cols, grids[0].Rows, grids[0].Cols, ids[0])
		} else if !geo.Compatible(g, geoTolerance) {
			return nil, geo, nil, fmt.Errorf("%w: %s is not co-registered with %s", ErrShapeMismatch, id, ids[0])
		}

		name := filepath.Base(id)
		st := InputStats{
			Name:         name,
			Missing:      grid.MissingCount(),
			Total:        grid.Size(),
			MissingRatio: grid.MissingRatio(),
		}
		logger.Printf("[STACK] dsm %s empty ratio: %v", name, st.MissingRatio)

		grids = append(grids, grid)
		names = append(names, name)
		stats = append(stats, st)
	}

	stack, err := StackGrids(names, grids)
	if err != nil {
		return nil, geo, nil, err
	}
	if geo.Rows == 0 && geo.Cols == 0 {
		geo.Rows, geo.Cols = stack.Rows, stack.Cols
	}
	return stack, geo, stats, nil
}

// StackGrids assembles already loaded grids, in order, into a stack
func StackGrids(names []string, grids []*models.Grid) (*models.Stack, error) {
	if len(grids) == 0 {
		return nil, ErrEmptyInput
	}
	first := grids[0]
	if first.Rows <= 0 || first.Cols <= 0 {
		return nil, fmt.Errorf("%w: input grid is %dx%d", ErrDegenerateGeometry, first.Rows, first.Cols)
	}
	for i, g := range grids[1:] {
		if !g.SameShape(first) {
			return nil, fmt.Errorf("%w: grid %d is %dx%d, expected %dx%d",
				ErrShapeMismatch, i+1, g.Rows, g.Cols, first.Rows, first.Cols)
		}
	}

	depth := len(grids)
	cells := first.Size()
	stack := &models.Stack{
		Rows:   first.Rows,
		Cols:   first.Cols,
		Depth:  depth,
		Values: make([]float64, cells*depth),
		Valid:  make([]bool, cells*depth),
		Names:  make([]string, depth),
	}
	for k, g := range grids {
		if k < len(names) {
			stack.Names[k] = names[k]
		}
		for i := 0; i < cells; i++ {
			stack.Values[i*depth+k] = g.Values[i]
			stack.Valid[i*depth+k] = g.Valid[i]
		}
	}
	return stack, nil
}
