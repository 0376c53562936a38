// Package pointcloud turns a consensus grid into a coloured point cloud and
// serializes it as PLY or PCD.
package pointcloud

import (
	"fmt"
	"image"
	"image/color"

	"dsmfusion/internal/models"
	"dsmfusion/pkg/geo"
)

// Flatten emits one point per valid cell of grid, in row-major order.
//
// Eastings, northings, elevations and colours are laid out as four
// parallel per-cell arrays and compacted with one validity mask, so the
// i-th point always takes the colour of the cell its elevation came from.
// img may be nil, in which case every point is black.
func Flatten(grid *models.Grid, g models.GeoReference, img image.Image) ([]models.PointRecord, error) {
	if grid == nil || grid.Rows <= 0 || grid.Cols <= 0 {
		return nil, fmt.Errorf("%w: cannot flatten an empty grid", models.ErrDegenerateGeometry)
	}
	if img != nil {
		b := img.Bounds()
		if b.Dx() != grid.Cols || b.Dy() != grid.Rows {
			return nil, fmt.Errorf("%w: image is %dx%d, grid is %dx%d",
				models.ErrColorShapeMismatch, b.Dy(), b.Dx(), grid.Rows, grid.Cols)
		}
	}

	n := grid.Size()
	eastings := make([]float64, n)
	northings := make([]float64, n)
	elevations := make([]float64, n)
	colors := make([]color.NRGBA, n)

	eAxis, nAxis := geo.Axes(g)
	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			i := grid.Index(r, c)
			eastings[i] = eAxis[c]
			northings[i] = nAxis[r]
			elevations[i] = grid.Values[i]
			if img != nil {
				b := img.Bounds()
				colors[i] = color.NRGBAModel.Convert(img.At(b.Min.X+c, b.Min.Y+r)).(color.NRGBA)
			}
		}
	}

	mask := grid.Valid
	eastings = compress(eastings, mask)
	northings = compress(northings, mask)
	elevations = compress(elevations, mask)
	colors = compress(colors, mask)

	points := make([]models.PointRecord, len(elevations))
	for i := range points {
		points[i] = models.PointRecord{
			Easting:   eastings[i],
			Northing:  northings[i],
			Elevation: elevations[i],
			R:         colors[i].R,
			G:         colors[i].G,
			B:         colors[i].B,
		}
	}
	return points, nil
}

// compress keeps the elements whose mask entry is set, preserving order
func compress[T any](values []T, mask []bool) []T {
	out := values[:0]
	for i, v := range values {
		if mask[i] {
			out = append(out, v)
		}
	}
	return out
}
