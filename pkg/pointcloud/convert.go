package pointcloud

import "dsmfusion/pkg/raster"

// DSMToPLY converts a single elevation raster into a colourless PLY file,
// recording the raster's projection when its sidecar provides one. It
// returns the number of points written.
func DSMToPLY(inPath, outPath string, format Format) (int, error) {
	grid, g, err := raster.Load(inPath)
	if err != nil {
		return 0, err
	}

	points, err := Flatten(grid, g, nil)
	if err != nil {
		return 0, err
	}

	opts := PLYOptions{Format: format}
	if g.Zone != 0 {
		opts.Comments = []string{ProjectionComment(g.Zone, g.Hemisphere)}
	}
	if err := SavePLY(outPath, points, opts); err != nil {
		return 0, err
	}

	return len(points), nil
}
