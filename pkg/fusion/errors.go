package fusion

import "dsmfusion/internal/models"

// Error kinds of a fusion run. Every error returned by this package wraps
// exactly one of them, so callers can branch with errors.Is.
var (
	// ErrInput covers missing or unreadable rasters
	ErrInput = models.ErrInput

	// ErrEmptyInput is returned when no raster is supplied
	ErrEmptyInput = models.ErrEmptyInput

	// ErrShapeMismatch covers grids or images of inconsistent dimensions
	ErrShapeMismatch = models.ErrShapeMismatch

	// ErrColorShapeMismatch is returned when the colour image does not
	// cover the consensus grid cell for cell
	ErrColorShapeMismatch = models.ErrColorShapeMismatch

	// ErrConfig covers a missing or invalid run configuration
	ErrConfig = models.ErrConfig

	// ErrDegenerateGeometry is returned for zero-sized grids
	ErrDegenerateGeometry = models.ErrDegenerateGeometry

	// ErrInvalidGridShape is returned by the smoother for grids it cannot filter
	ErrInvalidGridShape = models.ErrInvalidGridShape
)
