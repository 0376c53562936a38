package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by every stage of a fusion run
var (
	ErrInput              = errors.New("input error")
	ErrEmptyInput         = fmt.Errorf("%w: no input rasters", ErrInput)
	ErrShapeMismatch      = errors.New("shape mismatch")
	ErrColorShapeMismatch = fmt.Errorf("%w: colour image", ErrShapeMismatch)
	ErrConfig             = errors.New("configuration error")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	ErrInvalidGridShape   = fmt.Errorf("%w: invalid grid shape", ErrDegenerateGeometry)
)
