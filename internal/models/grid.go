package models

import (
	"math"

	"github.com/paulmach/orb"
)

// Grid is a single-band elevation raster stored in row-major order.
// Missing cells are tracked explicitly in Valid; their Values entry is NaN
// so that nothing downstream mistakes a missing cell for a real zero.
type Grid struct {
	// Rows and Cols are the raster dimensions
	Rows int
	Cols int

	// Values holds the elevation of cell (r, c) at index r*Cols+c
	Values []float64

	// Valid marks cells that carry a measurement
	Valid []bool
}

// NewGrid creates a grid of the given size with every cell missing
func NewGrid(rows, cols int) *Grid {
	n := rows * cols
	if n < 0 {
		n = 0
	}
	g := &Grid{
		Rows:   rows,
		Cols:   cols,
		Values: make([]float64, n),
		Valid:  make([]bool, n),
	}
	for i := range g.Values {
		g.Values[i] = math.NaN()
	}
	return g
}

// GridFromValues wraps row-major values, treating NaN and ±Inf as missing.
// The values slice is copied.
func GridFromValues(rows, cols int, values []float64) *Grid {
	g := NewGrid(rows, cols)
	for i := 0; i < len(g.Values) && i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		g.Values[i] = v
		g.Valid[i] = true
	}
	return g
}

// Index returns the flat index of cell (r, c)
func (g *Grid) Index(r, c int) int {
	return r*g.Cols + c
}

// At returns the value at (r, c) and whether it is valid
func (g *Grid) At(r, c int) (float64, bool) {
	i := g.Index(r, c)
	return g.Values[i], g.Valid[i]
}

// Set stores a valid measurement at (r, c)
func (g *Grid) Set(r, c int, v float64) {
	i := g.Index(r, c)
	g.Values[i] = v
	g.Valid[i] = true
}

// SetMissing marks (r, c) as missing
func (g *Grid) SetMissing(r, c int) {
	i := g.Index(r, c)
	g.Values[i] = math.NaN()
	g.Valid[i] = false
}

// IsValid reports whether (r, c) carries a measurement
func (g *Grid) IsValid(r, c int) bool {
	return g.Valid[g.Index(r, c)]
}

// Size is the number of cells
func (g *Grid) Size() int {
	return g.Rows * g.Cols
}

// MissingCount returns the number of missing cells
func (g *Grid) MissingCount() int {
	n := 0
	for _, ok := range g.Valid {
		if !ok {
			n++
		}
	}
	return n
}

// MissingRatio returns the fraction of missing cells, 0 for an empty grid
func (g *Grid) MissingRatio() float64 {
	if g.Size() == 0 {
		return 0
	}
	return float64(g.MissingCount()) / float64(g.Size())
}

// SameShape reports whether both grids have identical dimensions
func (g *Grid) SameShape(o *Grid) bool {
	return o != nil && g.Rows == o.Rows && g.Cols == o.Cols
}

// Clone returns a deep copy of the grid
func (g *Grid) Clone() *Grid {
	out := &Grid{
		Rows:   g.Rows,
		Cols:   g.Cols,
		Values: make([]float64, len(g.Values)),
		Valid:  make([]bool, len(g.Valid)),
	}
	copy(out.Values, g.Values)
	copy(out.Valid, g.Valid)
	return out
}

// NaNValues returns a copy of the values with NaN for every missing cell,
// the representation used by raster files.
func (g *Grid) NaNValues() []float64 {
	out := make([]float64, len(g.Values))
	for i, v := range g.Values {
		if g.Valid[i] {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// ValidValues returns the values of all valid cells in row-major order
func (g *Grid) ValidValues() []float64 {
	out := make([]float64, 0, len(g.Values))
	for i, v := range g.Values {
		if g.Valid[i] {
			out = append(out, v)
		}
	}
	return out
}

// Stack is the measurement stack built from N co-registered grids.
// Cell (r, c) holds its Depth measurements contiguously starting at
// (r*Cols+c)*Depth, ordered like Names.
type Stack struct {
	Rows  int
	Cols  int
	Depth int

	Values []float64
	Valid  []bool

	// Names identifies each layer, in stacking order
	Names []string
}

// Cell returns copies of the measurements and validity flags at (r, c)
func (s *Stack) Cell(r, c int) ([]float64, []bool) {
	start := (r*s.Cols + c) * s.Depth
	values := make([]float64, s.Depth)
	valid := make([]bool, s.Depth)
	copy(values, s.Values[start:start+s.Depth])
	copy(valid, s.Valid[start:start+s.Depth])
	return values, valid
}

// Support returns the number of valid measurements at (r, c)
func (s *Stack) Support(r, c int) int {
	start := (r*s.Cols + c) * s.Depth
	n := 0
	for _, ok := range s.Valid[start : start+s.Depth] {
		if ok {
			n++
		}
	}
	return n
}

// GeoReference binds grid indices to projected ground coordinates.
// The upper-left coordinates are those of the centre of cell (0, 0);
// northing decreases with row and easting increases with column.
type GeoReference struct {
	ULEasting   float64 `yaml:"ulEasting"`
	ULNorthing  float64 `yaml:"ulNorthing"`
	EResolution float64 `yaml:"eResolution"`
	NResolution float64 `yaml:"nResolution"`
	Rows        int     `yaml:"rows"`
	Cols        int     `yaml:"cols"`

	// Zone is the UTM zone number and Hemisphere is "N" or "S"
	Zone       int    `yaml:"zone"`
	Hemisphere string `yaml:"hemisphere"`
}

// LREasting is the easting of the centre of the last column
func (g GeoReference) LREasting() float64 {
	return g.ULEasting + float64(g.Cols-1)*g.EResolution
}

// LRNorthing is the northing of the centre of the last row
func (g GeoReference) LRNorthing() float64 {
	return g.ULNorthing - float64(g.Rows-1)*g.NResolution
}

// Bound returns the extent covered by cell centres
func (g GeoReference) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.ULEasting, g.LRNorthing()},
		Max: orb.Point{g.LREasting(), g.ULNorthing},
	}
}

// Compatible reports whether two references describe the same cell mapping
// within tol. Projection zone is only compared when both sides carry one.
func (g GeoReference) Compatible(o GeoReference, tol float64) bool {
	if g.Rows != o.Rows || g.Cols != o.Cols {
		return false
	}
	if math.Abs(g.ULEasting-o.ULEasting) > tol || math.Abs(g.ULNorthing-o.ULNorthing) > tol {
		return false
	}
	if math.Abs(g.EResolution-o.EResolution) > tol || math.Abs(g.NResolution-o.NResolution) > tol {
		return false
	}
	if g.Zone != 0 && o.Zone != 0 && (g.Zone != o.Zone || g.Hemisphere != o.Hemisphere) {
		return false
	}
	return true
}

// PointRecord is one emitted 3D point with its colour
type PointRecord struct {
	Easting   float64
	Northing  float64
	Elevation float64
	R, G, B   uint8
}
