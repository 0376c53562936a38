// Package raster reads and writes single-band elevation rasters in the
// Esri ASCII grid format, optionally gzip-compressed.
//
// Cell coordinates follow the GeoReference convention: the origin is the
// centre of the upper-left cell. Files are written with xllcenter/yllcenter
// so that the origin survives a write/read cycle unchanged; files using the
// xllcorner/yllcorner variant are converted on read.
package raster

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"dsmfusion/internal/models"
)

// ErrFormat is returned for malformed raster files
var ErrFormat = errors.New("malformed raster")

// DefaultNoData is the sentinel written for missing cells unless a valid
// cell holds that value
const DefaultNoData = -9999.0

// noDataFor returns a sentinel that no valid cell of grid holds
func noDataFor(grid *models.Grid) float64 {
	lo, clash := math.Inf(1), false
	for i, v := range grid.Values {
		if !grid.Valid[i] {
			continue
		}
		lo = math.Min(lo, v)
		clash = clash || v == DefaultNoData
	}
	if !clash {
		return DefaultNoData
	}
	nd := math.Floor(lo) - 1
	if nd >= lo {
		nd = math.Nextafter(lo, math.Inf(-1))
	}
	return nd
}

type header struct {
	ncols, nrows   int
	xll, yll       float64
	center         bool
	haveX, haveY   bool
	dx, dy         float64
	noData         float64
	haveNoData     bool
	firstDataToken string
}

// Read parses an Esri ASCII grid. Zone and hemisphere are left empty, they
// live in the sidecar read by Load.
func Read(r io.Reader) (*models.Grid, models.GeoReference, error) {
	var geo models.GeoReference

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	h, err := readHeader(sc)
	if err != nil {
		return nil, geo, err
	}

	grid := models.NewGrid(h.nrows, h.ncols)
	n := h.nrows * h.ncols
	i := 0
	parse := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("%w: cell %d: %v", ErrFormat, i, err)
		}
		if !(h.haveNoData && v == h.noData) && !math.IsNaN(v) && !math.IsInf(v, 0) {
			grid.Values[i] = v
			grid.Valid[i] = true
		}
		i++
		return nil
	}
	if h.firstDataToken != "" {
		if err := parse(h.firstDataToken); err != nil {
			return nil, geo, err
		}
	}
	for i < n && sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, geo, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, geo, fmt.Errorf("reading raster data: %w", err)
	}
	if i != n {
		return nil, geo, fmt.Errorf("%w: expected %d cells, found %d", ErrFormat, n, i)
	}

	geo = models.GeoReference{
		Rows:        h.nrows,
		Cols:        h.ncols,
		EResolution: h.dx,
		NResolution: h.dy,
	}
	if h.center {
		geo.ULEasting = h.xll
		geo.ULNorthing = h.yll + float64(h.nrows-1)*h.dy
	} else {
		geo.ULEasting = h.xll + h.dx/2
		geo.ULNorthing = h.yll + float64(h.nrows)*h.dy - h.dy/2
	}

	return grid, geo, nil
}

func readHeader(sc *bufio.Scanner) (header, error) {
	var h header
	var haveCols, haveRows, haveRes bool
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter",
			"cellsize", "dx", "dy", "nodata_value":
		default:
			// first data value; the header is complete
			h.firstDataToken = sc.Text()
			return h, checkHeader(h, haveCols, haveRows, haveRes)
		}
		if !sc.Scan() {
			return h, fmt.Errorf("%w: header field %s has no value", ErrFormat, key)
		}
		val := sc.Text()
		var err error
		switch key {
		case "ncols":
			h.ncols, err = strconv.Atoi(val)
			haveCols = true
		case "nrows":
			h.nrows, err = strconv.Atoi(val)
			haveRows = true
		case "xllcorner", "xllcenter":
			h.xll, err = strconv.ParseFloat(val, 64)
			h.center = key == "xllcenter"
			h.haveX = true
		case "yllcorner", "yllcenter":
			h.yll, err = strconv.ParseFloat(val, 64)
			h.haveY = true
		case "cellsize":
			h.dx, err = strconv.ParseFloat(val, 64)
			h.dy = h.dx
			haveRes = true
		case "dx":
			h.dx, err = strconv.ParseFloat(val, 64)
			haveRes = true
		case "dy":
			h.dy, err = strconv.ParseFloat(val, 64)
		case "nodata_value":
			h.noData, err = strconv.ParseFloat(val, 64)
			h.haveNoData = true
		}
		if err != nil {
			return h, fmt.Errorf("%w: header field %s: %v", ErrFormat, key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return h, fmt.Errorf("reading raster header: %w", err)
	}
	return h, checkHeader(h, haveCols, haveRows, haveRes)
}

func checkHeader(h header, haveCols, haveRows, haveRes bool) error {
	if !haveCols || !haveRows {
		return fmt.Errorf("%w: ncols and nrows are required", ErrFormat)
	}
	if h.ncols < 0 || h.nrows < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrFormat, h.nrows, h.ncols)
	}
	if !h.haveX || !h.haveY {
		return fmt.Errorf("%w: lower-left coordinates are required", ErrFormat)
	}
	if !haveRes || h.dx <= 0 || h.dy <= 0 {
		return fmt.Errorf("%w: cell size must be positive", ErrFormat)
	}
	return nil
}

// Encode writes grid as an Esri ASCII grid using geo for the header.
// Per-axis resolutions that differ are written as dx/dy.
func Encode(w io.Writer, grid *models.Grid, geo models.GeoReference) error {
	if grid.Rows != geo.Rows || grid.Cols != geo.Cols {
		return fmt.Errorf("grid is %dx%d but georeference describes %dx%d",
			grid.Rows, grid.Cols, geo.Rows, geo.Cols)
	}
	bw := bufio.NewWriter(w)
	noData := noDataFor(grid)

	fmt.Fprintf(bw, "ncols %d\n", grid.Cols)
	fmt.Fprintf(bw, "nrows %d\n", grid.Rows)
	fmt.Fprintf(bw, "xllcenter %s\n", formatFloat(geo.ULEasting))
	fmt.Fprintf(bw, "yllcenter %s\n", formatFloat(geo.LRNorthing()))
	if geo.EResolution == geo.NResolution {
		fmt.Fprintf(bw, "cellsize %s\n", formatFloat(geo.EResolution))
	} else {
		fmt.Fprintf(bw, "dx %s\n", formatFloat(geo.EResolution))
		fmt.Fprintf(bw, "dy %s\n", formatFloat(geo.NResolution))
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(noData))

	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			v, ok := grid.At(r, c)
			if !ok {
				v = noData
			}
			bw.WriteString(formatFloat(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Load reads the raster at path, decompressing .gz files, and fills zone
// and hemisphere from the sidecar when one exists.
func Load(path string) (*models.Grid, models.GeoReference, error) {
	var geo models.GeoReference

	file, err := os.Open(path)
	if err != nil {
		return nil, geo, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, geo, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
		}
		defer gz.Close()
		r = gz
	}

	grid, geo, err := Read(r)
	if err != nil {
		return nil, geo, fmt.Errorf("%s: %w", path, err)
	}

	side, err := readSidecar(path)
	if err != nil {
		return nil, geo, err
	}
	geo.Zone = side.Zone
	geo.Hemisphere = side.Hemisphere

	return grid, geo, nil
}

// Write stores grid at path (gzip-compressed when the name ends in .gz)
// together with its projection sidecar, and returns the georeference that
// was written so callers can project cells consistently with the file.
func Write(path string, grid *models.Grid, geo models.GeoReference) (models.GeoReference, error) {
	file, err := os.Create(path)
	if err != nil {
		return geo, err
	}

	var w io.Writer = file
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(file)
		w = gz
	}

	if err := Encode(w, grid, geo); err != nil {
		file.Close()
		return geo, fmt.Errorf("writing %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			file.Close()
			return geo, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := file.Close(); err != nil {
		return geo, err
	}

	if err := writeSidecar(path, sidecar{Zone: geo.Zone, Hemisphere: geo.Hemisphere}); err != nil {
		return geo, err
	}
	return geo, nil
}
