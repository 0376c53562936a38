package raster

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsmfusion/internal/models"
)

func sampleGrid() (*models.Grid, models.GeoReference) {
	nan := math.NaN()
	grid := models.GridFromValues(2, 3, []float64{
		10.5, 11, nan,
		12.25, -3, 14,
	})
	geo := models.GeoReference{
		ULEasting:   435000.25,
		ULNorthing:  3355000.75,
		EResolution: 0.5,
		NResolution: 0.5,
		Rows:        2,
		Cols:        3,
		Zone:        17,
		Hemisphere:  "N",
	}
	return grid, geo
}

func TestReadCornerVariant(t *testing.T) {
	data := `ncols 2
nrows 2
xllcorner 100
yllcorner 200
cellsize 2
NODATA_value -9999
1 2
-9999 4
`
	grid, geo, err := Read(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 2, grid.Rows)
	assert.Equal(t, 2, grid.Cols)
	assert.False(t, grid.IsValid(1, 0))
	v, ok := grid.At(1, 1)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	// cell centre of (0, 0) is half a cell in from the upper-left corner
	assert.Equal(t, 101.0, geo.ULEasting)
	assert.Equal(t, 203.0, geo.ULNorthing)
	assert.Equal(t, 2.0, geo.EResolution)
	assert.Equal(t, 2.0, geo.NResolution)
}

func TestReadNaNTokens(t *testing.T) {
	data := "ncols 3\nnrows 1\nxllcenter 0\nyllcenter 0\ncellsize 1\n1 nan 3\n"
	grid, _, err := Read(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, grid.MissingCount())
	assert.False(t, grid.IsValid(0, 1))
}

func TestReadErrors(t *testing.T) {
	testCases := map[string]string{
		"MissingDims":   "xllcenter 0\nyllcenter 0\ncellsize 1\n",
		"ShortData":     "ncols 2\nnrows 2\nxllcenter 0\nyllcenter 0\ncellsize 1\n1 2 3\n",
		"BadValue":      "ncols 1\nnrows 1\nxllcenter 0\nyllcenter 0\ncellsize 1\nabc\n",
		"ZeroCellSize":  "ncols 1\nnrows 1\nxllcenter 0\nyllcenter 0\ncellsize 0\n1\n",
		"MissingOrigin": "ncols 1\nnrows 1\ncellsize 1\n1\n",
	}
	for name, data := range testCases {
		data := data
		t.Run(name, func(t *testing.T) {
			_, _, err := Read(strings.NewReader(data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
		})
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"dsm.asc", "dsm.asc.gz"} {
		name := name
		t.Run(name, func(t *testing.T) {
			grid, geo := sampleGrid()
			path := filepath.Join(t.TempDir(), name)

			written, err := Write(path, grid, geo)
			require.NoError(t, err)
			assert.Equal(t, geo, written)

			got, gotGeo, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, grid.Valid, got.Valid)
			assert.Equal(t, grid.ValidValues(), got.ValidValues())
			assert.True(t, geo.Compatible(gotGeo, 1e-9))
			assert.Equal(t, 17, gotGeo.Zone)
			assert.Equal(t, "N", gotGeo.Hemisphere)
		})
	}
}

func TestWriteKeepsCellsEqualToDefaultNoData(t *testing.T) {
	grid := models.GridFromValues(2, 2, []float64{
		DefaultNoData, 5,
		math.NaN(), 6,
	})
	geo := models.GeoReference{ULEasting: 10, ULNorthing: 20, EResolution: 1, NResolution: 1, Rows: 2, Cols: 2}
	path := filepath.Join(t.TempDir(), "low.asc")
	_, err := Write(path, grid, geo)
	require.NoError(t, err)

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, true}, loaded.Valid)
	v, ok := loaded.At(0, 0)
	require.True(t, ok)
	assert.Equal(t, DefaultNoData, v)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "NODATA_value -10000\n")
}

func TestNoDataForAvoidsValidCells(t *testing.T) {
	nan := math.NaN()
	tests := map[string]struct {
		values []float64
		want   float64
	}{
		"default free":              {[]float64{1, 2, nan}, DefaultNoData},
		"default only when missing": {[]float64{nan, 3}, DefaultNoData},
		"clash":                     {[]float64{DefaultNoData, 7}, -10000},
		"clash below":               {[]float64{DefaultNoData, -12345.5}, -12347},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			grid := models.GridFromValues(1, len(tt.values), tt.values)
			assert.Equal(t, tt.want, noDataFor(grid))
		})
	}

	huge := models.GridFromValues(1, 2, []float64{DefaultNoData, -1e300})
	nd := noDataFor(huge)
	assert.Less(t, nd, -1e300)
}

func TestWritePerAxisResolution(t *testing.T) {
	grid, geo := sampleGrid()
	geo.NResolution = 0.75
	path := filepath.Join(t.TempDir(), "dsm.asc")

	_, err := Write(path, grid, geo)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dx 0.5\n")
	assert.Contains(t, string(data), "dy 0.75\n")

	_, gotGeo, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, geo.ULNorthing, gotGeo.ULNorthing, 1e-9)
	assert.Equal(t, 0.75, gotGeo.NResolution)
}

func TestEncodeShapeMismatch(t *testing.T) {
	grid, geo := sampleGrid()
	geo.Rows = 5
	var sb strings.Builder
	assert.Error(t, Encode(&sb, grid, geo))
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "none.asc"))
	assert.True(t, os.IsNotExist(err) || errors.Is(err, os.ErrNotExist))
}

func TestListInputsLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"view_10.asc", "view_02.asc", "view_1.asc", "notes.txt", "view_02.asc" + SidecarSuffix} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.asc"), 0755))

	paths, err := ListInputs(dir, "*.asc*")
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"view_02.asc", "view_1.asc", "view_10.asc"}, names)
}
