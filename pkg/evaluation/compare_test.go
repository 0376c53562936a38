package evaluation

import (
	"errors"
	"math"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsmfusion/internal/models"
)

var nan = math.NaN()

func geoRef(rows, cols int) models.GeoReference {
	return models.GeoReference{
		ULEasting:   300000,
		ULNorthing:  4500000,
		EResolution: 0.5,
		NResolution: 0.5,
		Rows:        rows,
		Cols:        cols,
		Zone:        17,
		Hemisphere:  "N",
	}
}

func TestSignedError(t *testing.T) {
	test := models.GridFromValues(2, 2, []float64{11, nan, 9, 5})
	truth := models.GridFromValues(2, 2, []float64{10, 4, nan, 5.5})

	diff, err := SignedError(test, truth)
	require.NoError(t, err)

	if d := cmp.Diff([]bool{true, false, false, true}, diff.Valid); d != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", d)
	}
	assert.Equal(t, 1.0, diff.Values[0])
	assert.Equal(t, -0.5, diff.Values[3])
	assert.True(t, math.IsNaN(diff.Values[1]))
}

func TestSignedErrorShapeMismatch(t *testing.T) {
	_, err := SignedError(models.NewGrid(2, 2), models.NewGrid(2, 3))
	assert.True(t, errors.Is(err, models.ErrShapeMismatch))

	_, err = SignedError(nil, models.NewGrid(2, 3))
	assert.True(t, errors.Is(err, models.ErrShapeMismatch))
}

func TestCompare(t *testing.T) {
	truth := models.GridFromValues(2, 3, []float64{
		10, 10, 10,
		10, 10, nan,
	})
	test := models.GridFromValues(2, 3, []float64{
		10.5, 9, 13,
		nan, 10.25, 42,
	})

	rep, err := Compare(test, truth, geoRef(2, 3), geoRef(2, 3), 1.0)
	require.NoError(t, err)

	// signed errors: 0.5, -1, 3, 0.25
	assert.Equal(t, 4, rep.Compared)
	assert.Equal(t, 5, rep.TruthValid)
	assert.InDelta(t, 0.375, rep.MedianSignedError, 1e-12)
	assert.InDelta(t, 0.75, rep.MedianAbsError, 1e-12)
	assert.InDelta(t, 1.1875, rep.MeanAbsError, 1e-12)
	// |err| < 1 holds for 0.5 and 0.25 only; the missing test cell counts against
	assert.InDelta(t, 2.0/5.0, rep.Completeness, 1e-12)
	assert.Equal(t, 1.0, rep.Threshold)
}

func TestCompareDefaultsThreshold(t *testing.T) {
	g := models.GridFromValues(1, 2, []float64{1, 2})
	rep, err := Compare(g, g, geoRef(1, 2), geoRef(1, 2), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, rep.Threshold)
	assert.Equal(t, 1.0, rep.Completeness)
	assert.Equal(t, 0.0, rep.MedianAbsError)
}

func TestCompareNoOverlap(t *testing.T) {
	test := models.GridFromValues(1, 2, []float64{nan, 1})
	truth := models.GridFromValues(1, 2, []float64{1, nan})

	rep, err := Compare(test, truth, geoRef(1, 2), geoRef(1, 2), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Compared)
	assert.Equal(t, 0.0, rep.Completeness)
	assert.True(t, math.IsNaN(rep.MedianSignedError))
}

func TestCompareGeoMismatch(t *testing.T) {
	g := models.GridFromValues(1, 2, []float64{1, 2})
	shifted := geoRef(1, 2)
	shifted.ULEasting += 10

	_, err := Compare(g, g, geoRef(1, 2), shifted, 1)
	assert.True(t, errors.Is(err, models.ErrShapeMismatch))
}

func TestSaveMaps(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	truth := models.GridFromValues(2, 2, []float64{1, 2, 3, nan})
	test := models.GridFromValues(2, 2, []float64{1.5, 2, 2, 7})

	paths, err := SaveMaps(t.TempDir(), "fused", test, truth, 90)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	_, err = SaveMaps(t.TempDir(), "fused", test, models.NewGrid(2, 2), 90)
	assert.Error(t, err)
}
