// Package evaluation compares a fused surface model against ground truth.
package evaluation

import (
	"fmt"
	"image"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	"dsmfusion/internal/models"
	"dsmfusion/pkg/visualization"
)

// DefaultThreshold is the absolute error below which a cell counts as complete
const DefaultThreshold = 1.0

// ErrorMapLimit is the signed error in metres at which error maps saturate
const ErrorMapLimit = 1.5

// Report summarizes the agreement of a test surface with ground truth
type Report struct {
	MedianSignedError float64 `yaml:"median_signed_error"`
	MedianAbsError    float64 `yaml:"median_abs_error"`
	MeanAbsError      float64 `yaml:"mean_abs_error"`

	// Completeness is the share of valid truth cells whose test value lies
	// within the threshold
	Completeness float64 `yaml:"completeness"`

	Compared   int     `yaml:"compared"`
	TruthValid int     `yaml:"truth_valid"`
	Threshold  float64 `yaml:"threshold"`
}

// SignedError returns test - truth per cell. A cell is missing when either
// side is missing.
func SignedError(test, truth *models.Grid) (*models.Grid, error) {
	if test == nil || truth == nil || !test.SameShape(truth) {
		return nil, fmt.Errorf("%w: test and truth grids differ in shape", models.ErrShapeMismatch)
	}
	diff := models.NewGrid(truth.Rows, truth.Cols)
	for i := range diff.Values {
		if test.Valid[i] && truth.Valid[i] {
			diff.Values[i] = test.Values[i] - truth.Values[i]
			diff.Valid[i] = true
		}
	}
	return diff, nil
}

// Compare measures test against truth. Both grids must cover the same
// footprint; test cells missing where truth is valid count against
// completeness.
func Compare(test, truth *models.Grid, testGeo, truthGeo models.GeoReference, threshold float64) (Report, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if !testGeo.Compatible(truthGeo, 1e-6) {
		return Report{}, fmt.Errorf("%w: test and truth are georeferenced differently", models.ErrShapeMismatch)
	}
	diff, err := SignedError(test, truth)
	if err != nil {
		return Report{}, err
	}

	signed := diff.ValidValues()
	abs := make([]float64, len(signed))
	complete := 0
	for i, d := range signed {
		abs[i] = math.Abs(d)
		if abs[i] < threshold {
			complete++
		}
	}

	rep := Report{
		Compared:   len(signed),
		TruthValid: truth.Size() - truth.MissingCount(),
		Threshold:  threshold,
	}
	if rep.TruthValid > 0 {
		rep.Completeness = float64(complete) / float64(rep.TruthValid)
	}
	if len(signed) == 0 {
		rep.MedianSignedError = math.NaN()
		rep.MedianAbsError = math.NaN()
		rep.MeanAbsError = math.NaN()
		return rep, nil
	}
	rep.MeanAbsError = stat.Mean(abs, nil)
	rep.MedianSignedError = models.Median(signed)
	rep.MedianAbsError = models.Median(abs)
	return rep, nil
}

// SaveMaps writes the height maps of truth and test on the truth's range,
// with test masked where truth is missing, and the signed error map.
// It returns the paths written.
func SaveMaps(dir, name string, test, truth *models.Grid, quality int) ([]string, error) {
	lo, hi, ok := visualization.ValueRange(truth)
	if !ok {
		return nil, fmt.Errorf("truth: %w", visualization.ErrEmptyGrid)
	}

	diff, err := SignedError(test, truth)
	if err != nil {
		return nil, err
	}
	masked := test.Clone()
	for i, v := range truth.Valid {
		if !v {
			masked.Values[i] = math.NaN()
			masked.Valid[i] = false
		}
	}

	truthImg, err := visualization.RenderHeightMap(truth, visualization.RenderOptions{Min: lo, Max: hi})
	if err != nil {
		return nil, err
	}
	testImg, err := visualization.RenderHeightMap(masked, visualization.RenderOptions{Min: lo, Max: hi})
	if err != nil {
		return nil, err
	}
	errImg, err := visualization.RenderErrorMap(diff, ErrorMapLimit)
	if err != nil {
		return nil, err
	}

	outputs := []struct {
		path string
		img  image.Image
	}{
		{filepath.Join(dir, "ground_truth.jpg"), truthImg},
		{filepath.Join(dir, name+".jpg"), testImg},
		{filepath.Join(dir, name+".error.jpg"), errImg},
	}
	var paths []string
	for _, o := range outputs {
		if err := visualization.SaveJPEG(o.path, o.img, quality); err != nil {
			return paths, err
		}
		paths = append(paths, o.path)
	}
	return paths, nil
}
