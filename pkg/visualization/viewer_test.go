package visualization

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"dsmfusion/internal/models"
)

func gradientGrid(rows, cols int) *models.Grid {
	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = float64(i)
	}
	return models.GridFromValues(rows, cols, values)
}

// TestRenderHeightMap verifies image size, missing colour and range ends
func TestRenderHeightMap(t *testing.T) {
	grid := gradientGrid(4, 5)
	grid.SetMissing(1, 2)

	img, err := RenderHeightMap(grid, RenderOptions{})
	if err != nil {
		t.Fatalf("Failed to render height map: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 5 || bounds.Dy() != 4 {
		t.Errorf("Expected 5x4 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	if got := img.RGBAAt(2, 1); got != (color.RGBA{A: 255}) {
		t.Errorf("Expected missing cell to be black, got %v", got)
	}

	// The black body map runs from dark to bright
	low := img.RGBAAt(0, 0)
	high := img.RGBAAt(4, 3)
	if luma(low) >= luma(high) {
		t.Errorf("Expected minimum %v to be darker than maximum %v", low, high)
	}
}

// TestRenderHeightMapFlat verifies a uniform grid renders without error
func TestRenderHeightMapFlat(t *testing.T) {
	grid := models.GridFromValues(2, 2, []float64{7, 7, 7, 7})
	img, err := RenderHeightMap(grid, RenderOptions{})
	if err != nil {
		t.Fatalf("Failed to render flat grid: %v", err)
	}
	first := img.RGBAAt(0, 0)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if img.RGBAAt(x, y) != first {
				t.Errorf("Expected uniform colour, pixel (%d,%d) is %v", x, y, img.RGBAAt(x, y))
			}
		}
	}
}

// TestRenderHeightMapErrors verifies the degenerate inputs
func TestRenderHeightMapErrors(t *testing.T) {
	if _, err := RenderHeightMap(nil, RenderOptions{}); err == nil {
		t.Error("Expected error for nil grid, got nil")
	}

	empty := models.NewGrid(2, 2)
	if _, err := RenderHeightMap(empty, RenderOptions{}); err != ErrEmptyGrid {
		t.Errorf("Expected ErrEmptyGrid, got %v", err)
	}
}

// TestColorMap verifies the named maps
func TestColorMap(t *testing.T) {
	for _, name := range []string{"", BlackBody, Kindlmann, Gray} {
		cmap, err := ColorMap(name)
		if err != nil {
			t.Fatalf("ColorMap(%q) failed: %v", name, err)
		}
		if cmap == nil {
			t.Fatalf("ColorMap(%q) returned nil", name)
		}
	}

	if _, err := ColorMap("viridis"); err == nil {
		t.Error("Expected error for unknown color map, got nil")
	}

	gray, _ := ColorMap(Gray)
	img, err := RenderHeightMap(models.GridFromValues(1, 2, []float64{0, 1}), RenderOptions{ColorMap: gray})
	if err != nil {
		t.Fatalf("Failed to render gray map: %v", err)
	}
	if black := img.RGBAAt(0, 0); black.R > 5 {
		t.Errorf("Expected near black at minimum, got %v", black)
	}
	if white := img.RGBAAt(1, 0); white.R < 250 {
		t.Errorf("Expected near white at maximum, got %v", white)
	}
}

// TestRenderErrorMap verifies that zero error sits between the two extremes
func TestRenderErrorMap(t *testing.T) {
	diff := models.GridFromValues(1, 4, []float64{-2, 0, 2, math.NaN()})
	img, err := RenderErrorMap(diff, 1)
	if err != nil {
		t.Fatalf("Failed to render error map: %v", err)
	}

	under, over := img.RGBAAt(0, 0), img.RGBAAt(2, 0)
	if under.B <= under.R {
		t.Errorf("Expected negative error to be blue, got %v", under)
	}
	if over.R <= over.B {
		t.Errorf("Expected positive error to be red, got %v", over)
	}
	if got := img.RGBAAt(3, 0); got != (color.RGBA{A: 255}) {
		t.Errorf("Expected missing cell to be black, got %v", got)
	}

	if _, err := RenderErrorMap(diff, 0); err == nil {
		t.Error("Expected error for zero limit, got nil")
	}
}

// TestRenderColorBar verifies the legend layout
func TestRenderColorBar(t *testing.T) {
	cmap, _ := ColorMap(BlackBody)
	img, err := RenderColorBar(cmap, 100, 250, 60, 120)
	if err != nil {
		t.Fatalf("Failed to render color bar: %v", err)
	}

	if luma(img.RGBAAt(0, 0)) <= luma(img.RGBAAt(0, 119)) {
		t.Error("Expected the top of the bar to be brighter than the bottom")
	}

	// Labels draw dark pixels onto the white half
	dark := 0
	for y := 0; y < 120; y++ {
		for x := 22; x < 60; x++ {
			if luma(img.RGBAAt(x, y)) < 128 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("Expected labels next to the bar")
	}

	if _, err := RenderColorBar(cmap, 0, 1, 2, 2); err == nil {
		t.Error("Expected error for a too narrow bar, got nil")
	}
}

// TestSaveAndLoadImage verifies JPEG output can be read back
func TestSaveAndLoadImage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	img, err := RenderHeightMap(gradientGrid(8, 6), RenderOptions{})
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	filename := filepath.Join(t.TempDir(), "height.jpg")
	if err := SaveJPEG(filename, img, 95); err != nil {
		t.Fatalf("Failed to save JPEG: %v", err)
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		t.Fatalf("Saved file does not exist: %s", filename)
	}

	loaded, err := LoadImage(filename)
	if err != nil {
		t.Fatalf("Failed to load JPEG: %v", err)
	}
	if loaded.Bounds() != image.Rect(0, 0, 6, 8) {
		t.Errorf("Expected bounds %v, got %v", image.Rect(0, 0, 6, 8), loaded.Bounds())
	}

	if _, err := LoadImage(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func luma(c color.RGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}
