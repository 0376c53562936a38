package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"

	"dsmfusion/internal/models"
)

// ErrEmptyGrid is returned when there is nothing to render
var ErrEmptyGrid = errors.New("grid has no valid cells")

// Color map names accepted by ColorMap
const (
	BlackBody = "blackbody"
	Kindlmann = "kindlmann"
	Gray      = "gray"
)

// ColorMap returns a fresh sequential color map by name
func ColorMap(name string) (palette.ColorMap, error) {
	switch name {
	case "", BlackBody:
		return moreland.ExtendedBlackBody(), nil
	case Kindlmann:
		return moreland.Kindlmann(), nil
	case Gray:
		return moreland.NewLuminance([]color.Color{color.Black, color.White})
	}
	return nil, fmt.Errorf("unknown color map %q", name)
}

// RenderOptions controls RenderHeightMap
type RenderOptions struct {
	// ColorMap defaults to the extended black body map
	ColorMap palette.ColorMap

	// Min and Max fix the value range. When both are zero the range of the
	// valid cells is used.
	Min, Max float64

	// Missing is the colour of missing cells, black when nil
	Missing color.Color
}

// RenderHeightMap renders grid as an image with one pixel per cell, pixel
// (c, r) showing cell (r, c).
func RenderHeightMap(grid *models.Grid, opts RenderOptions) (*image.RGBA, error) {
	if grid == nil || grid.Size() == 0 {
		return nil, fmt.Errorf("render height map: %w", models.ErrDegenerateGeometry)
	}

	cmap := opts.ColorMap
	if cmap == nil {
		cmap = moreland.ExtendedBlackBody()
	}
	missing := opts.Missing
	if missing == nil {
		missing = color.Black
	}

	lo, hi := opts.Min, opts.Max
	if lo == 0 && hi == 0 {
		var ok bool
		lo, hi, ok = ValueRange(grid)
		if !ok {
			return nil, ErrEmptyGrid
		}
	}
	setRange(cmap, lo, hi)

	img := image.NewRGBA(image.Rect(0, 0, grid.Cols, grid.Rows))
	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			v, ok := grid.At(r, c)
			if !ok {
				img.Set(c, r, missing)
				continue
			}
			img.Set(c, r, colorAt(cmap, v))
		}
	}
	return img, nil
}

// RenderErrorMap renders signed differences with a diverging blue-red map
// saturating at +-limit. Missing cells are drawn black.
func RenderErrorMap(diff *models.Grid, limit float64) (*image.RGBA, error) {
	if limit <= 0 || math.IsNaN(limit) {
		return nil, fmt.Errorf("error map limit must be positive, got %v", limit)
	}
	return RenderHeightMap(diff, RenderOptions{
		ColorMap: moreland.SmoothBlueRed(),
		Min:      -limit,
		Max:      limit,
	})
}

// RenderColorBar draws a vertical legend for cmap over [min, max] with the
// maximum at the top. The bar fills the left third of the image and the
// labels the rest.
func RenderColorBar(cmap palette.ColorMap, min, max float64, width, height int) (*image.RGBA, error) {
	if width < 3 || height < 2 {
		return nil, fmt.Errorf("color bar must be at least 3x2, got %dx%d", width, height)
	}
	setRange(cmap, min, max)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	barWidth := width / 3
	lo, hi := cmap.Min(), cmap.Max()
	for y := 0; y < height; y++ {
		v := hi - (hi-lo)*float64(y)/float64(height-1)
		c := colorAt(cmap, v)
		for x := 0; x < barWidth; x++ {
			img.Set(x, y, c)
		}
	}

	face := basicfont.Face7x13
	drawText(img, face, barWidth+2, face.Ascent, formatValue(max))
	drawText(img, face, barWidth+2, height-face.Descent, formatValue(min))
	return img, nil
}

// ValueRange returns the minimum and maximum of the valid cells
func ValueRange(grid *models.Grid) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i, v := range grid.Values {
		if !grid.Valid[i] {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	return lo, hi, ok
}

// SaveJPEG saves img as a JPEG image
func SaveJPEG(filename string, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: quality}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadImage decodes a JPEG or PNG image from disk
func LoadImage(filename string) (image.Image, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return img, nil
}

// setRange configures cmap for [lo, hi]. Moreland maps reject an empty
// range, so a flat grid is widened by one unit.
func setRange(cmap palette.ColorMap, lo, hi float64) {
	if hi <= lo {
		hi = lo + 1
	}
	cmap.SetMax(hi)
	cmap.SetMin(lo)
}

func colorAt(cmap palette.ColorMap, v float64) color.RGBA {
	v = math.Max(cmap.Min(), math.Min(cmap.Max(), v))
	c, err := cmap.At(v)
	if err != nil {
		return color.RGBA{A: 255}
	}
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func drawText(img *image.RGBA, face font.Face, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
