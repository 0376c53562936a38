// Package geo maps raster cells to projected ground coordinates.
//
// Cell (0, 0) is centred on the georeference's upper-left coordinate;
// easting grows with the column index and northing shrinks with the row
// index, each scaled by its own resolution. The raster package writes files
// with the same convention, so coordinates computed here stay consistent
// with any raster written for the same georeference.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"

	"dsmfusion/internal/models"
	"dsmfusion/pkg/config"
)

// Project returns the (easting, northing) of the centre of cell (r, c)
func Project(r, c int, g models.GeoReference) orb.Point {
	return orb.Point{
		g.ULEasting + float64(c)*g.EResolution,
		g.ULNorthing - float64(r)*g.NResolution,
	}
}

// Axes returns the easting of every column and the northing of every row
func Axes(g models.GeoReference) (eastings, northings []float64) {
	eastings = make([]float64, g.Cols)
	for c := range eastings {
		eastings[c] = g.ULEasting + float64(c)*g.EResolution
	}
	northings = make([]float64, g.Rows)
	for r := range northings {
		northings[r] = g.ULNorthing - float64(r)*g.NResolution
	}
	return eastings, northings
}

// FromAOI builds the georeference described by an area-of-interest
// descriptor that carries a footprint
func FromAOI(aoi config.AOI) (models.GeoReference, error) {
	if !aoi.HasBounds() {
		return models.GeoReference{}, fmt.Errorf("area of interest %s has no footprint", aoi.Projection())
	}
	return models.GeoReference{
		ULEasting:   *aoi.ULEasting,
		ULNorthing:  *aoi.ULNorthing,
		EResolution: aoi.Resolution,
		NResolution: aoi.Resolution,
		Rows:        aoi.Height,
		Cols:        aoi.Width,
		Zone:        aoi.ZoneNumber,
		Hemisphere:  aoi.Hemisphere,
	}, nil
}
