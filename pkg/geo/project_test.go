package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsmfusion/internal/models"
	"dsmfusion/pkg/config"
)

var testGeo = models.GeoReference{
	ULEasting:   435012.3,
	ULNorthing:  3354998.7,
	EResolution: 0.3,
	NResolution: 0.5,
	Rows:        4,
	Cols:        5,
	Zone:        17,
	Hemisphere:  "N",
}

func TestProjectDirections(t *testing.T) {
	origin := Project(0, 0, testGeo)
	assert.Equal(t, orb.Point{testGeo.ULEasting, testGeo.ULNorthing}, origin)

	down := Project(1, 0, testGeo)
	assert.Less(t, down.Y(), origin.Y(), "northing decreases with row")
	assert.Equal(t, origin.X(), down.X())

	right := Project(0, 1, testGeo)
	assert.Greater(t, right.X(), origin.X(), "easting increases with column")
	assert.Equal(t, origin.Y(), right.Y())

	last := Project(testGeo.Rows-1, testGeo.Cols-1, testGeo)
	assert.InDelta(t, testGeo.LREasting(), last.X(), 1e-9)
	assert.InDelta(t, testGeo.LRNorthing(), last.Y(), 1e-9)
}

func TestProjectStepsByResolution(t *testing.T) {
	// stepping back one resolution from cell (1, 1) recovers the origin
	p11 := Project(1, 1, testGeo)
	back := orb.Point{p11.X() - testGeo.EResolution, p11.Y() + testGeo.NResolution}
	assert.InDelta(t, testGeo.ULEasting, back.X(), 1e-9)
	assert.InDelta(t, testGeo.ULNorthing, back.Y(), 1e-9)
}

func TestAxesMatchProject(t *testing.T) {
	eastings, northings := Axes(testGeo)
	require.Len(t, eastings, testGeo.Cols)
	require.Len(t, northings, testGeo.Rows)
	for r, n := range northings {
		for c, e := range eastings {
			assert.Equal(t, Project(r, c, testGeo), orb.Point{e, n})
		}
	}
}

func TestBoundContainsEveryCell(t *testing.T) {
	b := testGeo.Bound()
	for r := 0; r < testGeo.Rows; r++ {
		for c := 0; c < testGeo.Cols; c++ {
			assert.True(t, b.Contains(Project(r, c, testGeo)))
		}
	}
}

func TestFromAOI(t *testing.T) {
	ulE, ulN := 1000.0, 2000.0
	aoi := config.AOI{ZoneNumber: 33, Hemisphere: "S", ULEasting: &ulE, ULNorthing: &ulN, Width: 10, Height: 8, Resolution: 0.5}

	g, err := FromAOI(aoi)
	require.NoError(t, err)
	assert.Equal(t, 8, g.Rows)
	assert.Equal(t, 10, g.Cols)
	assert.Equal(t, 33, g.Zone)
	assert.Equal(t, orb.Point{1000, 2000}, Project(0, 0, g))

	_, err = FromAOI(config.AOI{ZoneNumber: 33, Hemisphere: "S"})
	assert.Error(t, err)
}
