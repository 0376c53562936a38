package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AOIFileName is the descriptor every work directory carries
const AOIFileName = "aoi.json"

// AOI is the area-of-interest descriptor of a work directory.
// Only the projection fields are required; the bounding box is optional
// and, when present, describes the fused raster's upper-left cell centre.
type AOI struct {
	ZoneNumber int    `yaml:"zone_number"`
	Hemisphere string `yaml:"hemisphere"`

	ULEasting  *float64 `yaml:"ul_easting,omitempty"`
	ULNorthing *float64 `yaml:"ul_northing,omitempty"`
	Width      int      `yaml:"width,omitempty"`
	Height     int      `yaml:"height,omitempty"`
	Resolution float64  `yaml:"resolution,omitempty"`
}

// HasBounds reports whether the descriptor carries a full raster footprint
func (a AOI) HasBounds() bool {
	return a.ULEasting != nil && a.ULNorthing != nil && a.Width > 0 && a.Height > 0 && a.Resolution > 0
}

// Projection renders the zone and hemisphere, e.g. "UTM 17N"
func (a AOI) Projection() string {
	return fmt.Sprintf("UTM %d%s", a.ZoneNumber, a.Hemisphere)
}

// Validate checks the projection fields
func (a *AOI) Validate() error {
	if a.ZoneNumber < 1 || a.ZoneNumber > 60 {
		return fmt.Errorf("%w: zone_number must be within 1..60, got %d", ErrInvalid, a.ZoneNumber)
	}
	a.Hemisphere = strings.ToUpper(strings.TrimSpace(a.Hemisphere))
	if a.Hemisphere != "N" && a.Hemisphere != "S" {
		return fmt.Errorf("%w: hemisphere must be N or S, got %q", ErrInvalid, a.Hemisphere)
	}
	return nil
}

// LoadAOI reads the descriptor from a work directory. JSON is a subset of
// YAML, so the same decoder handles aoi.json and hand-written YAML.
func LoadAOI(workDir string) (AOI, error) {
	var aoi AOI
	path := filepath.Join(workDir, AOIFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return aoi, fmt.Errorf("%w: area-of-interest descriptor not found: %s", ErrInvalid, path)
		}
		return aoi, fmt.Errorf("reading area-of-interest descriptor: %w", err)
	}
	if err := yaml.Unmarshal(data, &aoi); err != nil {
		return aoi, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}
	if err := aoi.Validate(); err != nil {
		return aoi, fmt.Errorf("%s: %w", path, err)
	}
	return aoi, nil
}
