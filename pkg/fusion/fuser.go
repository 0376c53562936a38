package fusion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"dsmfusion/internal/models"
	"dsmfusion/pkg/config"
	"dsmfusion/pkg/geo"
	"dsmfusion/pkg/pointcloud"
	"dsmfusion/pkg/raster"
	"dsmfusion/pkg/visualization"
)

// Params holds the parameters of one fusion run
type Params struct {
	// WorkDir is the run's work directory. It holds the area-of-interest
	// descriptor; relative input and output directories are resolved
	// against it.
	WorkDir string

	// Inputs overrides the configured raster list. The order is kept and
	// relative paths are resolved against WorkDir.
	Inputs []string

	// Config is the run configuration; nil means defaults
	Config *config.Config

	// AOI is the area-of-interest descriptor. When nil it is read from
	// WorkDir.
	AOI *config.AOI

	// Logger receives progress and data-quality diagnostics; nil discards
	Logger Logger

	// SaveIntermediaryResults also writes the unsmoothed consensus and the
	// height map of every input to IntermediaryDir
	SaveIntermediaryResults bool

	// IntermediaryDir defaults to "intermediary" under the output directory
	IntermediaryDir string
}

// Paths lists the files produced by a run
type Paths struct {
	Raster   string `yaml:"raster"`
	Sidecar  string `yaml:"sidecar,omitempty"`
	Image    string `yaml:"image"`
	ColorBar string `yaml:"colorBar"`
	PLY      string `yaml:"ply"`
	PCD      string `yaml:"pcd,omitempty"`
	Manifest string `yaml:"manifest,omitempty"`
}

// Result describes a completed run
type Result struct {
	RunID     string
	Consensus *models.Grid
	Geo       models.GeoReference
	Inputs    []InputStats
	Summary   Summary
	VoidRatio float64
	Points    int
	Paths     Paths
}

// Manifest is the YAML record of a run written next to its outputs
type Manifest struct {
	RunID      string              `yaml:"runId"`
	CreatedAt  time.Time           `yaml:"createdAt"`
	Projection string              `yaml:"projection"`
	Geo        models.GeoReference `yaml:"geo"`
	Inputs     []InputStats        `yaml:"inputs"`
	Summary    Summary             `yaml:"summary"`
	VoidRatio  float64             `yaml:"voidRatio"`
	Points     int                 `yaml:"points"`
	Outputs    Paths               `yaml:"outputs"`
}

// Fuser runs the fusion pipeline: it stacks the per-view rasters, reduces
// them to a consensus surface, smooths it and writes the raster, its
// rendering and the coloured point cloud. Either every output is written
// or none is.
type Fuser struct {
	params *Params
	cfg    *config.Config
	log    Logger

	inputs []string
	stack  *models.Stack
	stats  []InputStats
	geo    models.GeoReference
	aoi    config.AOI

	consensus *models.Grid
	summary   Summary
}

// NewFuser creates a fuser for the given parameters
func NewFuser(params *Params) *Fuser {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Fuser{
		params: params,
		cfg:    cfg,
		log:    orNop(params.Logger),
	}
}

// Process runs the complete pipeline
func (f *Fuser) Process() (*Result, error) {
	if err := f.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	runID := uuid.New().String()

	// Step 1: area of interest and input order
	f.log.Printf("[FUSE] step 1: resolving inputs")
	if err := f.loadAOI(); err != nil {
		return nil, err
	}
	if err := f.resolveInputs(); err != nil {
		return nil, err
	}

	// Step 2: measurement stack
	f.log.Printf("[FUSE] step 2: stacking %d rasters", len(f.inputs))
	stack, g, stats, err := BuildStack(raster.Load, f.inputs, f.log)
	if err != nil {
		return nil, err
	}
	f.stack, f.stats = stack, stats
	if err := f.resolveGeo(g); err != nil {
		return nil, err
	}

	// Step 3: consensus
	f.log.Printf("[FUSE] step 3: estimating consensus with %d cores", f.cfg.Fusion.NumCores)
	est := &Estimator{
		MinSupport: f.cfg.Fusion.MinSupport,
		NumCores:   f.cfg.Fusion.NumCores,
		TileRows:   f.cfg.Fusion.TileRows,
	}
	f.consensus, f.summary, err = est.Reduce(f.stack)
	if err != nil {
		return nil, err
	}
	f.log.Printf("[FUSE] %d cells lacked support, %d measurements rejected as outliers",
		f.summary.SupportRejected, f.summary.Outliers)

	var unsmoothed *models.Grid
	if f.params.SaveIntermediaryResults {
		unsmoothed = f.consensus.Clone()
	}

	// Step 4: smoothing
	if f.cfg.Smoothing.Enabled {
		policy, err := ParseMissingPolicy(f.cfg.Smoothing.MissingPolicy)
		if err != nil {
			return nil, err
		}
		f.log.Printf("[FUSE] step 4: median filter %dx%d, missing cells %s",
			f.cfg.Smoothing.Window, f.cfg.Smoothing.Window, policy)
		if err := MedianFilter(f.consensus, f.cfg.Smoothing.Window, policy); err != nil {
			return nil, err
		}
	} else {
		f.log.Printf("[FUSE] step 4: smoothing disabled")
	}

	voidRatio := f.consensus.MissingRatio()
	f.log.Printf("[FUSE] empty ratio after aggregation: %v", voidRatio)

	// Steps 5-7: outputs
	result := &Result{
		RunID:     runID,
		Consensus: f.consensus,
		Geo:       f.geo,
		Inputs:    f.stats,
		Summary:   f.summary,
		VoidRatio: voidRatio,
	}
	if err := f.writeOutputs(result); err != nil {
		return nil, err
	}

	if unsmoothed != nil {
		if err := f.saveIntermediaryResults(unsmoothed); err != nil {
			f.log.Printf("[FUSE] warning: failed to save intermediary results: %v", err)
		}
	}
	return result, nil
}

func (f *Fuser) loadAOI() error {
	if f.params.AOI != nil {
		aoi := *f.params.AOI
		if err := aoi.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		f.aoi = aoi
		return nil
	}
	if f.params.WorkDir == "" {
		return fmt.Errorf("%w: no work directory to read %s from", ErrConfig, config.AOIFileName)
	}
	aoi, err := config.LoadAOI(f.params.WorkDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	f.aoi = aoi
	return nil
}

// resolveInputs fixes the stacking order. Explicit lists keep their order;
// directory scans are sorted lexically.
func (f *Fuser) resolveInputs() error {
	explicit := f.params.Inputs
	if len(explicit) == 0 {
		explicit = f.cfg.Input.Files
	}
	switch {
	case len(explicit) > 0:
		f.inputs = make([]string, len(explicit))
		for i, p := range explicit {
			f.inputs[i] = f.resolve(p)
		}
	default:
		dir := f.resolve(f.cfg.Input.DSMDir)
		paths, err := raster.ListInputs(dir, f.cfg.Input.Pattern)
		if err != nil {
			return fmt.Errorf("%w: listing %s: %v", ErrInput, dir, err)
		}
		f.inputs = OrderedInputs(paths)
	}
	if len(f.inputs) == 0 {
		return ErrEmptyInput
	}
	return nil
}

// resolveGeo combines the inputs' georeference with the projection of the
// area of interest
func (f *Fuser) resolveGeo(g models.GeoReference) error {
	if g.Zone != 0 && (g.Zone != f.aoi.ZoneNumber || g.Hemisphere != f.aoi.Hemisphere) {
		return fmt.Errorf("%w: rasters are in UTM %d%s, area of interest is %s",
			ErrConfig, g.Zone, g.Hemisphere, f.aoi.Projection())
	}
	g.Zone = f.aoi.ZoneNumber
	g.Hemisphere = f.aoi.Hemisphere

	if f.aoi.HasBounds() {
		want, err := geo.FromAOI(f.aoi)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		if !want.Compatible(g, geoTolerance) {
			return fmt.Errorf("%w: rasters do not cover the area of interest footprint", ErrShapeMismatch)
		}
	}
	if g.EResolution <= 0 || g.NResolution <= 0 {
		return fmt.Errorf("%w: non-positive resolution %vx%v", ErrDegenerateGeometry, g.EResolution, g.NResolution)
	}
	f.geo = g
	return nil
}

// writeOutputs stages every output in a private directory and moves them
// into place only once all of them were written
func (f *Fuser) writeOutputs(result *Result) error {
	outDir := f.resolve(f.cfg.Output.Dir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	staging, err := os.MkdirTemp(outDir, ".staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %v", err)
	}
	defer os.RemoveAll(staging)

	base := f.cfg.Output.BaseName
	name := func(ext string) string { return base + ext }
	var staged []string
	stage := func(file string) string {
		staged = append(staged, file)
		return filepath.Join(staging, file)
	}

	// Step 5: raster and its rendering
	f.log.Printf("[FUSE] step 5: writing raster and height map")
	written, err := raster.Write(stage(name(".asc")), f.consensus, f.geo)
	if err != nil {
		return fmt.Errorf("writing raster: %w", err)
	}
	f.geo = written
	result.Geo = written
	if written.Zone != 0 {
		stage(name(".asc" + raster.SidecarSuffix))
	}

	cmap, err := visualization.ColorMap(f.cfg.Output.ColorMap)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	img, err := visualization.RenderHeightMap(f.consensus, visualization.RenderOptions{ColorMap: cmap})
	if errors.Is(err, visualization.ErrEmptyGrid) {
		// Nothing survived fusion; the rendering is all black
		img, err = visualization.RenderHeightMap(f.consensus, visualization.RenderOptions{ColorMap: cmap, Min: 0, Max: 1})
	}
	if err != nil {
		return fmt.Errorf("rendering height map: %w", err)
	}
	imagePath := stage(name(".jpg"))
	if err := visualization.SaveJPEG(imagePath, img, f.cfg.Output.JPEGQuality); err != nil {
		return fmt.Errorf("writing height map: %w", err)
	}
	bar, err := visualization.RenderColorBar(cmap, cmap.Min(), cmap.Max(), 60, 256)
	if err != nil {
		return fmt.Errorf("rendering colour bar: %w", err)
	}
	if err := visualization.SaveJPEG(stage(name(".cbar.jpg")), bar, f.cfg.Output.JPEGQuality); err != nil {
		return fmt.Errorf("writing colour bar: %w", err)
	}

	// Step 6: colour the cloud from the rendering as written
	f.log.Printf("[FUSE] step 6: flattening consensus into points")
	colors, err := visualization.LoadImage(imagePath)
	if err != nil {
		return fmt.Errorf("reading height map back: %w", err)
	}
	points, err := pointcloud.Flatten(f.consensus, f.geo, colors)
	if err != nil {
		return err
	}
	result.Points = len(points)

	// Step 7: point clouds and manifest
	f.log.Printf("[FUSE] step 7: writing %d points", len(points))
	format, err := pointcloud.ParseFormat(f.cfg.Output.PLYFormat)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	plyOpts := pointcloud.PLYOptions{
		Format:   format,
		Comments: []string{pointcloud.ProjectionComment(f.geo.Zone, f.geo.Hemisphere)},
		Color:    true,
	}
	if err := pointcloud.SavePLY(stage(name(".ply")), points, plyOpts); err != nil {
		return fmt.Errorf("writing point cloud: %w", err)
	}
	if f.cfg.Output.WritePCD {
		origin := orb.Point{f.geo.ULEasting, f.geo.ULNorthing}
		if err := pointcloud.SavePCD(stage(name(".pcd")), points, origin); err != nil {
			return fmt.Errorf("writing pcd: %w", err)
		}
	}

	final := func(file string) string { return filepath.Join(outDir, file) }
	result.Paths = Paths{
		Raster:   final(name(".asc")),
		Image:    final(name(".jpg")),
		ColorBar: final(name(".cbar.jpg")),
		PLY:      final(name(".ply")),
	}
	if written.Zone != 0 {
		result.Paths.Sidecar = final(name(".asc" + raster.SidecarSuffix))
	}
	if f.cfg.Output.WritePCD {
		result.Paths.PCD = final(name(".pcd"))
	}
	if f.cfg.Output.WriteManifest {
		result.Paths.Manifest = final(name(".manifest.yaml"))
		if err := f.writeManifest(stage(name(".manifest.yaml")), result); err != nil {
			return err
		}
	}

	if err := commitOutputs(staging, outDir, staged); err != nil {
		return err
	}
	f.log.Printf("[FUSE] outputs written to %s", outDir)
	return nil
}

// commitOutputs moves the staged files into outDir. Files of a previous run
// are set aside first and restored when any move fails, so outDir holds
// either the complete previous set or the complete new one.
func commitOutputs(staging, outDir string, files []string) error {
	for _, file := range files {
		dst := filepath.Join(outDir, file)
		info, err := os.Lstat(dst)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checking %s: %w", dst, err)
		}
		if err == nil && info.IsDir() {
			return fmt.Errorf("moving %s into place: %s is a directory", file, dst)
		}
	}

	previous := filepath.Join(staging, ".previous")
	if err := os.Mkdir(previous, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %v", err)
	}
	var saved, moved []string
	rollback := func() {
		for _, file := range moved {
			os.Remove(filepath.Join(outDir, file))
		}
		for _, file := range saved {
			os.Rename(filepath.Join(previous, file), filepath.Join(outDir, file))
		}
	}

	for _, file := range files {
		err := os.Rename(filepath.Join(outDir, file), filepath.Join(previous, file))
		switch {
		case err == nil:
			saved = append(saved, file)
		case !os.IsNotExist(err):
			rollback()
			return fmt.Errorf("setting aside previous %s: %w", file, err)
		}
	}
	for _, file := range files {
		if err := os.Rename(filepath.Join(staging, file), filepath.Join(outDir, file)); err != nil {
			rollback()
			return fmt.Errorf("moving %s into place: %w", file, err)
		}
		moved = append(moved, file)
	}
	return nil
}

func (f *Fuser) writeManifest(path string, result *Result) error {
	m := Manifest{
		RunID:      result.RunID,
		CreatedAt:  time.Now().UTC(),
		Projection: f.aoi.Projection(),
		Geo:        result.Geo,
		Inputs:     result.Inputs,
		Summary:    result.Summary,
		VoidRatio:  result.VoidRatio,
		Points:     result.Points,
		Outputs:    result.Paths,
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// saveIntermediaryResults writes the height map of every input and the
// consensus before smoothing
func (f *Fuser) saveIntermediaryResults(unsmoothed *models.Grid) error {
	dir := f.params.IntermediaryDir
	if dir == "" {
		dir = filepath.Join(f.resolve(f.cfg.Output.Dir), "intermediary")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if _, err := raster.Write(filepath.Join(dir, "consensus_unsmoothed.asc"), unsmoothed, f.geo); err != nil {
		return err
	}

	lo, hi, ok := visualization.ValueRange(unsmoothed)
	if !ok {
		return nil
	}
	for k, name := range f.stack.Names {
		layer := models.NewGrid(f.stack.Rows, f.stack.Cols)
		for i := range layer.Values {
			if f.stack.Valid[i*f.stack.Depth+k] {
				layer.Values[i] = f.stack.Values[i*f.stack.Depth+k]
				layer.Valid[i] = true
			}
		}
		img, err := visualization.RenderHeightMap(layer, visualization.RenderOptions{Min: lo, Max: hi})
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d_%s.jpg", k, name))
		if err := visualization.SaveJPEG(path, img, f.cfg.Output.JPEGQuality); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fuser) resolve(path string) string {
	if filepath.IsAbs(path) || f.params.WorkDir == "" {
		return path
	}
	return filepath.Join(f.params.WorkDir, path)
}
