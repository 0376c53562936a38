package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"dsmfusion/pkg/config"
	"dsmfusion/pkg/evaluation"
	"dsmfusion/pkg/fusion"
	"dsmfusion/pkg/pointcloud"
	"dsmfusion/pkg/raster"
)

func main() {
	// Parse command line arguments
	mode := flag.String("mode", "fuse", "Run mode: fuse, compare or to-ply")
	workDir := flag.String("workdir", "", "Work directory holding aoi.json and the per-view rasters (fuse)")
	configPath := flag.String("config", "", "YAML configuration file (default: <workdir>/dsmfusion.yaml)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from configuration)")
	writePCD := flag.Bool("pcd", false, "Also export the point cloud as PCD (fuse)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save the unsmoothed consensus and per-view height maps (fuse)")
	truthPath := flag.String("truth", "", "Ground truth raster (compare)")
	testPath := flag.String("test", "", "Raster to evaluate (compare)")
	threshold := flag.Float64("threshold", evaluation.DefaultThreshold, "Completeness threshold in metres (compare)")
	inPath := flag.String("in", "", "Input raster (to-ply)")
	outPath := flag.String("out", "", "Output file (to-ply) or directory (compare)")
	plyFormat := flag.String("format", config.PLYBinary, "PLY encoding: binary or ascii (to-ply)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var err error
	switch *mode {
	case "fuse":
		if *workDir == "" && !*initConfig {
			flag.Usage()
			os.Exit(1)
		}
		path := *configPath
		if path == "" {
			path = filepath.Join(*workDir, "dsmfusion.yaml")
		}
		if *initConfig {
			if err := config.CreateDefaultConfigFile(path); err != nil {
				log.Fatalf("Failed to write configuration: %v", err)
			}
			fmt.Printf("Default configuration written to %s\n", path)
			return
		}
		err = runFuse(logger, *workDir, path, *numCores, *writePCD, *saveIntermediary)
	case "compare":
		if *truthPath == "" || *testPath == "" {
			flag.Usage()
			os.Exit(1)
		}
		err = runCompare(*testPath, *truthPath, *outPath, *threshold)
	case "to-ply":
		if *inPath == "" || *outPath == "" {
			flag.Usage()
			os.Exit(1)
		}
		err = runToPLY(*inPath, *outPath, *plyFormat)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *mode, err)
	}
}

func runFuse(logger *log.Logger, workDir, configPath string, numCores int, writePCD, saveIntermediary bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", fusion.ErrConfig, err)
	}
	if numCores > 0 {
		cfg.Fusion.NumCores = numCores
	}
	if writePCD {
		cfg.Output.WritePCD = true
	}

	fmt.Println("================================")
	fmt.Println("MULTI-VIEW 2.5D SURFACE MODEL FUSION")
	fmt.Println("================================")

	fuser := fusion.NewFuser(&fusion.Params{
		WorkDir:                 workDir,
		Config:                  cfg,
		Logger:                  logger,
		SaveIntermediaryResults: saveIntermediary,
	})

	startTime := time.Now()
	result, err := fuser.Process()
	if err != nil {
		return err
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nFusion completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Run: %s\n", result.RunID)
	fmt.Printf("Inputs: %d, grid %dx%d, %d cores\n", len(result.Inputs), result.Geo.Rows, result.Geo.Cols, cfg.Fusion.NumCores)
	fmt.Printf("Cells lacking support: %d\n", result.Summary.SupportRejected)
	fmt.Printf("Outlier measurements rejected: %d\n", result.Summary.Outliers)
	fmt.Printf("Empty ratio: %.4f\n", result.VoidRatio)
	fmt.Printf("Points: %d\n\n", result.Points)
	fmt.Printf("Raster:      %s\n", result.Paths.Raster)
	fmt.Printf("Height map:  %s\n", result.Paths.Image)
	fmt.Printf("Point cloud: %s\n", result.Paths.PLY)
	if result.Paths.PCD != "" {
		fmt.Printf("PCD:         %s\n", result.Paths.PCD)
	}
	if result.Paths.Manifest != "" {
		fmt.Printf("Manifest:    %s\n", result.Paths.Manifest)
	}
	return nil
}

func runCompare(testPath, truthPath, outDir string, threshold float64) error {
	test, testGeo, err := raster.Load(testPath)
	if err != nil {
		return fmt.Errorf("%w: %v", fusion.ErrInput, err)
	}
	truth, truthGeo, err := raster.Load(truthPath)
	if err != nil {
		return fmt.Errorf("%w: %v", fusion.ErrInput, err)
	}

	report, err := evaluation.Compare(test, truth, testGeo, truthGeo, threshold)
	if err != nil {
		return err
	}
	fmt.Printf("median signed error: %v\n", report.MedianSignedError)
	fmt.Printf("median error: %v\n", report.MedianAbsError)
	fmt.Printf("mean error: %v\n", report.MeanAbsError)
	fmt.Printf("completeness: %v (%d of %d cells within %v m)\n",
		report.Completeness, int(report.Completeness*float64(report.TruthValid)+0.5), report.TruthValid, report.Threshold)

	if outDir == "" {
		return nil
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	name := filepath.Base(testPath)
	name = name[:len(name)-len(filepath.Ext(name))]
	paths, err := evaluation.SaveMaps(outDir, name, test, truth, 95)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Printf("Saved %s\n", p)
	}
	return nil
}

func runToPLY(inPath, outPath, format string) error {
	f, err := pointcloud.ParseFormat(format)
	if err != nil {
		return err
	}
	n, err := pointcloud.DSMToPLY(inPath, outPath, f)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d points to %s\n", n, outPath)
	return nil
}
