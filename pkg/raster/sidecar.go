package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SidecarSuffix is appended to a raster path to name its projection sidecar
const SidecarSuffix = ".aux.yaml"

type sidecar struct {
	Zone       int    `yaml:"zone"`
	Hemisphere string `yaml:"hemisphere"`
}

func readSidecar(path string) (sidecar, error) {
	var s sidecar
	data, err := os.ReadFile(path + SidecarSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("reading sidecar of %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: sidecar of %s: %v", ErrFormat, path, err)
	}
	return s, nil
}

func writeSidecar(path string, s sidecar) error {
	if s.Zone == 0 && s.Hemisphere == "" {
		return nil
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling sidecar: %w", err)
	}
	if err := os.WriteFile(path+SidecarSuffix, data, 0644); err != nil {
		return fmt.Errorf("writing sidecar of %s: %w", path, err)
	}
	return nil
}

// ListInputs returns the rasters in dir whose names match pattern, in
// lexical order. Sidecars and directories are skipped.
func ListInputs(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), SidecarSuffix) {
			continue
		}
		ok, err := filepath.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("bad input pattern %q: %w", pattern, err)
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}
