package visualization

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

var commandContext = exec.CommandContext

// PlotInfo describes a plot written by the SCF program
type PlotInfo struct {
	Path   string
	Format string
	Width  int
	Height int
}

// Viewer locates the plots of a run and hands them to an external image
// viewer. Images are never modified.
type Viewer struct {
	// extraDir holds the run artifacts
	extraDir string

	// opener is the command that displays an image
	opener string

	// stem is the side-info file name without extension; the SCF
	// program names its plots after it
	stem string
}

// NewViewer creates a viewer for the plots in extraDir.
func NewViewer(extraDir, opener, sideInfoName string) *Viewer {
	return &Viewer{
		extraDir: extraDir,
		opener:   opener,
		stem:     strings.TrimSuffix(sideInfoName, filepath.Ext(sideInfoName)),
	}
}

// PlotPath returns the sampling plot for the given tilt angle.
func (v *Viewer) PlotPath(tilt float64) string {
	return filepath.Join(v.extraDir, fmt.Sprintf("%sTilt%d.jpg", v.stem, int(tilt)))
}

// ListPlots returns every jpeg or png plot in the run directory.
func (v *Viewer) ListPlots() ([]string, error) {
	entries, err := os.ReadDir(v.extraDir)
	if err != nil {
		return nil, err
	}

	var plots []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			plots = append(plots, filepath.Join(v.extraDir, e.Name()))
		}
	}
	sort.Strings(plots)
	return plots, nil
}

// Inspect decodes the image header to confirm the plot is complete.
func (v *Viewer) Inspect(path string) (PlotInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return PlotInfo{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return PlotInfo{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return PlotInfo{}, fmt.Errorf("plot %s has empty dimensions", path)
	}
	return PlotInfo{Path: path, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Open displays the plot with the configured viewer command.
func (v *Viewer) Open(ctx context.Context, path string) (PlotInfo, error) {
	info, err := v.Inspect(path)
	if err != nil {
		return PlotInfo{}, err
	}
	if v.opener == "" {
		return info, errors.New("no image viewer configured")
	}

	fields := strings.Fields(v.opener)
	args := append(fields[1:], path)
	cmd := commandContext(ctx, fields[0], args...) //nolint:gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		return info, fmt.Errorf("%s: %w: %s", fields[0], err, strings.TrimSpace(string(out)))
	}
	return info, nil
}
