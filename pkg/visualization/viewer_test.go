package visualization

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// writeTestPlot writes a small gradient JPEG
func writeTestPlot(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16((x + y) * 65535 / (width + height))})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create plot: %v", err)
	}
	defer file.Close()
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode plot: %v", err)
	}
}

// TestPlotPath verifies the plot name follows the side-info stem and tilt
func TestPlotPath(t *testing.T) {
	viewer := NewViewer("/run/extra", "xdg-open", "particleAngles.txt")

	if got, want := viewer.PlotPath(0), "/run/extra/particleAnglesTilt0.jpg"; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if got, want := viewer.PlotPath(30.7), "/run/extra/particleAnglesTilt30.jpg"; got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

// TestInspect verifies dimensions are read from the image header
func TestInspect(t *testing.T) {
	dir := t.TempDir()
	viewer := NewViewer(dir, "", "particleAngles.txt")
	path := viewer.PlotPath(0)
	writeTestPlot(t, path, 40, 30)

	info, err := viewer.Inspect(path)
	if err != nil {
		t.Fatalf("Failed to inspect plot: %v", err)
	}
	if info.Width != 40 || info.Height != 30 {
		t.Errorf("Expected 40x30, got %dx%d", info.Width, info.Height)
	}
	if info.Format != "jpeg" {
		t.Errorf("Expected jpeg format, got %s", info.Format)
	}

	truncated := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(truncated, []byte{0xff, 0xd8}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := viewer.Inspect(truncated); err == nil {
		t.Error("Expected error for truncated plot, got nil")
	}
}

// TestListPlots verifies only images are listed, in name order
func TestListPlots(t *testing.T) {
	dir := t.TempDir()
	viewer := NewViewer(dir, "", "particleAngles.txt")
	writeTestPlot(t, filepath.Join(dir, "particleAnglesTilt0.jpg"), 8, 8)
	writeTestPlot(t, filepath.Join(dir, "particleAnglesPSF.jpg"), 8, 8)
	if err := os.WriteFile(filepath.Join(dir, "particleAngles.txt"), []byte("0\t0\t0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	plots, err := viewer.ListPlots()
	if err != nil {
		t.Fatalf("Failed to list plots: %v", err)
	}
	if len(plots) != 2 {
		t.Fatalf("Expected 2 plots, got %v", plots)
	}
	if filepath.Base(plots[0]) != "particleAnglesPSF.jpg" {
		t.Errorf("Expected sorted plots, got %v", plots)
	}
}

// TestOpen verifies the opener receives the plot path
func TestOpen(t *testing.T) {
	dir := t.TempDir()
	viewer := NewViewer(dir, "display -geometry 800x600", "particleAngles.txt")
	path := viewer.PlotPath(0)
	writeTestPlot(t, path, 16, 16)

	var gotName string
	var gotArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return exec.CommandContext(ctx, os.Args[0], "-test.run=^$")
	}
	t.Cleanup(func() {
		commandContext = original
	})

	if _, err := viewer.Open(context.Background(), path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if gotName != "display" {
		t.Errorf("Expected opener display, got %s", gotName)
	}
	if len(gotArgs) != 3 || gotArgs[2] != path {
		t.Errorf("Expected opener args to end with plot path, got %v", gotArgs)
	}
}

// TestOpenMissingPlot verifies a missing plot is reported without launching anything
func TestOpenMissingPlot(t *testing.T) {
	viewer := NewViewer(t.TempDir(), "xdg-open", "particleAngles.txt")
	if _, err := viewer.Open(context.Background(), viewer.PlotPath(0)); err == nil {
		t.Error("Expected error for missing plot, got nil")
	}
}
