// Package analysis runs the SCF analysis of a particle set: it extracts the
// particle orientations, hands them to the SCF program and reports back what
// the program wrote.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"scfanalysis/internal/models"
	"scfanalysis/pkg/angles"
	"scfanalysis/pkg/config"
	"scfanalysis/pkg/dataset"
	"scfanalysis/pkg/scf"
)

// Artifact names inside the run's extra directory.
const (
	SideInfoName = "particleAngles.txt"
	LogName      = "outputInfoFileSCF.txt"
	StatusName   = "scfStatus.yaml"
	lockName     = ".scf.lock"
)

// Params holds everything a run needs.
type Params struct {
	// Dataset is the particle set to analyse. It is only read.
	Dataset dataset.Dataset

	// Config carries the analysis parameters and SCF installation
	Config *config.Config

	// Logger receives progress events; slog.Default is used when nil
	Logger *slog.Logger

	// Output mirrors the SCF program output while it runs
	Output io.Writer
}

// Protocol performs one SCF analysis run.
//
// A run has two strictly sequential steps:
// 1. GenerateSideInfo writes the particle angles and computes the Fourier radius
// 2. RunSCFAnalysis invokes the SCF program on the side-info file
type Protocol struct {
	params    *Params
	cfg       *config.Config
	logger    *slog.Logger
	extractor *angles.Extractor
	runner    *scf.Runner

	// fourierRadius is set by GenerateSideInfo
	fourierRadius float64

	// triples are the angles written to the side-info file
	triples []models.AngleTriple

	stats AngleStats
}

// NewProtocol validates the configuration and prepares a run.
func NewProtocol(params *Params) (*Protocol, error) {
	if params == nil || params.Dataset == nil || params.Config == nil {
		return nil, errors.New("analysis requires a dataset and a config")
	}
	cfg := params.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	unit, err := angles.ParseUnit(cfg.Analysis.AngleUnit)
	if err != nil {
		return nil, err
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "analysis"))

	runnerOpts := []scf.Option{scf.WithLogger(params.Logger), scf.WithInterpreter(cfg.SCF.Interpreter)}
	if params.Output != nil {
		runnerOpts = append(runnerOpts, scf.WithOutput(params.Output))
	}

	return &Protocol{
		params:    params,
		cfg:       cfg,
		logger:    logger,
		extractor: angles.NewExtractor(angles.WithUnit(unit)),
		runner:    scf.NewRunner(cfg.ProgramPath(), runnerOpts...),
	}, nil
}

// SideInfoPath is the angle file handed to the SCF program.
func (p *Protocol) SideInfoPath() string {
	return filepath.Join(p.cfg.ExtraDir(), SideInfoName)
}

// LogPath is the captured SCF program output.
func (p *Protocol) LogPath() string {
	return filepath.Join(p.cfg.ExtraDir(), LogName)
}

// FourierRadius returns the radius computed by GenerateSideInfo.
func (p *Protocol) FourierRadius() float64 {
	return p.fourierRadius
}

// Angles returns the triples written by GenerateSideInfo.
func (p *Protocol) Angles() []models.AngleTriple {
	return p.triples
}

// Stats returns the angle statistics of the last GenerateSideInfo.
func (p *Protocol) Stats() AngleStats {
	return p.stats
}

// Process runs both steps while holding the run directory lock.
func (p *Protocol) Process(ctx context.Context) error {
	if err := os.MkdirAll(p.cfg.ExtraDir(), 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	lock := flock.New(filepath.Join(p.cfg.Output.WorkDir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock run directory: %w", err)
	}
	if !ok {
		return fmt.Errorf("another analysis is running in %s", p.cfg.Output.WorkDir)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	p.logger.Info("Step 1: generating side information")
	if err := p.GenerateSideInfo(ctx); err != nil {
		return fmt.Errorf("generate side info: %w", err)
	}

	p.logger.Info("Step 2: running SCF analysis")
	if _, err := p.RunSCFAnalysis(ctx); err != nil {
		return fmt.Errorf("run scf analysis: %w", err)
	}
	return nil
}

// GenerateSideInfo writes the particle angles and computes the Fourier radius.
// Results of any earlier run in the same directory are discarded first.
func (p *Protocol) GenerateSideInfo(ctx context.Context) error {
	if p.cfg.TiltForcesC1() {
		p.logger.Warn("tilt angle is set; the SCF program will use C1 instead of the configured symmetry",
			slog.String("symmetry", p.cfg.Analysis.Symmetry),
			slog.Float64("tilt", p.cfg.Analysis.TiltAngle))
	}

	for _, name := range []string{LogName, StatusName} {
		if err := os.Remove(filepath.Join(p.cfg.ExtraDir(), name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear previous %s: %w", name, err)
		}
	}

	ds := p.params.Dataset
	box := p.cfg.Analysis.BoxSize
	if box == 0 {
		var err error
		if box, err = ds.BoxSize(ctx); err != nil {
			return fmt.Errorf("read box size: %w", err)
		}
	}

	radius, err := angles.ComputeFourierRadius(ds.SamplingRate(), p.cfg.Analysis.Resolution, box)
	if err != nil {
		return err
	}
	// The program takes the radius as a whole number of pixels.
	if math.Trunc(radius) < 1 {
		return &angles.InvalidParameterError{Name: "fourierRadius", Value: radius}
	}

	triples, err := p.extractor.BuildSideInfo(ctx, ds.Particles(ctx), p.SideInfoPath())
	if err != nil {
		return err
	}

	p.fourierRadius = radius
	p.triples = triples
	p.stats = ComputeStats(triples)

	p.logger.Info("side information written",
		slog.String("path", p.SideInfoPath()),
		slog.Int("particles", len(triples)),
		slog.String("unit", p.extractor.Unit().String()),
		slog.Float64("sampling_rate", ds.SamplingRate()),
		slog.Int("box_size", box),
		slog.Float64("fourier_radius", radius),
		slog.Float64("theta_mean", p.stats.Theta.Mean),
		slog.Float64("theta_stddev", p.stats.Theta.StdDev))

	if n := p.cfg.Analysis.NumberToUse; n != config.UseAll && n > len(triples) {
		p.logger.Info("fewer particles than requested projections",
			slog.Int("requested", n), slog.Int("available", len(triples)))
	}
	return nil
}

// RunSCFAnalysis invokes the SCF program on the side-info file written by
// GenerateSideInfo. The outcome is recorded in the status file whether the
// program succeeds or not; failures are not retried.
func (p *Protocol) RunSCFAnalysis(ctx context.Context) (scf.Result, error) {
	if p.fourierRadius <= 0 {
		return scf.Result{}, errors.New("side information has not been generated")
	}
	if _, err := os.Stat(p.SideInfoPath()); err != nil {
		return scf.Result{}, fmt.Errorf("side-info file: %w", err)
	}

	req := scf.Request{
		RootOutputName: p.cfg.ExtraDir(),
		FourierRadius:  p.fourierRadius,
		TiltAngle:      p.cfg.Analysis.TiltAngle,
		NumberToUse:    p.cfg.Analysis.NumberToUse,
		Symmetry:       p.cfg.Analysis.Symmetry,
		SideInfoPath:   p.SideInfoPath(),
		LogPath:        p.LogPath(),
	}

	started := time.Now()
	res, runErr := p.runner.Run(ctx, req)

	status := Status{
		Finished:      runErr == nil,
		StartedAt:     started.UTC(),
		Duration:      res.Duration.String(),
		Particles:     len(p.triples),
		FourierRadius: p.fourierRadius,
		Args:          res.Args,
	}
	var pe *scf.ProcessError
	if errors.As(runErr, &pe) {
		status.ExitCode = pe.ExitCode
	}
	if runErr != nil {
		status.Error = runErr.Error()
	}
	if err := WriteStatus(p.cfg.ExtraDir(), status); err != nil {
		p.logger.Error("record scf status", slog.Any("error", err))
		return res, errors.Join(runErr, fmt.Errorf("record scf status: %w", err))
	}

	return res, runErr
}
