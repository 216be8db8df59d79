// Package scf invokes the external SCF command-line program.
package scf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

var commandContext = exec.CommandContext

// Request carries the arguments of one SCF invocation.
type Request struct {
	// RootOutputName is the directory the program writes its outputs to
	RootOutputName string
	FourierRadius  float64
	TiltAngle      float64
	// NumberToUse of -1 lets the program use every projection
	NumberToUse int
	Symmetry    string
	// SideInfoPath is the angle file read by the program
	SideInfoPath string
	// LogPath receives the combined stdout and stderr
	LogPath string
}

// Result describes a finished invocation.
type Result struct {
	Args     []string
	LogPath  string
	Duration time.Duration
}

// ProcessError is returned when the program exits unsuccessfully.
type ProcessError struct {
	Program  string
	ExitCode int
	LogPath  string
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s exited with code %d (output in %s): %v", e.Program, e.ExitCode, e.LogPath, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// BuildArgs renders a request as program arguments. The Fourier radius is
// passed as an integer, truncated toward zero.
func BuildArgs(req Request) []string {
	args := []string{
		"--RootOutputName", req.RootOutputName,
		"--FourierRadius", strconv.FormatInt(int64(math.Trunc(req.FourierRadius)), 10),
		"--TiltAngle", strconv.FormatFloat(req.TiltAngle, 'g', -1, 64),
	}
	if req.NumberToUse != -1 {
		args = append(args, "--NumberToUse", strconv.Itoa(req.NumberToUse))
	}
	if req.Symmetry != "" {
		args = append(args, "--Sym", req.Symmetry)
	}
	return append(args, req.SideInfoPath)
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterpreter runs the program through an interpreter such as python3.
func WithInterpreter(interpreter string) Option {
	return func(r *Runner) {
		r.interpreter = interpreter
	}
}

// WithLogger sets the logger used for invocation events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOutput mirrors program output to w while it runs.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.live = w
	}
}

// Runner executes the SCF program.
type Runner struct {
	program     string
	interpreter string
	live        io.Writer
	logger      *slog.Logger
}

// NewRunner creates a runner for the program at path.
func NewRunner(program string, opts ...Option) *Runner {
	r := &Runner{program: program, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Command returns the executable and full argument list for req.
func (r *Runner) Command(req Request) (string, []string) {
	args := BuildArgs(req)
	if r.interpreter == "" {
		return r.program, args
	}
	return r.interpreter, append([]string{r.program}, args...)
}

// Run executes the program once. Output is captured verbatim to
// req.LogPath; a non-zero exit is reported as *ProcessError and never retried.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if req.SideInfoPath == "" {
		return Result{}, errors.New("side-info path required")
	}
	if req.LogPath == "" {
		return Result{}, errors.New("log path required")
	}
	if err := os.MkdirAll(filepath.Dir(req.LogPath), 0755); err != nil {
		return Result{}, fmt.Errorf("ensure log directory: %w", err)
	}

	logFile, err := os.Create(req.LogPath)
	if err != nil {
		return Result{}, fmt.Errorf("create log: %w", err)
	}
	defer logFile.Close()

	var out io.Writer = logFile
	if r.live != nil {
		out = io.MultiWriter(logFile, r.live)
	}

	name, args := r.Command(req)
	cmd := commandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger.Info("starting scf program",
		slog.String("component", "scf"),
		slog.String("command", name),
		slog.Any("args", args))

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if err := logFile.Sync(); err != nil {
		r.logger.Warn("sync scf log", slog.String("component", "scf"), slog.Any("error", err))
	}

	result := Result{Args: args, LogPath: req.LogPath, Duration: duration}
	if runErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return result, &ProcessError{Program: r.program, ExitCode: code, LogPath: req.LogPath, Err: runErr}
	}

	r.logger.Info("scf program finished",
		slog.String("component", "scf"),
		slog.Duration("duration", duration))
	return result, nil
}
