// Package installer fetches the SCF command-line program and reports
// whether the tools it needs are available.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"scfanalysis/pkg/config"
)

var commandContext = exec.CommandContext

const lockRetryDelay = 250 * time.Millisecond

// Installer clones the SCF repository into the configured install directory.
type Installer struct {
	dir        string
	flag       string
	repository string
	git        string
	logger     *slog.Logger
}

// New creates an installer from the run configuration.
func New(cfg *config.Config, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		dir:        cfg.InstallDir(),
		flag:       cfg.InstalledFlag(),
		repository: cfg.SCF.Repository,
		git:        "git",
		logger:     logger.With(slog.String("component", "installer")),
	}
}

// Installed reports whether a previous install completed.
func (i *Installer) Installed() bool {
	_, err := os.Stat(i.flag)
	return err == nil
}

// Install clones the repository unless the installed flag is present.
// Concurrent installs into the same directory are serialised by a file lock.
func (i *Installer) Install(ctx context.Context) error {
	if i.repository == "" {
		return errors.New("scf repository not configured")
	}
	if err := os.MkdirAll(i.dir, 0755); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	lock := flock.New(filepath.Join(i.dir, ".install.lock"))
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire install lock: %w", err)
	}
	if !ok {
		return errors.New("another install is in progress")
	}
	defer func() {
		_ = lock.Unlock()
	}()

	if i.Installed() {
		i.logger.Info("scf already installed", slog.String("dir", i.dir))
		return nil
	}

	target := filepath.Join(i.dir, "CommandLineSCF")
	// A clone without the flag is an interrupted install.
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove incomplete install: %w", err)
	}

	i.logger.Info("cloning scf", slog.String("repository", i.repository), slog.String("dir", target))
	cmd := commandContext(ctx, i.git, "clone", i.repository, target) //nolint:gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s clone: %w: %s", i.git, err, strings.TrimSpace(string(out)))
	}

	if err := os.WriteFile(i.flag, nil, 0644); err != nil {
		return fmt.Errorf("write installed flag: %w", err)
	}
	i.logger.Info("scf installed", slog.String("flag", i.flag))
	return nil
}

// Requirement is an external tool the analysis relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the tools needed to install and run the SCF program.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "git", Command: "git", Description: "fetches the SCF program", Optional: true},
		{Name: "SCF program", Command: cfg.ProgramPath(), Description: "computes the SCF value and plots"},
	}
	if cfg.SCF.Interpreter != "" {
		reqs = append(reqs, Requirement{Name: "interpreter", Command: cfg.SCF.Interpreter, Description: "runs the SCF program"})
	}
	if cfg.Output.Viewer != "" {
		fields := strings.Fields(cfg.Output.Viewer)
		reqs = append(reqs, Requirement{Name: "image viewer", Command: fields[0], Description: "opens result plots", Optional: true})
	}
	return reqs
}

// Check evaluates the provided requirements. Commands containing a path
// separator are checked as files, others are looked up on PATH.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{Requirement: req}
		cmd := strings.TrimSpace(req.Command)
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		case strings.ContainsRune(cmd, filepath.Separator):
			if _, err := os.Stat(cmd); err != nil {
				status.Detail = fmt.Sprintf("file %q not found", cmd)
			} else {
				status.Available = true
			}
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}
