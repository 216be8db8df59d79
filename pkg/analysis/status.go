package analysis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Status records how the last SCF invocation in a run directory ended.
type Status struct {
	Finished      bool      `yaml:"finished"`
	ExitCode      int       `yaml:"exitCode"`
	Error         string    `yaml:"error,omitempty"`
	StartedAt     time.Time `yaml:"startedAt"`
	Duration      string    `yaml:"duration"`
	Particles     int       `yaml:"particles"`
	FourierRadius float64   `yaml:"fourierRadius"`
	Args          []string  `yaml:"args"`
}

// WriteStatus saves the status file in extraDir.
func WriteStatus(extraDir string, status Status) error {
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.WriteFile(filepath.Join(extraDir, StatusName), data, 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// ReadStatus loads the status file from extraDir. ok is false when no
// invocation has been recorded.
func ReadStatus(extraDir string) (status Status, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(extraDir, StatusName))
	if errors.Is(err, os.ErrNotExist) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("read status: %w", err)
	}
	if err := yaml.Unmarshal(data, &status); err != nil {
		return Status{}, false, fmt.Errorf("parse status: %w", err)
	}
	return status, true, nil
}
