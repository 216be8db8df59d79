// Package config provides configuration loading and management for scfanalysis.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"scfanalysis/pkg/angles"
)

// UseAll is the numberToUse value that hands every projection to the SCF program.
const UseAll = -1

var symmetryPattern = regexp.MustCompile(`^(Icos|Oct|Tet|[CD][1-9][0-9]*)$`)

// Config represents the run configuration loaded from YAML
type Config struct {
	// Analysis parameters exposed to the user
	Analysis struct {
		// Resolution is the resolution in Å at which the SCF analysis is performed
		Resolution float64 `yaml:"resolution"`

		// Symmetry is one of Icos, Oct, Tet, Cn, Dn or empty for none
		Symmetry string `yaml:"symmetry"`

		// NumberToUse is the number of projections to use; -1 selects all of them
		NumberToUse int `yaml:"numberToUse"`

		// TiltAngle tilts the sample in silico
		TiltAngle float64 `yaml:"tiltAngle"`

		// AngleUnit is degrees or radians
		AngleUnit string `yaml:"angleUnit"`

		// BoxSize overrides the particle box size; 0 reads it from the first image
		BoxSize int `yaml:"boxSize"`
	} `yaml:"analysis"`

	// SCF program installation
	SCF struct {
		Version     string `yaml:"version"`
		Home        string `yaml:"home"`
		Program     string `yaml:"program"`
		Interpreter string `yaml:"interpreter"`
		Repository  string `yaml:"repository"`
	} `yaml:"scf"`

	// Output parameters
	Output struct {
		// WorkDir is the run directory; artifacts go to WorkDir/extra
		WorkDir string `yaml:"workDir"`

		// Viewer is the command used to open result plots
		Viewer string `yaml:"viewer"`
	} `yaml:"output"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Analysis.Resolution = 5
	cfg.Analysis.Symmetry = ""
	cfg.Analysis.NumberToUse = 1000
	cfg.Analysis.TiltAngle = 0.0
	cfg.Analysis.AngleUnit = "degrees"

	cfg.SCF.Version = "Jan2022"
	cfg.SCF.Home = "."
	cfg.SCF.Program = "SCFJan2022.py"
	cfg.SCF.Interpreter = "python3"
	cfg.SCF.Repository = "https://github.com/LyumkisLab/CommandLineSCF.git"

	cfg.Output.WorkDir = "scf_run"
	cfg.Output.Viewer = "xdg-open"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

// Validate checks the parameters at the configuration boundary, before
// anything is handed to the SCF program.
func (c *Config) Validate() error {
	a := c.Analysis
	if !(a.Resolution > 0) {
		return &angles.InvalidParameterError{Name: "analysis.resolution", Value: a.Resolution}
	}
	if a.Symmetry != "" && !symmetryPattern.MatchString(a.Symmetry) {
		return fmt.Errorf("analysis.symmetry: %q is not one of Icos, Oct, Tet, Cn, Dn", a.Symmetry)
	}
	if a.NumberToUse != UseAll && a.NumberToUse <= 0 {
		return fmt.Errorf("analysis.numberToUse: %d must be positive or %d for all", a.NumberToUse, UseAll)
	}
	if a.BoxSize < 0 {
		return &angles.InvalidParameterError{Name: "analysis.boxSize", Value: float64(a.BoxSize)}
	}
	if _, err := angles.ParseUnit(a.AngleUnit); err != nil {
		return fmt.Errorf("analysis.angleUnit: %w", err)
	}
	if c.SCF.Version == "" || c.SCF.Program == "" {
		return fmt.Errorf("scf: version and program are required")
	}
	if c.Output.WorkDir == "" {
		return fmt.Errorf("output.workDir is required")
	}
	return nil
}

// TiltForcesC1 reports whether the tilt will make the SCF program ignore
// the configured symmetry.
func (c *Config) TiltForcesC1() bool {
	s := c.Analysis.Symmetry
	return c.Analysis.TiltAngle != 0 && s != "" && s != "C1"
}

// InstallDir is the directory the SCF program is cloned into.
func (c *Config) InstallDir() string {
	return filepath.Join(c.SCF.Home, "scf-"+c.SCF.Version)
}

// ProgramPath is the full path of the SCF entry point.
func (c *Config) ProgramPath() string {
	return filepath.Join(c.InstallDir(), "CommandLineSCF", c.SCF.Program)
}

// InstalledFlag is the file marking a finished installation.
func (c *Config) InstalledFlag() string {
	return filepath.Join(c.InstallDir(), "scf_"+c.SCF.Version+"_installed")
}

// ExtraDir is where run artifacts are written.
func (c *Config) ExtraDir() string {
	return filepath.Join(c.Output.WorkDir, "extra")
}

// Describe lists the analysis parameters for display.
func (c *Config) Describe() [][2]string {
	number := strconv.Itoa(c.Analysis.NumberToUse)
	if c.Analysis.NumberToUse == UseAll {
		number = "all"
	}
	sym := c.Analysis.Symmetry
	if sym == "" {
		sym = "none"
	}
	return [][2]string{
		{"Resolution (Å)", strconv.FormatFloat(c.Analysis.Resolution, 'g', -1, 64)},
		{"Symmetry", sym},
		{"Number of projections", number},
		{"Tilt angle", strconv.FormatFloat(c.Analysis.TiltAngle, 'g', -1, 64)},
		{"Angle unit", c.Analysis.AngleUnit},
		{"SCF program", c.ProgramPath()},
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
