package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scfanalysis/pkg/analysis"
	"scfanalysis/pkg/config"
	"scfanalysis/pkg/dataset"
	"scfanalysis/pkg/scf"
)

type runOverrides struct {
	resolution float64
	symmetry   string
	number     int
	tilt       float64
	box        int
	workDir    string
	unit       string
}

func (o runOverrides) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("resolution") {
		cfg.Analysis.Resolution = o.resolution
	}
	if flags.Changed("sym") {
		cfg.Analysis.Symmetry = o.symmetry
	}
	if flags.Changed("number") {
		cfg.Analysis.NumberToUse = o.number
	}
	if flags.Changed("tilt") {
		cfg.Analysis.TiltAngle = o.tilt
	}
	if flags.Changed("box") {
		cfg.Analysis.BoxSize = o.box
	}
	if flags.Changed("work-dir") {
		cfg.Output.WorkDir = o.workDir
	}
	if flags.Changed("angle-unit") {
		cfg.Analysis.AngleUnit = o.unit
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var particlesPath string
	var projectDir string
	var quiet bool
	var overrides runOverrides

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract particle angles and run the SCF analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			overrides.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			set, err := dataset.OpenSQLite(cmd.Context(), particlesPath,
				dataset.WithProjectDir(projectDir), dataset.WithBoxSize(cfg.Analysis.BoxSize))
			if err != nil {
				return err
			}
			defer set.Close()

			count, err := set.Count(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "================================")
			fmt.Fprintln(out, "SCF ANALYSIS OF PROJECTION DIRECTIONS")
			fmt.Fprintln(out, "Baldwin & Lyumkis sampling compensation function")
			fmt.Fprintln(out, "================================")
			fmt.Fprintf(out, "Particles: %d (%s, %.4g Å/px)\n", count, particlesPath, set.SamplingRate())
			fmt.Fprintln(out, renderKeyValues(cfg.Describe()))

			params := &analysis.Params{Dataset: set, Config: cfg, Logger: logger}
			if !quiet {
				params.Output = out
			}
			protocol, err := analysis.NewProtocol(params)
			if err != nil {
				return err
			}

			start := time.Now()
			runErr := protocol.Process(cmd.Context())

			var pe *scf.ProcessError
			if runErr != nil && !errors.As(runErr, &pe) {
				return runErr
			}

			fmt.Fprintf(out, "\nFourier radius: %.0f px\n", protocol.FourierRadius())
			fmt.Fprintf(out, "Side information: %s\n", protocol.SideInfoPath())
			fmt.Fprintf(out, "Processing time: %.2f seconds\n\n", time.Since(start).Seconds())

			summary, err := analysis.Summary(cfg.ExtraDir())
			if err != nil {
				return err
			}
			for _, line := range summary {
				fmt.Fprintln(out, line)
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&particlesPath, "particles", "p", "", "Particle set sqlite file")
	flags.StringVar(&projectDir, "project-dir", "", "Directory particle image paths are relative to (default: particle set directory)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not echo SCF program output while it runs")
	flags.Float64Var(&overrides.resolution, "resolution", 5, "Resolution (Å) at which the SCF analysis is performed")
	flags.StringVar(&overrides.symmetry, "sym", "", "Symmetry: Icos, Oct, Tet, Cn or Dn")
	flags.IntVar(&overrides.number, "number", 1000, "Number of projections to use (-1 for all)")
	flags.Float64Var(&overrides.tilt, "tilt", 0, "Tilt of the sample in silico (degrees)")
	flags.IntVar(&overrides.box, "box", 0, "Particle box size in pixels (default: read from the first image)")
	flags.StringVar(&overrides.workDir, "work-dir", "", "Run directory")
	flags.StringVar(&overrides.unit, "angle-unit", "degrees", "Side-info angle unit: degrees or radians")
	_ = cmd.MarkFlagRequired("particles")

	return cmd
}

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	var workDir string
	var showMethods bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the SCF program output of a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if workDir != "" {
				cfg.Output.WorkDir = workDir
			}

			out := cmd.OutOrStdout()
			summary, err := analysis.Summary(cfg.ExtraDir())
			if err != nil {
				return err
			}
			for _, line := range summary {
				fmt.Fprintln(out, line)
			}

			if showMethods {
				methods, err := analysis.Methods(cfg.ExtraDir())
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				for _, line := range methods {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, "\nReferences:")
				for _, ref := range analysis.References() {
					fmt.Fprintf(out, "- %s\n", ref)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workDir, "work-dir", "", "Run directory")
	cmd.Flags().BoolVar(&showMethods, "methods", false, "Also print the methods text and references")
	return cmd
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var targetPath string
	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetPath
			if target == "" {
				target = defaultConfigPath
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				}
			}
			if err := config.CreateDefaultConfigFile(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", target)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination path (default scf.yaml)")
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}
