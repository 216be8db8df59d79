package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scfanalysis/pkg/analysis"
	"scfanalysis/pkg/installer"
	"scfanalysis/pkg/visualization"
)

func newViewCommand(ctx *commandContext) *cobra.Command {
	var workDir string
	var list bool

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Open the sampling plot produced by the SCF program",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if workDir != "" {
				cfg.Output.WorkDir = workDir
			}

			viewer := visualization.NewViewer(cfg.ExtraDir(), cfg.Output.Viewer, analysis.SideInfoName)
			out := cmd.OutOrStdout()

			if list {
				plots, err := viewer.ListPlots()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(plots))
				for _, p := range plots {
					info, err := viewer.Inspect(p)
					if err != nil {
						rows = append(rows, []string{p, "unreadable", ""})
						continue
					}
					rows = append(rows, []string{p, info.Format, fmt.Sprintf("%dx%d", info.Width, info.Height)})
				}
				fmt.Fprintln(out, renderTable([]string{"Plot", "Format", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			}

			path := viewer.PlotPath(cfg.Analysis.TiltAngle)
			if len(args) > 0 {
				path = args[0]
			}
			info, err := viewer.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Opened %s (%dx%d %s)\n", info.Path, info.Width, info.Height, info.Format)
			return nil
		},
	}

	cmd.Flags().StringVar(&workDir, "work-dir", "", "Run directory")
	cmd.Flags().BoolVar(&list, "list", false, "List the plots instead of opening one")
	return cmd
}

func newInstallCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Fetch the SCF command-line program",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if err := installer.New(cfg, logger).Install(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SCF program available at %s\n", cfg.ProgramPath())
			return nil
		},
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether the SCF program and its tools are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := installer.Check(installer.Requirements(cfg))
			rows := make([][]string, 0, len(statuses))
			missing := false
			for _, s := range statuses {
				state := "ok"
				if !s.Available {
					state = "missing"
					if s.Optional {
						state = "missing (optional)"
					} else {
						missing = true
					}
				}
				rows = append(rows, []string{s.Name, s.Command, state, s.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Dependency", "Command", "Status", "Detail"}, rows, nil))
			if missing {
				return errors.New("required dependencies are missing")
			}
			return nil
		},
	}
}
