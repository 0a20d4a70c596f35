package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/govcontracts-loader/internal/config"
)

type runFlags struct {
	keywords    []string
	limit       int
	artifact    string
	noWarehouse bool
}

// newRunCmd creates the 'run' subcommand, which performs one load and exits.
// Fetch and delivery failures are reported but never change the exit code.
func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, normalize and load contract awards once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := flags.apply(cmd, e.cfg)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, e.logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			defer a.Close()

			summary, err := a.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run %s: %w", summary.RunID, err)
			}
			if summary.Delivery != nil && summary.Delivery.Failure != nil {
				e.logger.Warn("run finished without a warehouse load", zap.Error(summary.Delivery.Failure))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&flags.keywords, "keyword", nil, "search keyword (repeatable); replaces search.keywords")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "per-keyword result cap; replaces search.limit")
	cmd.Flags().StringVar(&flags.artifact, "artifact", "", "CSV artifact path; replaces artifact.path")
	cmd.Flags().BoolVar(&flags.noWarehouse, "no-warehouse", false, "write the artifact only")
	return cmd
}

func (f runFlags) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	if cmd.Flags().Changed("keyword") {
		cfg.Search.Keywords = append([]string(nil), f.keywords...)
	}
	if cmd.Flags().Changed("limit") {
		cfg.Search.Limit = f.limit
	}
	if cmd.Flags().Changed("artifact") {
		cfg.Artifact.Path = f.artifact
	}
	if f.noWarehouse {
		cfg.Warehouse.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
