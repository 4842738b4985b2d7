package cmd

import (
	"fmt"
	"log/slog"
	pathpkg "path/filepath"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <config.json> [file]",
	Short: "Run a saved traversal non-interactively",
	Long: `Run a traversal described by a JSON configuration file and exit.
A file given on the command line replaces the one in the configuration.
Use "traverse schema" to print the configuration schema.`,
	Example: `
# Run a saved configuration
traverse run entry.json

# Apply the same configuration to another binary
traverse run entry.json /path/to/other
  `,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			cfg.File = args[1]
		}
		if cfg.File == "" {
			return fmt.Errorf("%s: no file to traverse", args[0])
		}
		if !pathpkg.IsAbs(cfg.File) {
			// relative paths in a config are relative to the config
			if len(args) == 2 {
				cfg.File, _ = pathpkg.Abs(cfg.File)
			} else {
				cfg.File = pathpkg.Join(pathpkg.Dir(args[0]), cfg.File)
			}
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			cfg.Debug = true
		}
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			cfg.Output = out
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		if !quiet {
			slog.Info("Running traversal", "file", cfg.File, "strategy", strategyName(cfg))
		}
		return execute(cmd.Context(), cfg, cmd.OutOrStdout(), false)
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Do not log the traversal being run")
	runCmd.Flags().StringP("output", "o", "", "Override the configured output format")
}
