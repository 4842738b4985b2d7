// Package cmd implements the traverse command line: flag parsing, the
// plain, JSON and report outputs and the interactive browser.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"traverse/internal/engine"
	tlog "traverse/internal/traverse/log"
	"traverse/internal/traverse/styles"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().StringP("strategy", "s", engine.Linear.String(), "Traversal strategy (see traverse list)")
	rootCmd.Flags().String("start", "", "Start address; defaults to .text for ELF files and the load address otherwise")
	rootCmd.Flags().Uint64P("length", "l", 0, "Bytes to scan with the linear strategy; 0 scans to the end")
	rootCmd.Flags().String("symbol", "", "Symbol to start from; implies --strategy symbol")
	rootCmd.Flags().String("section", "", "Section to scan; implies --strategy section")
	rootCmd.Flags().StringSliceP("entry", "e", nil, "Entry point for the entry strategy (repeatable)")
	rootCmd.Flags().StringP("arch", "a", "", "Architecture; defaults to the ELF machine or x86_64")
	rootCmd.Flags().String("syntax", "", "Assembly syntax: att or intel")
	rootCmd.Flags().String("vma", "", "Load address of a raw image")
	rootCmd.Flags().Bool("raw", false, "Treat the file as a flat image even if it is ELF")
	rootCmd.Flags().IntP("max-insns", "m", 0, fmt.Sprintf("Instruction limit; 0 means %d", engine.DefaultMaxInstructions))
	rootCmd.Flags().BoolP("blocks", "b", false, "Annotate basic blocks")
	rootCmd.Flags().StringP("output", "o", "", "Output format: listing, json or report")
	rootCmd.Flags().BoolP("json", "j", false, "Shorthand for --output json")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print the listing instead of opening the browser")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(runCmd)
}

var rootCmd = &cobra.Command{
	Use:   "traverse [file]",
	Short: "Control-flow aware disassembler",
	Long: `Traverse disassembles ELF binaries and raw images.
It decodes a single instruction, sweeps a range linearly, or follows jumps
and calls from an address, a symbol, a section or the entry points.`,
	Example: `
# Browse the entry point interactively
traverse -s entry /path/to/binary

# Follow control flow from main and print basic blocks
traverse --symbol main -b -n /path/to/binary

# Sweep a raw 16-bit image loaded at 0x7c00
traverse --raw --vma 0x7c00 -a 8086 boot.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}

		cfg, err := configFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfg.File); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", args[0])
			}
			return fmt.Errorf("cannot access file: %v", err)
		}

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
			os.Setenv("TRAVERSE_NO_COLOR", "1")
		}
		if cfg.Output != "" {
			noTUI = true
		}
		return execute(cmd.Context(), cfg, cmd.OutOrStdout(), !noTUI)
	},
}

// configFromFlags builds a Config from the root command's flags.
func configFromFlags(cmd *cobra.Command, file string) (Config, error) {
	abs, err := pathpkg.Abs(file)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve path: %v", err)
	}

	f := cmd.Flags()
	cfg := Config{File: abs}
	if f.Changed("strategy") {
		cfg.Strategy, _ = f.GetString("strategy")
	}
	cfg.Start, _ = f.GetString("start")
	cfg.Length, _ = f.GetUint64("length")
	cfg.Symbol, _ = f.GetString("symbol")
	cfg.Section, _ = f.GetString("section")
	cfg.Entries, _ = f.GetStringSlice("entry")
	cfg.Arch, _ = f.GetString("arch")
	cfg.Syntax, _ = f.GetString("syntax")
	cfg.VMA, _ = f.GetString("vma")
	cfg.Raw, _ = f.GetBool("raw")
	cfg.MaxInstructions, _ = f.GetInt("max-insns")
	cfg.Blocks, _ = f.GetBool("blocks")
	cfg.Output, _ = f.GetString("output")
	cfg.Debug, _ = f.GetBool("debug")

	if asJSON, _ := f.GetBool("json"); asJSON {
		if cfg.Output != "" && cfg.Output != OutputJSON {
			return cfg, fmt.Errorf("--json conflicts with --output %s", cfg.Output)
		}
		cfg.Output = OutputJSON
	}
	switch cfg.Output {
	case "", OutputListing, OutputJSON, OutputReport:
	default:
		return cfg, fmt.Errorf("unknown output %q (want listing, json or report)", cfg.Output)
	}
	return cfg, nil
}

// execute runs the traversal cfg describes and writes it to w, or opens
// the browser when interactive is set.
func execute(ctx context.Context, cfg Config, w io.Writer, interactive bool) error {
	logger := tlog.Setup(cfg.Debug)

	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if interactive {
		program := tea.NewProgram(
			NewModel(ctx, s),
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	}

	d, err := s.run(ctx, s.req)
	if err != nil {
		return err
	}
	if n := len(d.Errors()); n > 0 {
		logger.Debug("traversal recorded errors", "count", n)
	}

	switch cfg.Output {
	case OutputJSON:
		return writeJSON(w, s, s.req, d, cfg.Blocks)
	case OutputReport:
		digest, err := fileDigest(cfg.File)
		if err != nil {
			logger.Warn("digest failed", "error", err)
		}
		_, err = fmt.Fprint(w, styles.Render(reportMarkdown(s, s.req, d, digest), 100))
		return err
	default:
		_, err := fmt.Fprint(w, formatListing(s, s.req, d, cfg.Blocks, 0))
		return err
	}
}

// Execute runs the root command. Output that is piped, or requested as
// plain text, bypasses fang's styled help and error rendering.
func Execute() {
	plain := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			plain = true
			break
		}
	}
	if !plain && !term.IsTerminal(os.Stdout.Fd()) {
		plain = true
	}

	var err error
	if plain {
		err = rootCmd.Execute()
	} else {
		err = fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		)
	}
	tlog.Close()
	if err != nil {
		os.Exit(1)
	}
}

// ResolveCwd changes to the --cwd directory when given and returns the
// working directory.
func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
