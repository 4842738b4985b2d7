package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"traverse/internal/decoder"
	"traverse/internal/engine"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List strategies, architectures and syntaxes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeLists(cmd.OutOrStdout())
	},
}

func writeLists(w io.Writer) error {
	var names []string
	for _, s := range engine.Strategies() {
		names = append(names, s.String())
	}
	_, err := fmt.Fprintf(w, "strategies:    %s\narchitectures: %s\nsyntaxes:      %s\n",
		strings.Join(names, " "),
		strings.Join(decoder.Architectures(), " "),
		strings.Join(decoder.Syntaxes(), " "))
	return err
}

func init() {
	rootCmd.AddCommand(listCmd)
}
