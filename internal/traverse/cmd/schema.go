package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// Output formats.
const (
	OutputListing = "listing"
	OutputJSON    = "json"
	OutputReport  = "report"
)

// Config describes one traversal. It is filled from flags on the command
// line and from a JSON file by `traverse run`.
type Config struct {
	File            string   `json:"file" jsonschema:"title=File,description=ELF binary or raw image to disassemble"`
	Strategy        string   `json:"strategy,omitempty" jsonschema:"title=Strategy,enum=single,enum=linear,enum=cflow,enum=symbol,enum=section,enum=entry,default=linear"`
	Start           string   `json:"start,omitempty" jsonschema:"title=Start,description=Start address (hex with 0x prefix or decimal)"`
	Length          uint64   `json:"length,omitempty" jsonschema:"title=Length,description=Bytes covered by a linear traversal; 0 means to the end"`
	Symbol          string   `json:"symbol,omitempty" jsonschema:"title=Symbol,description=Symbol seeding the symbol strategy"`
	Section         string   `json:"section,omitempty" jsonschema:"title=Section,description=Section scanned by the section strategy"`
	Entries         []string `json:"entries,omitempty" jsonschema:"title=Entry points,description=Entry points overriding the file's own"`
	Arch            string   `json:"arch,omitempty" jsonschema:"title=Architecture,enum=8086,enum=x86,enum=x86_att,enum=x86_intel,enum=x86_64,enum=x86_64_att,enum=x86_64_intel,enum=arm64"`
	Syntax          string   `json:"syntax,omitempty" jsonschema:"title=Syntax,enum=att,enum=intel"`
	VMA             string   `json:"vma,omitempty" jsonschema:"title=Load address,description=Base address of a raw image"`
	Raw             bool     `json:"raw,omitempty" jsonschema:"title=Raw,description=Treat the file as a flat image even if it is ELF"`
	MaxInstructions int      `json:"maxInstructions,omitempty" jsonschema:"title=Instruction limit,minimum=0"`
	Blocks          bool     `json:"blocks,omitempty" jsonschema:"title=Blocks,description=Annotate basic blocks"`
	Output          string   `json:"output,omitempty" jsonschema:"title=Output,enum=listing,enum=json,enum=report,default=listing"`
	Debug           bool     `json:"debug,omitempty" jsonschema:"title=Debug,description=Enable debug logging"`
}

// LoadConfig reads a Config from a JSON file. Unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// parseAddr accepts 0x-prefixed hex, 0o octal or decimal addresses, and
// bare hex digits as printed in listings.
func parseAddr(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Generate JSON schema for configuration",
	Long:   "Generate JSON schema for the configuration files accepted by traverse run",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := new(jsonschema.Reflector)
		bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
