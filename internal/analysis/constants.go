// Package analysis derives structure from finished traversals: basic
// blocks, function symbol lists and demangled names for the listings.
package analysis

const (
	// MaxListingInstructions caps how many instructions the interactive
	// listing renders.
	MaxListingInstructions = 20000

	// MaxSymbolList caps the symbol picker.
	MaxSymbolList = 5000

	// TopSymbols is the number of entries in the demangle cache report.
	TopSymbols = 5
)
