package analysis

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"traverse/internal/elfx"
)

// FuncSymbol is a function symbol offered as a traversal seed.
type FuncSymbol struct {
	VA        uint64
	Size      uint64
	Name      string
	Demangled string
}

// Label returns the demangled name when it differs from the raw one.
func (s FuncSymbol) Label() string {
	if s.Demangled != "" {
		return s.Demangled
	}
	return s.Name
}

// symbolCache memoizes demangling; listings name the same call targets
// over and over.
type symbolCache struct {
	mu            sync.RWMutex
	demangleCache map[string]string
	hitCount      map[string]int
}

var cache = &symbolCache{
	demangleCache: make(map[string]string),
	hitCount:      make(map[string]int),
}

// CachedDemangle demangles a C++ or Rust symbol, returning the input when it
// is not mangled.
func CachedDemangle(mangled string) string {
	cache.mu.RLock()
	cached, exists := cache.demangleCache[mangled]
	cache.mu.RUnlock()
	if exists {
		cache.mu.Lock()
		cache.hitCount[mangled]++
		cache.mu.Unlock()
		return cached
	}

	demangled := demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	cache.demangleCache[mangled] = demangled
	cache.mu.Unlock()
	return demangled
}

// DemangleCacheStats returns the number of cached symbols, the number of
// cache hits and the most requested symbols.
func DemangleCacheStats() (totalSymbols int, cacheHits int, topSymbols []string) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	type symbolHit struct {
		symbol string
		count  int
	}
	var symbols []symbolHit
	for sym, count := range cache.hitCount {
		cacheHits += count
		symbols = append(symbols, symbolHit{sym, count})
	}
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].count != symbols[j].count {
			return symbols[i].count > symbols[j].count
		}
		return symbols[i].symbol < symbols[j].symbol
	})

	for i := 0; i < TopSymbols && i < len(symbols); i++ {
		topSymbols = append(topSymbols, fmt.Sprintf("%s (%d hits)", symbols[i].symbol, symbols[i].count))
	}
	return len(cache.demangleCache), cacheHits, topSymbols
}

// ScanSymbols lists the function symbols of an ELF image in address order,
// one per address.
func ScanSymbols(im *elfx.Image) []FuncSymbol {
	seen := make(map[uint64]bool)
	var out []FuncSymbol
	for _, sym := range im.Syms {
		if !sym.Func || seen[sym.Addr] {
			continue
		}
		seen[sym.Addr] = true

		fs := FuncSymbol{VA: sym.Addr, Size: sym.Size, Name: sym.Name}
		if d := CachedDemangle(sym.Name); d != sym.Name {
			fs.Demangled = d
		}
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VA < out[j].VA })
	return out
}
