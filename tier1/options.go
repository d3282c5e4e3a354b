// Package tier1 translates one decoded basic block of x86 IR into a
// WebAssembly module with an inline software-TLB fast path. Compilation is a
// pure function of (block, options); the generated module holds no state
// between calls.
package tier1

import (
	"fmt"

	"github.com/wilsonzlin/aerojit/wasm"
)

// Options is the immutable compile-time configuration. Zero value disables
// every fast path; use DefaultOptions for the production shape.
type Options struct {
	// InlineTLB embeds the direct-mapped TLB probe for guest memory access.
	// It is automatically disabled for blocks with no eligible memory
	// operations.
	InlineTLB bool
	// InlineTLBStores extends the inline fast path to stores. When false,
	// stores always go through the slow write helpers.
	InlineTLBStores bool
	// MMIOExit bails out with the exit sentinel on non-RAM accesses instead
	// of calling the slow helpers and continuing.
	MMIOExit bool
	// CrossPageFast splits page-straddling accesses inline once both pages
	// translate to RAM. When false, straddling accesses call slow helpers.
	CrossPageFast bool
	// MemoryShared imports the linear memory as shared.
	MemoryShared bool
	// MemoryMinPages and MemoryMaxPages bound the memory import.
	// MemoryMaxPages 0 means no declared maximum; shared memories require a
	// maximum and default to the wasm32 limit.
	MemoryMinPages uint32
	MemoryMaxPages uint32
}

// DefaultOptions returns the production configuration: every fast path on,
// one unshared memory page minimum.
func DefaultOptions() Options {
	return Options{
		InlineTLB:       true,
		InlineTLBStores: true,
		MMIOExit:        true,
		CrossPageFast:   true,
		MemoryMinPages:  1,
	}
}

// memoryLimits resolves the memory import shape. Inconsistent limits are a
// host programming error, never guest input, so they panic.
func (o Options) memoryLimits() wasm.Limits {
	lim := wasm.Limits{Min: o.MemoryMinPages, Shared: o.MemoryShared}
	switch {
	case o.MemoryMaxPages != 0:
		lim.Max = o.MemoryMaxPages
		lim.HasMax = true
	case o.MemoryShared:
		// Shared memories must declare a maximum.
		lim.Max = wasm.MaxMemoryPages
		lim.HasMax = true
	}
	if lim.Min > wasm.MaxMemoryPages {
		panic(fmt.Sprintf("tier1: memory min pages %d exceeds wasm32 limit", lim.Min))
	}
	if lim.HasMax && lim.Max > wasm.MaxMemoryPages {
		panic(fmt.Sprintf("tier1: memory max pages %d exceeds wasm32 limit", lim.Max))
	}
	if lim.HasMax && lim.Min > lim.Max {
		panic(fmt.Sprintf("tier1: memory min pages %d exceeds max %d", lim.Min, lim.Max))
	}
	return lim
}

// storeFastPath reports whether stores use the inline TLB under o.
func (o Options) storeFastPath() bool { return o.InlineTLB && o.InlineTLBStores }
