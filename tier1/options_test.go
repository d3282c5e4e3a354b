package tier1

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aerojit/wasm"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	require.True(t, o.InlineTLB)
	require.True(t, o.InlineTLBStores)
	require.True(t, o.MMIOExit)
	require.True(t, o.CrossPageFast)
	require.False(t, o.MemoryShared)
	require.Equal(t, uint32(1), o.MemoryMinPages)
	require.Equal(t, uint32(0), o.MemoryMaxPages)
}

func TestMemoryLimits(t *testing.T) {
	t.Run("no max", func(t *testing.T) {
		lim := Options{MemoryMinPages: 2}.memoryLimits()
		require.Equal(t, wasm.Limits{Min: 2}, lim)
	})
	t.Run("explicit max", func(t *testing.T) {
		lim := Options{MemoryMinPages: 2, MemoryMaxPages: 8}.memoryLimits()
		require.Equal(t, wasm.Limits{Min: 2, Max: 8, HasMax: true}, lim)
	})
	t.Run("shared defaults max", func(t *testing.T) {
		lim := Options{MemoryShared: true, MemoryMinPages: 1}.memoryLimits()
		require.Equal(t, wasm.Limits{Min: 1, Max: wasm.MaxMemoryPages, HasMax: true, Shared: true}, lim)
	})
	t.Run("min beyond wasm32", func(t *testing.T) {
		require.Panics(t, func() { Options{MemoryMinPages: wasm.MaxMemoryPages + 1}.memoryLimits() })
	})
	t.Run("max beyond wasm32", func(t *testing.T) {
		require.Panics(t, func() { Options{MemoryMaxPages: wasm.MaxMemoryPages + 1}.memoryLimits() })
	})
	t.Run("min over max", func(t *testing.T) {
		require.Panics(t, func() { Options{MemoryMinPages: 4, MemoryMaxPages: 2}.memoryLimits() })
	})
}

func TestStoreFastPath(t *testing.T) {
	require.True(t, Options{InlineTLB: true, InlineTLBStores: true}.storeFastPath())
	require.False(t, Options{InlineTLB: true}.storeFastPath())
	require.False(t, Options{InlineTLBStores: true}.storeFastPath())
}
