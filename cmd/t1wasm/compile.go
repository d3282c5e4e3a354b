package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aerojit/blockcache"
	"github.com/wilsonzlin/aerojit/log"
	"github.com/wilsonzlin/aerojit/tier1"
)

func newCompileCmd() *cobra.Command {
	var (
		outPath      string
		dump         bool
		cacheDir     string
		cacheEntries int
		opts         = tier1.DefaultOptions()
	)

	cmd := &cobra.Command{
		Use:   "compile <block.json>",
		Short: "Compile one IR block to a WebAssembly module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			blk, err := decodeBlock(in)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			var mod []byte
			if cacheDir != "" {
				c, err := blockcache.Open(cacheDir, cacheEntries)
				if err != nil {
					return err
				}
				defer c.Close()
				if mod, err = c.Compile(blk, opts); err != nil {
					return err
				}
			} else if mod, err = tier1.Compile(blk, opts); err != nil {
				return err
			}

			if outPath == "" {
				outPath = strings.TrimSuffix(args[0], ".json") + ".wasm"
			}
			if err := os.WriteFile(outPath, mod, 0o644); err != nil {
				return err
			}
			log.Info("wrote module", "path", outPath, "bytes", len(mod))

			if dump {
				tree, err := moduleTree(mod)
				if err != nil {
					return err
				}
				fmt.Println(tree.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (default: input with .wasm extension)")
	cmd.Flags().BoolVar(&dump, "dump", false, "Print the module section tree")
	cmd.Flags().StringVar(&cacheDir, "cache", "", "Block cache directory (enables compile-through caching)")
	cmd.Flags().IntVar(&cacheEntries, "cache-entries", 1024, "Hot cache entries")
	cmd.Flags().BoolVar(&opts.InlineTLB, "inline-tlb", opts.InlineTLB, "Inline the TLB fast path for memory access")
	cmd.Flags().BoolVar(&opts.InlineTLBStores, "inline-tlb-stores", opts.InlineTLBStores, "Extend the inline fast path to stores")
	cmd.Flags().BoolVar(&opts.MMIOExit, "mmio-exit", opts.MMIOExit, "Exit to the host on non-RAM accesses")
	cmd.Flags().BoolVar(&opts.CrossPageFast, "cross-page-fast", opts.CrossPageFast, "Split page-straddling accesses inline")
	cmd.Flags().BoolVar(&opts.MemoryShared, "shared-memory", opts.MemoryShared, "Import the linear memory as shared")
	cmd.Flags().Uint32Var(&opts.MemoryMinPages, "memory-min-pages", opts.MemoryMinPages, "Minimum imported memory pages")
	cmd.Flags().Uint32Var(&opts.MemoryMaxPages, "memory-max-pages", opts.MemoryMaxPages, "Maximum imported memory pages (0 for none)")
	return cmd
}
