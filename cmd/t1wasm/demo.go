package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aerojit/ir"
	"github.com/wilsonzlin/aerojit/tier1"
	"github.com/wilsonzlin/aerojit/wasmrt"
)

// demoBlock is, roughly:
//
//	add rax, 0x201            ; sets flags
//	mov [rdi], rax
//	mov rdx, [rdi]
//	mov bl, (zf ? 1 : 0xff)
//	jmp 0x401015
func demoBlock() *ir.Block {
	b := ir.NewBuilder(0x401000)
	addr := b.ReadReg(ir.GprReg(ir.RDI, ir.W64))
	acc := b.ReadReg(ir.GprReg(ir.RAX, ir.W64))
	k := b.ConstInt(ir.W64, 0x201)
	sum := b.BinOp(ir.Add, ir.W64, acc, k, ir.FlagSetArith)
	b.WriteReg(ir.GprReg(ir.RAX, ir.W64), sum)
	b.Store(ir.W64, addr, sum)
	got := b.Load(ir.W64, addr)
	b.WriteReg(ir.GprReg(ir.RDX, ir.W64), got)
	zero := b.EvalCond(ir.CondE)
	yes := b.ConstInt(ir.W8, 1)
	no := b.ConstInt(ir.W8, 0xff)
	picked := b.Select(zero, yes, no)
	b.WriteReg(ir.GprReg(ir.RBX, ir.W8), picked)
	return b.Finish(ir.Jump{Target: 0x401015})
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Compile and execute a built-in demo block",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			blk := demoBlock()
			mod, err := tier1.Compile(blk, tier1.DefaultOptions())
			if err != nil {
				return err
			}
			tree, err := moduleTree(mod)
			if err != nil {
				return err
			}
			fmt.Printf("compiled demo block at %#x: %d bytes\n", blk.Entry, len(mod))
			fmt.Println(tree.String())

			env, err := wasmrt.New(ctx, wasmrt.Config{
				RAMBytes:         1 << 20,
				TLBSalt:          0x5a5a,
				CodeVersionPages: 64,
			})
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			env.SetGpr(ir.RDI, 0x8000)
			env.SetGpr(ir.RAX, 0x1234)
			env.SetRIP(blk.Entry)

			// The second run shows the warm TLB: no new translations.
			for run := 1; run <= 2; run++ {
				next, err := env.Run(ctx, mod)
				if err != nil {
					return err
				}
				fmt.Printf("run %d: next rip %#x, rax=%#x rdx=%#x bl=%#x rflags=%#x\n",
					run, next, env.Gpr(ir.RAX), env.Gpr(ir.RDX), env.Gpr(ir.RBX)&0xff, env.RFlags())
				fmt.Printf("       translates=%d slow_reads=%d slow_writes=%d mmio_exits=%d\n",
					env.Translates, env.SlowReads, env.SlowWrites, env.MMIOExits)
			}
			fmt.Printf("ram[0x8000..0x8008] = % x\n", env.ReadRAM(0x8000, 8))
			return nil
		},
	}
}
