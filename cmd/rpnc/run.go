package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"rpnc/pkg/compiler"
	"rpnc/pkg/cpu"
)

// faultError reports a program that stopped in one of the error handlers.
type faultError struct {
	Code uint32
}

func (e *faultError) Error() string {
	name := compiler.FaultName(e.Code)
	if name == "" {
		name = "unknown fault"
	}
	return fmt.Sprintf("program fault: %s (code 0x%x)", name, e.Code)
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [expression]",
		Short: "Compile, assemble and simulate an expression",
		Example: `  rpnc run "7 1 + 3 -"
  rpnc run --regs 6 3 /
  rpnc run -- -4 3 '*'`,
		Args: cobra.ArbitraryArgs,
		RunE: a.runRun,
	}
	addInputFlags(cmd)
	cmd.Flags().Bool("regs", false, "print the register file after the run")
	return cmd
}

func (a *app) runRun(cmd *cobra.Command, args []string) error {
	expr, err := a.readExpression(cmd, args)
	if err != nil {
		return err
	}

	program, err := a.compiler().Compile(expr)
	if err != nil {
		return err
	}

	image, _, err := a.assembler().Assemble(program)
	if err != nil {
		return fmt.Errorf("assembly failed: %w", err)
	}

	vm, err := a.execute(image)
	if err != nil {
		return err
	}

	if regs, _ := cmd.Flags().GetBool("regs"); regs {
		printRegisters(cmd.OutOrStdout(), vm)
	}

	if code := vm.Regs[cpu.RegEDI]; code != 0 {
		return &faultError{Code: code}
	}
	fmt.Fprintln(cmd.OutOrStdout(), vm.Reg(cpu.RegEAX))
	return nil
}

// printRegisters renders the register file, PC, flags and status as a table.
func printRegisters(w io.Writer, vm *cpu.CPU) {
	t := table.NewWriter()
	t.SetTitle("Registers")
	t.AppendHeader(table.Row{"Register", "Hex", "Decimal"})
	for r := cpu.RegEAX; r <= cpu.RegEDI; r++ {
		t.AppendRow(table.Row{cpu.RegisterName(r), fmt.Sprintf("0x%08x", vm.Regs[r]), vm.Reg(r)})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"pc", fmt.Sprintf("0x%08x", vm.PC), ""})
	t.AppendRow(table.Row{"flags", fmt.Sprintf("ZF=%d SF=%d OF=%d", b2i(vm.ZF), b2i(vm.SF), b2i(vm.OF)), ""})
	t.AppendFooter(table.Row{"status", vm.Status, fmt.Sprintf("%d steps", vm.Steps)})
	fmt.Fprintln(w, t.Render())
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
