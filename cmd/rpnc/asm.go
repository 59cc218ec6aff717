package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) asmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asm file.ys",
		Short: "Assemble a Y86 file into a memory image",
		Long: `Assemble a Y86 assembly file into a binary memory image starting at
address 0. The output defaults to the input path with a .bin extension.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runAsm,
	}
	addOutputFlags(cmd, "output file, - for stdout (default input with .bin extension)")
	cmd.Flags().Bool("run", false, "run the assembled image on the simulator")
	return cmd
}

func (a *app) runAsm(cmd *cobra.Command, args []string) error {
	inPath := args[0]
	source, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read input file %q: %w", inPath, err)
	}

	code, _, err := a.assembler().Assemble(string(source))
	if err != nil {
		return fmt.Errorf("assembly failed: %w", err)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = defaultOutputPath(inPath)
	}
	force, _ := cmd.Flags().GetBool("force")
	if err := writeOutput(cmd, output, code, force); err != nil {
		return err
	}
	if output != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d bytes -> %s\n", green("assembled"), len(code), output)
	}

	if run, _ := cmd.Flags().GetBool("run"); !run {
		return nil
	}
	vm, err := a.execute(code)
	if vm != nil {
		printRegisters(cmd.OutOrStdout(), vm)
	}
	return err
}
