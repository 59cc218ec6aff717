package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const defaultAsmOutput = "a.ys"

func (a *app) compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [expression]",
		Short: "Compile an expression to a Y86 assembly file",
		Example: `  rpnc compile "7 1 + 3 -"
  rpnc compile -i expr.rpn -o expr.ys
  echo "6 3 /" | rpnc compile --stdin -o -`,
		Args: cobra.ArbitraryArgs,
		RunE: a.runCompile,
	}
	addInputFlags(cmd)
	addOutputFlags(cmd, "output file, - for stdout (default a.ys)")
	return cmd
}

func (a *app) runCompile(cmd *cobra.Command, args []string) error {
	expr, err := a.readExpression(cmd, args)
	if err != nil {
		return err
	}

	program, err := a.compiler().Compile(expr)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = defaultAsmOutput
	}
	force, _ := cmd.Flags().GetBool("force")
	if err := writeOutput(cmd, output, []byte(program), force); err != nil {
		return err
	}

	if output != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d bytes -> %s\n", green("compiled"), len(program), output)
	}
	return nil
}
