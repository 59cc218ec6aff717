package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rpnc/pkg/compiler"
)

type tokenView struct {
	Type    string `json:"type"`
	Literal string `json:"literal,omitempty"`
	Pos     int    `json:"pos"`
}

type instructionView struct {
	Op     string `json:"op"`
	Value  string `json:"value,omitempty"`
	Pos    int    `json:"pos"`
	Pops   int    `json:"pops"`
	Pushes int    `json:"pushes"`
}

func (a *app) tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens [expression]",
		Short: "Print the tokens of an expression",
		Args:  cobra.ArbitraryArgs,
		RunE:  a.runTokens,
	}
	addInputFlags(cmd)
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func (a *app) runTokens(cmd *cobra.Command, args []string) error {
	expr, err := a.readExpression(cmd, args)
	if err != nil {
		return err
	}
	tokens, err := compiler.Lex(expr)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		views := make([]tokenView, len(tokens))
		for i, tok := range tokens {
			views[i] = tokenView{Type: tok.Type.String(), Literal: tok.Literal, Pos: tok.Pos}
		}
		return printJSON(cmd.OutOrStdout(), views)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Fprintln(out, " ", tok)
	}
	return nil
}

func (a *app) irCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ir [expression]",
		Short: "Print the intermediate instructions of an expression",
		Args:  cobra.ArbitraryArgs,
		RunE:  a.runIR,
	}
	addInputFlags(cmd)
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func (a *app) runIR(cmd *cobra.Command, args []string) error {
	expr, err := a.readExpression(cmd, args)
	if err != nil {
		return err
	}
	tokens, err := compiler.Lex(expr)
	if err != nil {
		return err
	}
	instrs, err := compiler.Build(tokens)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		views := make([]instructionView, len(instrs))
		for i, in := range instrs {
			e := compiler.EffectOf(in.Op)
			views[i] = instructionView{
				Op:     in.Op.String(),
				Value:  in.Value,
				Pos:    in.Pos,
				Pops:   e.Pops,
				Pushes: e.Pushes,
			}
		}
		return printJSON(cmd.OutOrStdout(), views)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Instructions (%d)\n", len(instrs))
	depth := 0
	for i, in := range instrs {
		e := compiler.EffectOf(in.Op)
		depth += e.Delta()
		fmt.Fprintf(out, "  %3d  %-12s pops %d  pushes %d  depth %d\n", i, in, e.Pops, e.Pushes, depth)
	}
	return nil
}
