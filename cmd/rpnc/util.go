package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"rpnc/pkg/compiler"
)

var (
	red   = color.New(color.FgRed).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "read the expression from a file")
	cmd.Flags().Bool("stdin", false, "read the expression from stdin")
}

func addOutputFlags(cmd *cobra.Command, usage string) {
	cmd.Flags().StringP("output", "o", "", usage)
	cmd.Flags().BoolP("force", "f", false, "overwrite an existing output file")
}

// readExpression determines the expression to compile. There are three
// possibilities:
//  1. positional arguments, joined with spaces
//  2. --input <file>
//  3. --stdin
func (a *app) readExpression(cmd *cobra.Command, args []string) (string, error) {
	var inputSet, stdinSet bool
	if f := cmd.Flags().Lookup("input"); f != nil && f.Changed {
		inputSet = true
	}
	if f := cmd.Flags().Lookup("stdin"); f != nil && f.Changed {
		stdinSet = true
	}
	argsSet := len(args) > 0

	sources := 0
	for _, set := range []bool{argsSet, inputSet, stdinSet} {
		if set {
			sources++
		}
	}
	switch {
	case sources > 1:
		return "", errors.New("multiple input sources specified")
	case sources == 0:
		return "", errors.New("no expression given: pass it as an argument, with --input, or with --stdin")
	}

	var expr string
	switch {
	case stdinSet:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		expr = string(data)
	case inputSet:
		path, _ := cmd.Flags().GetString("input")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read input file %q: %w", path, err)
		}
		expr = string(data)
	default:
		expr = strings.Join(args, " ")
	}

	a.expr = expr
	a.log.Debug().Str("expr", expr).Msg("read expression")
	return expr, nil
}

// writeOutput writes data to path, or to the command's stdout when path is
// "-". An existing file is only replaced when force is set.
func writeOutput(cmd *cobra.Command, path string, data []byte, force bool) error {
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -f to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".bin"
	}
	return strings.TrimSuffix(inPath, ext) + ".bin"
}

// printJSON renders v with colors unless color output is disabled.
func printJSON(w io.Writer, v any) error {
	var (
		out []byte
		err error
	)
	if color.NoColor {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = prettyjson.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// printError reports err on w. Compile errors tied to a position are followed
// by the expression with a caret under the offending character.
func (a *app) printError(w io.Writer, err error) {
	fmt.Fprintln(w, red(err.Error()))

	var ce *compiler.CompileError
	if !errors.As(err, &ce) || ce.Pos < 0 || a.expr == "" {
		return
	}
	line := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		return r
	}, a.expr)
	if ce.Pos > len([]rune(line)) {
		return
	}
	fmt.Fprintf(w, "  %s\n  %s%s\n", line, strings.Repeat(" ", ce.Pos), bold("^"))
}
