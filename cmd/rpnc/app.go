package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpnc/pkg/asm"
	"rpnc/pkg/compiler"
	"rpnc/pkg/cpu"
)

const defaultMaxSteps = 10_000_000

// app carries configuration shared by every subcommand.
type app struct {
	v   *viper.Viper
	log zerolog.Logger

	// expr is the last expression read, kept for error reporting.
	expr string
}

func newApp() *app {
	return &app{v: viper.New(), log: zerolog.Nop()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rpnc [expression]",
		Short: "Compile RPN arithmetic to Y86 assembly",
		Long: `rpnc compiles a Reverse Polish Notation expression such as "7 1 + 3 -"
into a Y86 assembly program that checks its operand stack at run time.

With no subcommand, rpnc behaves like "rpnc compile". Expressions that begin
with a negative number must follow "--".`,
		Args:              cobra.ArbitraryArgs,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runCompile,
	}

	pf := root.PersistentFlags()
	pf.BoolP("verbose", "v", false, "log pipeline stages to stderr")
	pf.Bool("no-color", false, "disable colored output")
	pf.Int("stack-top", compiler.DefaultStackTop, "address of the Stack label")
	pf.Int("stack-size", compiler.DefaultStackSize, "number of values the operand stack holds")
	pf.Int("max-steps", defaultMaxSteps, "simulator instruction limit, 0 for none")

	a.v.SetEnvPrefix("RPNC")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(pf); err != nil {
		panic(err)
	}

	addInputFlags(root)
	addOutputFlags(root, "output file, - for stdout (default a.ys)")

	root.AddCommand(
		a.compileCmd(),
		a.runCmd(),
		a.asmCmd(),
		a.tokensCmd(),
		a.irCmd(),
	)
	return root
}

// setup applies the global flags before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	noColor := a.v.GetBool("no-color")
	if noColor || !isTerminal(os.Stdout) {
		color.NoColor = true
	}

	level := zerolog.WarnLevel
	if a.v.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{
		Out:        cmd.ErrOrStderr(),
		NoColor:    noColor || !isTerminal(os.Stderr),
		TimeFormat: time.Kitchen,
	}
	a.log = zerolog.New(writer).Level(level).With().Timestamp().Str("cmd", cmd.Name()).Logger()

	top := a.v.GetInt("stack-top")
	if top <= 0 || top%4 != 0 {
		return fmt.Errorf("invalid stack top 0x%x: must be a positive multiple of 4", top)
	}
	if size := a.v.GetInt("stack-size"); size <= 0 {
		return fmt.Errorf("invalid stack size %d: must be positive", size)
	}
	if a.v.GetInt("max-steps") < 0 {
		return fmt.Errorf("invalid max steps %d", a.v.GetInt("max-steps"))
	}
	return nil
}

func (a *app) compiler() *compiler.Compiler {
	return compiler.New(compiler.Options{
		StackTop:  a.v.GetInt("stack-top"),
		StackSize: a.v.GetInt("stack-size"),
		Logger:    &a.log,
	})
}

func (a *app) assembler() *asm.Assembler {
	as := asm.NewAssembler()
	as.Log = a.log
	return as
}

// memorySize returns a memory size large enough for the configured stack and
// for an image of n bytes.
func (a *app) memorySize(n int) int {
	size := cpu.DefaultMemorySize
	if top := a.v.GetInt("stack-top"); top > size {
		size = top
	}
	if n > size {
		size = n
	}
	return size
}

// execute loads image into a fresh CPU and runs it to completion.
func (a *app) execute(image []byte) (*cpu.CPU, error) {
	vm := cpu.NewCPU(a.memorySize(len(image)))
	if err := vm.Load(image); err != nil {
		return nil, err
	}

	err := vm.Run(a.v.GetInt("max-steps"))
	a.log.Debug().
		Int("steps", vm.Steps).
		Stringer("status", vm.Status).
		Uint32("pc", vm.PC).
		Msg("simulation finished")
	if err != nil {
		return vm, fmt.Errorf("simulation stopped: %w", err)
	}
	return vm, nil
}
