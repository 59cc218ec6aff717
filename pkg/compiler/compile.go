package compiler

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Options configures a Compiler.
type Options struct {
	// StackTop is the address of the Stack label. Zero means DefaultStackTop.
	StackTop int

	// StackSize is the number of values the stack region below StackTop
	// holds. Zero means DefaultStackSize.
	StackSize int

	// Logger receives one debug event per pipeline stage.
	Logger *zerolog.Logger
}

// Compiler turns RPN expressions into Y86 assembly. A Compiler holds no
// per-call state and may be shared between goroutines.
type Compiler struct {
	stackTop  int
	stackSize int
	log       zerolog.Logger
}

// New returns a Compiler configured by opts.
func New(opts Options) *Compiler {
	c := &Compiler{stackTop: opts.StackTop, stackSize: opts.StackSize, log: zerolog.Nop()}
	if c.stackTop == 0 {
		c.stackTop = DefaultStackTop
	}
	if c.stackSize == 0 {
		c.stackSize = DefaultStackSize
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	}
	return c
}

// Compile runs the full pipeline: Lex → Build → Generate → program text.
// The program is assembled once to check that its code ends below the stack
// region. On error no partial output is returned.
func (c *Compiler) Compile(expr string) (string, error) {
	tokens, err := Lex(expr)
	if err != nil {
		c.log.Debug().Err(err).Msg("lex failed")
		return "", err
	}
	c.log.Debug().Int("tokens", len(tokens)).Msg("lexed expression")

	instrs, err := Build(tokens)
	if err != nil {
		c.log.Debug().Err(err).Msg("build failed")
		return "", err
	}
	c.log.Debug().Int("instructions", len(instrs)).Msg("built IR")

	body, err := Generate(instrs)
	if err != nil {
		c.log.Debug().Err(err).Msg("codegen failed")
		return "", err
	}

	if c.stackSize < 0 || c.stackTop < 4*c.stackSize {
		err := &CompileError{
			Kind: CodeGenError,
			Pos:  -1,
			Msg:  fmt.Sprintf("a stack of %d values does not fit below 0x%x", c.stackSize, c.stackTop),
		}
		c.log.Debug().Err(err).Msg("codegen failed")
		return "", err
	}

	program := assemble(body, c.stackTop, c.stackSize)
	if err := checkLayout(program); err != nil {
		c.log.Debug().Err(err).Msg("layout failed")
		return "", err
	}
	c.log.Debug().
		Int("bytes", len(program)).
		Int("stack_top", c.stackTop).
		Int("stack_size", c.stackSize).
		Msg("generated program")
	return program, nil
}

var defaultCompiler = New(Options{})

// Compile compiles expr with default options.
func Compile(expr string) (string, error) {
	return defaultCompiler.Compile(expr)
}
