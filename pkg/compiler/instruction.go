package compiler

import "fmt"

// Opcode is the operation carried by one IR instruction.
type Opcode int

const (
	OpPush Opcode = iota
	OpPlus
	OpMinus
	OpMultiply
	OpDivide
	OpDup
	OpSwap
	OpAnd
	OpXor

	numOpcodes
)

var opcodeNames = [...]string{
	OpPush:     "PUSH",
	OpPlus:     "PLUS",
	OpMinus:    "MINUS",
	OpMultiply: "MULTIPLY",
	OpDivide:   "DIVIDE",
	OpDup:      "DUP",
	OpSwap:     "SWAP",
	OpAnd:      "AND",
	OpXor:      "XOR",
}

func (op Opcode) String() string {
	if op >= 0 && op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// Instruction is one step of the IR. Value holds the literal for OpPush and
// is empty otherwise. Pos is the position of the source token.
type Instruction struct {
	Op    Opcode
	Value string
	Pos   int
}

func (in Instruction) String() string {
	if in.Op == OpPush {
		return fmt.Sprintf("%s %s", in.Op, in.Value)
	}
	return in.Op.String()
}

// StackEffect describes how many operands an opcode consumes and produces.
type StackEffect struct {
	Pops   int
	Pushes int
}

// Delta is the net change in stack depth.
func (se StackEffect) Delta() int {
	return se.Pushes - se.Pops
}

// stackEffects is indexed by Opcode. DUP is modelled as pop x, push x, push x.
var stackEffects = [numOpcodes]StackEffect{
	OpPush:     {Pops: 0, Pushes: 1},
	OpPlus:     {Pops: 2, Pushes: 1},
	OpMinus:    {Pops: 2, Pushes: 1},
	OpMultiply: {Pops: 2, Pushes: 1},
	OpDivide:   {Pops: 2, Pushes: 1},
	OpDup:      {Pops: 1, Pushes: 2},
	OpSwap:     {Pops: 2, Pushes: 2},
	OpAnd:      {Pops: 2, Pushes: 1},
	OpXor:      {Pops: 2, Pushes: 1},
}

// EffectOf returns the stack effect of op. It panics for an opcode outside
// the table, which can only come from a builder defect.
func EffectOf(op Opcode) StackEffect {
	se, ok := lookupEffect(op)
	if !ok {
		panic(fmt.Sprintf("compiler: no stack effect for %s", op))
	}
	return se
}

func lookupEffect(op Opcode) (StackEffect, bool) {
	if op < 0 || op >= numOpcodes {
		return StackEffect{}, false
	}
	return stackEffects[op], true
}

// tokenOpcodes maps the token kinds the builder accepts to their opcode.
var tokenOpcodes = map[TokenType]Opcode{
	NUMBER:   OpPush,
	PLUS:     OpPlus,
	MINUS:    OpMinus,
	ASTERISK: OpMultiply,
	SLASH:    OpDivide,
	DUP:      OpDup,
	SWAP:     OpSwap,
	AND:      OpAnd,
	XOR:      OpXor,
}
