package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Shared error labels defined by the program epilogue.
const (
	labelDivideByZero = "divide_by_zero"
	labelStackError   = "stack_error"
	labelStackTooFull = "stack_too_full"
)

// Register roles in the generated program:
//
//	%esi  address of the depth cell, loaded once in Main
//	%edi  fault code, zero unless an error handler ran
//	%eax  result after the epilogue pops the last value
//
// %eax, %ebx, %ecx, %edx and %ebp are scratch inside a fragment and carry
// nothing into the next one.

// CodeGen walks the IR and emits Y86 assembly fragments.
type CodeGen struct {
	out       strings.Builder
	nextLabel int
}

func newCodeGen() *CodeGen {
	return &CodeGen{}
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, "\t"+format+"\n", args...)
}

func (cg *CodeGen) label(name string) {
	fmt.Fprintf(&cg.out, "%s:\n", name)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("# "+format, args...)
}

func (cg *CodeGen) blank() {
	cg.out.WriteString("\n")
}

// newSuffix returns a number unique within this program, used to keep the
// local labels of repeated fragments apart.
func (cg *CodeGen) newSuffix() int {
	n := cg.nextLabel
	cg.nextLabel++
	return n
}

// requireDepth jumps to stack_error unless the depth cell holds at least n.
func (cg *CodeGen) requireDepth(n int) {
	if n <= 0 {
		return
	}
	noun := "arguments"
	if n == 1 {
		noun = "argument"
	}
	cg.comment("ensure there are %d %s on the stack", n, noun)
	cg.line("mrmovl (%%esi), %%edx\t# %%edx = depth")
	cg.line("irmovl $%d, %%ecx", n)
	cg.line("subl %%ecx, %%edx")
	cg.line("jl %s\t\t# goto %s if depth < %d", labelStackError, labelStackError, n)
}

// requireRoom jumps to stack_too_full unless the stack region has space for
// n more values. The capacity cell sits right after the depth cell.
func (cg *CodeGen) requireRoom(n int) {
	if n <= 0 {
		return
	}
	cg.comment("ensure the stack has room for %d more", n)
	cg.line("mrmovl (%%esi), %%edx\t# %%edx = depth")
	cg.line("mrmovl %d(%%esi), %%ecx\t# %%ecx = capacity", capacityOffset)
	cg.line("subl %%ecx, %%edx")
	if n > 1 {
		cg.line("irmovl $%d, %%ecx", n-1)
		cg.line("addl %%ecx, %%edx")
	}
	cg.line("jge %s\t# goto %s if depth + %d > capacity", labelStackTooFull, labelStackTooFull, n)
}

// adjustDepth adds delta to the depth cell.
func (cg *CodeGen) adjustDepth(delta int) {
	if delta == 0 {
		return
	}
	cg.blank()
	switch {
	case delta > 0:
		cg.comment("increment stack depth by %d", delta)
	default:
		cg.comment("decrement stack depth by %d", -delta)
	}
	cg.line("mrmovl (%%esi), %%edx\t# %%edx = depth")
	cg.line("irmovl $%d, %%ecx", delta)
	cg.line("addl %%ecx, %%edx")
	cg.line("rmmovl %%edx, (%%esi)\t# store depth")
}

// negate replaces reg with its two's complement negation, clobbering tmp.
func (cg *CodeGen) negate(reg, tmp string) {
	cg.line("xorl %s, %s", tmp, tmp)
	cg.line("subl %s, %s\t# %s = -%s", reg, tmp, tmp, reg)
	cg.line("rrmovl %s, %s", tmp, reg)
}

// nonPositive replaces reg with -|reg|, clobbering tmp. Unlike |reg|, this is
// representable for every int32, including -2147483648.
func (cg *CodeGen) nonPositive(reg, tmp, skip string) {
	cg.line("andl %s, %s", reg, reg)
	cg.line("jle %s\t# already non-positive", skip)
	cg.negate(reg, tmp)
	cg.label(skip)
}

// genInstr emits the fragment for one instruction. The depth guard and depth
// update come from the stack-effect table; the body performs the operation.
func (cg *CodeGen) genInstr(in Instruction) error {
	effect, ok := lookupEffect(in.Op)
	if !ok {
		return noTemplate(in)
	}

	cg.blank()
	cg.comment("[%s]", in.Op)
	cg.requireDepth(effect.Pops)
	cg.requireRoom(effect.Delta())

	switch in.Op {
	case OpPush:
		v, err := strconv.ParseInt(in.Value, 10, 32)
		if err != nil {
			return &CompileError{
				Kind:  CodeGenError,
				Pos:   in.Pos,
				Token: in.Value,
				Msg:   "literal is not a 32-bit integer",
				Err:   err,
			}
		}
		cg.comment("push the number %d onto the stack", v)
		cg.line("irmovl $%d, %%ecx", v)
		cg.line("pushl %%ecx")

	case OpDup:
		cg.blank()
		cg.line("popl %%ebx")
		cg.line("pushl %%ebx")
		cg.line("pushl %%ebx")

	case OpSwap:
		cg.blank()
		cg.line("popl %%ecx\t\t# %%ecx = y (top)")
		cg.line("popl %%ebx\t\t# %%ebx = x")
		cg.line("pushl %%ecx")
		cg.line("pushl %%ebx")

	case OpPlus, OpMinus, OpAnd, OpXor:
		cg.blank()
		cg.line("popl %%ecx\t\t# %%ecx = b")
		cg.line("popl %%ebx\t\t# %%ebx = a")
		cg.line("%s %%ecx, %%ebx\t# %%ebx = a %s b", aluMnemonic(in.Op), aluSymbol(in.Op))
		cg.line("pushl %%ebx")

	case OpMultiply:
		cg.genMultiply(cg.newSuffix())

	case OpDivide:
		cg.genDivide(cg.newSuffix())

	default:
		return noTemplate(in)
	}

	cg.adjustDepth(effect.Delta())
	return nil
}

func noTemplate(in Instruction) error {
	return &CompileError{
		Kind: CodeGenError,
		Pos:  in.Pos,
		Msg:  fmt.Sprintf("no code template for %s", in.Op),
	}
}

func aluMnemonic(op Opcode) string {
	switch op {
	case OpPlus:
		return "addl"
	case OpMinus:
		return "subl"
	case OpAnd:
		return "andl"
	case OpXor:
		return "xorl"
	}
	panic(fmt.Sprintf("compiler: %s is not an ALU opcode", op))
}

func aluSymbol(op Opcode) string {
	switch op {
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpAnd:
		return "&"
	case OpXor:
		return "^"
	}
	return "?"
}

// genMultiply emits a×b by repeated addition. The smaller magnitude drives the
// loop, and the sign of the product is the sign bit of a^b. Magnitudes are
// kept negated so that -2147483648 behaves like any other operand.
func (cg *CodeGen) genMultiply(n int) {
	done := fmt.Sprintf("mul_done_%d", n)
	loop := fmt.Sprintf("mul_loop_%d", n)
	ordered := fmt.Sprintf("mul_ordered_%d", n)

	cg.blank()
	cg.line("popl %%ecx\t\t# %%ecx = b")
	cg.line("popl %%ebx\t\t# %%ebx = a")
	cg.line("xorl %%eax, %%eax\t# %%eax = product")

	cg.blank()
	cg.comment("a zero operand gives zero without looping")
	cg.line("andl %%ecx, %%ecx")
	cg.line("je %s", done)
	cg.line("andl %%ebx, %%ebx")
	cg.line("je %s", done)

	cg.blank()
	cg.comment("remember the sign of the result")
	cg.line("rrmovl %%ebx, %%edx")
	cg.line("xorl %%ecx, %%edx\t# sign bit of %%edx set if signs differ")
	cg.line("pushl %%edx")

	cg.blank()
	cg.comment("work on negated magnitudes")
	cg.nonPositive("%ebx", "%edx", fmt.Sprintf("mul_neg_a_%d", n))
	cg.nonPositive("%ecx", "%edx", fmt.Sprintf("mul_neg_b_%d", n))

	cg.blank()
	cg.comment("count the smaller magnitude up to zero in %%ecx")
	cg.line("rrmovl %%ecx, %%edx")
	cg.line("subl %%ebx, %%edx\t# %%edx = |a| - |b|")
	cg.line("jge %s", ordered)
	cg.line("rrmovl %%ebx, %%edx")
	cg.line("rrmovl %%ecx, %%ebx")
	cg.line("rrmovl %%edx, %%ecx")
	cg.label(ordered)

	cg.label(loop)
	cg.line("addl %%ebx, %%eax\t# product -= |addend|")
	cg.line("irmovl $1, %%edx")
	cg.line("addl %%edx, %%ecx\t# counter++")
	cg.line("jne %s", loop)

	cg.blank()
	cg.comment("the product is -|a*b|, negate it when the signs agree")
	cg.line("popl %%edx")
	cg.line("andl %%edx, %%edx")
	cg.line("jl %s", done)
	cg.negate("%eax", "%edx")

	cg.label(done)
	cg.line("pushl %%eax")
}

// genDivide emits a÷b truncated toward zero. A zero divisor is detected before
// either operand is popped.
//
// The quotient is built by repeated subtraction, each time taking away the
// largest doubling of the divisor that still fits in the remainder. That keeps
// the loop within 32 subtractions of at most 32 doublings each. As in
// genMultiply, magnitudes are kept negated.
func (cg *CodeGen) genDivide(n int) {
	done := fmt.Sprintf("div_done_%d", n)
	loop := fmt.Sprintf("div_loop_%d", n)
	double := fmt.Sprintf("div_double_%d", n)
	take := fmt.Sprintf("div_take_%d", n)
	sign := fmt.Sprintf("div_sign_%d", n)

	cg.blank()
	cg.comment("refuse to divide by zero")
	cg.line("mrmovl (%%esp), %%ecx\t# %%ecx = b, left on the stack")
	cg.line("andl %%ecx, %%ecx")
	cg.line("je %s", labelDivideByZero)

	cg.blank()
	cg.line("popl %%ecx\t\t# %%ecx = b")
	cg.line("popl %%ebx\t\t# %%ebx = a")
	cg.line("xorl %%eax, %%eax\t# %%eax = quotient")
	cg.line("andl %%ebx, %%ebx")
	cg.line("je %s\t# 0 / b = 0", done)

	cg.blank()
	cg.comment("remember the sign of the result")
	cg.line("rrmovl %%ebx, %%edx")
	cg.line("xorl %%ecx, %%edx\t# sign bit of %%edx set if signs differ")
	cg.line("pushl %%edx")

	cg.blank()
	cg.comment("work on negated magnitudes, the remainder in %%ebx")
	cg.nonPositive("%ebx", "%edx", fmt.Sprintf("div_neg_a_%d", n))
	cg.nonPositive("%ecx", "%edx", fmt.Sprintf("div_neg_b_%d", n))
	cg.line("pushl %%ecx\t\t# keep -|b| on the stack")

	cg.label(loop)
	cg.line("mrmovl (%%esp), %%ecx\t# %%ecx = -|b|")
	cg.line("rrmovl %%ebx, %%edx")
	cg.line("subl %%ecx, %%edx")
	cg.line("jg %s\t# stop once remainder < |b|", sign)
	cg.line("irmovl $1, %%edx\t# %%ecx = -|b| * %%edx")

	cg.label(double)
	cg.line("rrmovl %%ecx, %%ebp")
	cg.line("addl %%ebp, %%ebp")
	cg.line("andl %%ebp, %%ebp")
	cg.line("jge %s\t# doubling wrapped", take)
	cg.line("subl %%ebx, %%ebp")
	cg.line("jl %s\t# doubling exceeds the remainder", take)
	cg.line("addl %%ebx, %%ebp")
	cg.line("rrmovl %%ebp, %%ecx")
	cg.line("addl %%edx, %%edx")
	cg.line("jmp %s", double)

	cg.label(take)
	cg.line("subl %%ecx, %%ebx\t# remainder moves toward zero")
	cg.line("addl %%edx, %%eax\t# quotient += multiple")
	cg.line("jmp %s", loop)

	cg.label(sign)
	cg.line("popl %%edx\t\t# drop -|b|")
	cg.line("popl %%edx")
	cg.line("andl %%edx, %%edx")
	cg.line("jge %s", done)
	cg.negate("%eax", "%edx")

	cg.label(done)
	cg.line("pushl %%eax")
}

// Generate emits the program body for instrs: one fragment per instruction,
// in order. It does not include the prologue or epilogue.
func Generate(instrs []Instruction) (string, error) {
	cg := newCodeGen()
	for _, in := range instrs {
		if err := cg.genInstr(in); err != nil {
			return "", err
		}
	}
	return cg.out.String(), nil
}
