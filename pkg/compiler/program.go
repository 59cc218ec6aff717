package compiler

import (
	"errors"
	"fmt"
	"strings"

	"rpnc/pkg/asm"
)

// Fault codes stored in %edi by the error handlers.
const (
	CodeDivideByZero uint32 = 0x01
	CodeStackError   uint32 = 0x02
	CodeStackTooFull uint32 = 0x04
)

// DefaultStackTop is the address of the Stack label. The operand stack grows
// down from here.
const DefaultStackTop = 0xffc

// DefaultStackSize is the number of values the stack region holds.
const DefaultStackSize = 64

// capacityOffset is the distance from the depth cell to the capacity cell.
const capacityOffset = 4

// prologue returns the program header: entry point, data cells, and the start
// of Main up to the first fragment.
func prologue(stackSize int) string {
	return fmt.Sprintf(`#
# This program was compiled using rpnc
#
# Execution begins at address 0
	.pos 0
init:	irmovl Stack, %%esp	# Set up stack pointer
	irmovl Stack, %%ebp	# Set up base pointer
	jmp Main		# Execute main program

# Data section
	.align 4
depth:	.long 0x0		# Keeps track of the RPN stack depth
capacity:	.long %[4]d	# Number of values the stack region holds

EDIV:		.long 0x%02[1]x	# Divide by 0 errno
ESTACK:		.long 0x%02[2]x	# Depth of RPN stack too shallow errno
ESTACKFULL:	.long 0x%02[3]x	# Depth of RPN stack too high errno

#
# Main function
#
Main:
	# The RPN stack is initially empty
	irmovl depth, %%esi	# %%esi holds the address of depth
	xorl %%edx, %%edx
	rmmovl %%edx, (%%esi)	# depth = 0
	xorl %%edi, %%edi		# %%edi holds error codes
`, CodeDivideByZero, CodeStackError, CodeStackTooFull, stackSize)
}

// epilogue returns the final depth check, the result pop, the shared error
// handlers, and the stack region.
func epilogue(stackTop, stackSize int) string {
	return fmt.Sprintf(`
# Footer section:

	# Check that exactly one number is left on the stack
	mrmovl (%%esi), %%edx	# %%edx = depth
	irmovl $1, %%ecx
	subl %%ecx, %%edx
	jl %[2]s		# goto %[2]s if depth < 1
	jg %[3]s	# goto %[3]s if depth > 1

	# Pop the result off the stack and return in %%eax
	popl %%eax
	halt

# Error conditions section:

#
# Division by 0 was attempted
#
%[1]s:
	irmovl EDIV, %%ebx	# %%ebx holds address of EDIV errno
	jmp set_code_and_exit

#
# Not enough operands on the RPN stack for an operation
# (For example: '1 +', or '2 dup + +')
#
%[2]s:
	irmovl ESTACK, %%ebx	# %%ebx holds address of ESTACK errno
	jmp set_code_and_exit

#
# RPN stack has too many numbers on it at the end of a program
# (For example: '3 2 1 +'), or a push found the stack region full
#
%[3]s:
	irmovl ESTACKFULL, %%ebx	# %%ebx holds address of ESTACKFULL errno
	jmp set_code_and_exit

#
# Store the error code in %%edi and terminate
#
set_code_and_exit:
	mrmovl (%%ebx), %%edi	# %%edi holds error codes
	xorl %%ebx, %%ebx		# clear %%ebx
	irmovl $-1, %%esi	# set %%esi to -1 to also indicate error
	halt

	# The stack region holds %[5]d values below Stack, above the code
	.pos 0x%[6]x
StackLimit:
	.pos 0x%[4]x
Stack:
`, labelDivideByZero, labelStackError, labelStackTooFull, stackTop, stackSize, stackTop-4*stackSize)
}

// assemble joins the prologue, body and epilogue into the program text.
func assemble(body string, stackTop, stackSize int) string {
	var b strings.Builder
	b.WriteString(prologue(stackSize))
	b.WriteString(body)
	b.WriteString(epilogue(stackTop, stackSize))
	return b.String()
}

// checkLayout assembles program to confirm that the code ends below the stack
// region.
func checkLayout(program string) error {
	_, _, err := asm.Assemble(program)
	if err == nil {
		return nil
	}
	msg := "generated program does not assemble"
	if errors.Is(err, asm.ErrOriginBackward) {
		msg = "program does not fit below the stack region"
	}
	return &CompileError{Kind: CodeGenError, Pos: -1, Msg: msg, Err: err}
}

// FaultName returns the handler label for a fault code left in %edi, or ""
// when code is zero or not one of the three handler codes.
func FaultName(code uint32) string {
	switch code {
	case CodeDivideByZero:
		return labelDivideByZero
	case CodeStackError:
		return labelStackError
	case CodeStackTooFull:
		return labelStackTooFull
	}
	return ""
}
