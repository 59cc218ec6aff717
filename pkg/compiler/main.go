// Package compiler translates Reverse Polish Notation arithmetic into Y86
// assembly with a runtime-checked operand stack.
//
// Pipeline: expression text → Lex → Build (IR) → Generate → program text
//
// The generated program keeps the number of operands in a memory cell and
// guards every operator with a depth check. Faults jump to one of three shared
// handlers that leave a code in %edi and halt: CodeDivideByZero,
// CodeStackError or CodeStackTooFull. On success the result is in %eax.
package compiler
