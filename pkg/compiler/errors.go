package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a compile-time failure.
type ErrorKind int

const (
	LexError ErrorKind = iota + 1
	EmptyExpression
	InvalidStart
	InvalidEnd
	UnknownToken
	CodeGenError
)

// Sentinels matched by errors.Is against a *CompileError of the same kind.
var (
	ErrLex          = errors.New("lex error")
	ErrEmpty        = errors.New("empty expression")
	ErrInvalidStart = errors.New("expression must begin with a number")
	ErrInvalidEnd   = errors.New("expression cannot end with a number")
	ErrUnknownToken = errors.New("unknown token")
	ErrCodeGen      = errors.New("code generation error")
)

var kindNames = [...]string{
	LexError:        "LexError",
	EmptyExpression: "EmptyExpression",
	InvalidStart:    "InvalidStart",
	InvalidEnd:      "InvalidEnd",
	UnknownToken:    "UnknownToken",
	CodeGenError:    "CodeGenError",
}

func (k ErrorKind) String() string {
	if int(k) > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case LexError:
		return ErrLex
	case EmptyExpression:
		return ErrEmpty
	case InvalidStart:
		return ErrInvalidStart
	case InvalidEnd:
		return ErrInvalidEnd
	case UnknownToken:
		return ErrUnknownToken
	case CodeGenError:
		return ErrCodeGen
	}
	return nil
}

// CompileError is returned by every stage of the pipeline. Pos is the character
// offset of the offending token, or -1 when the error is not tied to one.
type CompileError struct {
	Kind  ErrorKind
	Pos   int
	Token string
	Msg   string
	Err   error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.sentinel().Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Pos >= 0 {
		fmt.Fprintf(&b, " (position %d", e.Pos)
		if e.Token != "" {
			fmt.Fprintf(&b, ", token %q", e.Token)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *CompileError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind ErrorKind, tok *Token, format string, args ...any) *CompileError {
	e := &CompileError{Kind: kind, Pos: -1, Msg: fmt.Sprintf(format, args...)}
	if tok != nil {
		e.Pos = tok.Pos
		e.Token = tok.Literal
	}
	return e
}
