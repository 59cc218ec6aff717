package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF   TokenType = iota // sentinel: end of input
	ERROR                  // never produced by Lex; reserved for callers building tokens by hand

	// Literals
	NUMBER // decimal integer literal, optionally negative

	// Integer operators
	PLUS      // +
	MINUS     // -
	ASTERISK  // *
	SLASH     // /
	MOD       // %
	POWER     // ^
	FACTORIAL // !

	// Bitwise keywords
	AND // "and"
	XOR // "xor"

	// Stack keywords
	DUP  // "dup"
	SWAP // "swap"
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:       "EOF",
	ERROR:     "ERROR",
	NUMBER:    "NUMBER",
	PLUS:      "PLUS",
	MINUS:     "MINUS",
	ASTERISK:  "ASTERISK",
	SLASH:     "SLASH",
	MOD:       "MOD",
	POWER:     "POWER",
	FACTORIAL: "FACTORIAL",
	AND:       "AND",
	XOR:       "XOR",
	DUP:       "DUP",
	SWAP:      "SWAP",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type    TokenType
	Literal string // source text; numeric literals are kept verbatim
	Pos     int    // 0-based character offset into the expression
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-8q  pos %d", t.Type, t.Literal, t.Pos)
}
