package compiler

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
)

// keywords maps source text to its keyword TokenType. Matching is case-sensitive.
var keywords = map[string]TokenType{
	"and":  AND,
	"xor":  XOR,
	"dup":  DUP,
	"swap": SWAP,
}

// operators maps single-character operators to their TokenType.
var operators = map[rune]TokenType{
	'+': PLUS,
	'-': MINUS,
	'*': ASTERISK,
	'/': SLASH,
	'%': MOD,
	'^': POWER,
	'!': FACTORIAL,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	errs *multierror.Error

	firstBad int // position of the first rejected input, -1 if none
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), firstBad: -1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	return r
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && isSpace(l.peek()) {
		l.advance()
	}
}

// scanWord collects a run of letters and reports it as a keyword.
// Words that are not keywords are recorded as errors and skipped.
func (l *Lexer) scanWord() (Token, bool) {
	start := l.pos
	for l.pos < len(l.src) && unicode.IsLetter(l.peek()) {
		l.advance()
	}
	word := string(l.src[start:l.pos])
	if kw, ok := keywords[word]; ok {
		return Token{Type: kw, Literal: word, Pos: start}, true
	}
	l.fail(start, "unknown word %q", word)
	return Token{}, false
}

// scanNumber collects a maximal run of digits, including a leading '-' when
// one is present. The first rune must still be at l.peek().
func (l *Lexer) scanNumber() Token {
	start := l.pos
	if l.peek() == '-' {
		l.advance()
	}
	for l.pos < len(l.src) && isDigit(l.peek()) {
		l.advance()
	}
	return Token{Type: NUMBER, Literal: string(l.src[start:l.pos]), Pos: start}
}

// separated returns tok if whitespace or the end of input follows it.
// Otherwise the rest of the run is rejected together with tok.
func (l *Lexer) separated(tok Token) (Token, bool) {
	if l.pos >= len(l.src) || isSpace(l.peek()) {
		return tok, true
	}
	start := l.pos
	for l.pos < len(l.src) && !isSpace(l.peek()) {
		l.advance()
	}
	l.fail(start, "missing whitespace between %q and %q", tok.Literal, string(l.src[start:l.pos]))
	return Token{}, false
}

func (l *Lexer) fail(pos int, format string, args ...any) {
	if l.firstBad < 0 {
		l.firstBad = pos
	}
	msg := fmt.Sprintf(format, args...)
	l.errs = multierror.Append(l.errs, fmt.Errorf("%s at position %d", msg, pos))
}

// nextToken skips whitespace and returns the next Token. The second result is
// false when the input at the current position was rejected.
func (l *Lexer) nextToken() (Token, bool) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{Type: EOF, Pos: l.pos}, true
	}

	ch := l.peek()
	switch {
	case isDigit(ch), ch == '-' && isDigit(l.peek2()):
		return l.separated(l.scanNumber())
	case unicode.IsLetter(ch):
		tok, ok := l.scanWord()
		if !ok {
			return tok, false
		}
		return l.separated(tok)
	}

	start := l.pos
	l.advance()
	if tt, ok := operators[ch]; ok {
		return l.separated(Token{Type: tt, Literal: string(ch), Pos: start})
	}
	l.fail(start, "unexpected character %q", ch)
	return Token{}, false
}

// Lex tokenises src and returns all tokens including the final EOF token.
// Every rejected character or word is reported in a single LexError.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, ok := l.nextToken()
		if !ok {
			continue
		}
		if tok.Type == EOF {
			break
		}
		tokens = append(tokens, tok)
	}

	if l.errs.ErrorOrNil() != nil {
		l.errs.ErrorFormat = joinErrors
		return nil, &CompileError{Kind: LexError, Pos: l.firstBad, Err: l.errs}
	}

	return append(tokens, Token{Type: EOF, Pos: len(l.src)}), nil
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
