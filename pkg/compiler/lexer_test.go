package compiler

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
		wantErr  bool
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Pos: 0},
			},
		},
		{
			name:  "Whitespace Only",
			input: " \t\n ",
			expected: []Token{
				{Type: EOF, Pos: 4},
			},
		},
		{
			name:  "Operators",
			input: "+ - * / % ^ !",
			expected: []Token{
				{Type: PLUS, Literal: "+", Pos: 0},
				{Type: MINUS, Literal: "-", Pos: 2},
				{Type: ASTERISK, Literal: "*", Pos: 4},
				{Type: SLASH, Literal: "/", Pos: 6},
				{Type: MOD, Literal: "%", Pos: 8},
				{Type: POWER, Literal: "^", Pos: 10},
				{Type: FACTORIAL, Literal: "!", Pos: 12},
				{Type: EOF, Pos: 13},
			},
		},
		{
			name:  "Keywords",
			input: "dup swap and xor",
			expected: []Token{
				{Type: DUP, Literal: "dup", Pos: 0},
				{Type: SWAP, Literal: "swap", Pos: 4},
				{Type: AND, Literal: "and", Pos: 9},
				{Type: XOR, Literal: "xor", Pos: 13},
				{Type: EOF, Pos: 16},
			},
		},
		{
			name:  "Numbers",
			input: "7 123 0 -4 007",
			expected: []Token{
				{Type: NUMBER, Literal: "7", Pos: 0},
				{Type: NUMBER, Literal: "123", Pos: 2},
				{Type: NUMBER, Literal: "0", Pos: 6},
				{Type: NUMBER, Literal: "-4", Pos: 8},
				{Type: NUMBER, Literal: "007", Pos: 11},
				{Type: EOF, Pos: 14},
			},
		},
		{
			name:  "Minus Followed By Space Is An Operator",
			input: "7 1 - 3",
			expected: []Token{
				{Type: NUMBER, Literal: "7", Pos: 0},
				{Type: NUMBER, Literal: "1", Pos: 2},
				{Type: MINUS, Literal: "-", Pos: 4},
				{Type: NUMBER, Literal: "3", Pos: 6},
				{Type: EOF, Pos: 7},
			},
		},
		{
			name:    "No Separating Whitespace",
			input:   "7 1+",
			wantErr: true,
		},
		{
			name:  "Tabs And Newlines",
			input: "5\t2\nswap\r\n-",
			expected: []Token{
				{Type: NUMBER, Literal: "5", Pos: 0},
				{Type: NUMBER, Literal: "2", Pos: 2},
				{Type: SWAP, Literal: "swap", Pos: 4},
				{Type: MINUS, Literal: "-", Pos: 10},
				{Type: EOF, Pos: 11},
			},
		},
		{
			name:    "Unexpected Character",
			input:   "5 @ +",
			wantErr: true,
		},
		{
			name:    "Keywords Are Case Sensitive",
			input:   "5 DUP +",
			wantErr: true,
		},
		{
			name:    "Unknown Word",
			input:   "5 6 mul",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrLex)
				assert.Nil(t, tokens)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tokens)
		})
	}
}

func TestLexReportsEveryBadInput(t *testing.T) {
	_, err := Lex("1 @ 2 foo + $")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, LexError, ce.Kind)
	assert.Equal(t, 2, ce.Pos)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 3)
	assert.Contains(t, merr.Errors[0].Error(), "'@' at position 2")
	assert.Contains(t, merr.Errors[1].Error(), `"foo" at position 6`)
	assert.Contains(t, merr.Errors[2].Error(), "'$' at position 12")
}

func TestLexRequiresWhitespace(t *testing.T) {
	tests := []struct {
		input string
		pos   int
		msg   string
	}{
		{"2dup+", 1, `missing whitespace between "2" and "dup+"`},
		{"1 2swap -", 3, `missing whitespace between "2" and "swap"`},
		{"1 2 +-", 5, `missing whitespace between "+" and "-"`},
		{"3 dup2 *", 5, `missing whitespace between "dup" and "2"`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Lex(tt.input)
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, LexError, ce.Kind)
			assert.Equal(t, tt.pos, ce.Pos)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLexIsDeterministic(t *testing.T) {
	inputs := []string{"", "7 1 + 3 -", "5 2 swap -", "-4 3 *", "7 dup + 1 xor 3 and"}
	for _, in := range inputs {
		first, err := Lex(in)
		require.NoError(t, err)
		second, err := Lex(in)
		require.NoError(t, err)
		assert.Equal(t, first, second, "input %q", in)
	}
}

func TestTokenTypeString(t *testing.T) {
	assert.Equal(t, "NUMBER", NUMBER.String())
	assert.Equal(t, "SWAP", SWAP.String())
	assert.Equal(t, "TokenType(99)", TokenType(99).String())
}
