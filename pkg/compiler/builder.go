package compiler

// Build validates the structure of tokens and translates them into the IR.
// A trailing EOF token is accepted and ignored.
//
// Only the first and last tokens are checked here; operand availability for
// each instruction is verified by guards in the generated program.
func Build(tokens []Token) ([]Instruction, error) {
	if n := len(tokens); n > 0 && tokens[n-1].Type == EOF {
		tokens = tokens[:n-1]
	}

	if len(tokens) == 0 {
		return nil, newError(EmptyExpression, nil, "")
	}

	first, last := tokens[0], tokens[len(tokens)-1]
	if first.Type != NUMBER {
		return nil, newError(InvalidStart, &first, "found %s", first.Type)
	}
	if last.Type == NUMBER {
		return nil, newError(InvalidEnd, &last, "the final token must be an operator")
	}

	instrs := make([]Instruction, 0, len(tokens))
	for _, tok := range tokens {
		op, ok := tokenOpcodes[tok.Type]
		if !ok {
			return nil, newError(UnknownToken, &tok, "%s has no instruction", tok.Type)
		}
		in := Instruction{Op: op, Pos: tok.Pos}
		if op == OpPush {
			in.Value = tok.Literal
		}
		instrs = append(instrs, in)
	}

	return instrs, nil
}
