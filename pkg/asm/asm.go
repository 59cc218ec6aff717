// Package asm assembles Y86-32 assembly text into a memory image.
package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"rpnc/pkg/cpu"
)

// ErrOriginBackward is returned when a .pos directive would place code below
// the current address, which means two regions of the image overlap.
var ErrOriginBackward = errors.New("cannot move origin backward")

var zeroOperandOps = map[string]byte{
	"halt": cpu.EncodeInstruction(cpu.IHalt, 0),
	"nop":  cpu.EncodeInstruction(cpu.INop, 0),
	"ret":  cpu.EncodeInstruction(cpu.IRet, 0),
}

var oneRegisterOps = map[string]byte{
	"pushl": cpu.EncodeInstruction(cpu.IPushl, 0),
	"popl":  cpu.EncodeInstruction(cpu.IPopl, 0),
}

var twoRegisterOps = map[string]byte{
	"rrmovl": cpu.EncodeInstruction(cpu.IRRMovl, cpu.CondAlways),
	"cmovle": cpu.EncodeInstruction(cpu.IRRMovl, cpu.CondLE),
	"cmovl":  cpu.EncodeInstruction(cpu.IRRMovl, cpu.CondL),
	"cmove":  cpu.EncodeInstruction(cpu.IRRMovl, cpu.CondE),
	"cmovne": cpu.EncodeInstruction(cpu.IRRMovl, cpu.CondNE),
	"cmovge": cpu.EncodeInstruction(cpu.IRRMovl, cpu.CondGE),
	"cmovg":  cpu.EncodeInstruction(cpu.IRRMovl, cpu.CondG),
	"addl":   cpu.EncodeInstruction(cpu.IOpl, cpu.AluAdd),
	"subl":   cpu.EncodeInstruction(cpu.IOpl, cpu.AluSub),
	"andl":   cpu.EncodeInstruction(cpu.IOpl, cpu.AluAnd),
	"xorl":   cpu.EncodeInstruction(cpu.IOpl, cpu.AluXor),
}

var destinationOps = map[string]byte{
	"jmp":  cpu.EncodeInstruction(cpu.IJxx, cpu.CondAlways),
	"jle":  cpu.EncodeInstruction(cpu.IJxx, cpu.CondLE),
	"jl":   cpu.EncodeInstruction(cpu.IJxx, cpu.CondL),
	"je":   cpu.EncodeInstruction(cpu.IJxx, cpu.CondE),
	"jne":  cpu.EncodeInstruction(cpu.IJxx, cpu.CondNE),
	"jge":  cpu.EncodeInstruction(cpu.IJxx, cpu.CondGE),
	"jg":   cpu.EncodeInstruction(cpu.IJxx, cpu.CondG),
	"call": cpu.EncodeInstruction(cpu.ICall, 0),
}

var registers = map[string]uint8{
	"%eax": cpu.RegEAX,
	"%ecx": cpu.RegECX,
	"%edx": cpu.RegEDX,
	"%ebx": cpu.RegEBX,
	"%esp": cpu.RegESP,
	"%ebp": cpu.RegEBP,
	"%esi": cpu.RegESI,
	"%edi": cpu.RegEDI,
}

type Assembler struct {
	labels map[string]uint32

	// Log receives a debug event when assembly completes.
	Log zerolog.Logger
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint32),
		Log:    zerolog.Nop(),
	}
}

// Assemble returns the memory image for code and a map from image address to
// 1-based source line.
func Assemble(code string) ([]byte, map[uint32]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]byte, map[uint32]int, error) {
	a.labels = make(map[string]uint32)
	lines := strings.Split(code, "\n")

	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, nil, err
		}
		parsed = append(parsed, p)
	}

	if err := a.pass1(parsed); err != nil {
		return nil, nil, err
	}

	image, sourceMap, err := a.pass2(parsed)
	if err != nil {
		return nil, nil, err
	}
	a.Log.Debug().Int("labels", len(a.labels)).Int("bytes", len(image)).Msg("assembled")
	return image, sourceMap, nil
}

// Label returns the address assigned to name by the last Assemble call.
func (a *Assembler) Label(name string) (uint32, bool) {
	addr, ok := a.labels[name]
	return addr, ok
}

func (a *Assembler) pass1(lines []parsedLine) error {
	var address uint32

	for _, p := range lines {
		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, p.lineNo)
			}
			a.labels[lbl] = address
		}

		if p.mnemonic == "" {
			continue
		}

		next, err := advance(p, address)
		if err != nil {
			return err
		}
		address = next
	}

	return nil
}

// advance returns the address following p when p starts at address.
func advance(p parsedLine, address uint32) (uint32, error) {
	switch p.mnemonic {
	case ".pos":
		target, err := parseDirectiveNumber(p)
		if err != nil {
			return 0, err
		}
		if target < address {
			return 0, fmt.Errorf("%w on line %d", ErrOriginBackward, p.lineNo)
		}
		return target, nil
	case ".align":
		n, err := parseDirectiveNumber(p)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, fmt.Errorf(".align needs a positive operand on line %d", p.lineNo)
		}
		return (address + n - 1) / n * n, nil
	case ".long":
		if len(p.operands) != 1 {
			return 0, fmt.Errorf(".long expects exactly one operand on line %d", p.lineNo)
		}
		return address + 4, nil
	}

	length, ok := instructionLength(p.mnemonic)
	if !ok {
		return 0, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}
	return address + length, nil
}

func parseDirectiveNumber(p parsedLine) (uint32, error) {
	if len(p.operands) != 1 {
		return 0, fmt.Errorf("%s expects exactly one operand on line %d", p.mnemonic, p.lineNo)
	}
	v, err := strconv.ParseUint(p.operands[0], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value on line %d: %s", p.mnemonic, p.lineNo, p.operands[0])
	}
	return uint32(v), nil
}

func (a *Assembler) pass2(lines []parsedLine) ([]byte, map[uint32]int, error) {
	program := make([]byte, 0)
	sourceMap := make(map[uint32]int)

	for _, p := range lines {
		if p.mnemonic == "" {
			continue
		}

		mnemonic := p.mnemonic
		ops := p.operands
		lineNo := p.lineNo

		switch mnemonic {
		case ".pos", ".align":
			next, err := advance(p, uint32(len(program)))
			if err != nil {
				return nil, nil, err
			}
			program = append(program, make([]byte, int(next)-len(program))...)
			continue
		case ".long":
			if len(ops) != 1 {
				return nil, nil, fmt.Errorf(".long expects exactly one operand on line %d", lineNo)
			}
			val, err := a.parseImmediate(ops[0], lineNo)
			if err != nil {
				return nil, nil, err
			}
			sourceMap[uint32(len(program))] = lineNo
			program = binary.LittleEndian.AppendUint32(program, val)
			continue
		}

		sourceMap[uint32(len(program))] = lineNo

		if code, ok := zeroOperandOps[mnemonic]; ok {
			if len(ops) != 0 {
				return nil, nil, fmt.Errorf("%s expects 0 operands on line %d", mnemonic, lineNo)
			}
			program = append(program, code)
			continue
		}

		if code, ok := oneRegisterOps[mnemonic]; ok {
			if len(ops) != 1 {
				return nil, nil, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
			}
			regA, err := parseRegister(ops[0], lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, code, cpu.EncodeRegisters(regA, cpu.RegNone))
			continue
		}

		if code, ok := twoRegisterOps[mnemonic]; ok {
			if len(ops) != 2 {
				return nil, nil, fmt.Errorf("%s expects 2 operands on line %d", mnemonic, lineNo)
			}
			regA, err := parseRegister(ops[0], lineNo)
			if err != nil {
				return nil, nil, err
			}
			regB, err := parseRegister(ops[1], lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, code, cpu.EncodeRegisters(regA, regB))
			continue
		}

		if code, ok := destinationOps[mnemonic]; ok {
			if len(ops) != 1 {
				return nil, nil, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
			}
			dest, err := a.parseImmediate(ops[0], lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, code)
			program = binary.LittleEndian.AppendUint32(program, dest)
			continue
		}

		switch mnemonic {
		case "irmovl":
			if len(ops) != 2 {
				return nil, nil, fmt.Errorf("irmovl expects 2 operands on line %d", lineNo)
			}
			imm, err := a.parseImmediate(ops[0], lineNo)
			if err != nil {
				return nil, nil, err
			}
			regB, err := parseRegister(ops[1], lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, cpu.EncodeInstruction(cpu.IIRMovl, 0), cpu.EncodeRegisters(cpu.RegNone, regB))
			program = binary.LittleEndian.AppendUint32(program, imm)
			continue

		case "rmmovl", "mrmovl":
			if len(ops) != 2 {
				return nil, nil, fmt.Errorf("%s expects 2 operands on line %d", mnemonic, lineNo)
			}
			regOp, memOp, icode := ops[0], ops[1], cpu.IRMMovl
			if mnemonic == "mrmovl" {
				regOp, memOp, icode = ops[1], ops[0], cpu.IMRMovl
			}
			regA, err := parseRegister(regOp, lineNo)
			if err != nil {
				return nil, nil, err
			}
			disp, regB, err := a.parseMemory(memOp, lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, cpu.EncodeInstruction(icode, 0), cpu.EncodeRegisters(regA, regB))
			program = binary.LittleEndian.AppendUint32(program, disp)
			continue
		}

		return nil, nil, fmt.Errorf("unknown instruction on line %d: %s", lineNo, mnemonic)
	}

	return program, sourceMap, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if beforeColon == "" {
			return p, fmt.Errorf("invalid label on line %d", lineNo)
		}

		if strings.ContainsAny(beforeColon, " \t") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) == 0 {
		return p, nil
	}

	p.mnemonic = strings.ToLower(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}

	return p, nil
}

func stripComments(line string) string {
	if cut := strings.IndexByte(line, '#'); cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseRegister(token string, lineNo int) (uint8, error) {
	if r, ok := registers[strings.ToLower(token)]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
}

// parseMemory decodes "D(%reg)" or "(%reg)" into a displacement and base register.
func (a *Assembler) parseMemory(token string, lineNo int) (uint32, uint8, error) {
	open := strings.IndexByte(token, '(')
	if open < 0 || !strings.HasSuffix(token, ")") {
		return 0, 0, fmt.Errorf("invalid memory operand '%s' on line %d", token, lineNo)
	}
	reg, err := parseRegister(token[open+1:len(token)-1], lineNo)
	if err != nil {
		return 0, 0, err
	}
	var disp uint32
	if open > 0 {
		disp, err = a.parseImmediate(token[:open], lineNo)
		if err != nil {
			return 0, 0, err
		}
	}
	return disp, reg, nil
}

// parseImmediate accepts "$n", "n" or a label, with n decimal or 0x-hex and
// optionally negative.
func (a *Assembler) parseImmediate(token string, lineNo int) (uint32, error) {
	bare := strings.TrimPrefix(token, "$")
	if value, err := strconv.ParseInt(bare, 0, 64); err == nil {
		if value < -(1<<31) || value > 0xFFFFFFFF {
			return 0, fmt.Errorf("immediate out of range on line %d: %s", lineNo, token)
		}
		return uint32(value), nil
	}

	if addr, ok := a.labels[bare]; ok {
		return addr, nil
	}

	if isIdentifier(bare) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", bare, lineNo)
	}

	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

// instructionLength returns the encoded size of an instruction in bytes.
func instructionLength(mnemonic string) (uint32, bool) {
	mnemonic = strings.ToLower(mnemonic)

	if _, ok := zeroOperandOps[mnemonic]; ok {
		return 1, true
	}
	if _, ok := oneRegisterOps[mnemonic]; ok {
		return 2, true
	}
	if _, ok := twoRegisterOps[mnemonic]; ok {
		return 2, true
	}
	if _, ok := destinationOps[mnemonic]; ok {
		return 5, true
	}
	switch mnemonic {
	case "irmovl", "rmmovl", "mrmovl":
		return 6, true
	}
	return 0, false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}
