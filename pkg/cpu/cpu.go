// Package cpu is a Y86-32 instruction-set simulator.
package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Instruction codes (high nibble of the first byte).
const (
	IHalt   uint8 = 0x0
	INop    uint8 = 0x1
	IRRMovl uint8 = 0x2 // also cmovXX, selected by the function nibble
	IIRMovl uint8 = 0x3
	IRMMovl uint8 = 0x4
	IMRMovl uint8 = 0x5
	IOpl    uint8 = 0x6
	IJxx    uint8 = 0x7
	ICall   uint8 = 0x8
	IRet    uint8 = 0x9
	IPushl  uint8 = 0xA
	IPopl   uint8 = 0xB
)

// ALU function codes for IOpl.
const (
	AluAdd uint8 = 0x0
	AluSub uint8 = 0x1
	AluAnd uint8 = 0x2
	AluXor uint8 = 0x3
)

// Condition function codes for IJxx and cmovXX.
const (
	CondAlways uint8 = 0x0
	CondLE     uint8 = 0x1
	CondL      uint8 = 0x2
	CondE      uint8 = 0x3
	CondNE     uint8 = 0x4
	CondGE     uint8 = 0x5
	CondG      uint8 = 0x6
)

// Register identifiers.
const (
	RegEAX  uint8 = 0
	RegECX  uint8 = 1
	RegEDX  uint8 = 2
	RegEBX  uint8 = 3
	RegESP  uint8 = 4
	RegEBP  uint8 = 5
	RegESI  uint8 = 6
	RegEDI  uint8 = 7
	RegNone uint8 = 0xF
)

var regNames = [8]string{"%eax", "%ecx", "%edx", "%ebx", "%esp", "%ebp", "%esi", "%edi"}

// RegisterName returns the assembler name of register r.
func RegisterName(r uint8) string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("r%d", r)
}

// Status is the processor state after the last step.
type Status int

const (
	StatusAOK Status = iota + 1 // running normally
	StatusHLT                   // halt executed
	StatusADR                   // invalid memory address
	StatusINS                   // invalid instruction
)

func (s Status) String() string {
	switch s {
	case StatusAOK:
		return "AOK"
	case StatusHLT:
		return "HLT"
	case StatusADR:
		return "ADR"
	case StatusINS:
		return "INS"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// DefaultMemorySize matches the 4 KiB address space the compiler places its
// stack at the top of.
const DefaultMemorySize = 0x1000

// ErrStepLimit is returned by Run when the program is still running after the
// allowed number of steps.
var ErrStepLimit = errors.New("step limit reached")

// FaultError reports an ADR or INS stop.
type FaultError struct {
	Status Status
	PC     uint32
	Addr   uint32 // offending address for ADR
}

func (e *FaultError) Error() string {
	if e.Status == StatusADR {
		return fmt.Sprintf("invalid address 0x%x at pc 0x%x", e.Addr, e.PC)
	}
	return fmt.Sprintf("invalid instruction at pc 0x%x", e.PC)
}

type CPU struct {
	Regs [8]uint32
	PC   uint32

	ZF bool
	SF bool
	OF bool

	Memory []byte
	Status Status

	// Steps counts executed instructions.
	Steps int

	fault *FaultError
}

// NewCPU creates a CPU with zeroed memory. An optional memory size may be
// provided; otherwise DefaultMemorySize is used.
func NewCPU(memSize ...int) *CPU {
	size := DefaultMemorySize
	if len(memSize) > 0 && memSize[0] > 0 {
		size = memSize[0]
	}
	c := &CPU{
		Memory: make([]byte, size),
		Status: StatusAOK,
		ZF:     true,
	}
	return c
}

// Load copies image into memory at address 0.
func (c *CPU) Load(image []byte) error {
	if len(image) > len(c.Memory) {
		return fmt.Errorf("program too large for memory: %d bytes > %d bytes", len(image), len(c.Memory))
	}
	copy(c.Memory, image)
	return nil
}

// Reg returns register r as a signed value.
func (c *CPU) Reg(r uint8) int32 {
	return int32(c.Regs[r&7])
}

// Read32 reads a little-endian word at addr.
func (c *CPU) Read32(addr uint32) (uint32, bool) {
	if uint64(addr)+4 > uint64(len(c.Memory)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(c.Memory[addr:]), true
}

// Write32 stores a little-endian word at addr.
func (c *CPU) Write32(addr uint32, val uint32) bool {
	if uint64(addr)+4 > uint64(len(c.Memory)) {
		return false
	}
	binary.LittleEndian.PutUint32(c.Memory[addr:], val)
	return true
}

func (c *CPU) readByte(addr uint32) (byte, bool) {
	if uint64(addr) >= uint64(len(c.Memory)) {
		return 0, false
	}
	return c.Memory[addr], true
}

func (c *CPU) badAddr(addr uint32) {
	c.Status = StatusADR
	c.fault = &FaultError{Status: StatusADR, PC: c.PC, Addr: addr}
}

func (c *CPU) badInstr() {
	c.Status = StatusINS
	c.fault = &FaultError{Status: StatusINS, PC: c.PC}
}

func (c *CPU) cond(fn uint8) (bool, bool) {
	switch fn {
	case CondAlways:
		return true, true
	case CondLE:
		return (c.SF != c.OF) || c.ZF, true
	case CondL:
		return c.SF != c.OF, true
	case CondE:
		return c.ZF, true
	case CondNE:
		return !c.ZF, true
	case CondGE:
		return c.SF == c.OF, true
	case CondG:
		return c.SF == c.OF && !c.ZF, true
	}
	return false, false
}

func (c *CPU) alu(fn uint8, a, b uint32) (uint32, bool) {
	var res uint32
	sa, sb := int32(a) < 0, int32(b) < 0
	switch fn {
	case AluAdd:
		res = b + a
		sr := int32(res) < 0
		c.OF = sa == sb && sr != sb
	case AluSub:
		res = b - a
		sr := int32(res) < 0
		c.OF = sa != sb && sr != sb
	case AluAnd:
		res = b & a
		c.OF = false
	case AluXor:
		res = b ^ a
		c.OF = false
	default:
		return 0, false
	}
	c.ZF = res == 0
	c.SF = int32(res) < 0
	return res, true
}

// regPair decodes the register byte that follows the instruction byte.
func (c *CPU) regPair() (uint8, uint8, bool) {
	b, ok := c.readByte(c.PC + 1)
	if !ok {
		c.badAddr(c.PC + 1)
		return 0, 0, false
	}
	return b >> 4, b & 0xF, true
}

func (c *CPU) imm(at uint32) (uint32, bool) {
	v, ok := c.Read32(at)
	if !ok {
		c.badAddr(at)
	}
	return v, ok
}

func validReg(r uint8) bool {
	return r < 8
}

// Step executes one instruction. It does nothing once the CPU has stopped.
func (c *CPU) Step() {
	if c.Status != StatusAOK {
		return
	}

	first, ok := c.readByte(c.PC)
	if !ok {
		c.badAddr(c.PC)
		return
	}
	icode, ifun := first>>4, first&0xF
	c.Steps++

	switch icode {
	case IHalt:
		if ifun != 0 {
			c.badInstr()
			return
		}
		c.Status = StatusHLT

	case INop:
		if ifun != 0 {
			c.badInstr()
			return
		}
		c.PC++

	case IRRMovl:
		rA, rB, ok := c.regPair()
		if !ok {
			return
		}
		take, ok := c.cond(ifun)
		if !ok || !validReg(rA) || !validReg(rB) {
			c.badInstr()
			return
		}
		if take {
			c.Regs[rB] = c.Regs[rA]
		}
		c.PC += 2

	case IIRMovl:
		rA, rB, ok := c.regPair()
		if !ok {
			return
		}
		if ifun != 0 || rA != RegNone || !validReg(rB) {
			c.badInstr()
			return
		}
		v, ok := c.imm(c.PC + 2)
		if !ok {
			return
		}
		c.Regs[rB] = v
		c.PC += 6

	case IRMMovl:
		rA, rB, ok := c.regPair()
		if !ok {
			return
		}
		if ifun != 0 || !validReg(rA) {
			c.badInstr()
			return
		}
		d, ok := c.imm(c.PC + 2)
		if !ok {
			return
		}
		addr := d
		if rB != RegNone {
			if !validReg(rB) {
				c.badInstr()
				return
			}
			addr += c.Regs[rB]
		}
		if !c.Write32(addr, c.Regs[rA]) {
			c.badAddr(addr)
			return
		}
		c.PC += 6

	case IMRMovl:
		rA, rB, ok := c.regPair()
		if !ok {
			return
		}
		if ifun != 0 || !validReg(rA) {
			c.badInstr()
			return
		}
		d, ok := c.imm(c.PC + 2)
		if !ok {
			return
		}
		addr := d
		if rB != RegNone {
			if !validReg(rB) {
				c.badInstr()
				return
			}
			addr += c.Regs[rB]
		}
		v, ok := c.Read32(addr)
		if !ok {
			c.badAddr(addr)
			return
		}
		c.Regs[rA] = v
		c.PC += 6

	case IOpl:
		rA, rB, ok := c.regPair()
		if !ok {
			return
		}
		if !validReg(rA) || !validReg(rB) {
			c.badInstr()
			return
		}
		res, ok := c.alu(ifun, c.Regs[rA], c.Regs[rB])
		if !ok {
			c.badInstr()
			return
		}
		c.Regs[rB] = res
		c.PC += 2

	case IJxx:
		take, ok := c.cond(ifun)
		if !ok {
			c.badInstr()
			return
		}
		dest, ok := c.imm(c.PC + 1)
		if !ok {
			return
		}
		if take {
			c.PC = dest
		} else {
			c.PC += 5
		}

	case ICall:
		if ifun != 0 {
			c.badInstr()
			return
		}
		dest, ok := c.imm(c.PC + 1)
		if !ok {
			return
		}
		sp := c.Regs[RegESP] - 4
		if !c.Write32(sp, c.PC+5) {
			c.badAddr(sp)
			return
		}
		c.Regs[RegESP] = sp
		c.PC = dest

	case IRet:
		if ifun != 0 {
			c.badInstr()
			return
		}
		sp := c.Regs[RegESP]
		ret, ok := c.Read32(sp)
		if !ok {
			c.badAddr(sp)
			return
		}
		c.Regs[RegESP] = sp + 4
		c.PC = ret

	case IPushl:
		rA, rB, ok := c.regPair()
		if !ok {
			return
		}
		if ifun != 0 || !validReg(rA) || rB != RegNone {
			c.badInstr()
			return
		}
		val := c.Regs[rA]
		sp := c.Regs[RegESP] - 4
		if !c.Write32(sp, val) {
			c.badAddr(sp)
			return
		}
		c.Regs[RegESP] = sp
		c.PC += 2

	case IPopl:
		rA, rB, ok := c.regPair()
		if !ok {
			return
		}
		if ifun != 0 || !validReg(rA) || rB != RegNone {
			c.badInstr()
			return
		}
		sp := c.Regs[RegESP]
		val, ok := c.Read32(sp)
		if !ok {
			c.badAddr(sp)
			return
		}
		c.Regs[RegESP] = sp + 4
		c.Regs[rA] = val
		c.PC += 2

	default:
		c.badInstr()
	}
}

// Run steps until the CPU stops or maxSteps instructions have executed.
// maxSteps <= 0 means no limit. A clean halt returns nil.
func (c *CPU) Run(maxSteps int) error {
	for n := 0; c.Status == StatusAOK; n++ {
		if maxSteps > 0 && n >= maxSteps {
			return fmt.Errorf("%w after %d instructions (pc 0x%x)", ErrStepLimit, n, c.PC)
		}
		c.Step()
	}
	if c.fault != nil {
		return c.fault
	}
	return nil
}

// EncodeInstruction packs an instruction and function code into the first
// byte of a Y86 instruction.
func EncodeInstruction(icode, ifun uint8) byte {
	return icode<<4 | ifun&0xF
}

// EncodeRegisters packs the register specifier byte.
func EncodeRegisters(rA, rB uint8) byte {
	return rA<<4 | rB&0xF
}
