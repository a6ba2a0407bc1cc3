package vm

import "fmt"

// Instruction is one decoded opcode plus its operand. The operand is zero
// for opcodes that do not use it.
type Instruction struct {
	Opcode  Opcode
	Operand Cell
}

// Decode reads the instruction at byte offset ip in the image. Unknown
// opcode bytes and reads past the image are faults; decoding never advances
// the instruction pointer, the execution engine does.
func Decode(image []byte, ip Cell) (Instruction, error) {
	if ip < 0 || int(ip)+InstrWidth > len(image) {
		return Instruction{}, fmt.Errorf("%w: instruction at offset 0x%08x", ErrMemoryAccess, ip)
	}
	op := Opcode(image[ip])
	if !op.IsValid() {
		return Instruction{}, fmt.Errorf("%w: opcode 0x%02X at offset 0x%08x", ErrInvalidInstruction, byte(op), ip)
	}
	return Instruction{
		Opcode:  op,
		Operand: ReadCell(image[ip+1:]),
	}, nil
}

// String formats the instruction the way the disassembler prints it.
func (in Instruction) String() string {
	info := GetOpcodeInfo(in.Opcode)
	if !info.HasOperand {
		return info.Name
	}
	return fmt.Sprintf("%s %d", info.Name, in.Operand)
}
