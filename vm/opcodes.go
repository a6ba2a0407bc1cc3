package vm

import "fmt"

// Opcode identifies a machine instruction. Opcodes are organized into
// ranges by category so related instructions stay adjacent.
type Opcode byte

const (
	// ========================================================================
	// Control (0x00-0x0F)
	// ========================================================================

	OpNop   Opcode = 0x00 // no operation
	OpBreak Opcode = 0x01 // debugger breakpoint, no-op without a debugger
	OpHalt  Opcode = 0x02 // stop; pri is the return cell, operand the exit code
	OpSleep Opcode = 0x03 // suspend; Exec(ExecContinue) resumes after it

	// ========================================================================
	// Constants (0x10-0x17)
	// ========================================================================

	OpConstPri Opcode = 0x10 // pri = operand
	OpConstAlt Opcode = 0x11 // alt = operand
	OpZeroPri  Opcode = 0x12 // pri = 0
	OpZeroAlt  Opcode = 0x13 // alt = 0

	// ========================================================================
	// Register transfer (0x18-0x1F)
	// ========================================================================

	OpMovePri Opcode = 0x18 // pri = alt
	OpMoveAlt Opcode = 0x19 // alt = pri
	OpXchg    Opcode = 0x1A // swap pri and alt

	// ========================================================================
	// Memory (0x20-0x2F), frame-relative and indirect
	// ========================================================================

	OpLoadPri  Opcode = 0x20 // pri = [frm + operand]
	OpLoadAlt  Opcode = 0x21 // alt = [frm + operand]
	OpStorPri  Opcode = 0x22 // [frm + operand] = pri
	OpStorAlt  Opcode = 0x23 // [frm + operand] = alt
	OpAddrPri  Opcode = 0x24 // pri = frm + operand
	OpAddrAlt  Opcode = 0x25 // alt = frm + operand
	OpLoadIPri Opcode = 0x26 // pri = [pri]
	OpStorIPri Opcode = 0x27 // [alt] = pri

	// ========================================================================
	// Stack and heap (0x30-0x3F)
	// ========================================================================

	OpPushPri Opcode = 0x30 // push pri
	OpPushAlt Opcode = 0x31 // push alt
	OpPushC   Opcode = 0x32 // push operand
	OpPopPri  Opcode = 0x33 // pop into pri
	OpPopAlt  Opcode = 0x34 // pop into alt
	OpStack   Opcode = 0x35 // alt = stk; stk += operand, bounds-checked
	OpProc    Opcode = 0x36 // open frame: push frm, frm = stk
	OpHeap    Opcode = 0x37 // hea -= operand; alt = hea, collision-checked

	// ========================================================================
	// Arithmetic (0x40-0x4F), wrapping semantics
	// ========================================================================

	OpAdd    Opcode = 0x40 // pri = pri + alt
	OpAddC   Opcode = 0x41 // pri = pri + operand
	OpSub    Opcode = 0x42 // pri = pri - alt
	OpSubAlt Opcode = 0x43 // pri = alt - pri
	OpSmul   Opcode = 0x44 // pri = pri * alt
	OpSmulC  Opcode = 0x45 // pri = pri * operand
	OpSdiv   Opcode = 0x46 // pri = pri / alt, alt = pri % alt; alt==0 faults
	OpNeg    Opcode = 0x47 // pri = -pri
	OpIncPri Opcode = 0x48 // pri = pri + 1
	OpDecPri Opcode = 0x49 // pri = pri - 1

	// ========================================================================
	// Bitwise and logic (0x50-0x5F)
	// ========================================================================

	OpAnd    Opcode = 0x50 // pri = pri & alt
	OpOr     Opcode = 0x51 // pri = pri | alt
	OpXor    Opcode = 0x52 // pri = pri ^ alt
	OpInvert Opcode = 0x53 // pri = ^pri
	OpShl    Opcode = 0x54 // pri = pri << alt
	OpShr    Opcode = 0x55 // pri = pri >> alt (logical)
	OpSshr   Opcode = 0x56 // pri = pri >> alt (arithmetic)
	OpNot    Opcode = 0x57 // pri = (pri == 0) ? 1 : 0

	// ========================================================================
	// Comparison (0x60-0x6F), result lands in pri as 0 or 1
	// ========================================================================

	OpEq   Opcode = 0x60 // pri = pri == alt
	OpNeq  Opcode = 0x61 // pri = pri != alt
	OpLess Opcode = 0x62 // pri = pri < alt
	OpLeq  Opcode = 0x63 // pri = pri <= alt
	OpGrtr Opcode = 0x64 // pri = pri > alt
	OpGeq  Opcode = 0x65 // pri = pri >= alt
	OpEqC  Opcode = 0x66 // pri = pri == operand

	// ========================================================================
	// Control transfer (0x70-0x8F)
	// ========================================================================

	OpJump Opcode = 0x70 // cip = operand
	OpJzer Opcode = 0x71 // if pri == 0 then cip = operand
	OpJnz  Opcode = 0x72 // if pri != 0 then cip = operand

	OpCall Opcode = 0x80 // push return address, cip = operand
	OpRet  Opcode = 0x81 // close frame: restore frm, cip = return address
	OpRetn Opcode = 0x82 // RET, then drop operand bytes of caller arguments

	// ========================================================================
	// Native dispatch (0x90-0x9F)
	// ========================================================================

	OpSysreq Opcode = 0x90 // invoke native by table index (operand)
)

// InstrWidth is the fixed width of every instruction: one opcode byte plus
// a 4-byte operand, zero when unused.
const InstrWidth = 5

// OpcodeInfo provides metadata about an opcode for disassembly and
// validation.
type OpcodeInfo struct {
	Name       string // mnemonic
	HasOperand bool   // false when the operand slot is always zero
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:   {"NOP", false},
	OpBreak: {"BREAK", false},
	OpHalt:  {"HALT", true},
	OpSleep: {"SLEEP", true},

	OpConstPri: {"CONST.PRI", true},
	OpConstAlt: {"CONST.ALT", true},
	OpZeroPri:  {"ZERO.PRI", false},
	OpZeroAlt:  {"ZERO.ALT", false},

	OpMovePri: {"MOVE.PRI", false},
	OpMoveAlt: {"MOVE.ALT", false},
	OpXchg:    {"XCHG", false},

	OpLoadPri:  {"LOAD.S.PRI", true},
	OpLoadAlt:  {"LOAD.S.ALT", true},
	OpStorPri:  {"STOR.S.PRI", true},
	OpStorAlt:  {"STOR.S.ALT", true},
	OpAddrPri:  {"ADDR.PRI", true},
	OpAddrAlt:  {"ADDR.ALT", true},
	OpLoadIPri: {"LOAD.I.PRI", false},
	OpStorIPri: {"STOR.I.PRI", false},

	OpPushPri: {"PUSH.PRI", false},
	OpPushAlt: {"PUSH.ALT", false},
	OpPushC:   {"PUSH.C", true},
	OpPopPri:  {"POP.PRI", false},
	OpPopAlt:  {"POP.ALT", false},
	OpStack:   {"STACK", true},
	OpProc:    {"PROC", false},
	OpHeap:    {"HEAP", true},

	OpAdd:    {"ADD", false},
	OpAddC:   {"ADD.C", true},
	OpSub:    {"SUB", false},
	OpSubAlt: {"SUB.ALT", false},
	OpSmul:   {"SMUL", false},
	OpSmulC:  {"SMUL.C", true},
	OpSdiv:   {"SDIV", false},
	OpNeg:    {"NEG", false},
	OpIncPri: {"INC.PRI", false},
	OpDecPri: {"DEC.PRI", false},

	OpAnd:    {"AND", false},
	OpOr:     {"OR", false},
	OpXor:    {"XOR", false},
	OpInvert: {"INVERT", false},
	OpShl:    {"SHL", false},
	OpShr:    {"SHR", false},
	OpSshr:   {"SSHR", false},
	OpNot:    {"NOT", false},

	OpEq:   {"EQ", false},
	OpNeq:  {"NEQ", false},
	OpLess: {"LESS", false},
	OpLeq:  {"LEQ", false},
	OpGrtr: {"GRTR", false},
	OpGeq:  {"GEQ", false},
	OpEqC:  {"EQ.C", true},

	OpJump: {"JUMP", true},
	OpJzer: {"JZER", true},
	OpJnz:  {"JNZ", true},

	OpCall: {"CALL", true},
	OpRet:  {"RET", false},
	OpRetn: {"RETN", true},

	OpSysreq: {"SYSREQ", true},
}

// GetOpcodeInfo returns metadata for an opcode. Unknown opcodes yield a
// synthesized "UNKNOWN" entry.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsValid reports whether op is part of the instruction set.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump reports whether op transfers control via its operand.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJzer, OpJnz, OpCall:
		return true
	}
	return false
}

// AllOpcodes returns every defined opcode. Useful for testing that the
// instruction set and its metadata stay in sync.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	return ops
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
