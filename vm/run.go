package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Fetch-decode-execute loop
// ---------------------------------------------------------------------------

// run dispatches instructions until a halt, a suspension, or a fault. Every
// fault is recorded in the last-error register before it propagates; the
// loop never retries and never skips an instruction it cannot decode.
func (m *Machine) run() (Cell, error) {
	var dispatched uint64

	for {
		if m.cip == sentinelReturn {
			// The outermost frame returned: same outcome as a clean halt.
			m.state = StateHalted
			return m.pri, nil
		}
		if m.cip < m.header.Cod || m.cip+InstrWidth > m.header.Dat {
			return 0, m.fault(fmt.Errorf("%w: instruction pointer 0x%08x outside code region", ErrMemoryAccess, m.cip))
		}

		if m.maxInstructions > 0 {
			if dispatched++; dispatched > m.maxInstructions {
				return 0, m.fault(fmt.Errorf("%w: instruction budget %d exhausted", ErrExit, m.maxInstructions))
			}
		}

		in, err := Decode(m.mem.base, m.cip)
		if err != nil {
			return 0, m.fault(err)
		}

		done, err := m.step(in)
		if err != nil {
			return 0, m.fault(err)
		}
		if done {
			return m.pri, m.lastFault
		}
	}
}

// fault records the error and moves the machine to the Faulted state.
func (m *Machine) fault(err error) error {
	m.lastFault = err
	m.state = StateFaulted
	return err
}

// step executes one decoded instruction. It returns done=true when the run
// ends without a fault (halt or suspension); control-transfer opcodes set
// cip themselves, every other opcode falls through to the fixed advance.
func (m *Machine) step(in Instruction) (done bool, err error) {
	op := in.Operand

	switch in.Opcode {

	// ----- control ---------------------------------------------------------

	case OpNop, OpBreak:
		// BREAK is a debugger hook; without one attached it costs a cycle.

	case OpHalt:
		if op != 0 {
			return false, fmt.Errorf("%w: halt code %d", ErrExit, op)
		}
		m.state = StateHalted
		m.cip += InstrWidth
		return true, nil

	case OpSleep:
		// The operand rides in alt as the sleep reason. cip already points
		// past the instruction, so ExecContinue resumes after it.
		m.alt = op
		m.cip += InstrWidth
		m.state = StateSuspended
		m.lastFault = fmt.Errorf("%w: sleep(%d)", ErrSleep, op)
		return true, nil

	// ----- constants and register transfer ---------------------------------

	case OpConstPri:
		m.pri = op
	case OpConstAlt:
		m.alt = op
	case OpZeroPri:
		m.pri = 0
	case OpZeroAlt:
		m.alt = 0
	case OpMovePri:
		m.pri = m.alt
	case OpMoveAlt:
		m.alt = m.pri
	case OpXchg:
		m.pri, m.alt = m.alt, m.pri

	// ----- memory ----------------------------------------------------------

	case OpLoadPri:
		if m.pri, err = m.mem.CellAt(m.mem.frm + op); err != nil {
			return false, err
		}
	case OpLoadAlt:
		if m.alt, err = m.mem.CellAt(m.mem.frm + op); err != nil {
			return false, err
		}
	case OpStorPri:
		if err = m.mem.PutCell(m.mem.frm+op, m.pri); err != nil {
			return false, err
		}
	case OpStorAlt:
		if err = m.mem.PutCell(m.mem.frm+op, m.alt); err != nil {
			return false, err
		}
	case OpAddrPri:
		m.pri = m.mem.frm + op
	case OpAddrAlt:
		m.alt = m.mem.frm + op
	case OpLoadIPri:
		if m.pri, err = m.mem.CellAt(m.pri); err != nil {
			return false, err
		}
	case OpStorIPri:
		if err = m.mem.PutCell(m.alt, m.pri); err != nil {
			return false, err
		}

	// ----- stack and heap --------------------------------------------------

	case OpPushPri:
		if err = m.mem.Push(m.pri); err != nil {
			return false, err
		}
	case OpPushAlt:
		if err = m.mem.Push(m.alt); err != nil {
			return false, err
		}
	case OpPushC:
		if err = m.mem.Push(op); err != nil {
			return false, err
		}
	case OpPopPri:
		if m.pri, err = m.mem.Pop(); err != nil {
			return false, err
		}
	case OpPopAlt:
		if m.alt, err = m.mem.Pop(); err != nil {
			return false, err
		}
	case OpStack:
		next := m.mem.stk + op
		if next > m.mem.hea {
			return false, fmt.Errorf("%w: stack adjust to 0x%08x crosses heap at 0x%08x", ErrStackOverflow, next, m.mem.hea)
		}
		if next < m.header.Hea {
			return false, fmt.Errorf("%w: stack adjust to 0x%08x below 0x%08x", ErrStackUnderflow, next, m.header.Hea)
		}
		m.alt = m.mem.stk
		m.mem.stk = next
	case OpProc:
		if err = m.mem.Push(m.mem.frm); err != nil {
			return false, err
		}
		m.mem.frm = m.mem.stk
	case OpHeap:
		if m.alt, err = m.mem.HeapAlloc(op); err != nil {
			return false, err
		}

	// ----- arithmetic, wrapping --------------------------------------------

	case OpAdd:
		m.pri += m.alt
	case OpAddC:
		m.pri += op
	case OpSub:
		m.pri -= m.alt
	case OpSubAlt:
		m.pri = m.alt - m.pri
	case OpSmul:
		m.pri *= m.alt
	case OpSmulC:
		m.pri *= op
	case OpSdiv:
		if m.alt == 0 {
			return false, fmt.Errorf("%w: sdiv at 0x%08x", ErrDivide, m.cip)
		}
		m.pri, m.alt = divmod(m.pri, m.alt)
	case OpNeg:
		m.pri = -m.pri
	case OpIncPri:
		m.pri++
	case OpDecPri:
		m.pri--

	// ----- bitwise and logic -----------------------------------------------

	case OpAnd:
		m.pri &= m.alt
	case OpOr:
		m.pri |= m.alt
	case OpXor:
		m.pri ^= m.alt
	case OpInvert:
		m.pri = ^m.pri
	case OpShl:
		m.pri = m.pri << (uint32(m.alt) & 31)
	case OpShr:
		m.pri = Cell(uint32(m.pri) >> (uint32(m.alt) & 31))
	case OpSshr:
		m.pri = m.pri >> (uint32(m.alt) & 31)
	case OpNot:
		m.pri = boolCell(m.pri == 0)

	// ----- comparison ------------------------------------------------------

	case OpEq:
		m.pri = boolCell(m.pri == m.alt)
	case OpNeq:
		m.pri = boolCell(m.pri != m.alt)
	case OpLess:
		m.pri = boolCell(m.pri < m.alt)
	case OpLeq:
		m.pri = boolCell(m.pri <= m.alt)
	case OpGrtr:
		m.pri = boolCell(m.pri > m.alt)
	case OpGeq:
		m.pri = boolCell(m.pri >= m.alt)
	case OpEqC:
		m.pri = boolCell(m.pri == op)

	// ----- control transfer ------------------------------------------------

	case OpJump:
		m.cip = op
		return false, nil
	case OpJzer:
		if m.pri == 0 {
			m.cip = op
			return false, nil
		}
	case OpJnz:
		if m.pri != 0 {
			m.cip = op
			return false, nil
		}

	case OpCall:
		if err = m.mem.Push(m.cip + InstrWidth); err != nil {
			return false, err
		}
		m.cip = op
		return false, nil

	case OpRet:
		return false, m.leaveFrame(0)
	case OpRetn:
		return false, m.leaveFrame(op)

	// ----- native dispatch -------------------------------------------------

	case OpSysreq:
		if err = m.sysreq(op); err != nil {
			return false, err
		}

	default:
		return false, fmt.Errorf("%w: opcode 0x%02X at offset 0x%08x", ErrInvalidInstruction, byte(in.Opcode), m.cip)
	}

	m.cip += InstrWidth
	return false, nil
}

// leaveFrame closes the current frame: discard locals, restore the saved
// frame pointer, pop the return address, and drop argBytes of caller-pushed
// arguments. The frame header lives just below frm ([retaddr][saved frm]),
// so teardown reads across the frame boundary the pop gate protects.
func (m *Machine) leaveFrame(argBytes Cell) error {
	base := m.mem.frm - 2*CellSize
	if base < m.header.Hea {
		return fmt.Errorf("%w: no frame to return from at frm=0x%08x", ErrStackUnderflow, m.mem.frm)
	}
	savedFrm, err := m.mem.CellAt(base + CellSize)
	if err != nil {
		return err
	}
	retAddr, err := m.mem.CellAt(base)
	if err != nil {
		return err
	}
	if argBytes < 0 || base-argBytes < m.header.Hea {
		return fmt.Errorf("%w: return drops %d argument bytes at stk=0x%08x", ErrStackUnderflow, argBytes, base)
	}
	m.mem.stk = base - argBytes
	m.mem.frm = savedFrm
	m.cip = retAddr
	return nil
}

// divmod implements truncated signed division with the single overflow case
// (MinInt32 / -1) wrapping instead of trapping.
func divmod(a, b Cell) (quo, rem Cell) {
	if a == math.MinInt32 && b == -1 {
		return math.MinInt32, 0
	}
	return a / b, a % b
}

func boolCell(b bool) Cell {
	if b {
		return 1
	}
	return 0
}
