package vm

import "fmt"

// NativeFunc is a host callback invokable from bytecode. It receives the
// machine it runs inside and the argument cells in push order, and returns
// one cell that lands in the primary accumulator. A non-nil error faults
// the run as a native-call failure.
type NativeFunc func(m *Machine, args []Cell) (Cell, error)

// RegisterNative binds a callback to a native-function slot declared by the
// module. The name must appear in the module's native directory; binding an
// undeclared name is a lookup fault. Re-registration replaces the previous
// callback and is visible to subsequent dispatches.
func (m *Machine) RegisterNative(name string, fn NativeFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: nil callback for native %q", ErrParams, name)
	}
	i, err := m.symbols.natives.Find(name)
	if err != nil {
		return err
	}
	m.natives[i] = fn
	return nil
}

// UnboundNatives returns the declared natives that have no registered
// callback yet. Hosts can use this for a pre-flight check before Exec.
func (m *Machine) UnboundNatives() []string {
	var missing []string
	for i, fn := range m.natives {
		if fn == nil {
			sym, err := m.symbols.natives.At(i)
			if err != nil {
				continue
			}
			missing = append(missing, sym.Name)
		}
	}
	return missing
}

// sysreq dispatches a native call. The compiled convention: the caller
// pushes the argument cells, then pushes their total byte size; the operand
// selects the native by directory index. The argument cells are gathered in
// push order, the callback is invoked exactly once, its return cell lands
// in pri, and the arguments are dropped from the stack before execution
// resumes.
func (m *Machine) sysreq(index Cell) error {
	if index < 0 || int(index) >= len(m.natives) {
		return fmt.Errorf("%w: native index %d of %d", ErrNotFound, index, len(m.natives))
	}
	fn := m.natives[index]
	if fn == nil {
		sym, _ := m.symbols.natives.At(int(index))
		return fmt.Errorf("%w: native %q is not registered", ErrNotFound, sym.Name)
	}

	nbytes, err := m.mem.Pop()
	if err != nil {
		return err
	}
	if nbytes < 0 || nbytes%CellSize != 0 {
		return fmt.Errorf("%w: native argument size %d", ErrParams, nbytes)
	}
	nargs := int(nbytes / CellSize)
	base := m.mem.stk - nbytes
	if base < m.header.Hea {
		return fmt.Errorf("%w: stk=0x%08x holds fewer than %d argument cells", ErrStackUnderflow, m.mem.stk, nargs)
	}

	args := make([]Cell, nargs)
	for i := range args {
		v, err := m.mem.CellAt(base + Cell(i)*CellSize)
		if err != nil {
			return err
		}
		args[i] = v
	}
	m.paramCount = Cell(nargs)

	ret, err := fn(m, args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNative, err)
	}
	m.pri = ret
	m.mem.stk = base
	return nil
}
