package vm

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Machine: one loaded module plus its execution state
// ---------------------------------------------------------------------------

// State is the lifecycle phase of a Machine.
type State uint8

const (
	StateReady     State = iota // loaded, no Exec issued yet
	StateRunning                // inside the dispatch loop
	StateHalted                 // last Exec completed normally
	StateSuspended              // paused at a sleep point, resumable
	StateFaulted                // last Exec aborted with a fault
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateSuspended:
		return "suspended"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// sentinelReturn is the return address Exec seeds at the bottom of the call
// chain. A frame teardown that lands here ends the run like a clean halt.
const sentinelReturn Cell = -1

// Machine executes one module image. It owns its address space exclusively;
// independent machines may run concurrently, but a single machine must not
// be shared across goroutines without external synchronization.
//
// Calling convention: a caller stages arguments with PushArg, then invokes
// Exec. Exec pushes the staged cells onto the module stack in staging order
// and records their count in the parameter-count register. A function opens
// its frame with PROC (push frm, frm = stk) and closes it with RET or
// RETN n, where n is the byte size of its declared arguments; RETN drops
// those cells from the caller's stack.
type Machine struct {
	id      uuid.UUID
	header  *ModuleHeader
	mem     *AddressSpace
	symbols *moduleSymbols

	cip        Cell
	pri, alt   Cell
	paramCount Cell

	state     State
	lastFault error

	// natives are bound per directory index; nil slots fault at dispatch.
	natives     []NativeFunc
	pendingArgs []Cell

	// maxInstructions bounds one Exec call; zero means unlimited.
	maxInstructions uint64
}

// NewMachine validates the image, loads its symbol tables and returns a
// machine in the Ready state. Loading is all-or-nothing: any header or
// table fault leaves no partially initialized machine behind.
func NewMachine(image []byte) (*Machine, error) {
	header, err := ReadHeader(image)
	if err != nil {
		return nil, err
	}
	symbols, err := loadModuleSymbols(image, header)
	if err != nil {
		return nil, err
	}
	return &Machine{
		id:      uuid.New(),
		header:  header,
		mem:     newAddressSpace(image, header),
		symbols: symbols,
		cip:     header.Cip,
		natives: make([]NativeFunc, symbols.natives.Len()),
	}, nil
}

// ID returns the machine's unique instance identifier.
func (m *Machine) ID() uuid.UUID {
	return m.id
}

// Header returns the parsed module header.
func (m *Machine) Header() *ModuleHeader {
	return m.header
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	return m.state
}

// LastFault returns the fault recorded by the most recent Exec, or nil.
func (m *Machine) LastFault() error {
	return m.lastFault
}

// LastCode returns the numeric code of the recorded fault, CodeNone if none.
func (m *Machine) LastCode() int {
	return CodeOf(m.lastFault)
}

// SetInstructionBudget bounds the number of instructions a single Exec call
// may dispatch. Zero removes the bound. Exceeding the budget faults the run
// with a forced exit.
func (m *Machine) SetInstructionBudget(n uint64) {
	m.maxInstructions = n
}

// ---------------------------------------------------------------------------
// Symbol lookup
// ---------------------------------------------------------------------------

// NumPublics returns the number of public functions the module exports.
func (m *Machine) NumPublics() int {
	return m.symbols.publics.Len()
}

// FindPublic resolves a public function name to its Exec selector index.
// Indices address publics in name order.
func (m *Machine) FindPublic(name string) (int, error) {
	if _, err := m.symbols.publics.Find(name); err != nil {
		return 0, err
	}
	names := m.symbols.publics.Names()
	sort.Strings(names)
	return sort.SearchStrings(names, name), nil
}

// FindNative resolves a native function name to its directory index.
func (m *Machine) FindNative(name string) (int, error) {
	return m.symbols.natives.Find(name)
}

// FindPubVar resolves a public variable name to its data address.
func (m *Machine) FindPubVar(name string) (Cell, error) {
	i, err := m.symbols.pubVars.Find(name)
	if err != nil {
		return 0, err
	}
	s, err := m.symbols.pubVars.At(i)
	if err != nil {
		return 0, err
	}
	return s.Address, nil
}

// FindTag resolves a tag name to its tag id.
func (m *Machine) FindTag(name string) (Cell, error) {
	i, err := m.symbols.tags.Find(name)
	if err != nil {
		return 0, err
	}
	s, err := m.symbols.tags.At(i)
	if err != nil {
		return 0, err
	}
	return s.Address, nil
}

// CellAt exposes bounds-checked reads of the module's address space to
// hosts and natives.
func (m *Machine) CellAt(addr Cell) (Cell, error) {
	return m.mem.CellAt(addr)
}

// PutCell exposes bounds-checked writes of the module's address space to
// hosts and natives.
func (m *Machine) PutCell(addr Cell, v Cell) error {
	return m.mem.PutCell(addr, v)
}

// ---------------------------------------------------------------------------
// Execution entry points
// ---------------------------------------------------------------------------

// PushArg stages one argument cell for the next Exec call. Staged cells are
// pushed in staging order and discarded once consumed.
func (m *Machine) PushArg(v Cell) {
	m.pendingArgs = append(m.pendingArgs, v)
}

// Exec runs the module. The selector is ExecMain for the header's entry
// point, ExecContinue to resume a suspended machine, or a non-negative
// public-function index (name order, see FindPublic). Exec returns the
// primary accumulator at completion; a suspension returns ErrSleep with the
// machine left resumable.
func (m *Machine) Exec(selector int) (Cell, error) {
	switch m.state {
	case StateRunning:
		return 0, fmt.Errorf("%w: machine is already running", ErrInvalidState)
	case StateSuspended:
		if selector != ExecContinue {
			return 0, fmt.Errorf("%w: suspended machine accepts only ExecContinue", ErrInvalidState)
		}
	default:
		if selector == ExecContinue {
			return 0, fmt.Errorf("%w: nothing to continue from state %s", ErrInvalidState, m.state)
		}
	}

	if selector != ExecContinue {
		if err := m.seedRun(selector); err != nil {
			return 0, err
		}
	}

	m.state = StateRunning
	m.lastFault = nil
	return m.run()
}

// seedRun resets the dynamic regions and stages the entry point and
// arguments for a fresh run.
func (m *Machine) seedRun(selector int) error {
	var entry Cell
	switch {
	case selector == ExecMain:
		entry = m.header.Cip
	case selector >= 0:
		sym, err := m.symbols.sortedPublicIndex(selector)
		if err != nil {
			return err
		}
		entry = sym.Address
	default:
		return fmt.Errorf("%w: selector %d", ErrIndex, selector)
	}

	m.mem.frm = m.header.Hea
	m.mem.stk = m.header.Hea
	m.mem.hea = m.mem.hlw
	m.cip = entry

	args := m.pendingArgs
	m.pendingArgs = nil
	for _, v := range args {
		if err := m.mem.Push(v); err != nil {
			return err
		}
	}
	m.paramCount = Cell(len(args))
	return m.mem.Push(sentinelReturn)
}
