package vm

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// cborEncMode uses canonical options so equal snapshots encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot captures a suspended machine: its registers and the mutable part
// of the address space. The code region is not captured; CodeHash binds the
// snapshot to the module it was taken from, so a snapshot can only be
// restored into a machine loaded from the same code.
type Snapshot struct {
	MachineID  string   `cbor:"id"`
	CodeHash   [32]byte `cbor:"code_hash"`
	Cip        Cell     `cbor:"cip"`
	Pri        Cell     `cbor:"pri"`
	Alt        Cell     `cbor:"alt"`
	Frm        Cell     `cbor:"frm"`
	Stk        Cell     `cbor:"stk"`
	Hea        Cell     `cbor:"hea"`
	ParamCount Cell     `cbor:"param_count"`
	Memory     []byte   `cbor:"memory"` // bytes [dat, stp)
}

// codeHash fingerprints the immutable code region.
func (m *Machine) codeHash() [32]byte {
	return blake3.Sum256(m.mem.base[m.header.Cod:m.header.Dat])
}

// Snapshot captures the machine at its sleep point. Only a suspended
// machine can be captured; the running loop mutates state, and a halted or
// faulted machine has nothing to resume.
func (m *Machine) Snapshot() (*Snapshot, error) {
	if m.state != StateSuspended {
		return nil, fmt.Errorf("%w: snapshot of a %s machine", ErrInvalidState, m.state)
	}
	mem, err := m.mem.Copy(m.header.Dat, Cell(m.mem.Len()))
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		MachineID:  m.id.String(),
		CodeHash:   m.codeHash(),
		Cip:        m.cip,
		Pri:        m.pri,
		Alt:        m.alt,
		Frm:        m.mem.frm,
		Stk:        m.mem.stk,
		Hea:        m.mem.hea,
		ParamCount: m.paramCount,
		Memory:     mem,
	}, nil
}

// RestoreSnapshot loads a snapshot into the machine and leaves it
// suspended, ready for Exec(ExecContinue). The machine must have been
// loaded from the module the snapshot was taken from.
func (m *Machine) RestoreSnapshot(s *Snapshot) error {
	if m.state == StateRunning {
		return fmt.Errorf("%w: cannot restore into a running machine", ErrInvalidState)
	}
	hash := m.codeHash()
	if !bytes.Equal(hash[:], s.CodeHash[:]) {
		return fmt.Errorf("%w: snapshot was taken from a different module", ErrFormat)
	}
	if int(m.header.Dat)+len(s.Memory) != m.mem.Len() {
		return fmt.Errorf("%w: snapshot memory is %d bytes, address space expects %d",
			ErrFormat, len(s.Memory), m.mem.Len()-int(m.header.Dat))
	}
	if err := m.mem.Restore(m.header.Dat, s.Memory); err != nil {
		return err
	}
	m.cip = s.Cip
	m.pri = s.Pri
	m.alt = s.Alt
	m.mem.frm = s.Frm
	m.mem.stk = s.Stk
	m.mem.hea = s.Hea
	m.paramCount = s.ParamCount
	m.state = StateSuspended
	m.lastFault = fmt.Errorf("%w: restored snapshot", ErrSleep)
	return nil
}

// MarshalSnapshot serializes a snapshot to canonical CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: unmarshal snapshot: %v", ErrFormat, err)
	}
	return &s, nil
}
