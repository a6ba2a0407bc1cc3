package vm

import "fmt"

// ---------------------------------------------------------------------------
// AddressSpace: the unified memory model
// ---------------------------------------------------------------------------

// AddressSpace owns the module image: one contiguous byte buffer holding
// code, static data, the heap and the stack, together with the region
// registers that partition it. Every memory access an instruction performs
// goes through the bounds-checked accessors here; no other component may
// index the buffer directly.
type AddressSpace struct {
	base []byte

	frm Cell // base of the current call frame
	stk Cell // stack pointer, moves by one cell per push/pop
	stp Cell // stack top, the heap's initial position
	hea Cell // heap top, moves downward as the heap grows
	hlw Cell // heap low-water mark, the release bound (= stp)
}

// newAddressSpace copies the image and initializes the region registers
// from the validated header. A file image shorter than the declared stack
// top is extended with zeroes so the stack region exists in memory.
//
// Stack and heap share the region [hea0, stp): the stack is seeded at the
// initial heap boundary, above all static data, and grows upward; the heap
// is seeded at stp and grows downward. The two move toward each other, and
// meeting is a fault, never silent aliasing.
func newAddressSpace(image []byte, h *ModuleHeader) *AddressSpace {
	size := len(image)
	if int(h.Stp) > size {
		size = int(h.Stp)
	}
	base := make([]byte, size)
	copy(base, image)

	return &AddressSpace{
		base: base,
		frm:  h.Hea,
		stk:  h.Hea,
		stp:  h.Stp,
		hea:  h.Stp,
		hlw:  h.Stp,
	}
}

// Len returns the image length in bytes.
func (a *AddressSpace) Len() int {
	return len(a.base)
}

// CellAt reads the cell at the given byte address. A byte range beyond the
// image is a memory-access fault carrying the offending offset.
func (a *AddressSpace) CellAt(addr Cell) (Cell, error) {
	if addr < 0 || int(addr)+CellSize > len(a.base) {
		return 0, fmt.Errorf("%w: read at address 0x%08x", ErrMemoryAccess, addr)
	}
	return ReadCell(a.base[addr:]), nil
}

// PutCell writes the cell at the given byte address, with the same bounds
// discipline as CellAt.
func (a *AddressSpace) PutCell(addr Cell, v Cell) error {
	if addr < 0 || int(addr)+CellSize > len(a.base) {
		return fmt.Errorf("%w: write at address 0x%08x", ErrMemoryAccess, addr)
	}
	WriteCell(a.base[addr:], v)
	return nil
}

// ---------------------------------------------------------------------------
// Stack discipline
// ---------------------------------------------------------------------------

// Push writes v at the stack pointer and advances it by one cell. Pushing
// into the allocated heap is a collision, reported as stack overflow.
func (a *AddressSpace) Push(v Cell) error {
	if a.stk >= a.hea {
		return fmt.Errorf("%w: stk=0x%08x hea=0x%08x", ErrStackOverflow, a.stk, a.hea)
	}
	if err := a.PutCell(a.stk, v); err != nil {
		return err
	}
	a.stk += CellSize
	return nil
}

// Pop retracts the stack pointer by one cell and returns the value there.
// Popping at or below the frame base is a stack underflow.
func (a *AddressSpace) Pop() (Cell, error) {
	if a.stk <= a.frm {
		return 0, fmt.Errorf("%w: stk=0x%08x frm=0x%08x", ErrStackUnderflow, a.stk, a.frm)
	}
	a.stk -= CellSize
	return a.CellAt(a.stk)
}

// ---------------------------------------------------------------------------
// Heap discipline
// ---------------------------------------------------------------------------

// HeapAlloc claims n bytes of heap and returns the address of the block.
// The heap grows downward from the stack top; growth that would cross the
// stack pointer is an address-space collision, reported the same way as
// stack overflow. Negative n releases heap space; releasing past the
// low-water mark is a heap underflow.
func (a *AddressSpace) HeapAlloc(n Cell) (Cell, error) {
	next := a.hea - n
	if next < a.stk {
		return 0, fmt.Errorf("%w: hea=0x%08x crosses stk=0x%08x", ErrStackOverflow, next, a.stk)
	}
	if next > a.hlw {
		return 0, fmt.Errorf("%w: hea=0x%08x above low-water 0x%08x", ErrHeapUnderflow, next, a.hlw)
	}
	a.hea = next
	return next, nil
}

// Copy returns a copy of the bytes in [from, to). Used by snapshots; out of
// range is a memory-access fault.
func (a *AddressSpace) Copy(from, to Cell) ([]byte, error) {
	if from < 0 || to < from || int(to) > len(a.base) {
		return nil, fmt.Errorf("%w: range 0x%08x..0x%08x", ErrMemoryAccess, from, to)
	}
	out := make([]byte, to-from)
	copy(out, a.base[from:to])
	return out, nil
}

// Restore overwrites the bytes at [from, from+len(data)).
func (a *AddressSpace) Restore(from Cell, data []byte) error {
	if from < 0 || int(from)+len(data) > len(a.base) {
		return fmt.Errorf("%w: range 0x%08x..0x%08x", ErrMemoryAccess, from, int(from)+len(data))
	}
	copy(a.base[from:], data)
	return nil
}
