package vm

import (
	"errors"
	"strings"
	"testing"
)

// testSpace builds an address space with a 16-cell stack region.
func testSpace(t *testing.T) *AddressSpace {
	t.Helper()
	h := validHeader()
	h.Dat = 128
	h.Hea = 160
	h.Stp = h.Hea + 16*CellSize
	return newAddressSpace(make([]byte, int(h.Hea)), h)
}

func TestCellReadWrite(t *testing.T) {
	a := testSpace(t)
	if err := a.PutCell(128, -42); err != nil {
		t.Fatalf("PutCell failed: %v", err)
	}
	v, err := a.CellAt(128)
	if err != nil {
		t.Fatalf("CellAt failed: %v", err)
	}
	if v != -42 {
		t.Errorf("CellAt = %d, want -42", v)
	}
}

func TestCellBounds(t *testing.T) {
	a := testSpace(t)
	cases := []Cell{-4, -1, Cell(a.Len()) - 3, Cell(a.Len())}
	for _, addr := range cases {
		if _, err := a.CellAt(addr); !errors.Is(err, ErrMemoryAccess) {
			t.Errorf("CellAt(%d): got %v, want ErrMemoryAccess", addr, err)
		}
		if err := a.PutCell(addr, 1); !errors.Is(err, ErrMemoryAccess) {
			t.Errorf("PutCell(%d): got %v, want ErrMemoryAccess", addr, err)
		}
	}
}

func TestCellFaultCarriesOffset(t *testing.T) {
	a := testSpace(t)
	// The region ends at stp = 0xe0.
	_, err := a.CellAt(Cell(a.Len()))
	if err == nil || !strings.Contains(err.Error(), "0x000000e0") {
		t.Errorf("fault should carry the offending offset: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Stack discipline
// ---------------------------------------------------------------------------

func TestStackLIFO(t *testing.T) {
	a := testSpace(t)
	start := a.stk
	for i := Cell(1); i <= 8; i++ {
		if err := a.Push(i * 10); err != nil {
			t.Fatalf("push %d failed: %v", i, err)
		}
	}
	for i := Cell(8); i >= 1; i-- {
		v, err := a.Pop()
		if err != nil {
			t.Fatalf("pop %d failed: %v", i, err)
		}
		if v != i*10 {
			t.Errorf("pop = %d, want %d", v, i*10)
		}
	}
	if a.stk != start {
		t.Errorf("balanced push/pop moved stk: 0x%08x -> 0x%08x", start, a.stk)
	}
}

func TestStackOverflow(t *testing.T) {
	a := testSpace(t)
	for i := 0; i < 16; i++ {
		if err := a.Push(0); err != nil {
			t.Fatalf("push %d failed: %v", i, err)
		}
	}
	if err := a.Push(0); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("push at stack top: got %v, want ErrStackOverflow", err)
	}
}

func TestStackUnderflow(t *testing.T) {
	a := testSpace(t)
	if _, err := a.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("pop at frame base: got %v, want ErrStackUnderflow", err)
	}
}

// ---------------------------------------------------------------------------
// Heap discipline
// ---------------------------------------------------------------------------

func TestHeapAllocRelease(t *testing.T) {
	a := testSpace(t)
	addr, err := a.HeapAlloc(8 * CellSize)
	if err != nil {
		t.Fatalf("HeapAlloc failed: %v", err)
	}
	if addr != a.hlw-8*CellSize {
		t.Errorf("HeapAlloc returned 0x%08x, want the block base 0x%08x", addr, a.hlw-8*CellSize)
	}
	if _, err := a.HeapAlloc(-8 * CellSize); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if a.hea != a.hlw {
		t.Errorf("balanced alloc/release moved hea: 0x%08x, want 0x%08x", a.hea, a.hlw)
	}
}

func TestHeapCollision(t *testing.T) {
	a := testSpace(t)
	if err := a.Push(42); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	// One cell is on the stack, so claiming the whole region must fault,
	// and the stacked cell must survive untouched.
	if _, err := a.HeapAlloc(a.hea - a.frm); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("heap growth across the stack pointer: got %v, want ErrStackOverflow", err)
	}
	v, err := a.Pop()
	if err != nil {
		t.Fatalf("pop after failed alloc: %v", err)
	}
	if v != 42 {
		t.Errorf("stack cell after failed alloc = %d, want 42", v)
	}
}

func TestHeapFillsToStackPointer(t *testing.T) {
	a := testSpace(t)
	if _, err := a.HeapAlloc(a.hea - a.stk); err != nil {
		t.Fatalf("exact-fit alloc failed: %v", err)
	}
	if _, err := a.HeapAlloc(CellSize); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("alloc with no room left: got %v, want ErrStackOverflow", err)
	}
	if err := a.Push(0); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("push into a full heap: got %v, want ErrStackOverflow", err)
	}
}

func TestHeapUnderflow(t *testing.T) {
	a := testSpace(t)
	if _, err := a.HeapAlloc(-CellSize); !errors.Is(err, ErrHeapUnderflow) {
		t.Errorf("release past low-water: got %v, want ErrHeapUnderflow", err)
	}
}
