package vm

import "encoding/binary"

// Cell is the fixed-width addressable unit of a module's data, stack and
// heap. All addresses are byte offsets relative to the image base.
type Cell int32

// CellSize is the width of one cell in bytes.
const CellSize = 4

// ModuleMagic identifies a 32-bit-cell Amber module.
const ModuleMagic uint16 = 0xF1E0

// Supported format versions. Modules with a file format older than
// MinFileVersion or requiring a runtime newer than MaxRuntimeVersion are
// rejected at load time.
const (
	MinFileVersion    = 6
	CurFileVersion    = 9
	MaxRuntimeVersion = 10
)

// StackMargin is the safety margin kept between the stack pointer and the
// stack top, in bytes.
const StackMargin Cell = 16 * CellSize

// Execution selectors for Machine.Exec. Non-negative values select a
// public function by index.
const (
	ExecMain     = -1 // start at the module's entry point
	ExecContinue = -2 // resume a suspended machine
)

// ModuleFlags is the header flag word.
type ModuleFlags uint16

const (
	// FlagDebug indicates symbolic debug information is available.
	FlagDebug ModuleFlags = 0x02

	// FlagCompact indicates the code section uses compact encoding.
	FlagCompact ModuleFlags = 0x04

	// FlagSleep indicates the module uses the sleep instruction.
	FlagSleep ModuleFlags = 0x08

	// FlagNoChecks disables array bounds checking in generated code.
	FlagNoChecks ModuleFlags = 0x10

	// FlagRelocated indicates jump and call addresses are absolute image
	// offsets (already relocated by the producer).
	FlagRelocated ModuleFlags = 0x8000
)

// Has reports whether all bits in f are set.
func (m ModuleFlags) Has(f ModuleFlags) bool {
	return m&f == f
}

// ReadCell reads a little-endian cell from the start of buf.
// The caller guarantees len(buf) >= CellSize.
func ReadCell(buf []byte) Cell {
	return Cell(binary.LittleEndian.Uint32(buf))
}

// WriteCell writes v little-endian to the start of buf.
// The caller guarantees len(buf) >= CellSize.
func WriteCell(buf []byte, v Cell) {
	binary.LittleEndian.PutUint32(buf, uint32(v))
}
