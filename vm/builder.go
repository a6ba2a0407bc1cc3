package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Builder: assembles module images
// ---------------------------------------------------------------------------

// inlineEntrySize is the directory entry size of the older layout: a 4-byte
// address followed by an inline name field.
const inlineEntrySize = 4 + inlineNameMax + 1

// Builder assembles a module image from code, data and symbol declarations.
// Code and data addresses are section-relative while building; Build
// relocates them to absolute image offsets and sets the relocated flag, so
// the produced image loads without a separate relocation pass.
type Builder struct {
	code []byte
	data []byte

	heapSize  Cell
	stackSize Cell
	entry     Cell

	inlineNames bool

	publics   []Symbol // address = code offset
	natives   []string
	libraries []string
	pubVars   []Symbol // address = data offset
	tags      []Symbol // address = tag id

	codeRefs []int // operand positions in code holding code offsets
	dataRefs []int // operand positions in code holding data offsets
}

// NewBuilder returns a builder producing the compact name-table layout with
// a default stack allocation.
func NewBuilder() *Builder {
	return &Builder{stackSize: 256 * CellSize}
}

// UseInlineNames switches the produced image to the older layout that
// stores symbol names inline in each directory entry.
func (b *Builder) UseInlineNames() *Builder {
	b.inlineNames = true
	return b
}

// StackSize sets the stack allocation in bytes.
func (b *Builder) StackSize(n Cell) *Builder {
	b.stackSize = n
	return b
}

// HeapSize reserves additional room in the shared stack/heap region beyond
// the default stack allocation.
func (b *Builder) HeapSize(n Cell) *Builder {
	b.heapSize = n
	return b
}

// Here returns the code offset the next Emit will occupy.
func (b *Builder) Here() Cell {
	return Cell(len(b.code))
}

// Emit appends one instruction and returns its code offset. The operand is
// written verbatim; use EmitBranch or EmitDataAddr when it is an address.
func (b *Builder) Emit(op Opcode, operand Cell) Cell {
	at := b.Here()
	b.code = append(b.code, byte(op), 0, 0, 0, 0)
	WriteCell(b.code[at+1:], operand)
	return at
}

// EmitBranch appends a control-transfer instruction whose operand is a code
// offset, recorded for relocation. The returned offset can be handed to
// Patch to resolve a forward target later.
func (b *Builder) EmitBranch(op Opcode, target Cell) Cell {
	at := b.Emit(op, target)
	b.codeRefs = append(b.codeRefs, int(at)+1)
	return at
}

// EmitDataAddr appends an instruction whose operand is a data offset,
// recorded for relocation to an absolute address.
func (b *Builder) EmitDataAddr(op Opcode, offset Cell) Cell {
	at := b.Emit(op, offset)
	b.dataRefs = append(b.dataRefs, int(at)+1)
	return at
}

// Patch rewrites the operand of the instruction at the given code offset.
func (b *Builder) Patch(at Cell, operand Cell) {
	WriteCell(b.code[at+1:], operand)
}

// Data appends cells to the data section and returns their data offset.
func (b *Builder) Data(cells ...Cell) Cell {
	at := Cell(len(b.data))
	for _, c := range cells {
		var buf [CellSize]byte
		WriteCell(buf[:], c)
		b.data = append(b.data, buf[:]...)
	}
	return at
}

// DataString appends a string as one cell per character plus a NUL cell and
// returns its data offset.
func (b *Builder) DataString(s string) Cell {
	at := Cell(len(b.data))
	for _, r := range s {
		b.Data(Cell(r))
	}
	b.Data(0)
	return at
}

// Entry sets the code offset execution starts at for the main selector.
func (b *Builder) Entry(codeOffset Cell) *Builder {
	b.entry = codeOffset
	return b
}

// Public declares a public function at a code offset.
func (b *Builder) Public(name string, codeOffset Cell) *Builder {
	b.publics = append(b.publics, Symbol{Name: name, Address: codeOffset})
	return b
}

// Native declares a native-function slot and returns its directory index,
// the operand SYSREQ selects it by.
func (b *Builder) Native(name string) Cell {
	b.natives = append(b.natives, name)
	return Cell(len(b.natives) - 1)
}

// Library declares a library name in the libraries table.
func (b *Builder) Library(name string) *Builder {
	b.libraries = append(b.libraries, name)
	return b
}

// PubVar declares a public variable at a data offset.
func (b *Builder) PubVar(name string, dataOffset Cell) *Builder {
	b.pubVars = append(b.pubVars, Symbol{Name: name, Address: dataOffset})
	return b
}

// Tag declares a tag name with its id.
func (b *Builder) Tag(name string, id Cell) *Builder {
	b.tags = append(b.tags, Symbol{Name: name, Address: id})
	return b
}

// Build lays out the image: header, directory tables, name table, code,
// data. Section-relative addresses are relocated to absolute offsets. The
// stack allocation is padded up to the safety margin if set below it.
func (b *Builder) Build() ([]byte, error) {
	defSize := Cell(NameTableEntrySize)
	if b.inlineNames {
		defSize = inlineEntrySize
		for _, name := range b.allNames() {
			if len(name) > inlineNameMax {
				return nil, fmt.Errorf("%w: symbol name %q exceeds %d bytes in the inline layout", ErrFormat, name, inlineNameMax)
			}
		}
	}

	stack := b.stackSize
	if stack < StackMargin {
		stack = StackMargin
	}

	h := NewHeader()
	if b.inlineNames {
		h.DefSize = int16(inlineEntrySize)
	}
	h.Flags = FlagRelocated

	h.Publics = HeaderSize
	h.Natives = h.Publics + Cell(len(b.publics))*defSize
	h.Libraries = h.Natives + Cell(len(b.natives))*defSize
	h.PubVars = h.Libraries + Cell(len(b.libraries))*defSize
	h.Tags = h.PubVars + Cell(len(b.pubVars))*defSize
	h.NameTable = h.Tags + Cell(len(b.tags))*defSize

	// Name table holds every symbol name in table order, NUL-terminated.
	// The inline layout leaves it empty.
	var names []byte
	nameOfs := make(map[int]Cell)
	if !b.inlineNames {
		for i, name := range b.allNames() {
			nameOfs[i] = h.NameTable + Cell(len(names))
			names = append(names, name...)
			names = append(names, 0)
		}
	}

	h.Cod = h.NameTable + Cell(len(names))
	h.Dat = h.Cod + Cell(len(b.code))
	h.Hea = h.Dat + Cell(len(b.data))
	h.Stp = h.Hea + stack + b.heapSize
	h.Cip = h.Cod + b.entry
	h.Size = h.Hea

	// Relocate code-embedded addresses.
	code := append([]byte(nil), b.code...)
	for _, pos := range b.codeRefs {
		WriteCell(code[pos:], ReadCell(code[pos:])+h.Cod)
	}
	for _, pos := range b.dataRefs {
		WriteCell(code[pos:], ReadCell(code[pos:])+h.Dat)
	}

	image := WriteHeader(h)
	next := 0
	appendTable := func(syms []Symbol, relocate Cell) {
		for _, s := range syms {
			entry := make([]byte, defSize)
			binary.LittleEndian.PutUint32(entry, uint32(s.Address+relocate))
			if b.inlineNames {
				copy(entry[4:], s.Name)
			} else {
				binary.LittleEndian.PutUint32(entry[4:], uint32(nameOfs[next]))
			}
			next++
			image = append(image, entry...)
		}
	}
	appendTable(b.publics, h.Cod)
	appendTable(b.nameOnly(b.natives), 0)
	appendTable(b.nameOnly(b.libraries), 0)
	appendTable(b.pubVars, h.Dat)
	appendTable(b.tags, 0)
	image = append(image, names...)
	image = append(image, code...)
	image = append(image, b.data...)

	if Cell(len(image)) != h.Hea {
		return nil, fmt.Errorf("%w: image layout (%d bytes, data end 0x%08x)", ErrFormat, len(image), h.Hea)
	}
	return image, nil
}

// allNames returns every declared symbol name in directory order, matching
// the order Build writes entries.
func (b *Builder) allNames() []string {
	var names []string
	for _, s := range b.publics {
		names = append(names, s.Name)
	}
	names = append(names, b.natives...)
	names = append(names, b.libraries...)
	for _, s := range b.pubVars {
		names = append(names, s.Name)
	}
	for _, s := range b.tags {
		names = append(names, s.Name)
	}
	return names
}

func (b *Builder) nameOnly(names []string) []Symbol {
	syms := make([]Symbol, len(names))
	for i, name := range names {
		syms[i] = Symbol{Name: name}
	}
	return syms
}
