package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the fixed-layout module header in bytes.
const HeaderSize = 56

// NameTableEntrySize is the size of a directory entry in the compact
// layout: {address:u32, nameofs:u32}. A header whose defsize equals this
// stores symbol names in the shared name table rather than inline.
const NameTableEntrySize = 8

// inlineNameMax is the maximum inline symbol name length (excluding the
// terminating NUL) in the older directory-entry layout.
const inlineNameMax = 19

// maxAddressSpace caps the memory one module may claim through its header,
// keeping a hostile stack-top field from ballooning the allocation.
const maxAddressSpace = 64 << 20

// ---------------------------------------------------------------------------
// ModuleHeader: fixed-layout record at offset 0 of every module image
// ---------------------------------------------------------------------------

// ModuleHeader is the parsed fixed-layout header of a module image. All
// section fields are byte offsets relative to the image base.
type ModuleHeader struct {
	Size        Cell        // total image size
	Magic       uint16      // must equal ModuleMagic
	FileVersion uint8       // format version of the producing compiler
	AmxVersion  uint8       // minimum runtime version required
	Flags       ModuleFlags // flag bits
	DefSize     int16       // size of one directory entry
	Cod         Cell        // start of the code section
	Dat         Cell        // start of the data section
	Hea         Cell        // end of static data, base of the stack/heap region
	Stp         Cell        // stack top
	Cip         Cell        // initial instruction pointer
	Publics     Cell        // public functions table, 0 if absent
	Natives     Cell        // native functions table, 0 if absent
	Libraries   Cell        // libraries table, 0 if absent
	PubVars     Cell        // public variables table, 0 if absent
	Tags        Cell        // tag names table, 0 if absent
	NameTable   Cell        // shared name table
}

// NewHeader returns a header with current versions and the compact entry
// layout. Section offsets are left for the producer to fill in.
func NewHeader() *ModuleHeader {
	return &ModuleHeader{
		Magic:       ModuleMagic,
		FileVersion: CurFileVersion,
		AmxVersion:  MaxRuntimeVersion,
		DefSize:     NameTableEntrySize,
	}
}

// Validate checks the structural invariants of the header.
func (h *ModuleHeader) Validate() error {
	if h.Magic != ModuleMagic {
		return fmt.Errorf("%w: magic 0x%04X, want 0x%04X", ErrFormat, h.Magic, ModuleMagic)
	}
	if h.FileVersion < MinFileVersion {
		return fmt.Errorf("%w: file format %d is older than minimum %d", ErrVersion, h.FileVersion, MinFileVersion)
	}
	if h.AmxVersion > MaxRuntimeVersion {
		return fmt.Errorf("%w: module requires runtime %d, this engine provides %d", ErrVersion, h.AmxVersion, MaxRuntimeVersion)
	}
	if h.DefSize < NameTableEntrySize {
		return fmt.Errorf("%w: directory entry size %d", ErrFormat, h.DefSize)
	}
	if h.Cod < HeaderSize || h.Dat < h.Cod || h.Hea < h.Dat || h.Stp < h.Hea {
		return fmt.Errorf("%w: section layout cod=0x%08x dat=0x%08x hea=0x%08x stp=0x%08x",
			ErrFormat, h.Cod, h.Dat, h.Hea, h.Stp)
	}
	if h.Stp > maxAddressSpace {
		return fmt.Errorf("%w: address space of %d bytes exceeds the %d limit", ErrMemory, h.Stp, maxAddressSpace)
	}
	return nil
}

// UsesNameTable reports whether directory entries reference the shared name
// table instead of carrying names inline. Derived from the entry size, not
// stored.
func (h *ModuleHeader) UsesNameTable() bool {
	return h.DefSize == NameTableEntrySize
}

// NumEntries computes how many directory entries a table holds, given the
// offset of the table and of the next declared section.
func (h *ModuleHeader) NumEntries(table, next Cell) int {
	if table <= 0 || next <= table {
		return 0
	}
	return int(next-table) / int(h.DefSize)
}

// EntryAt returns the raw directory entry at index in the table starting at
// table. It never reads past the image.
func (h *ModuleHeader) EntryAt(image []byte, table Cell, index int) ([]byte, error) {
	offset := int(table) + index*int(h.DefSize)
	end := offset + int(h.DefSize)
	if offset < 0 || end > len(image) {
		return nil, fmt.Errorf("%w: directory entry at offset 0x%08x", ErrMemoryAccess, offset)
	}
	return image[offset:end], nil
}

// EntryName resolves the symbol name of a directory entry, reading either
// the inline NUL-terminated name or the shared name table, depending on the
// header layout.
func (h *ModuleHeader) EntryName(image []byte, entry []byte) (string, error) {
	if h.UsesNameTable() {
		nameofs := int(binary.LittleEndian.Uint32(entry[4:8]))
		if nameofs < 0 || nameofs >= len(image) {
			return "", fmt.Errorf("%w: name table offset 0x%08x", ErrMemoryAccess, nameofs)
		}
		end := bytes.IndexByte(image[nameofs:], 0)
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated name at offset 0x%08x", ErrFormat, nameofs)
		}
		return string(image[nameofs : nameofs+end]), nil
	}
	raw := entry[4:]
	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}
	return string(raw), nil
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// ReadHeader deserializes and validates a module header from the start of
// data. Fields are read in declared order as fixed-width little-endian
// integers.
func ReadHeader(data []byte) (*ModuleHeader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: image %d bytes, header needs %d", ErrFormat, len(data), HeaderSize)
	}

	h := &ModuleHeader{
		Size:        ReadCell(data[0:]),
		Magic:       binary.LittleEndian.Uint16(data[4:]),
		FileVersion: data[6],
		AmxVersion:  data[7],
		Flags:       ModuleFlags(binary.LittleEndian.Uint16(data[8:])),
		DefSize:     int16(binary.LittleEndian.Uint16(data[10:])),
		Cod:         ReadCell(data[12:]),
		Dat:         ReadCell(data[16:]),
		Hea:         ReadCell(data[20:]),
		Stp:         ReadCell(data[24:]),
		Cip:         ReadCell(data[28:]),
		Publics:     ReadCell(data[32:]),
		Natives:     ReadCell(data[36:]),
		Libraries:   ReadCell(data[40:]),
		PubVars:     ReadCell(data[44:]),
		Tags:        ReadCell(data[48:]),
		NameTable:   ReadCell(data[52:]),
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// WriteHeader serializes the header to its fixed binary layout. It is the
// byte-exact inverse of ReadHeader for any valid header.
func WriteHeader(h *ModuleHeader) []byte {
	buf := make([]byte, HeaderSize)
	WriteCell(buf[0:], h.Size)
	binary.LittleEndian.PutUint16(buf[4:], h.Magic)
	buf[6] = h.FileVersion
	buf[7] = h.AmxVersion
	binary.LittleEndian.PutUint16(buf[8:], uint16(h.Flags))
	binary.LittleEndian.PutUint16(buf[10:], uint16(h.DefSize))
	WriteCell(buf[12:], h.Cod)
	WriteCell(buf[16:], h.Dat)
	WriteCell(buf[20:], h.Hea)
	WriteCell(buf[24:], h.Stp)
	WriteCell(buf[28:], h.Cip)
	WriteCell(buf[32:], h.Publics)
	WriteCell(buf[36:], h.Natives)
	WriteCell(buf[40:], h.Libraries)
	WriteCell(buf[44:], h.PubVars)
	WriteCell(buf[48:], h.Tags)
	WriteCell(buf[52:], h.NameTable)
	return buf
}
