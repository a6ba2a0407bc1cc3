package vm

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Symbol tables
// ---------------------------------------------------------------------------

// Symbol is one resolved directory entry: a name bound to an address. The
// meaning of the address depends on the table it came from (code offset for
// publics, data offset for public variables, tag id for tags, unused for
// natives and libraries).
type Symbol struct {
	Name    string
	Address Cell
}

// SymbolTable is an ordered set of symbols with name lookup. Order is the
// order of the directory entries in the image.
type SymbolTable struct {
	symbols []Symbol
	byName  map[string]int
}

// Len returns the number of symbols in the table.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// At returns the symbol at index, or an index fault if out of range.
func (t *SymbolTable) At(index int) (Symbol, error) {
	if index < 0 || index >= len(t.symbols) {
		return Symbol{}, fmt.Errorf("%w: symbol %d of %d", ErrIndex, index, len(t.symbols))
	}
	return t.symbols[index], nil
}

// Find returns the index of the named symbol, or a not-found fault.
func (t *SymbolTable) Find(name string) (int, error) {
	if i, ok := t.byName[name]; ok {
		return i, nil
	}
	return 0, fmt.Errorf("%w: symbol %q", ErrNotFound, name)
}

// Names returns the symbol names in table order.
func (t *SymbolTable) Names() []string {
	names := make([]string, len(t.symbols))
	for i, s := range t.symbols {
		names[i] = s.Name
	}
	return names
}

// loadSymbolTable resolves the directory entries between table and next
// into a SymbolTable. A zero table offset means the section is absent and
// yields an empty table, not a fault. Duplicate names within one table are
// a format fault; entries or names running past the image are a
// memory-access fault.
func loadSymbolTable(image []byte, h *ModuleHeader, table, next Cell, kind string) (*SymbolTable, error) {
	t := &SymbolTable{byName: make(map[string]int)}
	n := h.NumEntries(table, next)
	for i := 0; i < n; i++ {
		entry, err := h.EntryAt(image, table, i)
		if err != nil {
			return nil, err
		}
		name, err := h.EntryName(image, entry)
		if err != nil {
			return nil, err
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate %s symbol %q", ErrFormat, kind, name)
		}
		t.byName[name] = i
		t.symbols = append(t.symbols, Symbol{
			Name:    name,
			Address: Cell(binary.LittleEndian.Uint32(entry[0:4])),
		})
	}
	return t, nil
}

// moduleSymbols holds the five loaded directory tables of an image.
type moduleSymbols struct {
	publics   *SymbolTable
	natives   *SymbolTable
	libraries *SymbolTable
	pubVars   *SymbolTable
	tags      *SymbolTable
}

// loadModuleSymbols loads all directory tables. Table extents are derived
// from the offsets of the following declared sections.
func loadModuleSymbols(image []byte, h *ModuleHeader) (*moduleSymbols, error) {
	publics, err := loadSymbolTable(image, h, h.Publics, h.Natives, "public")
	if err != nil {
		return nil, err
	}
	natives, err := loadSymbolTable(image, h, h.Natives, h.Libraries, "native")
	if err != nil {
		return nil, err
	}
	libraries, err := loadSymbolTable(image, h, h.Libraries, h.PubVars, "library")
	if err != nil {
		return nil, err
	}
	pubVars, err := loadSymbolTable(image, h, h.PubVars, h.Tags, "public variable")
	if err != nil {
		return nil, err
	}
	tags, err := loadSymbolTable(image, h, h.Tags, h.NameTable, "tag")
	if err != nil {
		return nil, err
	}
	return &moduleSymbols{
		publics:   publics,
		natives:   natives,
		libraries: libraries,
		pubVars:   pubVars,
		tags:      tags,
	}, nil
}

// sortedPublicIndex maps an execution index to a public symbol. Indices
// address publics in name order, which is stable regardless of entry order
// in the image. An index with no public behind it is a not-found fault,
// the same as a failed name lookup.
func (s *moduleSymbols) sortedPublicIndex(index int) (Symbol, error) {
	if index < 0 || index >= s.publics.Len() {
		return Symbol{}, fmt.Errorf("%w: public %d of %d", ErrNotFound, index, s.publics.Len())
	}
	names := s.publics.Names()
	sort.Strings(names)
	i, err := s.publics.Find(names[index])
	if err != nil {
		return Symbol{}, err
	}
	return s.publics.At(i)
}
