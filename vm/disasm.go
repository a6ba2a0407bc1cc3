package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of a module image: a header
// summary, the symbol directories, and the decoded code section. Undecodable
// bytes end the listing with a marker rather than an error, so partial
// images can still be inspected.
func Disassemble(image []byte) (string, error) {
	h, err := ReadHeader(image)
	if err != nil {
		return "", err
	}
	symbols, err := loadModuleSymbols(image, h)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; Amber Module v%d (runtime %d)\n", h.FileVersion, h.AmxVersion))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", uint16(h.Flags)))
	if h.Flags.Has(FlagDebug) {
		sb.WriteString(" [DEBUG]")
	}
	if h.Flags.Has(FlagCompact) {
		sb.WriteString(" [COMPACT]")
	}
	if h.Flags.Has(FlagRelocated) {
		sb.WriteString(" [RELOCATED]")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("; Sections: cod=0x%08x dat=0x%08x hea=0x%08x stp=0x%08x cip=0x%08x\n\n",
		h.Cod, h.Dat, h.Hea, h.Stp, h.Cip))

	writeTable := func(title string, t *SymbolTable, hexAddr bool) {
		if t.Len() == 0 {
			return
		}
		sb.WriteString(fmt.Sprintf("; %s:\n", title))
		for i, s := range t.symbols {
			if hexAddr {
				sb.WriteString(fmt.Sprintf(";   [%3d] %-24s 0x%08x\n", i, s.Name, s.Address))
			} else {
				sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, s.Name))
			}
		}
		sb.WriteString("\n")
	}
	writeTable("Publics", symbols.publics, true)
	writeTable("Natives", symbols.natives, false)
	writeTable("Libraries", symbols.libraries, false)
	writeTable("Public variables", symbols.pubVars, true)
	writeTable("Tags", symbols.tags, true)

	sb.WriteString("; Code:\n")
	for ip := h.Cod; ip+InstrWidth <= h.Dat; ip += InstrWidth {
		in, err := Decode(image, ip)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%08X  <undecodable: %v>\n", ip, err))
			break
		}
		sb.WriteString(fmt.Sprintf("%08X  %s\n", ip, in))
	}

	return sb.String(), nil
}
