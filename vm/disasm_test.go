package vm

import (
	"strings"
	"testing"
)

func TestDisassembleListsSymbolsAndCode(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpConstPri, 42)
	b.Emit(OpHalt, 0)
	b.Public("main", 0)
	b.Native("print")
	image, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	listing, err := Disassemble(image)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	for _, want := range []string{"[RELOCATED]", "Publics", "main", "Natives", "print", "CONST.PRI", "HALT"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleStopsAtUndecodableBytes(t *testing.T) {
	b := NewBuilder()
	b.Emit(Opcode(0xEE), 0)
	image, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	listing, err := Disassemble(image)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if !strings.Contains(listing, "<undecodable") {
		t.Errorf("listing should mark undecodable bytes:\n%s", listing)
	}
}
