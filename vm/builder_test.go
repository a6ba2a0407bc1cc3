package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildProducesLoadableImage(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpHalt, 0)
	b.Public("main", 0)
	b.Native("print")
	b.Library("console")
	b.PubVar("counter", b.Data(0))
	b.Tag("Weapon", 4)

	image, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h, err := ReadHeader(image)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if !h.Flags.Has(FlagRelocated) {
		t.Error("built image should carry the relocated flag")
	}
	if h.Size != Cell(len(image)) {
		t.Errorf("header size %d != image size %d", h.Size, len(image))
	}

	m, err := NewMachine(image)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	if _, err := m.FindPublic("main"); err != nil {
		t.Errorf("FindPublic(main): %v", err)
	}
	if _, err := m.FindNative("print"); err != nil {
		t.Errorf("FindNative(print): %v", err)
	}
	addr, err := m.FindPubVar("counter")
	if err != nil {
		t.Fatalf("FindPubVar(counter): %v", err)
	}
	if addr != h.Dat {
		t.Errorf("counter at 0x%08x, want the data base 0x%08x", addr, h.Dat)
	}
	tag, err := m.FindTag("Weapon")
	if err != nil {
		t.Fatalf("FindTag(Weapon): %v", err)
	}
	if tag != 4 {
		t.Errorf("Weapon tag id = %d, want 4", tag)
	}
}

func TestBuildInlineNames(t *testing.T) {
	b := NewBuilder().UseInlineNames()
	b.Emit(OpHalt, 0)
	b.Public("on_tick", 0)

	image, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h, err := ReadHeader(image)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.UsesNameTable() {
		t.Error("inline image should not use the name table")
	}

	m, err := NewMachine(image)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	if _, err := m.FindPublic("on_tick"); err != nil {
		t.Errorf("FindPublic(on_tick): %v", err)
	}
}

func TestBuildInlineNameTooLong(t *testing.T) {
	b := NewBuilder().UseInlineNames()
	b.Emit(OpHalt, 0)
	b.Public(strings.Repeat("x", inlineNameMax+1), 0)
	if _, err := b.Build(); !errors.Is(err, ErrFormat) {
		t.Errorf("oversized inline name: got %v, want ErrFormat", err)
	}
}

func TestBuildRelocatesDataRefs(t *testing.T) {
	b := NewBuilder()
	off := b.Data(7)
	b.EmitDataAddr(OpConstPri, off)
	b.Emit(OpLoadIPri, 0)
	b.Emit(OpHalt, 0)
	if got := runMain(t, b); got != 7 {
		t.Errorf("relocated load = %d, want 7", got)
	}
}

func TestDataString(t *testing.T) {
	b := NewBuilder()
	off := b.DataString("hi")
	b.EmitDataAddr(OpConstPri, off+2*CellSize) // the NUL cell
	b.Emit(OpLoadIPri, 0)
	b.Emit(OpHalt, 0)
	if got := runMain(t, b); got != 0 {
		t.Errorf("string terminator = %d, want 0", got)
	}
}

func TestStackSizePadding(t *testing.T) {
	b := NewBuilder().StackSize(4)
	b.Emit(OpHalt, 0)
	image, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h, err := ReadHeader(image)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.Stp-h.Hea < StackMargin {
		t.Errorf("stack region %d bytes, want at least the %d margin", h.Stp-h.Hea, StackMargin)
	}
}
