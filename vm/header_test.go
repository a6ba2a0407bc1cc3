package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// validHeader returns a header with plausible section offsets.
func validHeader() *ModuleHeader {
	h := NewHeader()
	h.Size = 256
	h.Flags = FlagRelocated
	h.Publics = HeaderSize
	h.Natives = HeaderSize
	h.Libraries = HeaderSize
	h.PubVars = HeaderSize
	h.Tags = HeaderSize
	h.NameTable = HeaderSize
	h.Cod = HeaderSize
	h.Dat = 128
	h.Hea = 160
	h.Stp = 256
	h.Cip = HeaderSize
	return h
}

// ---------------------------------------------------------------------------
// Round trip and validation
// ---------------------------------------------------------------------------

func TestHeaderRoundTrip(t *testing.T) {
	h := validHeader()
	h.Flags = FlagDebug | FlagRelocated

	got, err := ReadHeader(WriteHeader(h))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if *got != *h {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, *h)
	}
}

func TestHeaderRejectsShortBuffer(t *testing.T) {
	_, err := ReadHeader(make([]byte, HeaderSize-1))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("short buffer: got %v, want ErrFormat", err)
	}
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	h := validHeader()
	h.Magic = 0xBEEF
	_, err := ReadHeader(WriteHeader(h))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("bad magic: got %v, want ErrFormat", err)
	}
	if code := CodeOf(err); code != CodeFormat {
		t.Errorf("bad magic code: got %d, want %d", code, CodeFormat)
	}
}

func TestHeaderRejectsVersions(t *testing.T) {
	old := validHeader()
	old.FileVersion = MinFileVersion - 1
	if _, err := ReadHeader(WriteHeader(old)); !errors.Is(err, ErrVersion) {
		t.Errorf("old file version: got %v, want ErrVersion", err)
	}

	newer := validHeader()
	newer.AmxVersion = MaxRuntimeVersion + 1
	if _, err := ReadHeader(WriteHeader(newer)); !errors.Is(err, ErrVersion) {
		t.Errorf("newer runtime requirement: got %v, want ErrVersion", err)
	}
}

func TestHeaderRejectsZeroDefSize(t *testing.T) {
	h := validHeader()
	h.DefSize = 0
	if _, err := ReadHeader(WriteHeader(h)); !errors.Is(err, ErrFormat) {
		t.Errorf("zero defsize: got %v, want ErrFormat", err)
	}
}

// ---------------------------------------------------------------------------
// Directory entry accessors
// ---------------------------------------------------------------------------

func TestUsesNameTable(t *testing.T) {
	h := NewHeader()
	if !h.UsesNameTable() {
		t.Error("compact layout should use the name table")
	}
	h.DefSize = inlineEntrySize
	if h.UsesNameTable() {
		t.Error("inline layout should not use the name table")
	}
}

func TestNumEntries(t *testing.T) {
	h := NewHeader()
	if n := h.NumEntries(64, 96); n != 4 {
		t.Errorf("NumEntries(64, 96) = %d, want 4", n)
	}
	if n := h.NumEntries(0, 96); n != 0 {
		t.Errorf("absent table: NumEntries = %d, want 0", n)
	}
	if n := h.NumEntries(96, 96); n != 0 {
		t.Errorf("empty table: NumEntries = %d, want 0", n)
	}
}

func TestEntryAtTruncated(t *testing.T) {
	h := NewHeader()
	image := make([]byte, HeaderSize+4)
	_, err := h.EntryAt(image, HeaderSize, 1)
	if !errors.Is(err, ErrMemoryAccess) {
		t.Errorf("truncated entry: got %v, want ErrMemoryAccess", err)
	}
}

func TestEntryNameInline(t *testing.T) {
	h := NewHeader()
	h.DefSize = inlineEntrySize

	entry := make([]byte, inlineEntrySize)
	copy(entry[4:], "on_tick")
	name, err := h.EntryName(nil, entry)
	if err != nil {
		t.Fatalf("EntryName failed: %v", err)
	}
	if name != "on_tick" {
		t.Errorf("inline name = %q, want %q", name, "on_tick")
	}
}

func TestEntryNameFromTable(t *testing.T) {
	h := NewHeader()
	image := make([]byte, 80)
	copy(image[64:], "main\x00")

	entry := make([]byte, NameTableEntrySize)
	WriteCell(entry[4:], 64)
	name, err := h.EntryName(image, entry)
	if err != nil {
		t.Fatalf("EntryName failed: %v", err)
	}
	if name != "main" {
		t.Errorf("table name = %q, want %q", name, "main")
	}

	// Unterminated names are a format fault, not a scan past the image.
	WriteCell(entry[4:], 76)
	image[76], image[77], image[78], image[79] = 'x', 'y', 'z', 'w'
	if _, err := h.EntryName(image, entry); !errors.Is(err, ErrFormat) {
		t.Errorf("unterminated name: got %v, want ErrFormat", err)
	}
}
