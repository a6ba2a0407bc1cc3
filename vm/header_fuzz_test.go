package vm

import "testing"

// ---------------------------------------------------------------------------
// FuzzReadHeader: loading arbitrary bytes must never panic. Faults are
// expected and acceptable; panics are bugs.
// ---------------------------------------------------------------------------

// fuzzSeedImage builds a small valid module so the fuzzer mutates from a
// well-formed starting point.
func fuzzSeedImage(t testing.TB) []byte {
	t.Helper()
	b := NewBuilder()
	b.Emit(OpConstPri, 42)
	b.Emit(OpHalt, 0)
	b.Public("main", 0)
	b.Native("print")
	image, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return image
}

func FuzzReadHeader(f *testing.F) {
	f.Add(fuzzSeedImage(f))
	f.Add([]byte{})
	f.Add(make([]byte, HeaderSize))

	f.Fuzz(func(t *testing.T, data []byte) {
		h, err := ReadHeader(data)
		if err != nil {
			return
		}
		// A header that parsed must round-trip byte-exactly.
		got, err := ReadHeader(WriteHeader(h))
		if err != nil {
			t.Fatalf("re-read of a written header failed: %v", err)
		}
		if *got != *h {
			t.Fatalf("round trip mismatch: %+v != %+v", *got, *h)
		}
	})
}

func FuzzNewMachine(f *testing.F) {
	f.Add(fuzzSeedImage(f))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Hostile section offsets must surface as faults, never as panics
		// or out-of-range slicing.
		if len(data) > 1<<20 {
			return
		}
		m, err := NewMachine(data)
		if err != nil {
			return
		}
		m.SetInstructionBudget(1000)
		_, _ = m.Exec(ExecMain)
	})
}
