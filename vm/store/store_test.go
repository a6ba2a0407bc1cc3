package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/amber/vm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "amber.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testImage(t *testing.T) []byte {
	t.Helper()
	b := vm.NewBuilder()
	b.Emit(vm.OpConstPri, 42)
	b.Emit(vm.OpHalt, 0)
	b.Public("main", 0)
	image, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return image
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	image := testImage(t)

	hash, err := s.Put(image)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Error("stored image differs from the original")
	}

	// The stored bytes still load and run.
	m, err := vm.NewMachine(got)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	result, err := m.Exec(vm.ExecMain)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	image := testImage(t)

	h1, err := s.Put(image)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	h2, err := s.Put(image)
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if h1 != h2 {
		t.Error("identical bytes should hash to the same key")
	}
}

func TestPutRejectsInvalidImage(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Put([]byte("not a module")); !errors.Is(err, vm.ErrFormat) {
		t.Errorf("garbage blob: got %v, want ErrFormat", err)
	}
}

func TestTagAndResolve(t *testing.T) {
	s := openTestStore(t)
	image := testImage(t)

	hash, err := s.Put(image)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Tag("answer", hash); err != nil {
		t.Fatalf("Tag failed: %v", err)
	}

	got, err := s.Resolve("answer")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != hash {
		t.Error("resolved hash differs from the tagged one")
	}

	image2, err := s.GetByName("answer")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if !bytes.Equal(image2, image) {
		t.Error("GetByName returned different bytes")
	}

	names, err := s.Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) != 1 || names["answer"] != hash {
		t.Errorf("Names = %v, want answer bound", names)
	}
}

func TestTagUnknownHash(t *testing.T) {
	s := openTestStore(t)
	var nothing [32]byte
	if err := s.Tag("ghost", nothing); !errors.Is(err, ErrNoSuchModule) {
		t.Errorf("tagging an absent hash: got %v, want ErrNoSuchModule", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	var nothing [32]byte
	if _, err := s.Get(nothing); !errors.Is(err, ErrNoSuchModule) {
		t.Errorf("missing hash: got %v, want ErrNoSuchModule", err)
	}
	if _, err := s.GetByName("nope"); !errors.Is(err, ErrNoSuchModule) {
		t.Errorf("missing name: got %v, want ErrNoSuchModule", err)
	}
}
