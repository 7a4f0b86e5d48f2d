package region

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func Test_Map_Creates_File_And_Never_Shrinks_It(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "blob")

	r, err := Map(path, 64)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if r.Size() != 64 {
		t.Fatalf("Size = %d, want 64", r.Size())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Re-opening with a smaller minSize must not shrink the file.
	r2, err := Map(path, 16)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if r2.Size() != 64 {
		t.Fatalf("Size after reopen = %d, want 64", r2.Size())
	}
	if err := r2.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func Test_Put_Then_Get_Round_Trips_Bytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := Map(filepath.Join(dir, "blob"), 64)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	defer r.Close()

	if err := r.Put(10, []byte("hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := r.Get(10, 5); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("Get = %q, want %q", got, "hello")
	}
}

func Test_Put_Returns_ErrOutOfSpace_When_Write_Exceeds_Region(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := Map(filepath.Join(dir, "blob"), 8)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	defer r.Close()

	if err := r.Put(4, []byte("12345")); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("Put = %v, want ErrOutOfSpace", err)
	}
}

func Test_Get_Returns_Owned_Copy_Not_Aliased_To_Mapping(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := Map(filepath.Join(dir, "blob"), 64)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	defer r.Close()

	if err := r.Put(0, []byte("abc")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got := r.Get(0, 3)
	got[0] = 'x'

	if again := r.Get(0, 3); !bytes.Equal(again, []byte("abc")) {
		t.Fatalf("mutating the returned copy affected the mapping: Get = %q, want %q", again, "abc")
	}
}

func Test_CopyTo_Copies_Bytes_Between_Regions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src, err := Map(filepath.Join(dir, "src"), 64)
	if err != nil {
		t.Fatalf("Map src failed: %v", err)
	}
	defer src.Close()

	dst, err := Map(filepath.Join(dir, "dst"), 64)
	if err != nil {
		t.Fatalf("Map dst failed: %v", err)
	}
	defer dst.Close()

	if err := src.Put(0, []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	src.CopyTo(dst, 0, 32, 7)
	if got := dst.Get(32, 7); !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("Get after CopyTo = %q, want %q", got, "payload")
	}
}

func Test_Map_Reopen_Preserves_Previously_Written_Data(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "blob")

	r, err := Map(path, 64)
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := r.Put(0, []byte("persisted")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r2, err := Map(path, 64)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer r2.Close()
	if got := r2.Get(0, len("persisted")); !bytes.Equal(got, []byte("persisted")) {
		t.Fatalf("Get after reopen = %q, want %q", got, "persisted")
	}
}
