package storage

import (
	"bytes"
	"sort"
	"testing"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	data := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	if err := s.Write("c1_image/100.jpg", data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := s.Read("c1_image/100.jpg")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read() = %v, want %v", got, data)
	}

	ok, err := s.Exists("c1_image/100.jpg")
	if err != nil || !ok {
		t.Errorf("Exists() = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.Exists("c1_image/missing.jpg")
	if err != nil || ok {
		t.Errorf("Exists(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestLocalStorageList(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"a/1.jpg", "a/2.jpg", "b/3.jpg"} {
		if err := s.Write(name, []byte{0x01}); err != nil {
			t.Fatal(err)
		}
	}

	files, err := s.List("a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sort.Strings(files)
	want := []string{"1.jpg", "2.jpg"}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Errorf("List() = %v, want %v", files, want)
	}
}

func TestLocalStorageDelete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Write("x.jpg", []byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("x.jpg"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := s.Exists("x.jpg"); ok {
		t.Error("file still exists after Delete()")
	}

	// Deleting a missing path is not an error.
	if err := s.Delete("x.jpg"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/1.jpg", "image/jpeg"},
		{"a/1.JPEG", "image/jpeg"},
		{"meta.json", "application/json"},
		{"blob.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentType(tt.path); got != tt.want {
			t.Errorf("contentType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
