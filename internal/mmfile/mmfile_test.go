package mmfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMapRegion(t *testing.T) {
	data, cleanup, err := MapRegion(1 << 16)
	if err != nil {
		t.Fatalf("MapRegion: %v", err)
	}
	if len(data) != 1<<16 {
		t.Fatalf("len = %d, want %d", len(data), 1<<16)
	}
	for i := 0; i < len(data); i += 4096 {
		if data[i] != 0 {
			t.Fatalf("byte %d not zero", i)
		}
	}
	data[0], data[len(data)-1] = 0xAB, 0xCD
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := cleanup(); err != nil {
		t.Fatalf("second cleanup should be a no-op: %v", err)
	}
}

func TestMapRegionInvalidSize(t *testing.T) {
	if _, _, err := MapRegion(0); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, _, err := MapRegion(-1); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.bin")
	data, cleanup, err := MapFile(path, 1<<16)
	if err != nil {
		t.Fatalf("MapFile: %v", err)
	}
	if len(data) != 1<<16 {
		t.Fatalf("len = %d, want %d", len(data), 1<<16)
	}
	copy(data, "persisted")
	if err := Sync(data); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got[:9]) != "persisted" {
		t.Fatalf("file content = %q", got[:9])
	}
}

func TestMapFileInvalidSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.bin")
	if _, _, err := MapFile(path, 0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
