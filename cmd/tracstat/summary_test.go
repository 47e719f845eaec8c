package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tracealloc/tracealloc/trac/tracelog"
)

func TestBucketFor(t *testing.T) {
	tests := []struct {
		size uint64
		want string
	}{
		{1, "<256B"},
		{255, "<256B"},
		{256, "<4KB"},
		{4 << 10, "<64KB"},
		{1 << 20, "<1GB"},
		{2 << 30, ">=1GB"},
	}
	for _, tt := range tests {
		if got := bucketLabel(bucketFor(tt.size)); got != tt.want {
			t.Errorf("bucketFor(%d) = %s, want %s", tt.size, got, tt.want)
		}
	}
}

func TestAttributeEvent(t *testing.T) {
	names := map[uint64]string{2: "/usr/lib/libdemo.so.6"}

	noStack := tracelog.Event{Alloc: true}
	if got := attributeEvent(noStack, names); got != "(no stack)" {
		t.Errorf("no stack: %s", got)
	}

	unmapped := tracelog.Event{Alloc: true, Stack: []tracelog.Frame{{Module: 0, Offset: 0x1}}}
	if got := attributeEvent(unmapped, names); got != "(unmapped)" {
		t.Errorf("unmapped: %s", got)
	}

	known := tracelog.Event{Alloc: true, Stack: []tracelog.Frame{{Module: 2, Offset: 0x40}}}
	if got := attributeEvent(known, names); got != "/usr/lib/libdemo.so.6" {
		t.Errorf("known: %s", got)
	}

	unknown := tracelog.Event{Alloc: true, Stack: []tracelog.Frame{{Module: 9, Offset: 0x40}}}
	if got := attributeEvent(unknown, names); got != "module 9" {
		t.Errorf("unknown: %s", got)
	}
}

func TestRunSummary(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()

	path := filepath.Join(t.TempDir(), "alloc_0_1.log")
	log := "+1.000000000,0000000000001000,0000000000000100\n" +
		"+2.000000000,0000000000002000,0000000000000200\n" +
		"-3.000000000,0000000000001000,0000000000000100\n"
	if err := os.WriteFile(path, []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runSummary([]string{path}); err != nil {
		t.Fatalf("runSummary: %v", err)
	}

	if err := runSummary([]string{filepath.Join(t.TempDir(), "missing.log")}); err == nil {
		t.Fatal("expected error for missing log")
	}
}
