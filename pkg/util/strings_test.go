package util

import (
	"testing"
)

func TestSanitizeHex(t *testing.T) {
	ok := map[string]string{
		"#A1b2C3": "A1b2C3",
		"ffffff":  "ffffff",
		"#000000": "000000",
	}
	for in, want := range ok {
		got, valid := SanitizeHex(in)
		if !valid || got != want {
			t.Fatalf("SanitizeHex(%q) = %q, %v; want %q", in, got, valid, want)
		}
		if got[0] == '#' {
			t.Fatalf("sanitized value %q kept its #", got)
		}
	}

	for _, in := range []string{"", "#fff", "fff", "1234567", "#1234567", "gggggg", "##123456", " 123456", "0x123456"} {
		if got, valid := SanitizeHex(in); valid {
			t.Fatalf("SanitizeHex(%q) unexpectedly accepted as %q", in, got)
		}
	}
}

func TestExpandEscapedNewlines(t *testing.T) {
	if got := ExpandEscapedNewlines(`line one\nline two\n\nend`); got != "line one\nline two\n\nend" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestSplitIntoChunks(t *testing.T) {
	in := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	chunks := SplitIntoChunks(in, 5)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 5 || len(chunks[1]) != 5 || len(chunks[2]) != 2 {
		t.Fatalf("unexpected chunk sizes: %v", chunks)
	}
	if chunks[2][1] != 11 {
		t.Fatalf("unexpected tail: %v", chunks[2])
	}
	chunks[0] = append(chunks[0], 99)
	if in[5] != 5 {
		t.Fatalf("appending to a chunk must not clobber the next one")
	}

	if SplitIntoChunks([]int{}, 5) != nil {
		t.Fatalf("expected nil for empty input")
	}
	if SplitIntoChunks(in, 0) != nil {
		t.Fatalf("expected nil for non-positive size")
	}
	if got := SplitIntoChunks(in[:5], 5); len(got) != 1 {
		t.Fatalf("exact multiple should produce one chunk, got %d", len(got))
	}
}
