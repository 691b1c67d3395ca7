package textutil

import (
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Track: One", "Track- One"},
		{"a/b\\c", "a-b-c"},
		{"what?\"<>|", "what"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFileNameNormalizesNFC(t *testing.T) {
	// "é" as 'e' + combining acute versus the precomposed code point.
	decomposed := "Café"
	precomposed := "Café"
	if got := SanitizeFileName(decomposed); got != SanitizeFileName(precomposed) {
		t.Fatalf("NFC forms diverge: %q vs %q", got, SanitizeFileName(precomposed))
	}
	if !norm.NFC.IsNormalString(SanitizeFileName(decomposed)) {
		t.Fatal("result is not NFC-normalized")
	}
}

func TestSanitizeFileNameStripsControlCharacters(t *testing.T) {
	if got := SanitizeFileName("a\x00b\x1fc"); got != "abc" {
		t.Fatalf("control characters survived: %q", got)
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Album!", "my_album"},
		{"", "unknown"},
		{"___", "unknown"},
		{"A-B_c", "a-b_c"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
