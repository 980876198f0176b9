package sizeutil

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"500000", 500000},
		{"0.5MB", 500000},
		{"4MB", 4000000},
		{"64MB", 64000000},
		{"1GB", 1000000000},
		{"1KB", 1000},
		{"12B", 12},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsUnknownSuffixAndNegative(t *testing.T) {
	if _, err := Parse("5XB"); err == nil {
		t.Errorf("expected error for unknown suffix")
	}
	if _, err := Parse("-1MB"); err == nil {
		t.Errorf("expected error for negative size")
	}
	if _, err := Parse(""); err == nil {
		t.Errorf("expected error for empty string")
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{500, "500B"},
		{4000000, "4.00MB"},
		{1000000000, "1.00GB"},
	}
	for _, tc := range cases {
		if got := Format(tc.in); got != tc.want {
			t.Errorf("Format(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
