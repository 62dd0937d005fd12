package units

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParseDiskSize(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"512 GB", 512},
		{"512GB", 512},
		{"  50 gb ", 50},
		{"1.2 TB", 1.2 * 1024},
		{"1 tb", 1024},
		{"0 GB", 0},
		{"", 0},
		{"unknown", 0},
		{"512 MB", 0},
		{"GB", 0},
		{"1.2.3 GB", 0},
		{"-5 GB", 0},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := ParseDiskSize(tc.in); !almostEqual(got, tc.want) {
				t.Errorf("ParseDiskSize(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseDiskSize_TBIsBinaryMultipleOfGB(t *testing.T) {
	for _, n := range []string{"1", "2.5", "0.75", "100"} {
		gb := ParseDiskSize(n + " GB")
		tb := ParseDiskSize(n + " TB")
		if !almostEqual(tb, 1024*gb) {
			t.Errorf("%s: TB=%v, GB=%v; want TB == 1024*GB", n, tb, gb)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"3.5 GiB", 3.5, true},
		{"512 MiB", 0.5, true},
		{"512 MB", 0.5, true},
		{"2 TiB", 2048, true},
		{"1048576 KiB", 1, true},
		{"1073741824", 1, true},
		{"1073741824 bytes", 1, true},
		{"1 PB", 1024 * 1024, true},
		{"n/a", 0, false},
		{"", 0, false},
		{"12 parsecs", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseSize(tc.in)
			if ok != tc.wantOK || !almostEqual(got, tc.want) {
				t.Errorf("ParseSize(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"10", 10, true},
		{"10%", 10, true},
		{" 42.5 % ", 42.5, true},
		{"", 0, false},
		{"%", 0, false},
		{"ten", 0, false},
		{"NaN", 0, false},
		{"Inf%", 0, false},
		{"-infinity", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParsePercent(tc.in)
		if ok != tc.wantOK || !almostEqual(got, tc.want) {
			t.Errorf("ParsePercent(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
