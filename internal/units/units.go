// Package units converts the free-form size strings reported by database
// agents ("512 GB", "1.2 TB", "3.5 GiB") into gigabytes.
//
// All conversions use the binary convention: 1 TB = 1024 GB.
package units

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	diskSizeRe = regexp.MustCompile(`(?i)^\s*([\d.]+)\s*(GB|TB)\s*$`)
	sizeRe     = regexp.MustCompile(`(?i)^\s*([\d.]+)\s*([KMGTP]?I?B|BYTES)?\s*$`)
)

// ParseDiskSize parses a free-disk string of the form "<number> GB" or
// "<number> TB" and returns the value in GB. Input that does not match that
// shape returns 0; callers must never read 0 as "disk exhausted" on its own.
func ParseDiskSize(raw string) float64 {
	m := diskSizeRe.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if strings.EqualFold(m[2], "TB") {
		return v * 1024
	}
	return v
}

// ParseSize parses a size with any unit from bytes up to petabytes, decimal
// (KB, MB, ...) or binary (KiB, MiB, ...) spelling, and returns GB. A bare
// number is taken as bytes. ok is false when raw cannot be parsed.
func ParseSize(raw string) (gb float64, ok bool) {
	m := sizeRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := strings.Replace(strings.ToUpper(m[2]), "IB", "B", 1)
	switch unit {
	case "", "B", "BYTES":
		return v / (1 << 30), true
	case "KB":
		return v / (1 << 20), true
	case "MB":
		return v / 1024, true
	case "GB":
		return v, true
	case "TB":
		return v * 1024, true
	case "PB":
		return v * 1024 * 1024, true
	}
	return 0, false
}

// ParsePercent parses a percentage that may carry a trailing "%" sign.
func ParsePercent(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !Finite(v) {
		return 0, false
	}
	return v, true
}

// Finite reports whether v is neither NaN nor an infinity. strconv accepts
// "NaN" and "Inf", which would otherwise slip past every threshold comparison.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
