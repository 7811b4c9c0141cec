package formatting

import (
	"fmt"
	"strconv"
	"strings"
)

// Binary size units, smallest first. Each step is a factor of 1024.
var units = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders n with the largest unit that keeps the value at or
// above one, printed with precision decimals.
func FormatBytes(n int64, precision int) string {
	precision = max(precision, 0)
	if n < 1024 {
		return strconv.FormatInt(n, 10) + " B"
	}

	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return strconv.FormatFloat(size, 'f', precision, 64) + " " + units[i]
}

// ParseBytes reads a size such as "50MB", "1.5 GiB" or "2048". Units are
// binary and case-insensitive; the IEC spelling (KiB, MiB) is accepted as
// an alias. A bare number is a byte count.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.TrimSpace(s[split:])
	}
	if number == "" {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}

	mult, ok := multiplier(unit)
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", unit)
	}
	return int64(value * float64(mult)), nil
}

func multiplier(unit string) (int64, bool) {
	u := strings.ToUpper(unit)
	if u == "" {
		return 1, true
	}
	if len(u) == 3 && u[1] == 'I' {
		u = u[:1] + u[2:]
	}
	var mult int64 = 1
	for _, name := range units {
		if u == name {
			return mult, true
		}
		mult *= 1024
	}
	return 0, false
}
