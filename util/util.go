// Package util contains misc internal utilities.
package util

import (
	"math"
	"strings"
	"time"
)

// Clamp limits x to the closed interval [low, high]
func Clamp(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// BitString renders bits as '1' and '0' characters, first element leftmost.
// e.g., []bool{true, false, true} => "101"
func BitString(bits []bool) string {
	var b strings.Builder
	b.Grow(len(bits))
	for _, v := range bits {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ParseBitString is the inverse of BitString.  ok is false if s contains
// anything other than '0' and '1'.
func ParseBitString(s string) (bits []bool, ok bool) {
	bits = make([]bool, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '1':
			bits[i] = true
		case '0':
		default:
			return nil, false
		}
	}
	return bits, true
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}
