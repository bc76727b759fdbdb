package common

import (
	"strconv"
	"strings"
)

// ParseUint64orHex converts a decimal or 0x-prefixed hex string into a uint64.
func ParseUint64orHex(val string) (uint64, error) {
	base := 10
	if strings.HasPrefix(val, "0x") {
		val = val[2:]
		base = 16
	}
	return strconv.ParseUint(val, base, 64)
}

// ToLowerWithTrim normalizes user-supplied identifiers.
func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
