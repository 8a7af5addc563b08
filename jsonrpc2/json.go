package jsonrpc2

import "encoding/json"

// leadingByte returns the first non-whitespace byte of raw, or 0.
func leadingByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			return b
		}
	}
	return 0
}

// isArray reports whether raw holds a JSON array, such as a batch frame or
// positional params.
func isArray(raw json.RawMessage) bool {
	return leadingByte(raw) == '['
}

// abbrev truncates b to n bytes for error messages.
func abbrev(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
