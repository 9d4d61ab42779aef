package dpa

import (
	"encoding/hex"
	"strings"
)

// EncodeDottedHex renders bytes as lower-case two-char hex pairs joined by
// ".", the wire convention used throughout the driver JSON.
func EncodeDottedHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = hex.EncodeToString([]byte{v})
	}
	return strings.Join(parts, ".")
}

// DecodeDottedHex parses the "."-separated two-char hex pair convention back
// into bytes. An empty string decodes to an empty (non-nil) slice.
func DecodeDottedHex(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	parts := strings.Split(s, ".")
	out := make([]byte, len(parts))
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return nil, ErrBadResponse{Reason: "invalid dotted-hex byte " + p}
		}
		out[i] = b[0]
	}
	return out, nil
}
