package trust

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizeThumbprint strips separators and upper-cases a hex thumbprint as copied from certmgr
func NormalizeThumbprint(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '\t', '\u200e':
			return -1
		}
		return r
	}, s)
	return strings.ToUpper(s)
}

// DecodeThumbprint parses a 20-byte SHA-1 thumbprint
func DecodeThumbprint(s string) ([]byte, error) {
	b, err := hex.DecodeString(NormalizeThumbprint(s))
	if err != nil {
		return nil, fmt.Errorf("thumbprint %q: %w", s, err)
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("thumbprint %q: want 20 bytes, got %d", s, len(b))
	}
	return b, nil
}
