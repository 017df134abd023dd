// Package textcodec converts entry paths between Go strings and the
// archive's on-disk text encoding (EUC-KR).
package textcodec

import (
	"fmt"

	"golang.org/x/text/encoding/korean"
)

// Encode converts a path to EUC-KR. ASCII is unchanged; runes outside the
// character set are an error.
func Encode(s string) ([]byte, error) {
	if isASCII(s) {
		return []byte(s), nil
	}
	b, err := korean.EUCKR.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding %q as EUC-KR: %w", s, err)
	}
	return b, nil
}

// Decode converts EUC-KR bytes to a string.
func Decode(b []byte) (string, error) {
	if isASCII(string(b)) {
		return string(b), nil
	}
	s, err := korean.EUCKR.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decoding EUC-KR path: %w", err)
	}
	return string(s), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
