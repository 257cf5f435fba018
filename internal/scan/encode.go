package scan

import (
	"fmt"
	"strings"
)

// reserved marks the bytes that are always percent-encoded, even though
// they are printable. The forward slash is absent on purpose: it only ever
// appears in a record path as the separator the formatter inserts.
var reserved = [256]bool{
	'\b': true, '\n': true, '\r': true, '\t': true, ' ': true,
	'!': true, '"': true, '#': true, '$': true, '%': true, '&': true,
	'\'': true, '(': true, ')': true, '*': true, '+': true, ',': true,
	':': true, ';': true, '<': true, '=': true, '>': true, '?': true,
	'@': true, '[': true, '\\': true, ']': true, '`': true,
	'{': true, '|': true, '}': true, '~': true,
	0x1b: true, // ESC
	0x7f: true, // DEL
}

const upperhex = "0123456789ABCDEF"

// needsEscape reports whether b cannot appear literally in a record path.
// Anything outside the printable ASCII range is escaped as well.
func needsEscape(b byte) bool {
	return reserved[b] || b < 0x20 || b > 0x7e
}

// appendEncoded appends the percent-encoded form of s to dst and returns
// the extended slice. Escaped bytes become '%' followed by two uppercase
// hex digits; everything else is copied through unchanged.
func appendEncoded(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if needsEscape(b) {
			dst = append(dst, '%', upperhex[b>>4], upperhex[b&0x0f])
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// Encode returns the percent-encoded form of s.
func Encode(s string) string {
	return string(appendEncoded(nil, s))
}

// Decode reverses Encode. It accepts lowercase hex digits too, since the
// escapes are plain RFC 3986 triplets.
func Decode(s string) (string, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated percent escape at offset %d", i)
		}
		hi := unhex(s[i+1])
		lo := unhex(s[i+2])
		if hi < 0 || lo < 0 {
			return "", fmt.Errorf("invalid percent escape %q at offset %d", s[i:i+3], i)
		}
		b.WriteByte(byte(hi<<4 | lo))
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return -1
}
