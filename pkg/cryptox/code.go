package cryptox

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// CodeAlphabet is the 32-symbol alphabet used for human-transcribable
// verification codes. It is Crockford base32 in lowercase: the easily
// confused symbols i, l, o and u are absent, and NormalizeCode maps them
// back onto their canonical counterparts on input.
const CodeAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const codeSymbolBits = 5 // log2(len(CodeAlphabet))

// GenerateCode returns a random string over CodeAlphabet carrying at least
// minBitsOfEntropy bits of entropy. The length is ceil(minBitsOfEntropy/5)
// symbols, each drawn uniformly from a cryptographically secure source.
func GenerateCode(minBitsOfEntropy int) (string, error) {
	if minBitsOfEntropy <= 0 {
		return "", fmt.Errorf("cryptox: entropy must be positive, got %d", minBitsOfEntropy)
	}

	length := (minBitsOfEntropy + codeSymbolBits - 1) / codeSymbolBits
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: failed to read random source: %w", err)
	}

	out := make([]byte, length)
	for i, b := range buf {
		out[i] = CodeAlphabet[b&0x1f]
	}
	return string(out), nil
}

// NormalizeCode canonicalizes a user-entered code: lower-cases it and remaps
// the confusable symbols excluded from CodeAlphabet (o -> 0, i/l -> 1).
// Symbols outside the alphabet after remapping are left untouched; lookups on
// such strings simply miss.
func NormalizeCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		switch r {
		case 'o':
			b.WriteRune('0')
		case 'i', 'l':
			b.WriteRune('1')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
