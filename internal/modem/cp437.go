package modem

import (
	"golang.org/x/text/encoding/charmap"
)

// encodeCP437 transliterates s (which may contain the box-drawing glyphs
// used in the ISDN/ASCII-art banner lines) to IBM Code Page 437 bytes, the
// encoding real Hayes terminal clients expect on the wire. Runes with no
// CP437 representation are replaced by '?' rather than failing the whole
// banner.
func encodeCP437(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}
