package encoding

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Charset names accepted by NewTextDecoder
const (
	CharsetUTF8    = "utf8"
	CharsetWin1252 = "win1252"
)

// ToUTF8 converts Windows-1252 bytes (common in legacy MySQL/Firebird tables) to a trimmed UTF-8 string
func ToUTF8(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// Fallback: return raw string if decoding fails (better than crashing)
		return string(b)
	}

	return strings.TrimSpace(string(decoded))
}

// TextDecoder turns raw column bytes into text according to the source charset
type TextDecoder func([]byte) string

// NewTextDecoder returns the decoder for a configured charset. Unknown charsets decode as UTF-8.
func NewTextDecoder(charset string) TextDecoder {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case CharsetWin1252, "windows-1252", "latin1", "cp1252":
		return func(b []byte) string {
			// Already valid UTF-8 text passes through untouched
			if utf8.Valid(b) {
				return string(b)
			}
			return ToUTF8(b)
		}
	default:
		return func(b []byte) string { return string(b) }
	}
}
