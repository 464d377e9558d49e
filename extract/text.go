package extract

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText decodes UTF-8, or UTF-16 when a BOM says so. Undecodable byte
// sequences become U+FFFD rather than an error.
func decodeText(data []byte) string {
	out, _, _ := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	return string(out)
}
