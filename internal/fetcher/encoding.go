package fetcher

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText returns a UTF-8 reader over data. Valid UTF-8 passes through with
// any byte order mark removed; anything else is decoded as Latin-1, which is
// what the assessor extracts fall back to.
func DecodeText(data []byte) io.Reader {
	if IsUTF8(data) {
		return bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))
	}
	return charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(data))
}

// IsUTF8 reports whether data is valid UTF-8.
func IsUTF8(data []byte) bool {
	return utf8.Valid(data)
}
