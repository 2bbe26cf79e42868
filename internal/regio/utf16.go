package regio

import (
	"golang.org/x/text/encoding/unicode"
)

// DecodeUTF16 decodes little-endian UTF-16 bytes to a Go string,
// tolerating a trailing odd byte. Registry string values and key class
// names are stored this way.
func DecodeUTF16(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}
