package dataset

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var encodings = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8BOM,
	"utf8":         unicode.UTF8BOM,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"windows-1251": charmap.Windows1251,
	"cp1251":       charmap.Windows1251,
}

// decodingReader returns r transcoded to UTF-8. The UTF-8 decoder strips a
// leading byte order mark.
func decodingReader(r io.Reader, name string) (io.Reader, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "utf-8"
	}
	enc, ok := encodings[key]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
