package loader

import (
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultCharset is the single-byte Western European encoding source files
// are assumed to use.
const DefaultCharset = "ISO-8859-1"

// Charset resolves an IANA charset name (ISO-8859-1, latin1, windows-1252,
// UTF-8, ...) to an encoding. An empty name yields ISO-8859-1.
func Charset(name string) (encoding.Encoding, error) {
	if name == "" {
		return charmap.ISO8859_1, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: unknown charset %q", name)
	}
	if enc == nil {
		return nil, eris.Errorf("loader: unsupported charset %q", name)
	}
	return enc, nil
}
