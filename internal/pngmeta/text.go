package pngmeta

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// MaxTextChunk bounds the inflated size of one compressed text chunk
const MaxTextChunk = 1 << 20

// ErrTextTooLarge is returned when a compressed text chunk inflates past MaxTextChunk
var ErrTextTooLarge = errors.New("pngmeta: decompressed text chunk too large")

// Metadata maps text chunk keywords to their decoded text
type Metadata map[string]string

// Has reports whether key is present, compared exactly
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// ReadText reads the text metadata of a PNG stream positioned at its start.
// Only chunks before the first IDAT are considered, the same view an image
// decoder has after reading the header. Checksums are verified.
func ReadText(r io.Reader) (Metadata, error) {
	if err := ReadSignature(r); err != nil {
		return nil, err
	}

	meta := make(Metadata)
	cr := NewVerifyingReader(r)
	for {
		c, err := cr.Next()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("reading chunks: %w", err)
		}

		switch c.Type {
		case TypeIDAT, TypeIEND:
			return meta, nil
		case TypeText:
			parseText(meta, c.Data)
		case TypeZTxt:
			if err := parseZText(meta, c.Data); err != nil {
				return nil, err
			}
		case TypeITxt:
			if err := parseIText(meta, c.Data); err != nil {
				return nil, err
			}
		}
	}
}

// parseText handles "keyword NUL text". A payload with no NUL is a bare keyword.
func parseText(meta Metadata, data []byte) {
	key, val, _ := bytes.Cut(data, []byte{0})
	if len(key) == 0 {
		return
	}
	meta[latin1(key)] = latin1(val)
}

// parseZText handles "keyword NUL method compressed-text"
func parseZText(meta Metadata, data []byte) error {
	key, rest, _ := bytes.Cut(data, []byte{0})

	method := byte(0)
	if len(rest) > 0 {
		method = rest[0]
		rest = rest[1:]
	}
	if method != 0 {
		return fmt.Errorf("unknown zTXt compression method %d", method)
	}

	text, err := inflate(rest)
	if errors.Is(err, ErrTextTooLarge) {
		return fmt.Errorf("zTXt %q: %w", latin1(key), err)
	}
	if err != nil {
		// corrupt stream keeps the keyword with empty text
		text = nil
	}
	if len(key) == 0 {
		return nil
	}
	meta[latin1(key)] = latin1(text)
	return nil
}

// parseIText handles "keyword NUL flag method lang NUL translated NUL text".
// Anything malformed is skipped; only oversized text is an error.
func parseIText(meta Metadata, data []byte) error {
	key, rest, ok := bytes.Cut(data, []byte{0})
	if !ok || len(rest) < 2 {
		return nil
	}
	flag, method := rest[0], rest[1]
	parts := bytes.SplitN(rest[2:], []byte{0}, 3)
	if len(parts) != 3 {
		return nil
	}
	translated, text := parts[1], parts[2]

	if flag != 0 {
		if method != 0 {
			return nil
		}
		var err error
		if text, err = inflate(text); err != nil {
			if errors.Is(err, ErrTextTooLarge) {
				return fmt.Errorf("iTXt %q: %w", latin1(key), err)
			}
			return nil
		}
	}
	if !utf8.Valid(translated) || !utf8.Valid(text) {
		return nil
	}
	meta[latin1(key)] = string(text)
	return nil
}

// inflate decompresses b, reading at most MaxTextChunk+1 bytes
func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, MaxTextChunk+1))
	if len(out) > MaxTextChunk {
		return nil, ErrTextTooLarge
	}
	return out, err
}

// latin1 decodes keywords and tEXt values, which PNG defines as ISO 8859-1
func latin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
