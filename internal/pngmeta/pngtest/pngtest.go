// Package pngtest builds small, well-formed PNG files for tests.
package pngtest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

// Chunk is a raw chunk to place between IHDR and IDAT
type Chunk struct {
	Type string
	Data []byte
}

// Text returns a tEXt chunk with "key NUL value"
func Text(key, value string) Chunk {
	return Chunk{Type: "tEXt", Data: []byte(key + "\x00" + value)}
}

// RawText returns a tEXt chunk whose payload is used verbatim
func RawText(payload string) Chunk {
	return Chunk{Type: "tEXt", Data: []byte(payload)}
}

// ZText returns a zlib compressed zTXt chunk
func ZText(key, value string) Chunk {
	data := append([]byte(key+"\x00"), 0)
	data = append(data, deflate([]byte(value))...)
	return Chunk{Type: "zTXt", Data: data}
}

// IText returns an iTXt chunk, compressed when compress is set
func IText(key, value string, compress bool) Chunk {
	data := []byte(key + "\x00")
	text := []byte(value)
	if compress {
		data = append(data, 1, 0)
		text = deflate(text)
	} else {
		data = append(data, 0, 0)
	}
	data = append(data, []byte("en\x00\x00")...)
	data = append(data, text...)
	return Chunk{Type: "iTXt", Data: data}
}

// Build returns a 1x1 grayscale PNG with chunks inserted after IHDR
func Build(chunks ...Chunk) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 1)
	binary.BigEndian.PutUint32(ihdr[4:8], 1)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale
	Write(&buf, "IHDR", ihdr)

	for _, c := range chunks {
		Write(&buf, c.Type, c.Data)
	}

	// one scanline: filter byte + one pixel
	Write(&buf, "IDAT", deflate([]byte{0, 0}))
	Write(&buf, "IEND", nil)
	return buf.Bytes()
}

// BuildAfterIDAT is like Build but places chunks after the image data
func BuildAfterIDAT(chunks ...Chunk) []byte {
	full := Build()
	iend := full[len(full)-12:]

	var buf bytes.Buffer
	buf.Write(full[:len(full)-12])
	for _, c := range chunks {
		Write(&buf, c.Type, c.Data)
	}
	buf.Write(iend)
	return buf.Bytes()
}

// Write appends one chunk with a correct CRC
func Write(buf *bytes.Buffer, typ string, data []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.WriteString(typ)
	buf.Write(data)

	h := crc32.NewIEEE()
	h.Write([]byte(typ))
	h.Write(data)
	binary.BigEndian.PutUint32(n[:], h.Sum32())
	buf.Write(n[:])
}

// WriteFile writes data to dir/name, creating parent directories, and returns the path
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func deflate(b []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(b)
	zw.Close()
	return buf.Bytes()
}
