package pngmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Signature is the fixed 8-byte header every PNG file starts with
var Signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Chunk types the card detection cares about
const (
	TypeIHDR = "IHDR"
	TypeIDAT = "IDAT"
	TypeIEND = "IEND"
	TypeText = "tEXt"
	TypeZTxt = "zTXt"
	TypeITxt = "iTXt"
)

// ErrBadSignature is returned when a stream does not start with the PNG signature
var ErrBadSignature = errors.New("not a PNG file: bad signature")

// ErrBadCRC is returned by a verifying reader when a chunk checksum does not match
var ErrBadCRC = errors.New("broken PNG file: chunk CRC mismatch")

// Chunk represents a single PNG chunk as read from the stream
type Chunk struct {
	Length uint32 // Declared payload length
	Type   string // Four character type tag
	Data   []byte // Payload, may be shorter than Length on a truncated file
	CRC    uint32 // Stored checksum (zero when not fully read)
}

// IsText reports whether the chunk carries textual metadata
func (c Chunk) IsText() bool {
	return IsTextType(c.Type)
}

// IsTextType reports whether typ is one of tEXt, zTXt or iTXt
func IsTextType(typ string) bool {
	switch typ {
	case TypeText, TypeZTxt, TypeITxt:
		return true
	default:
		return false
	}
}

// ReadSignature consumes the 8-byte signature from r
func ReadSignature(r io.Reader) error {
	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return ErrBadSignature
	}
	if !bytes.Equal(sig[:], Signature) {
		return ErrBadSignature
	}
	return nil
}

// Reader reads chunks sequentially. It must be positioned right after the signature.
type Reader struct {
	r      io.Reader
	verify bool
}

// NewReader returns a lenient chunk reader: short payloads are returned as read
// and checksums are not verified.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// NewVerifyingReader returns a strict chunk reader that fails on short chunks
// and checksum mismatches.
func NewVerifyingReader(r io.Reader) *Reader {
	return &Reader{r: r, verify: true}
}

// Next reads the next chunk. A header shorter than 8 bytes ends the stream with
// io.EOF (nothing read) or io.ErrUnexpectedEOF.
func (cr *Reader) Next() (Chunk, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(cr.r, hdr[:]); err != nil {
		return Chunk{}, err
	}

	c := Chunk{
		Length: binary.BigEndian.Uint32(hdr[:4]),
		Type:   string(hdr[4:8]),
	}

	// LimitReader keeps a bogus length from allocating gigabytes up front
	data, err := io.ReadAll(io.LimitReader(cr.r, int64(c.Length)))
	if err != nil {
		return c, fmt.Errorf("reading %s payload: %w", c.Type, err)
	}
	c.Data = data

	var crc [4]byte
	n, err := io.ReadFull(cr.r, crc[:])
	if n == 4 {
		c.CRC = binary.BigEndian.Uint32(crc[:])
	}

	if !cr.verify {
		return c, nil
	}
	if uint32(len(data)) != c.Length || err != nil {
		return c, fmt.Errorf("truncated %s chunk: %w", c.Type, io.ErrUnexpectedEOF)
	}
	if checksum(hdr[4:8], data) != c.CRC {
		return c, fmt.Errorf("%s: %w", c.Type, ErrBadCRC)
	}
	return c, nil
}

func checksum(typ, data []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(typ)
	h.Write(data)
	return h.Sum32()
}
