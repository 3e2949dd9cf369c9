package card

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/arcanaland/cardcheck/internal/pngmeta"
)

// decodeConfig is replaced in tests
var decodeConfig = image.DecodeConfig

// Metadata keys written by image generators. Either one marks a file as not a card.
var generatorKeys = []string{"prompt", "parameters"}

// Metadata keys used by chat front-ends for persona definitions, compared case-insensitively
var cardKeys = []string{"chara", "char_name", "tavernai"}

// Substrings looked for in raw text chunk payloads
var (
	cardMarkers  = [][]byte{[]byte("chara"), []byte("char_name"), []byte(`"name":`)}
	promptMarker = []byte("prompt")
)

// Verdict represents the outcome of classifying one file
type Verdict struct {
	IsCard bool
	Reason string // Which signal decided, for debug output
}

// IsCharacterCard reports whether the PNG at path embeds a character card.
// Any error reading or parsing the file counts as not a card.
func IsCharacterCard(path string) bool {
	v, err := Classify(path)
	return err == nil && v.IsCard
}

// Classify runs the metadata scan and, when it is inconclusive, the raw chunk scan
func Classify(path string) (Verdict, error) {
	meta, err := readMetadata(path)
	if err != nil {
		return Verdict{Reason: "unreadable metadata"}, err
	}
	if v, ok := classifyMetadata(meta); ok {
		return v, nil
	}
	return scanChunks(path)
}

// readMetadata decodes the image header and returns the text chunks seen before IDAT
func readMetadata(path string) (pngmeta.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if format != "png" {
		return nil, fmt.Errorf("unexpected image format %q", format)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return pngmeta.ReadText(f)
}

// classifyMetadata returns ok=false when no key decides either way
func classifyMetadata(meta pngmeta.Metadata) (Verdict, bool) {
	// generator keys win even when card keys are also present
	for _, key := range generatorKeys {
		if meta.Has(key) {
			return Verdict{Reason: fmt.Sprintf("metadata key %q", key)}, true
		}
	}

	for key := range meta {
		lower := strings.ToLower(key)
		for _, ck := range cardKeys {
			if lower == ck {
				return Verdict{IsCard: true, Reason: fmt.Sprintf("metadata key %q", key)}, true
			}
		}
	}
	return Verdict{}, false
}

// scanChunks walks the raw chunks, looking at text payloads without decompressing them
func scanChunks(path string) (Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		return Verdict{}, err
	}
	defer f.Close()

	if err := pngmeta.ReadSignature(f); err != nil {
		return Verdict{Reason: "bad signature"}, nil
	}

	cr := pngmeta.NewReader(f)
	for {
		c, err := cr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Verdict{Reason: "no card chunk"}, fmt.Errorf("chunk stream ended without a terminator: %w", err)
			}
			return Verdict{}, err
		}

		if c.IsText() && matchesCard(c.Data) {
			return Verdict{IsCard: true, Reason: fmt.Sprintf("%s chunk matched", c.Type)}, nil
		}

		// Any empty chunk ends the scan, not only IEND. An empty ancillary
		// chunk before the card text therefore hides it.
		if c.Length == 0 {
			return Verdict{Reason: "no card chunk"}, nil
		}
	}
}

func matchesCard(payload []byte) bool {
	lower := bytes.ToLower(payload)
	if bytes.Contains(lower, promptMarker) {
		return false
	}
	for _, m := range cardMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// CheckDecoder verifies that a PNG decoder is registered with the image package.
// This package does not register one itself; the binary links it in.
func CheckDecoder() error {
	_, format, err := decodeConfig(bytes.NewReader(probeImage))
	if err != nil {
		return fmt.Errorf("no PNG decoder available: %w", err)
	}
	if format != "png" {
		return fmt.Errorf("no PNG decoder available: probe decoded as %q", format)
	}
	return nil
}

// probeImage is a 1x1 grayscale PNG
var probeImage = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x00, 0x00, 0x00, 0x00, 0x3a, 0x7e, 0x9b,
	0x55, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x60, 0x00, 0x00, 0x00,
	0x02, 0x00, 0x01, 0x48, 0xaf, 0xa4, 0x71, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}
