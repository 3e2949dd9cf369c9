package card

import (
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanaland/cardcheck/internal/pngmeta"
	"github.com/arcanaland/cardcheck/internal/pngmeta/pngtest"
)

func TestIsCharacterCard(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"plain png", pngtest.Build(), false},
		{"chara key", pngtest.Build(pngtest.Text("chara", "eyJ9")), true},
		{"chara key any case", pngtest.Build(pngtest.Text("CharA", "x")), true},
		{"char_name key", pngtest.Build(pngtest.Text("char_name", "Alice")), true},
		{"tavernai key", pngtest.Build(pngtest.Text("TavernAI", "1")), true},
		{"parameters key wins", pngtest.Build(pngtest.Text("chara", "x"), pngtest.Text("parameters", "steps: 20")), false},
		{"prompt key wins", pngtest.Build(pngtest.Text("prompt", "{}"), pngtest.Text("chara", "x")), false},
		{"Prompt key is not a generator key", pngtest.Build(pngtest.Text("Prompt", "{}"), pngtest.Text("chara", "x")), true},
		{"compressed chara key", pngtest.Build(pngtest.ZText("chara", "data")), true},
		{"international chara key", pngtest.Build(pngtest.IText("chara", "data", true)), true},
		{"raw tEXt payload", pngtest.Build(pngtest.RawText(`CHARA: alice data "name": "Alice"`)), true},
		{"raw tEXt name field", pngtest.Build(pngtest.Text("Comment", `{"name": "Bob"}`)), true},
		{"raw payload with prompt", pngtest.Build(pngtest.Text("Comment", "chara prompt")), false},
		{"raw payload with PROMPT", pngtest.Build(pngtest.Text("Comment", "CHARA PROMPT")), false},
		{"card text after IDAT", pngtest.BuildAfterIDAT(pngtest.Text("Comment", "chara")), true},
		{"unrelated text", pngtest.Build(pngtest.Text("Software", "GIMP")), false},
		{"non-text chunk ignored", pngtest.Build(pngtest.Chunk{Type: "prVt", Data: []byte("chara")}), false},
		{"not a png", []byte("chara chara chara"), false},
		{"empty file", nil, false},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := pngtest.WriteFile(t, dir, tt.name+".png", tt.data)
			assert.Equal(t, tt.want, IsCharacterCard(path))
		})
	}
}

func TestIsCharacterCard_MissingFile(t *testing.T) {
	assert.False(t, IsCharacterCard(filepath.Join(t.TempDir(), "nope.png")))
}

func TestIsCharacterCard_EmptyChunkStopsScan(t *testing.T) {
	// the zero-length chunk ends the raw scan before the card text after IDAT
	data := pngtest.BuildAfterIDAT(
		pngtest.Chunk{Type: "tIMe", Data: nil},
		pngtest.Text("Comment", "chara"),
	)
	path := pngtest.WriteFile(t, t.TempDir(), "a.png", data)
	assert.False(t, IsCharacterCard(path))
}

func TestIsCharacterCard_CorruptCRC(t *testing.T) {
	data := pngtest.Build(pngtest.Text("chara", "x"))
	// last byte of the tEXt CRC: 8 signature + 25 IHDR + 8 header + 7 payload + 4 CRC
	data[8+25+8+7+3] ^= 0xff
	path := pngtest.WriteFile(t, t.TempDir(), "a.png", data)
	assert.False(t, IsCharacterCard(path))
}

func TestIsCharacterCard_TruncatedAfterMatch(t *testing.T) {
	full := pngtest.BuildAfterIDAT(pngtest.Text("Comment", "chara"))
	// drop IEND and cut the tail of the text chunk's CRC
	truncated := full[:len(full)-12-2]
	path := pngtest.WriteFile(t, t.TempDir(), "a.png", truncated)
	assert.True(t, IsCharacterCard(path))
}

func TestIsCharacterCard_TruncatedBeforeIDAT(t *testing.T) {
	full := pngtest.Build(pngtest.Text("chara", "x"))
	path := pngtest.WriteFile(t, t.TempDir(), "a.png", full[:40])
	assert.False(t, IsCharacterCard(path))
}

func TestIsCharacterCard_OversizedCompressedText(t *testing.T) {
	// a small file whose zTXt inflates well past the text limit
	zeros := strings.Repeat("\x00", 8*pngmeta.MaxTextChunk)
	data := pngtest.Build(pngtest.ZText("chara", zeros))
	require.Less(t, len(data), pngmeta.MaxTextChunk/16)

	path := pngtest.WriteFile(t, t.TempDir(), "bomb.png", data)
	assert.False(t, IsCharacterCard(path))

	_, err := Classify(path)
	assert.ErrorIs(t, err, pngmeta.ErrTextTooLarge)
}

func TestClassify_Reasons(t *testing.T) {
	dir := t.TempDir()

	v, err := Classify(pngtest.WriteFile(t, dir, "gen.png", pngtest.Build(pngtest.Text("parameters", "x"))))
	require.NoError(t, err)
	assert.False(t, v.IsCard)
	assert.Equal(t, `metadata key "parameters"`, v.Reason)

	v, err = Classify(pngtest.WriteFile(t, dir, "raw.png", pngtest.Build(pngtest.RawText("chara"))))
	require.NoError(t, err)
	assert.True(t, v.IsCard)

	v, err = Classify(pngtest.WriteFile(t, dir, "z.png", pngtest.BuildAfterIDAT(pngtest.ZText("x", "y"), pngtest.Chunk{Type: "zTXt", Data: []byte("chara\x00\x00")})))
	require.NoError(t, err)
	assert.Equal(t, "zTXt chunk matched", v.Reason)

	_, err = Classify(pngtest.WriteFile(t, dir, "bad.png", []byte("nope")))
	assert.Error(t, err)
}

func TestMatchesCard(t *testing.T) {
	assert.True(t, matchesCard([]byte("Chara")))
	assert.True(t, matchesCard([]byte("CHAR_NAME=x")))
	assert.True(t, matchesCard([]byte(`{"Name": "x"}`)))
	assert.False(t, matchesCard([]byte(`{"name" : "x"}`)))
	assert.True(t, matchesCard([]byte("character")))
	assert.False(t, matchesCard([]byte("charm")))
	assert.False(t, matchesCard([]byte("chara negative_prompt")))
}

func TestCheckDecoder(t *testing.T) {
	require.NoError(t, CheckDecoder())
}

func TestCheckDecoder_Unregistered(t *testing.T) {
	orig := decodeConfig
	t.Cleanup(func() { decodeConfig = orig })
	decodeConfig = func(io.Reader) (image.Config, string, error) {
		return image.Config{}, "", image.ErrFormat
	}

	err := CheckDecoder()
	assert.ErrorIs(t, err, image.ErrFormat)
	assert.ErrorContains(t, err, "no PNG decoder")
}

func TestFileHandlesReleased(t *testing.T) {
	dir := t.TempDir()
	path := pngtest.WriteFile(t, dir, "a.png", pngtest.Build(pngtest.RawText("chara")))
	require.True(t, IsCharacterCard(path))

	// renaming and removing work only when no handle is left open on some platforms
	require.NoError(t, os.Rename(path, filepath.Join(dir, "b.png")))
	require.NoError(t, os.Remove(filepath.Join(dir, "b.png")))
}
