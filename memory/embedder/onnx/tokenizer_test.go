package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVocab() map[string]int64 {
	return map[string]int64{
		"[UNK]": 100, "[CLS]": 101, "[SEP]": 102,
		"i": 1, "got": 2, "promoted": 3, "!": 4, "nurse": 5, "nur": 6, "##se": 7, "##s": 8,
	}
}

func TestTokenizer_Encode(t *testing.T) {
	tok := NewTokenizer(testVocab())
	assert.Equal(t, []int64{101, 1, 2, 3, 4, 102}, tok.Encode("I got PROMOTED!", 128))
}

func TestTokenizer_WordPiece(t *testing.T) {
	tok := NewTokenizer(testVocab())
	assert.Equal(t, []int64{101, 5, 8, 102}, tok.Encode("nurses", 128))
	assert.Equal(t, []int64{101, 100, 102}, tok.Encode("zebra", 128))
}

func TestTokenizer_Truncates(t *testing.T) {
	tok := NewTokenizer(testVocab())
	ids := tok.Encode("i got i got i got", 4)
	assert.Equal(t, []int64{101, 1, 2, 102}, ids)
}

func TestLoadTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{"[CLS]":0,"[SEP]":1,"[UNK]":2,"hi":3}}}`), 0o600))

	tok, err := LoadTokenizer(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 1}, tok.Encode("hi", 16))

	_, err = LoadTokenizer(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
