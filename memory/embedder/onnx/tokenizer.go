package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Tokenizer is a lowercase WordPiece tokenizer reading a HuggingFace
// tokenizer.json vocabulary.
type Tokenizer struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
}

// LoadTokenizer reads the vocabulary from a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var file struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}
	return NewTokenizer(file.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer from a vocabulary. Special tokens missing
// from vocab fall back to the standard BERT ids.
func NewTokenizer(vocab map[string]int64) *Tokenizer {
	lookup := func(token string, fallback int64) int64 {
		if id, ok := vocab[token]; ok {
			return id
		}
		return fallback
	}
	return &Tokenizer{
		vocab: vocab,
		cls:   lookup("[CLS]", 101),
		sep:   lookup("[SEP]", 102),
		unk:   lookup("[UNK]", 100),
	}
}

// Encode returns [CLS] tokens [SEP], truncated to maxLen ids.
func (t *Tokenizer) Encode(text string, maxLen int) []int64 {
	ids := []int64{t.cls}
	for _, word := range splitWords(strings.ToLower(text)) {
		for _, piece := range t.wordPiece(word) {
			if len(ids) >= maxLen-1 {
				return append(ids, t.sep)
			}
			ids = append(ids, piece)
		}
	}
	return append(ids, t.sep)
}

// splitWords splits on whitespace and isolates punctuation, as BERT's
// basic tokenizer does.
func splitWords(text string) []string {
	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPiece splits a word greedily into the longest known pieces. A word
// with no valid segmentation becomes a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}
	runes := []rune(word)
	var pieces []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64
		found := false
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, found = t.vocab[sub]; found {
				break
			}
		}
		if !found {
			return []int64{t.unk}
		}
		pieces = append(pieces, id)
		start = end
	}
	return pieces
}
