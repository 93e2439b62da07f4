// Package tokenizer maps between Whisper vocabulary ids and text.
package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnknownToken reports an id that is not part of the vocabulary.
var ErrUnknownToken = errors.New("tokenizer: unknown token id")

// Tokenizer is the codec consumed by the decoder.
type Tokenizer interface {
	TokenToID(token string) (int, bool)
	Decode(ids []int, skipSpecial bool) (string, error)
}

// Vocabulary is a byte-level BPE vocabulary as stored in a HuggingFace
// tokenizer.json file. Only the decoding direction is implemented.
type Vocabulary struct {
	ids     map[string]int
	pieces  map[int]string
	special map[int]bool
}

// NewVocabulary builds a vocabulary from piece→id pairs. Pieces listed in
// special, and every `<|...|>` piece, are treated as special tokens.
func NewVocabulary(tokens map[string]int, special ...string) *Vocabulary {
	v := &Vocabulary{
		ids:     make(map[string]int, len(tokens)),
		pieces:  make(map[int]string, len(tokens)),
		special: make(map[int]bool),
	}
	for piece, id := range tokens {
		v.add(piece, id, isControlPiece(piece))
	}
	for _, piece := range special {
		if id, ok := v.ids[piece]; ok {
			v.special[id] = true
		}
	}
	return v
}

func (v *Vocabulary) add(piece string, id int, special bool) {
	v.ids[piece] = id
	v.pieces[id] = piece
	if special {
		v.special[id] = true
	}
}

// LoadVocabulary parses the `model.vocab` and `added_tokens` sections of a
// tokenizer.json document.
func LoadVocabulary(r io.Reader) (*Vocabulary, error) {
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
		AddedTokens []struct {
			ID      int    `json:"id"`
			Content string `json:"content"`
			Special bool   `json:"special"`
		} `json:"added_tokens"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("tokenizer: decode tokenizer.json: %w", err)
	}
	if len(doc.Model.Vocab) == 0 && len(doc.AddedTokens) == 0 {
		return nil, errors.New("tokenizer: vocabulary is empty")
	}

	v := NewVocabulary(doc.Model.Vocab)
	for _, added := range doc.AddedTokens {
		v.add(added.Content, added.ID, added.Special || isControlPiece(added.Content))
	}
	return v, nil
}

// Size returns the number of known ids.
func (v *Vocabulary) Size() int {
	return len(v.pieces)
}

// TokenToID implements Tokenizer.
func (v *Vocabulary) TokenToID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Decode implements Tokenizer. With skipSpecial, ids missing from the
// vocabulary (e.g. timestamp tokens absent from older tokenizer.json files)
// are dropped; otherwise they fail with ErrUnknownToken.
func (v *Vocabulary) Decode(ids []int, skipSpecial bool) (string, error) {
	var buf []byte
	for _, id := range ids {
		piece, ok := v.pieces[id]
		if !ok {
			if skipSpecial {
				continue
			}
			return "", fmt.Errorf("%w: %d", ErrUnknownToken, id)
		}
		if v.special[id] {
			if skipSpecial {
				continue
			}
			buf = append(buf, piece...)
			continue
		}
		buf = appendPieceBytes(buf, piece)
	}
	return strings.ToValidUTF8(string(buf), "�"), nil
}

func isControlPiece(piece string) bool {
	return strings.HasPrefix(piece, "<|") && strings.HasSuffix(piece, "|>")
}

func appendPieceBytes(buf []byte, piece string) []byte {
	for _, r := range piece {
		if b, ok := unicodeToByte[r]; ok {
			buf = append(buf, b)
			continue
		}
		buf = append(buf, string(r)...)
	}
	return buf
}

// unicodeToByte inverts the GPT-2 byte-to-unicode table used by byte-level BPE.
var unicodeToByte = func() map[rune]byte {
	table := make(map[rune]byte, 256)
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	shift := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			table[rune(b)] = byte(b)
			continue
		}
		table[rune(256+shift)] = byte(b)
		shift++
	}
	return table
}()
