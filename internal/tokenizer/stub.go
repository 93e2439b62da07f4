package tokenizer

// StubWords is the sentence emitted by the stub model, as vocabulary pieces.
var StubWords = []string{"Ġstub", "Ġtranscript", "Ġfrom", "Ġnative", "Ġwhisper", "."}

// StubVocabulary returns the small vocabulary paired with the stub model.
// Control tokens come first; StubWords start at StubTextBase.
func StubVocabulary() *Vocabulary {
	tokens := map[string]int{
		"<|endoftext|>":         0,
		"<|startoftranscript|>": 1,
		"<|en|>":                2,
		"<|pl|>":                3,
		"<|de|>":                4,
		"<|translate|>":         5,
		"<|transcribe|>":        6,
		"<|nospeech|>":          7,
		"<|notimestamps|>":      8,
	}
	for i, word := range StubWords {
		tokens[word] = StubTextBase + i
	}
	return NewVocabulary(tokens)
}

// StubTextBase is the first non-control id of the stub vocabulary.
const StubTextBase = 9
