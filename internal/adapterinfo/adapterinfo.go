package adapterinfo

// Metadata captures static identifiers for the adapter. Centralising the values
// makes it easy to clone this repository for new adapters.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
}

// Info describes the current adapter.
var Info = Metadata{
	Name:        "Nupi Whisper Native STT",
	BinaryName:  "plugin-stt-native-whisper",
	Slug:        "stt-native-whisper",
	Description: "Speech-to-text adapter running the Whisper pipeline natively in Go.",
	GeneratorID: "stt-native-whisper",
	Version:     "0.1.0",
}

// Version returns the adapter release.
func Version() string {
	return Info.Version
}

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcripts.
func TranscriptMetadata(modelKind, language string) map[string]string {
	return map[string]string{
		"generator":  Info.GeneratorID,
		"version":    Info.Version,
		"model_kind": modelKind,
		"language":   language,
	}
}
