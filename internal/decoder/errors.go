package decoder

import "errors"

var (
	// ErrConfiguration reports an invalid language/task/multilingual combination.
	ErrConfiguration = errors.New("decoder: invalid configuration")
	// ErrUnsupportedLanguage reports a pinned language the vocabulary has no tag for.
	ErrUnsupportedLanguage = errors.New("decoder: unsupported language")
	// ErrInitialization reports a required special token missing from the vocabulary.
	ErrInitialization = errors.New("decoder: initialisation failed")
	// ErrModelInference wraps failures surfaced by the model during a forward pass.
	ErrModelInference = errors.New("decoder: model inference failed")
	// ErrNumericDegenerate reports a distribution with no usable probability mass.
	ErrNumericDegenerate = errors.New("decoder: degenerate distribution")
)
