package decode

import "errors"

var (
	// ErrInvalidConfig reports a generation configuration rejected before any
	// decode step ran.
	ErrInvalidConfig = errors.New("invalid generation config")
	// ErrVocabMismatch reports disagreement between the model output width,
	// the vocabulary and the end-of-sequence id.
	ErrVocabMismatch = errors.New("vocabulary mismatch")
)
