package main

import (
	"fmt"

	"github.com/samcharles93/loom/internal/inference"
	"github.com/samcharles93/loom/internal/toy"
	"github.com/samcharles93/loom/internal/vocab"
)

func loadVocab() (*vocab.Vocab, error) {
	if vocabPath == "" {
		return vocab.Builtin(), nil
	}
	return vocab.Load(vocabPath)
}

// buildEngine loads the vocabulary and builds a toy model sized to it.
func buildEngine(opts ...inference.Option) (*inference.Engine, error) {
	v, err := loadVocab()
	if err != nil {
		return nil, fmt.Errorf("load vocab: %w", err)
	}
	m, err := toy.NewToyLM(v.Size(), int(hidden), modelSeed)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("toy-v%d-h%d-s%d", v.Size(), hidden, modelSeed)
	return inference.NewEngine(name, m, v, opts...)
}
