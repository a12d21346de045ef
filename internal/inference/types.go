package inference

import (
	"time"

	"github.com/samcharles93/loom/internal/decode"
)

// Tokenizer turns text into ids and back. vocab.Vocab implements it.
type Tokenizer interface {
	decode.Vocabulary
	Encode(text string) ([]int, error)
	Decode(ids []int) string
}

// Observer receives per-generation telemetry. metrics.Collectors implements it.
type Observer interface {
	ObserveStep(strategy string, beams int)
	ObserveGeneration(strategy string, elapsed time.Duration, err error)
}

type Result struct {
	ID       string    `json:"id,omitempty"`
	Strategy string    `json:"strategy"`
	Elements []Element `json:"elements"`
	Stats    Stats     `json:"stats"`
}

// Element holds the outputs generated for one prompt.
type Element struct {
	Prompt  string   `json:"prompt"`
	Outputs []Output `json:"outputs"`
}

type Output struct {
	Tokens   []int   `json:"tokens"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	LogProb  float64 `json:"log_prob"`
	Length   int     `json:"length"`
	Finished bool    `json:"finished"`
}

type Stats struct {
	// Steps counts decode steps across the whole batch.
	Steps int `json:"steps"`
	// BeamSteps counts beams advanced, summed over steps.
	BeamSteps int           `json:"beam_steps"`
	Duration  time.Duration `json:"duration_ns"`
	// BPS is beam steps per second.
	BPS float64 `json:"beam_steps_per_second"`
}
