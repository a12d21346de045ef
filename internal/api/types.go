package api

import (
	"github.com/samcharles93/loom/internal/inference"
)

// GenerateRequest is the body of POST /v1/generate. Exactly one of Prompt
// and Prompts must be set; omitted options fall back to the server defaults.
type GenerateRequest struct {
	Prompt  string   `json:"prompt,omitempty"`
	Prompts []string `json:"prompts,omitempty"`

	Strategy    *string  `json:"strategy,omitempty"`
	BeamSize    *int     `json:"beam_size,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`

	Alpha                 *float64 `json:"alpha,omitempty"`
	LengthPenaltyConstant *float64 `json:"length_penalty_constant,omitempty"`
	Backfill              *bool    `json:"backfill,omitempty"`

	NumResults *int   `json:"num_results,omitempty"`
	TimeoutMS  *int64 `json:"timeout_ms,omitempty"`
	// Store keeps the response retrievable by id. Defaults to true.
	Store *bool `json:"store,omitempty"`
}

type GenerateResponse struct {
	ID        string              `json:"id"`
	Object    string              `json:"object"`
	CreatedAt int64               `json:"created_at"`
	Model     string              `json:"model"`
	Strategy  string              `json:"strategy"`
	Results   []inference.Element `json:"results"`
	Stats     inference.Stats     `json:"stats"`
}

type DeleteGenerationResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Version string `json:"version"`
}
