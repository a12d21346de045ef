package inference

import (
	"fmt"
	"time"

	"github.com/samcharles93/loom/internal/beam"
	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/sampling"
)

const (
	StrategySample = "sample"
	StrategyBeam   = "beam"
)

// Built-in defaults, used when neither the request nor Defaults set a value.
const (
	DefaultBeamSize    = 4
	DefaultTemperature = 1.0
	DefaultMaxLength   = 32
)

// RequestOptions is a partially specified request. Nil fields fall back to
// Defaults and then to the built-in values.
type RequestOptions struct {
	Prompts  []string
	Strategy *string

	BeamSize    *int
	Temperature *float64
	MaxLength   *int
	Seed        *int64

	Alpha                 *float64
	LengthPenaltyConstant *float64
	Backfill              *bool

	NumResults *int
	Timeout    *time.Duration
}

// Defaults are deployment-wide overrides of the built-in values, loaded from
// the config file or server flags.
type Defaults struct {
	Strategy              *string
	BeamSize              *int
	Temperature           *float64
	MaxLength             *int
	Alpha                 *float64
	LengthPenaltyConstant *float64
	Backfill              *bool
	Timeout               *time.Duration
}

// Validate rejects defaults that would make every request using them fail.
// Both strategies' settings are checked whichever strategy is the default,
// since a request may switch strategy and inherit the rest.
func (d Defaults) Validate() error {
	r := ResolveRequest(RequestOptions{}, d)
	if r.Strategy != StrategySample && r.Strategy != StrategyBeam {
		return fmt.Errorf("%w: unknown strategy %q", decode.ErrInvalidConfig, r.Strategy)
	}
	err := sampling.Config{BeamSize: r.BeamSize, Temperature: r.Temperature, MaxLength: r.MaxLength}.Validate()
	if err != nil {
		return err
	}
	err = beam.Config{
		BeamSize:              r.BeamSize,
		MaxLength:             r.MaxLength,
		Alpha:                 r.Alpha,
		LengthPenaltyConstant: r.LengthPenaltyConstant,
	}.Validate()
	if err != nil {
		return err
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %s", decode.ErrInvalidConfig, r.Timeout)
	}
	return nil
}

// Request is a fully resolved generation request.
type Request struct {
	Prompts  []string
	Strategy string

	BeamSize    int
	Temperature float64
	MaxLength   int
	Seed        int64

	Alpha                 float64
	LengthPenaltyConstant float64
	Backfill              bool

	// NumResults limits how many outputs per prompt are returned. It never
	// changes the search itself.
	NumResults int
	// Timeout aborts generation between decode steps. Zero disables it.
	Timeout time.Duration
}

func ResolveRequest(opts RequestOptions, defaults Defaults) Request {
	req := Request{
		Prompts:               opts.Prompts,
		Strategy:              StrategyBeam,
		BeamSize:              DefaultBeamSize,
		Temperature:           DefaultTemperature,
		MaxLength:             DefaultMaxLength,
		Seed:                  -1,
		Alpha:                 beam.DefaultAlpha,
		LengthPenaltyConstant: beam.DefaultConstant,
	}

	if defaults.Strategy != nil && *defaults.Strategy != "" {
		req.Strategy = *defaults.Strategy
	}
	if defaults.BeamSize != nil {
		req.BeamSize = *defaults.BeamSize
	}
	if defaults.Temperature != nil {
		req.Temperature = *defaults.Temperature
	}
	if defaults.MaxLength != nil {
		req.MaxLength = *defaults.MaxLength
	}
	if defaults.Alpha != nil {
		req.Alpha = *defaults.Alpha
	}
	if defaults.LengthPenaltyConstant != nil {
		req.LengthPenaltyConstant = *defaults.LengthPenaltyConstant
	}
	if defaults.Backfill != nil {
		req.Backfill = *defaults.Backfill
	}
	if defaults.Timeout != nil {
		req.Timeout = *defaults.Timeout
	}

	if opts.Strategy != nil {
		req.Strategy = *opts.Strategy
	}
	if opts.BeamSize != nil {
		req.BeamSize = *opts.BeamSize
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxLength != nil {
		req.MaxLength = *opts.MaxLength
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	if opts.Alpha != nil {
		req.Alpha = *opts.Alpha
	}
	if opts.LengthPenaltyConstant != nil {
		req.LengthPenaltyConstant = *opts.LengthPenaltyConstant
	}
	if opts.Backfill != nil {
		req.Backfill = *opts.Backfill
	}
	if opts.Timeout != nil {
		req.Timeout = *opts.Timeout
	}

	req.NumResults = req.BeamSize
	if opts.NumResults != nil {
		req.NumResults = *opts.NumResults
	}
	return req
}

// Validate checks the fields the strategies do not see. Strategy-specific
// fields are validated when the strategy is built.
func (r *Request) Validate() error {
	if len(r.Prompts) == 0 {
		return fmt.Errorf("%w: at least one prompt is required", decode.ErrInvalidConfig)
	}
	if r.NumResults < 1 {
		return fmt.Errorf("%w: num_results must be >= 1, got %d", decode.ErrInvalidConfig, r.NumResults)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %s", decode.ErrInvalidConfig, r.Timeout)
	}
	return nil
}

// NewStrategy builds the decoding strategy the request names.
func (r *Request) NewStrategy() (decode.Strategy, error) {
	switch r.Strategy {
	case StrategySample:
		return sampling.New(sampling.Config{
			BeamSize:    r.BeamSize,
			Temperature: r.Temperature,
			MaxLength:   r.MaxLength,
			Seed:        r.Seed,
		})
	case StrategyBeam:
		return beam.New(beam.Config{
			BeamSize:              r.BeamSize,
			MaxLength:             r.MaxLength,
			Alpha:                 r.Alpha,
			LengthPenaltyConstant: r.LengthPenaltyConstant,
			Backfill:              r.Backfill,
		})
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", decode.ErrInvalidConfig, r.Strategy)
	}
}
