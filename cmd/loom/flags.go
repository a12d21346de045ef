package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/beam"
	"github.com/samcharles93/loom/internal/inference"
)

var (
	logLevel  string
	logFormat string
	debug     bool

	vocabPath string
	hidden    int64
	modelSeed int64

	fileConfig Config
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to a vocabulary JSON file (default: built-in vocabulary)",
			Destination: &vocabPath,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden size of the toy model",
			Value:       32,
			Destination: &hidden,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "seed for the toy model weights",
			Value:       1,
			Destination: &modelSeed,
		},
	}
}

// genOptions holds the generation flags of one command.
type genOptions struct {
	strategy    string
	beamSize    int64
	temperature float64
	maxLength   int64
	seed        int64

	alpha    float64
	constant float64
	backfill bool

	numResults int64
	timeout    time.Duration
}

func generationFlags(o *genOptions) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "beam-size",
			Aliases:     []string{"k", "beams"},
			Usage:       "beam width, or number of independent samples",
			Value:       inference.DefaultBeamSize,
			Destination: &o.beamSize,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (sample only)",
			Value:       inference.DefaultTemperature,
			Destination: &o.temperature,
		},
		&cli.Int64Flag{
			Name:        "max-length",
			Aliases:     []string{"n"},
			Usage:       "maximum number of generated tokens",
			Value:       inference.DefaultMaxLength,
			Destination: &o.maxLength,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (-1 = random, sample only)",
			Value:       -1,
			Destination: &o.seed,
		},
		&cli.Float64Flag{
			Name:        "alpha",
			Usage:       "length penalty sharpness (beam only, 0 = off)",
			Value:       beam.DefaultAlpha,
			Destination: &o.alpha,
		},
		&cli.Float64Flag{
			Name:        "length-penalty-constant",
			Aliases:     []string{"lp-constant"},
			Usage:       "length penalty offset (beam only)",
			Value:       beam.DefaultConstant,
			Destination: &o.constant,
		},
		&cli.BoolFlag{
			Name:        "backfill",
			Usage:       "keep the beam width at k after hypotheses finish (beam only)",
			Destination: &o.backfill,
		},
		&cli.Int64Flag{
			Name:        "num-results",
			Usage:       "results shown per prompt (default: beam size)",
			Destination: &o.numResults,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "abort generation after this long (0 = no limit)",
			Destination: &o.timeout,
		},
	}
}

// requestOptions converts the flags into a request. num-results is only
// passed on when given, so it follows the beam size otherwise.
func (o *genOptions) requestOptions(prompts []string) inference.RequestOptions {
	beamSize := int(o.beamSize)
	maxLength := int(o.maxLength)
	opts := inference.RequestOptions{
		Prompts:               prompts,
		Strategy:              &o.strategy,
		BeamSize:              &beamSize,
		Temperature:           &o.temperature,
		MaxLength:             &maxLength,
		Seed:                  &o.seed,
		Alpha:                 &o.alpha,
		LengthPenaltyConstant: &o.constant,
		Backfill:              &o.backfill,
		Timeout:               &o.timeout,
	}
	if o.numResults > 0 {
		n := int(o.numResults)
		opts.NumResults = &n
	}
	return opts
}
