package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/inference"
	"github.com/samcharles93/loom/internal/logger"
)

// benchCmd repeatedly samples a single token after a prompt and compares the
// empirical token frequencies with the uniform distribution. Raising the
// temperature should drive the distance towards zero.
func benchCmd() *cli.Command {
	var (
		prompt      string
		temperature float64
		samples     int64
		batch       int64
		seed        int64
		top         int64
	)

	flags := append(modelFlags(),
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt to sample after",
			Value:       "the",
			Destination: &prompt,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature",
			Value:       1,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "samples",
			Usage:       "total number of single-step samples",
			Value:       20000,
			Destination: &samples,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Usage:       "samples drawn per generation call",
			Value:       500,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (-1 = random)",
			Value:       1,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "top",
			Usage:       "number of most frequent tokens to list (0 = all)",
			Value:       10,
			Destination: &top,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Measure sampling throughput and distribution flatness at a temperature",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			log := logger.FromContext(ctx)
			if samples < 1 || batch < 1 {
				return cli.Exit("error: samples and batch must be >= 1", 1)
			}

			engine, err := buildEngine()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			vocabSize := engine.Tokenizer().Size()

			bar := progressbar.NewOptions64(samples,
				progressbar.OptionSetDescription("sampling"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetVisibility(isTerminal(os.Stderr)),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("samples"),
				progressbar.OptionSetTheme(progressbar.ThemeASCII),
				progressbar.OptionClearOnFinish(),
			)

			counts := make([]int64, vocabSize)
			start := time.Now()
			for done, call := int64(0), int64(0); done < samples; call++ {
				n := min(batch, samples-done)
				callSeed := seed
				if seed >= 0 {
					callSeed = seed + call
				}
				req := inference.ResolveRequest(firstTokenOptions(prompt, int(n), temperature, callSeed), inference.Defaults{})
				res, err := engine.Generate(ctx, &req)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				for _, out := range res.Elements[0].Outputs {
					counts[out.Tokens[0]]++
				}
				done += n
				_ = bar.Add64(n)
			}
			_ = bar.Finish()
			elapsed := time.Since(start)

			log.Info("bench complete", "samples", samples, "duration", elapsed)
			return renderBench(os.Stdout, engine.Tokenizer(), counts, temperature, elapsed, int(top))
		},
	}
}

func firstTokenOptions(prompt string, n int, temperature float64, seed int64) inference.RequestOptions {
	strategy := inference.StrategySample
	maxLength := 1
	return inference.RequestOptions{
		Prompts:     []string{prompt},
		Strategy:    &strategy,
		BeamSize:    &n,
		Temperature: &temperature,
		MaxLength:   &maxLength,
		Seed:        &seed,
	}
}

// totalVariation returns half the L1 distance between the empirical
// distribution in counts and the uniform distribution.
func totalVariation(counts []int64) float64 {
	var total int64
	for _, c := range counts {
		total += c
	}
	if total == 0 || len(counts) == 0 {
		return 0
	}
	uniform := 1 / float64(len(counts))
	var tv float64
	for _, c := range counts {
		tv += math.Abs(float64(c)/float64(total) - uniform)
	}
	return tv / 2
}

func renderBench(w io.Writer, v vocabLister, counts []int64, temperature float64, elapsed time.Duration, top int) error {
	var total int64
	for _, c := range counts {
		total += c
	}
	ids := make([]int, len(counts))
	for i := range ids {
		ids[i] = i
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		switch {
		case counts[a] > counts[b]:
			return -1
		case counts[a] < counts[b]:
			return 1
		}
		return 0
	})
	if top > 0 && top < len(ids) {
		ids = ids[:top]
	}

	uniform := 1 / float64(len(counts))
	t := newTable("id", "token", "count", "freq", "uniform")
	for _, id := range ids {
		t.Row(
			strconv.Itoa(id),
			v.Token(id),
			humanize.Comma(counts[id]),
			humanize.FtoaWithDigits(float64(counts[id])/float64(max(total, 1)), 4),
			humanize.FtoaWithDigits(uniform, 4),
		)
	}

	rate := float64(total) / max(elapsed.Seconds(), 1e-9)
	_, err := fmt.Fprintf(w, "%s\ntemperature %s, %s samples in %s (%s), total variation from uniform %.4f\n",
		t.String(),
		humanize.FtoaWithDigits(temperature, 3),
		humanize.Comma(total),
		elapsed.Round(time.Millisecond),
		humanize.SIWithDigits(rate, 2, "samples/s"),
		totalVariation(counts),
	)
	return err
}
