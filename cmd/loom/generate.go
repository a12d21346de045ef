package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/inference"
	"github.com/samcharles93/loom/internal/logger"
)

// generateCmd builds the sample and beam commands; they differ only in the
// strategy they run.
func generateCmd(name, usage, strategy string) *cli.Command {
	opts := genOptions{strategy: strategy}
	var (
		asJSON    bool
		showVocab bool
	)

	flags := append(modelFlags(), generationFlags(&opts)...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as JSON",
			Destination: &asJSON,
		},
		&cli.BoolFlag{
			Name:        "show-vocab",
			Usage:       "list the vocabulary and exit",
			Destination: &showVocab,
		},
	)

	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "PROMPT [PROMPT...]",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			applyGenerateConfig(cmd, fileConfig, &opts)
			log := logger.FromContext(ctx)

			engine, err := buildEngine()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if showVocab {
				return renderVocab(os.Stdout, engine.Tokenizer(), asJSON)
			}

			prompts := cmd.Args().Slice()
			if len(prompts) == 0 {
				return cli.Exit("error: at least one prompt is required (see --show-vocab for valid words)", 1)
			}
			for i, p := range prompts {
				prompts[i] = strings.TrimSpace(p)
			}

			req := inference.ResolveRequest(opts.requestOptions(prompts), inference.Defaults{})
			log.Debug("generating", "engine", engine.Name(), "strategy", req.Strategy, "prompts", len(prompts))
			res, err := engine.Generate(ctx, &req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if asJSON {
				return renderJSON(os.Stdout, res)
			}
			return renderTable(os.Stdout, res)
		},
	}
}
