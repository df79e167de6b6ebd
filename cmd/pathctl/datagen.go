package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/generator"
)

func newDatagenCmd() *cobra.Command {
	cfg := generator.DefaultConfig()
	var (
		outputDir   string
		writeStdout bool
	)

	cmd := &cobra.Command{
		Use:   "datagen",
		Short: "Generate a synthetic social graph as users.json and connections.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.RewireChance = clampProbability(cfg.RewireChance)
			cfg.InferredChance = clampProbability(cfg.InferredChance)
			cfg.OneWayChance = clampProbability(cfg.OneWayChance)

			dataset, err := generator.New(cfg).Generate(cmd.Context())
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}

			if writeStdout {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(dataset)
			}
			if err := generator.WriteDataset(dataset, outputDir); err != nil {
				return fmt.Errorf("write dataset: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d users and %d connections into %s\n",
				len(dataset.Users), len(dataset.Connections), outputDir)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.NumUsers, "users", cfg.NumUsers, "number of users to generate")
	f.IntVar(&cfg.Degree, "degree", cfg.Degree, "neighbours per user on the base ring")
	f.Float64Var(&cfg.RewireChance, "rewire-chance", cfg.RewireChance, "probability of rewiring a ring tie to a random user")
	f.Float64Var(&cfg.InferredChance, "inferred-chance", cfg.InferredChance, "probability a connection is inferred rather than direct")
	f.Float64Var(&cfg.OneWayChance, "one-way-chance", cfg.OneWayChance, "probability a connection is not mutual")
	f.DurationVar(&cfg.ActivityWindow, "activity-window", cfg.ActivityWindow, "how far back last-activity timestamps reach")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for deterministic generation")
	f.StringVar(&outputDir, "output-dir", "data", "directory to write users.json and connections.json")
	f.BoolVar(&writeStdout, "stdout", false, "write the combined dataset to stdout instead of files")
	return cmd
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
