package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/bootstrap"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/config"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/generator"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/pathrank"
)

type queryOptions struct {
	source     string
	target     string
	index      int
	pages      int
	datasetDir string
}

type pageLine struct {
	Index     int      `json:"index"`
	Status    string   `json:"status"`
	Total     int      `json:"total"`
	RankingID string   `json:"rankingId"`
	Cached    bool     `json:"cached"`
	Truncated bool     `json:"truncated,omitempty"`
	Nodes     []string `json:"nodes,omitempty"`
	Hops      int      `json:"hops,omitempty"`
	Score     float64  `json:"score,omitempty"`
	Strength  float64  `json:"strength,omitempty"`
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Rank connection paths between two users and print one JSON line per page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), logger, cfg, opts.datasetDir)
			if err != nil {
				return err
			}
			defer closeStore()

			// Shell queries are operator traffic and are not counted as user usage.
			engine, err := bootstrap.Engine(logger, cfg.Path, cfg.Usage, store, pathrank.NopUsageRecorder{})
			if err != nil {
				return err
			}
			return runQuery(cmd, engine, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "", "source user ID")
	f.StringVar(&opts.target, "target", "", "target user ID")
	f.IntVar(&opts.index, "index", 0, "first path index to print")
	f.IntVar(&opts.pages, "pages", 1, "number of consecutive paths to print")
	f.StringVar(&opts.datasetDir, "dataset-dir", "", "rank against a dataset directory in memory instead of the graph")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func openStore(ctx context.Context, logger *slog.Logger, cfg config.Config, datasetDir string) (pathrank.GraphStore, func(), error) {
	if datasetDir != "" {
		dataset, err := generator.ReadDataset(datasetDir)
		if err != nil {
			return nil, nil, err
		}
		store := pathrank.NewMemoryStore()
		stats := generator.LoadMemoryStore(store, dataset)
		logger.Info("loaded dataset", "users", stats.Users, "connections", stats.Connections, "skipped", stats.Skipped)
		return store, func() {}, nil
	}

	client, err := bootstrap.GraphClient(ctx, logger, cfg.Graph)
	if err != nil {
		return nil, nil, fmt.Errorf("create graph client: %w", err)
	}
	closeFn := func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}
	return bootstrap.Repository(client, cfg.Graph), closeFn, nil
}

func runQuery(cmd *cobra.Command, engine *pathrank.Engine, opts queryOptions) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	pages := max(opts.pages, 1)
	for i := opts.index; i < opts.index+pages; i++ {
		resp, err := engine.Request(cmd.Context(), pathrank.Request{
			Source:    opts.source,
			Target:    opts.target,
			PathIndex: i,
		})
		if err != nil {
			return err
		}
		line := pageLine{
			Index:     resp.Index,
			Status:    string(resp.Status),
			Total:     resp.Total,
			RankingID: strconv.FormatUint(resp.Fingerprint, 16),
			Cached:    resp.CacheHit,
			Truncated: resp.Truncated,
		}
		if resp.Path != nil {
			line.Nodes = resp.Path.Nodes
			line.Hops = resp.Path.Hops
			line.Score = resp.Path.Score
			line.Strength = resp.Path.Strength
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
		if resp.Status != pathrank.StatusOK {
			break
		}
	}
	return nil
}
