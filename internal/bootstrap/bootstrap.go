// Package bootstrap builds the collaborators shared by the server and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/config"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/graph"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/pathrank"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/repository"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/service"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/usage"
)

// GraphClient connects to the configured Bolt endpoint.
func GraphClient(ctx context.Context, logger *slog.Logger, cfg config.GraphConfig) (graph.Client, error) {
	if cfg.URI == "" {
		return nil, graph.ErrMissingURI
	}
	client, err := graph.NewNeo4jClient(ctx, graph.Options{
		URI:            cfg.URI,
		Database:       cfg.Database,
		Username:       cfg.Username,
		Password:       cfg.Password,
		MaxConnections: cfg.MaxConnections,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to graph", "uri", cfg.URI, "database", cfg.Database)
	return client, nil
}

// Repository wraps a graph client with the configured snapshot bound.
func Repository(client graph.Client, cfg config.GraphConfig) *repository.Repository {
	return repository.New(client, repository.WithMaxSnapshotEdges(cfg.MaxSnapshotEdges))
}

// Usage is the recorder selected by USAGE_BACKEND together with its lifecycle hooks.
type Usage struct {
	Recorder pathrank.UsageRecorder
	// Probe checks the backend for health endpoints. Nil when there is nothing to probe.
	Probe func(ctx context.Context) error
	Close func() error
}

// UsageBackend opens the usage recorder. repo may be nil when the graph backend is
// unavailable, in which case "graph" degrades to discarding usage.
func UsageBackend(logger *slog.Logger, cfg config.UsageConfig, repo *repository.Repository) (Usage, error) {
	noClose := func() error { return nil }
	switch cfg.Backend {
	case "sqlite":
		rec, err := usage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return Usage{}, err
		}
		logger.Info("recording usage in sqlite", "path", cfg.SQLitePath)
		return Usage{Recorder: rec, Probe: rec.Ping, Close: rec.Close}, nil
	case "graph":
		if repo == nil {
			logger.Warn("graph usage backend requested without a graph; usage is discarded")
			return Usage{Recorder: pathrank.NopUsageRecorder{}, Close: noClose}, nil
		}
		return Usage{Recorder: repo, Close: noClose}, nil
	case "none", "":
		return Usage{Recorder: pathrank.NopUsageRecorder{}, Close: noClose}, nil
	default:
		return Usage{}, fmt.Errorf("unknown usage backend %q", cfg.Backend)
	}
}

// Engine builds the path engine from configuration.
func Engine(logger *slog.Logger, cfg config.PathConfig, usageCfg config.UsageConfig, store pathrank.GraphStore, rec pathrank.UsageRecorder) (*pathrank.Engine, error) {
	return pathrank.NewEngine(store, rec, logger, service.EngineOptions(cfg, usageCfg))
}
