package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/bootstrap"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/config"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/logging"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/server"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	graphClient, err := bootstrap.GraphClient(ctx, logger, cfg.Graph)
	if err != nil {
		logger.Error("failed to create graph client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := graphClient.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	repo := bootstrap.Repository(graphClient, cfg.Graph)

	usageBackend, err := bootstrap.UsageBackend(logger, cfg.Usage, repo)
	if err != nil {
		logger.Error("failed to open usage backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := usageBackend.Close(); err != nil {
			logger.Warn("closing usage backend failed", "error", err)
		}
	}()

	engine, err := bootstrap.Engine(logger, cfg.Path, cfg.Usage, repo, usageBackend.Recorder)
	if err != nil {
		logger.Error("failed to build path engine", "error", err)
		os.Exit(1)
	}
	opts := engine.Options()
	logger.Info("path engine ready",
		"max_hops", opts.Limits.MaxHops,
		"max_candidates", opts.Limits.MaxCandidates,
		"cache_ttl", opts.CacheTTL.String(),
		"usage_backend", cfg.Usage.Backend,
		"usage_policy", string(opts.UsagePolicy),
	)

	apiHandlers := server.NewAPIHandlers(logger,
		service.NewRelationshipService(repo),
		service.NewConnectionService(engine),
	)

	health := server.CompositeHealth{"graph": server.GraphHealthService{Client: graphClient}}
	if usageBackend.Probe != nil {
		health["usage"] = server.ProbeFunc(usageBackend.Probe)
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           health,
		API:              apiHandlers,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
		MetricsEnabled:   cfg.HTTP.MetricsEnabled,
	})

	srv := server.New(logger, cfg.HTTP, router)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx, nil); err != nil {
		logger.Error("server stopped unexpectedly", "error", err)
	}
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(csv, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
