package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/bootstrap"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/generator"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/service"
)

func newIngestCmd() *cobra.Command {
	var (
		datasetDir string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load users and connections from a dataset directory into the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			dataset, err := generator.ReadDataset(datasetDir)
			if err != nil {
				return err
			}
			if len(dataset.Users) == 0 {
				return fmt.Errorf("users dataset in %s is empty", datasetDir)
			}

			client, err := bootstrap.GraphClient(ctx, logger, cfg.Graph)
			if err != nil {
				return fmt.Errorf("create graph client: %w", err)
			}
			defer func() {
				if err := client.Close(context.Background()); err != nil {
					logger.Warn("closing graph client failed", "error", err)
				}
			}()

			svc := service.NewRelationshipService(bootstrap.Repository(client, cfg.Graph))
			ingestor := service.NewBulkIngestor(svc, workers)

			start := time.Now()
			logger.Info("ingesting users", "count", len(dataset.Users), "workers", workers)
			if err := ingestor.IngestUsers(ctx, dataset.Users); err != nil {
				return reportIngestError("user", err)
			}

			logger.Info("ingesting connections", "count", len(dataset.Connections))
			if err := ingestor.IngestConnections(ctx, dataset.Connections); err != nil {
				return reportIngestError("connection", err)
			}

			logger.Info("ingestion complete",
				"duration", time.Since(start).String(),
				"users", len(dataset.Users),
				"connections", len(dataset.Connections),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetDir, "dataset-dir", "./data", "directory containing users.json and connections.json")
	cmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent ingestion workers")
	return cmd
}

func reportIngestError(kind string, err error) error {
	var taskErr *service.TaskError
	if errors.As(err, &taskErr) {
		return fmt.Errorf("%s ingestion failed for %d records: %w", kind, len(taskErr.Errors), err)
	}
	return fmt.Errorf("%s ingestion failed: %w", kind, err)
}
