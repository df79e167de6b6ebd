package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TaskError accumulates multiple errors produced during bulk ingestion.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "multiple errors:"
	for _, err := range e.Errors {
		msg += " " + err.Error() + ";"
	}
	return msg
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// BulkIngestor loads users and connections with bounded concurrency. A failed item
// does not stop the others; failures are reported together in a TaskError.
type BulkIngestor struct {
	service *RelationshipService
	workers int
}

// NewBulkIngestor creates a new BulkIngestor instance with the provided concurrency.
func NewBulkIngestor(service *RelationshipService, workers int) *BulkIngestor {
	if workers <= 0 {
		workers = 4
	}
	return &BulkIngestor{
		service: service,
		workers: workers,
	}
}

// IngestUsers processes the provided user inputs concurrently.
func (bi *BulkIngestor) IngestUsers(ctx context.Context, users []UserInput) error {
	return bi.run(ctx, len(users), func(idx int) error {
		_, err := bi.service.UpsertUser(ctx, users[idx])
		return err
	})
}

// IngestConnections processes connection inputs concurrently. Users must be ingested first.
func (bi *BulkIngestor) IngestConnections(ctx context.Context, conns []ConnectionInput) error {
	return bi.run(ctx, len(conns), func(idx int) error {
		return bi.service.UpsertConnection(ctx, conns[idx])
	})
}

func (bi *BulkIngestor) run(ctx context.Context, total int, workerFn func(idx int) error) error {
	if total == 0 {
		return nil
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		taskErr TaskError
	)
	g.SetLimit(bi.workers)

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			break
		}
		idx := i
		g.Go(func() error {
			if err := workerFn(idx); err != nil {
				mu.Lock()
				taskErr.append(err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, err := range taskErr.Errors {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return taskErr.asError()
}
