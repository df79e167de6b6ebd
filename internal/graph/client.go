package graph

import (
	"context"
	"errors"
)

// Client defines the minimal contract the repository needs from the graph database.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	// ExecuteReadBatch runs every statement inside one read transaction so the results
	// describe a single consistent view of the graph.
	ExecuteReadBatch(ctx context.Context, statements []Statement) ([]Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Statement is a parameterised cypher query.
type Statement struct {
	Query  string
	Params map[string]any
}

// Result is a simplified representation of a query response.
type Result struct {
	Records []Record
}

// Record groups key-value pairs returned from the graph engine.
type Record map[string]any

// Options configures a graph client implementation.
type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

// ErrMissingURI indicates the graph URI is not provided.
var ErrMissingURI = errors.New("graph URI is required")
