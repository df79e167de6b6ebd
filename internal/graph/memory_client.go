package graph

import (
	"context"
	"sync"
)

// MemoryClient is a scripted Client for unit tests. Reads and writes return queued
// results in order and every executed statement is recorded.
type MemoryClient struct {
	mu           sync.Mutex
	writeCalls   []Statement
	readCalls    []Statement
	batches      int
	readResults  []Result
	writeResults []Result
	err          error
	connectivity error
}

// NewMemoryClient returns a client with no queued results.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// WithError makes every subsequent call fail with err.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithConnectivityError forces VerifyConnectivity to return the supplied error.
func (m *MemoryClient) WithConnectivityError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

// PushReadResult queues a result for the next read statement.
func (m *MemoryClient) PushReadResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readResults = append(m.readResults, res)
}

// PushWriteResult queues a result for the next write statement.
func (m *MemoryClient) PushWriteResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeResults = append(m.writeResults, res)
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Result{}, m.err
	}
	m.writeCalls = append(m.writeCalls, Statement{Query: cypher, Params: cloneMap(params)})
	return pop(&m.writeResults), nil
}

func (m *MemoryClient) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Result{}, m.err
	}
	m.readCalls = append(m.readCalls, Statement{Query: cypher, Params: cloneMap(params)})
	return pop(&m.readResults), nil
}

func (m *MemoryClient) ExecuteReadBatch(ctx context.Context, statements []Statement) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.batches++
	results := make([]Result, 0, len(statements))
	for _, stmt := range statements {
		m.readCalls = append(m.readCalls, Statement{Query: stmt.Query, Params: cloneMap(stmt.Params)})
		results = append(results, pop(&m.readResults))
	}
	return results, nil
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

// WriteCalls returns the executed write statements.
func (m *MemoryClient) WriteCalls() []Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Statement(nil), m.writeCalls...)
}

// ReadCalls returns the executed read statements, batched ones included.
func (m *MemoryClient) ReadCalls() []Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Statement(nil), m.readCalls...)
}

// Batches returns how many read transactions ran through ExecuteReadBatch.
func (m *MemoryClient) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

func pop(queue *[]Result) Result {
	if len(*queue) == 0 {
		return Result{}
	}
	res := (*queue)[0]
	*queue = (*queue)[1:]
	return res
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
