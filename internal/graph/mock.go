package graph

import (
	"context"
	"sync"
)

// MockClient is an in-memory GraphClient for unit tests that don't need a
// live backend. Query is driven by a caller-supplied handler; CreateNode,
// CreateRelationship, and DeleteNode record calls for assertions.
type MockClient struct {
	mu        sync.Mutex
	connected bool
	Handler   func(cypher string, params map[string]any) (*QueryResult, error)
	Calls     []MockCall
}

type MockCall struct {
	Method string
	Cypher string
	Params map[string]any
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockClient) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockClient) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return errBackendUnavailable(nil)
	}
	return nil
}

func (m *MockClient) Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Query", Cypher: cypher, Params: params})
	m.mu.Unlock()

	if m.Handler != nil {
		return m.Handler(cypher, params)
	}
	return &QueryResult{}, nil
}

func (m *MockClient) CreateNode(ctx context.Context, label string, props map[string]any) (*QueryResult, error) {
	return m.Query(ctx, "CREATE "+label, props)
}

func (m *MockClient) CreateRelationship(ctx context.Context, fromID, toID, relType string, props map[string]any) (*QueryResult, error) {
	return m.Query(ctx, "CREATE REL "+relType, props)
}

func (m *MockClient) DeleteNode(ctx context.Context, label string, id string) error {
	_, err := m.Query(ctx, "DELETE "+label, map[string]any{"id": id})
	return err
}
