// Package graph implements the Graph Access Layer: a pooled, retrying
// client over the property graph backend used by every higher layer of
// the knowledge fabric.
package graph

import (
	"context"
	"fmt"
	"time"
)

// GraphClient is the minimal surface the rest of the fabric needs from a
// property graph backend. Implementations must be safe for concurrent use.
type GraphClient interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Health(ctx context.Context) error

	// Query runs a single read or write statement and returns its result set.
	Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error)

	CreateNode(ctx context.Context, label string, props map[string]any) (*QueryResult, error)
	CreateRelationship(ctx context.Context, fromID, toID, relType string, props map[string]any) (*QueryResult, error)
	DeleteNode(ctx context.Context, label string, id string) error
}

// QueryResult holds the records and summary returned by a single query.
type QueryResult struct {
	Records []map[string]any
	Summary QuerySummary
}

// QuerySummary reports counters for a completed query, used by callers that
// need to distinguish a no-op MERGE from a node creation.
type QuerySummary struct {
	NodesCreated         int
	RelationshipsCreated int
	PropertiesSet        int
}

// Config configures a GraphClient connection.
type Config struct {
	URI             string
	Username        string
	Password        string
	Database        string
	MaxConnPoolSize int
	ConnectTimeout  time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

// DefaultConfig returns sane defaults for connecting to a local backend.
func DefaultConfig() Config {
	return Config{
		URI:             "bolt://localhost:7687",
		Database:        "neo4j",
		MaxConnPoolSize: 50,
		ConnectTimeout:  10 * time.Second,
		MaxRetries:      5,
		RetryBaseDelay:  200 * time.Millisecond,
	}
}

// Validate checks that the config has the fields required to dial a backend.
func (c Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("graph: URI is required")
	}
	if c.MaxConnPoolSize <= 0 {
		return fmt.Errorf("graph: MaxConnPoolSize must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("graph: ConnectTimeout must be positive")
	}
	return nil
}
