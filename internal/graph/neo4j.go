package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jClient is the bolt-protocol GraphClient implementation backing the
// Graph Access Layer.
type Neo4jClient struct {
	config Config
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// NewNeo4jClient constructs a client. Connect must be called before use.
func NewNeo4jClient(config Config, logger *slog.Logger) (*Neo4jClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jClient{config: config, logger: logger}, nil
}

// Connect dials the backend with exponential backoff, retrying transient
// failures up to config.MaxRetries times.
func (c *Neo4jClient) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryBaseDelay
			c.logger.Debug("graph: retrying connect", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		driver, err := neo4j.NewDriverWithContext(
			c.config.URI,
			neo4j.BasicAuth(c.config.Username, c.config.Password, ""),
			func(cfg *neo4j.Config) {
				cfg.MaxConnectionPoolSize = c.config.MaxConnPoolSize
				cfg.ConnectionAcquisitionTimeout = c.config.ConnectTimeout
			},
		)
		if err != nil {
			lastErr = err
			continue
		}

		verifyCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
		err = driver.VerifyConnectivity(verifyCtx)
		cancel()
		if err != nil {
			_ = driver.Close(ctx)
			lastErr = err
			continue
		}

		c.driver = driver
		c.logger.Info("graph: connected", "uri", c.config.URI, "attempt", attempt)
		return nil
	}
	return errBackendUnavailable(lastErr)
}

func (c *Neo4jClient) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

func (c *Neo4jClient) Health(ctx context.Context) error {
	if c.driver == nil {
		return errBackendUnavailable(fmt.Errorf("not connected"))
	}
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return errBackendUnavailable(err)
	}
	return nil
}

func (c *Neo4jClient) Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	if c.driver == nil {
		return nil, errBackendUnavailable(fmt.Errorf("not connected"))
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return convertNeo4jResult(records, summary), nil
	})
	if err != nil {
		return nil, errQuery(cypher, err)
	}
	return result.(*QueryResult), nil
}

func (c *Neo4jClient) CreateNode(ctx context.Context, label string, props map[string]any) (*QueryResult, error) {
	cypher := fmt.Sprintf("CREATE (n:%s) SET n = $props RETURN n", label)
	return c.Query(ctx, cypher, map[string]any{"props": props})
}

func (c *Neo4jClient) CreateRelationship(ctx context.Context, fromID, toID, relType string, props map[string]any) (*QueryResult, error) {
	cypher := fmt.Sprintf(`
		MATCH (a {id: $from_id}), (b {id: $to_id})
		CREATE (a)-[r:%s]->(b)
		SET r = $props
		RETURN r
	`, relType)
	return c.Query(ctx, cypher, map[string]any{
		"from_id": fromID,
		"to_id":   toID,
		"props":   props,
	})
}

func (c *Neo4jClient) DeleteNode(ctx context.Context, label string, id string) error {
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", label)
	_, err := c.Query(ctx, cypher, map[string]any{"id": id})
	return err
}

func convertNeo4jResult(records []*neo4j.Record, summary neo4j.ResultSummary) *QueryResult {
	out := &QueryResult{
		Records: make([]map[string]any, 0, len(records)),
	}
	for _, rec := range records {
		row := make(map[string]any, len(rec.Keys))
		for _, key := range rec.Keys {
			v, _ := rec.Get(key)
			row[key] = v
		}
		out.Records = append(out.Records, row)
	}
	if summary != nil {
		counters := summary.Counters()
		out.Summary = QuerySummary{
			NodesCreated:         counters.NodesCreated(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			PropertiesSet:        counters.PropertiesSet(),
		}
	}
	return out
}
