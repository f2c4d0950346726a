package graph

import (
	"context"
	"time"
)

// Pool bounds concurrent access to a GraphClient with an explicit wait
// timeout, translating exhaustion into the fabric's PoolExhausted error
// rather than blocking callers indefinitely.
type Pool struct {
	client     GraphClient
	slots      chan struct{}
	acquireWait time.Duration
}

// NewPool wraps client with a pool of size concurrent slots. acquireWait
// bounds how long Acquire will wait for a free slot before returning
// PoolExhausted.
func NewPool(client GraphClient, size int, acquireWait time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	slots := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		slots <- struct{}{}
	}
	return &Pool{client: client, slots: slots, acquireWait: acquireWait}
}

// Acquire reserves a slot, blocking up to acquireWait (or until ctx is
// cancelled). The returned release function must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(p.acquireWait)
	defer timer.Stop()

	select {
	case <-p.slots:
		return func() { p.slots <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, errCancelled(ctx.Err())
	case <-timer.C:
		return nil, errPoolExhausted()
	}
}

// Do acquires a slot, runs fn with the pooled client, and releases the slot
// regardless of fn's outcome.
func (p *Pool) Do(ctx context.Context, fn func(GraphClient) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(p.client)
}

// PooledClient adapts a Pool back into a GraphClient, so every caller
// that takes a GraphClient (repositories, associative memory, the dual
// knowledge manager, the synchronizer) gets the pool's bounded
// concurrency and PoolExhausted behavior transparently, without knowing
// about Pool itself.
type PooledClient struct {
	pool *Pool
}

// NewPooledClient wraps client with a size-slot Pool and returns a
// GraphClient that routes every call through it.
func NewPooledClient(client GraphClient, size int, acquireWait time.Duration) *PooledClient {
	return &PooledClient{pool: NewPool(client, size, acquireWait)}
}

func (c *PooledClient) Connect(ctx context.Context) error {
	var err error
	doErr := c.pool.Do(ctx, func(gc GraphClient) error {
		err = gc.Connect(ctx)
		return nil
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (c *PooledClient) Close(ctx context.Context) error {
	var err error
	doErr := c.pool.Do(ctx, func(gc GraphClient) error {
		err = gc.Close(ctx)
		return nil
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (c *PooledClient) Health(ctx context.Context) error {
	return c.pool.Do(ctx, func(gc GraphClient) error {
		return gc.Health(ctx)
	})
}

func (c *PooledClient) Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	var result *QueryResult
	err := c.pool.Do(ctx, func(gc GraphClient) error {
		var qErr error
		result, qErr = gc.Query(ctx, cypher, params)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *PooledClient) CreateNode(ctx context.Context, label string, props map[string]any) (*QueryResult, error) {
	var result *QueryResult
	err := c.pool.Do(ctx, func(gc GraphClient) error {
		var qErr error
		result, qErr = gc.CreateNode(ctx, label, props)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *PooledClient) CreateRelationship(ctx context.Context, fromID, toID, relType string, props map[string]any) (*QueryResult, error) {
	var result *QueryResult
	err := c.pool.Do(ctx, func(gc GraphClient) error {
		var qErr error
		result, qErr = gc.CreateRelationship(ctx, fromID, toID, relType, props)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *PooledClient) DeleteNode(ctx context.Context, label string, id string) error {
	return c.pool.Do(ctx, func(gc GraphClient) error {
		return gc.DeleteNode(ctx, label, id)
	})
}
