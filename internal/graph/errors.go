package graph

import "github.com/agentfabric/knowledgefabric/internal/types"

func errBackendUnavailable(cause error) error {
	return types.WrapRetryableError(types.ErrBackendUnavailable, "graph backend unreachable", cause)
}

func errQuery(cypher string, cause error) error {
	return types.WrapError(types.ErrQuery, "query failed: "+cypher, cause)
}

func errPoolExhausted() error {
	return types.NewError(types.ErrPoolExhausted, "connection pool exhausted")
}

func errCancelled(cause error) error {
	return types.WrapError(types.ErrCancelled, "acquire cancelled", cause)
}
