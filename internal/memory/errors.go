package memory

import "github.com/agentfabric/knowledgefabric/internal/types"

const (
	ErrCodeMemoryNotFound        types.ErrorCode = "MEMORY_NOT_FOUND"
	ErrCodeInvalidConfig         types.ErrorCode = "INVALID_MEMORY_CONFIG"
	ErrCodeInvalidRecord         types.ErrorCode = "MEMORY_INVALID_RECORD"

	ErrCodeVectorStoreUnavailable types.ErrorCode = "VECTOR_STORE_UNAVAILABLE"
	ErrCodeVectorNotFound         types.ErrorCode = "VECTOR_NOT_FOUND"
	ErrCodeVectorStoreFailed      types.ErrorCode = "VECTOR_STORE_FAILED"
	ErrCodeVectorSearchFailed     types.ErrorCode = "VECTOR_SEARCH_FAILED"

	ErrCodeEmbedderUnavailable  types.ErrorCode = "EMBEDDER_UNAVAILABLE"
	ErrCodeEmbeddingFailed      types.ErrorCode = "EMBEDDING_FAILED"
	ErrCodeEmbeddingBatchFailed types.ErrorCode = "EMBEDDING_BATCH_FAILED"
)

func NewMemoryNotFoundError(id string) *types.FabricError {
	return types.NewError(ErrCodeMemoryNotFound, "memory record not found: "+id)
}

func NewInvalidConfigError(message string) *types.FabricError {
	return types.NewError(ErrCodeInvalidConfig, message)
}

func NewInvalidRecordError(message string) *types.FabricError {
	return types.NewError(ErrCodeInvalidRecord, message)
}

func NewVectorStoreUnavailableError(message string) *types.FabricError {
	return types.NewError(ErrCodeVectorStoreUnavailable, message)
}

func NewVectorNotFoundError(id string) *types.FabricError {
	return types.NewError(ErrCodeVectorNotFound, "vector not found: "+id)
}

func NewVectorStoreError(message string, cause error) *types.FabricError {
	return types.WrapError(ErrCodeVectorStoreFailed, message, cause)
}

func NewVectorSearchError(message string, cause error) *types.FabricError {
	return types.WrapError(ErrCodeVectorSearchFailed, message, cause)
}

func NewEmbedderUnavailableError(message string) *types.FabricError {
	return types.NewError(ErrCodeEmbedderUnavailable, message)
}

func NewEmbeddingError(message string, cause error) *types.FabricError {
	return types.WrapError(ErrCodeEmbeddingFailed, message, cause)
}

func NewEmbeddingBatchError(message string, cause error) *types.FabricError {
	return types.WrapError(ErrCodeEmbeddingBatchFailed, message, cause)
}
