package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentfabric/knowledgefabric/internal/types"
)

func TestMemoryNotFoundError(t *testing.T) {
	err := NewMemoryNotFoundError("m1")
	var fe *types.FabricError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrCodeMemoryNotFound, fe.Code)
}

func TestVectorStoreErrorWraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewVectorStoreError("write failed", cause)
	assert.Contains(t, err.Error(), "disk full")
}
