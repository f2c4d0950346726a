package embedder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeEmbedder_CreateNativeEmbedder(t *testing.T) {
	// Test successful initialization
	emb, err := CreateNativeEmbedder()

	// Skip test if the error reports an unsupported tokenizer class
	if err != nil && strings.Contains(err.Error(), "unknown tokenizer class") {
		t.Skip("tokenizer class not supported")
	}

	require.NoError(t, err, "native embedder should initialize successfully")
	require.NotNil(t, emb, "embedder should not be nil")

	// Verify embedder properties
	assert.Equal(t, 384, emb.Dimensions(), "MiniLM-L6-v2 should have 384 dimensions")
	assert.Equal(t, "all-MiniLM-L6-v2", emb.Model(), "model name should be all-MiniLM-L6-v2")
}

func TestNativeEmbedder_Embed(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err, "failed to create embedder")

	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		wantErr  bool
		checkLen bool
	}{
		{
			name:     "simple text",
			text:     "hello world",
			wantErr:  false,
			checkLen: true,
		},
		{
			name:     "longer text",
			text:     "The quick brown fox jumps over the lazy dog. This is a longer sentence for testing embeddings.",
			wantErr:  false,
			checkLen: true,
		},
		{
			name:     "empty text",
			text:     "",
			wantErr:  false,
			checkLen: true,
		},
		{
			name:     "special characters",
			text:     "Test with special chars: @#$%^&*()",
			wantErr:  false,
			checkLen: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedding, err := emb.Embed(ctx, tt.text)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.checkLen {
				assert.Equal(t, 384, len(embedding), "embedding should have 384 dimensions")
			}

			// Check that embedding values are valid float64s
			for i, val := range embedding {
				assert.False(t, isNaN(val), "embedding[%d] should not be NaN", i)
				assert.False(t, isInf(val), "embedding[%d] should not be Inf", i)
			}
		})
	}
}

func TestNativeEmbedder_Embed_Deterministic(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err)

	ctx := context.Background()
	text := "deterministic test"

	// Generate embedding twice
	embedding1, err1 := emb.Embed(ctx, text)
	require.NoError(t, err1)

	embedding2, err2 := emb.Embed(ctx, text)
	require.NoError(t, err2)

	// Embeddings should be identical for the same text
	require.Equal(t, len(embedding1), len(embedding2))
	for i := range embedding1 {
		assert.InDelta(t, embedding1[i], embedding2[i], 0.0001,
			"embedding values should be deterministic")
	}
}

func TestNativeEmbedder_Embed_Semantic(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err)

	ctx := context.Background()

	// Generate embeddings for semantically similar and dissimilar texts
	similar1, err := emb.Embed(ctx, "cat sitting on mat")
	require.NoError(t, err)

	similar2, err := emb.Embed(ctx, "feline resting on rug")
	require.NoError(t, err)

	dissimilar, err := emb.Embed(ctx, "database security vulnerability")
	require.NoError(t, err)

	// Calculate cosine similarity
	simScore := cosineSimilarity(similar1, similar2)
	dissimScore := cosineSimilarity(similar1, dissimilar)

	// Semantically similar texts should have higher similarity
	assert.Greater(t, simScore, dissimScore,
		"similar texts should have higher cosine similarity than dissimilar texts")
}

func TestNativeEmbedder_EmbedBatch(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err)

	ctx := context.Background()

	texts := []string{
		"first text",
		"second text",
		"third text",
	}

	embeddings, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Equal(t, len(texts), len(embeddings))

	// Check each embedding
	for i, embedding := range embeddings {
		assert.Equal(t, 384, len(embedding),
			"embedding %d should have 384 dimensions", i)
	}
}

func TestNativeEmbedder_EmbedBatch_Empty(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err)

	ctx := context.Background()

	embeddings, err := emb.EmbedBatch(ctx, []string{})
	require.NoError(t, err)
	assert.Empty(t, embeddings)
}

func TestNativeEmbedder_EmbedBatch_CanceledContext(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	texts := []string{"test"}
	_, err = emb.EmbedBatch(ctx, texts)
	assert.Error(t, err, "should fail with canceled context")
}

func TestNativeEmbedder_Health(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err)

	ctx := context.Background()

	status := emb.Health(ctx)
	// Expect healthy status now that implementation is complete
	assert.True(t, status.IsHealthy(), "embedder should report healthy status")
	assert.Contains(t, status.Message, "operational",
		"health message should indicate embedder is operational")
}

func TestNativeEmbedder_ThreadSafety(t *testing.T) {
	emb, err := CreateNativeEmbedder()
	require.NoError(t, err)

	ctx := context.Background()

	// Run multiple goroutines concurrently
	const numGoroutines = 10
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer func() { done <- true }()

			text := "concurrent test"
			_, err := emb.Embed(ctx, text)
			assert.NoError(t, err, "concurrent embedding should succeed")
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < numGoroutines; i++ {
		<-done
	}
}

// Helper functions

func isNaN(f float64) bool {
	return f != f
}

func isInf(f float64) bool {
	return f > maxFloat64 || f < -maxFloat64
}

const maxFloat64 = 1.7976931348623157e+308

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (sqrt(normA) * sqrt(normB))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}
