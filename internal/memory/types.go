package memory

import (
	"time"

	"github.com/agentfabric/knowledgefabric/internal/types"
)

// Record is a single entry in the associative memory store: content tagged
// with context, a kind (episodic/semantic/working/procedural), an
// importance score, and access bookkeeping used by scoring and decay.
type Record struct {
	ID          types.ID         `json:"id"`
	Content     map[string]any   `json:"content"`
	Context     map[string]any   `json:"context"`
	Kind        types.MemoryKind `json:"kind"`
	Importance  float64          `json:"importance"`
	Embedding   []float64        `json:"embedding,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	LastAccessed time.Time       `json:"last_accessed"`
	AccessCount int              `json:"access_count"`
	Associations []types.ID      `json:"associations,omitempty"`
}

// NewRecord creates a Record with sensible defaults: importance 0.5 if
// unset, LastAccessed equal to the creation time, and a fresh ID.
func NewRecord(content, context map[string]any, kind types.MemoryKind, importance float64) *Record {
	now := time.Now().UTC()
	if importance == 0 {
		importance = 0.5
	}
	return &Record{
		ID:           types.NewID(),
		Content:      content,
		Context:      context,
		Kind:         kind,
		Importance:   importance,
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// Validate checks that the record carries the minimum fields required for storage.
func (r *Record) Validate() error {
	if r.Content == nil {
		return types.NewError(types.ErrValidation, "memory: content cannot be nil")
	}
	if !r.Kind.IsValid() {
		return types.NewError(types.ErrValidation, "memory: invalid kind")
	}
	if r.Importance < 0 || r.Importance > 1 {
		return types.NewError(types.ErrValidation, "memory: importance must be in [0,1]")
	}
	return nil
}

// Touch records an access: bumps AccessCount and refreshes LastAccessed.
func (r *Record) Touch(now time.Time) {
	r.LastAccessed = now
	r.AccessCount++
}

// Result pairs a recalled Record with the relevance score that ranked it.
type Result struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// ScoreWeights controls how Recall ranks candidate records:
// score = ContextWeight*contextMatch + ImportanceWeight*importance(now) + SemanticWeight*semanticSimilarity.
type ScoreWeights struct {
	ContextWeight    float64 `mapstructure:"context_weight" yaml:"context_weight" validate:"min=0,max=1"`
	ImportanceWeight float64 `mapstructure:"importance_weight" yaml:"importance_weight" validate:"min=0,max=1"`
	SemanticWeight   float64 `mapstructure:"semantic_weight" yaml:"semantic_weight" validate:"min=0,max=1"`
}

// DefaultScoreWeights matches the fabric's default scoring configuration
// (α=0.4 context, β=0.3 importance, γ=0.3 semantic).
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{ContextWeight: 0.4, ImportanceWeight: 0.3, SemanticWeight: 0.3}
}

// DecayConfig controls exponential importance decay.
type DecayConfig struct {
	DecayFactor         float64 `mapstructure:"decay_factor" yaml:"decay_factor" validate:"min=0"` // larger = slower decay
	ImportanceThreshold float64 `mapstructure:"importance_threshold" yaml:"importance_threshold" validate:"min=0,max=1"` // Decay with autoPrune removes records below this
}

// DefaultDecayConfig matches the fabric's default decay configuration: a
// decay factor of 0.85 days, so importance untouched for one day keeps
// exp(-1/0.85) ≈ 31% of its value before the access bonus, and a 0.3
// importance threshold.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{DecayFactor: 0.85, ImportanceThreshold: 0.3}
}

// MemoryConfig groups the associative memory's tunables so they can be
// loaded from the same Config tree as everything else, rather than only
// being reachable as Go-level constructor Options.
type MemoryConfig struct {
	Weights ScoreWeights `mapstructure:"weights" yaml:"weights"`
	Decay   DecayConfig  `mapstructure:"decay" yaml:"decay"`
}

// DefaultMemoryConfig returns the fabric's default memory tunables.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{Weights: DefaultScoreWeights(), Decay: DefaultDecayConfig()}
}
