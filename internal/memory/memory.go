// Package memory implements the associative memory store: content tagged
// with context and a kind, recalled by id, content, context, time range, or
// type, ranked by a weighted blend of context match, importance, and
// semantic similarity, and aged by exponential decay.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/graph"
	"github.com/agentfabric/knowledgefabric/internal/memory/embedder"
	"github.com/agentfabric/knowledgefabric/internal/memory/vector"
	"github.com/agentfabric/knowledgefabric/internal/types"
)

// LabelMemory is the node label backing every associative memory record.
const LabelMemory = "Memory"

// RelAssociatedWith links two memories that have been explicitly associated.
const RelAssociatedWith = "ASSOCIATED_WITH"

// Stats summarizes the memory store: counts, averages, and a per-kind
// histogram, mirroring the operational surface of get_memory_stats.
type Stats struct {
	TotalMemories       int
	AvgImportance       float64
	AvgAccessCount      float64
	OldestMemory        *time.Time
	NewestMemory        *time.Time
	LowImportanceCount  int
	MemoryKinds         map[types.MemoryKind]int
}

// AssociativeMemory is the store's entry point: a thin layer over a
// GraphClient, the same way repository.Base is, with an optional vector
// store and embedder backing the semantic similarity scoring term.
type AssociativeMemory struct {
	client   graph.GraphClient
	store    vector.VectorStore
	embedder embedder.Embedder
	weights  ScoreWeights
	decay    DecayConfig
}

// Option configures an AssociativeMemory at construction.
type Option func(*AssociativeMemory)

// WithVectorStore attaches a vector.VectorStore used for semantic similarity scoring.
func WithVectorStore(s vector.VectorStore) Option {
	return func(m *AssociativeMemory) { m.store = s }
}

// WithEmbedder attaches an embedder.Embedder used to embed content on Store.
func WithEmbedder(e embedder.Embedder) Option {
	return func(m *AssociativeMemory) { m.embedder = e }
}

// WithScoreWeights overrides the default recall scoring weights.
func WithScoreWeights(w ScoreWeights) Option {
	return func(m *AssociativeMemory) { m.weights = w }
}

// WithDecayConfig overrides the default decay configuration.
func WithDecayConfig(c DecayConfig) Option {
	return func(m *AssociativeMemory) { m.decay = c }
}

// New constructs an AssociativeMemory backed by client.
func New(client graph.GraphClient, opts ...Option) *AssociativeMemory {
	m := &AssociativeMemory{
		client:  client,
		weights: DefaultScoreWeights(),
		decay:   DefaultDecayConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store persists a new record and wires up any requested associations,
// mirroring store_memory: each association is created with an initial
// strength of 0.5.
func (m *AssociativeMemory) Store(ctx context.Context, rec *Record, associateWith ...types.ID) error {
	if rec.ID.IsZero() {
		rec.ID = types.NewID()
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	if m.embedder != nil && rec.Embedding == nil {
		vec, err := m.embedder.Embed(ctx, fmt.Sprint(rec.Content))
		if err != nil {
			return NewEmbeddingError("failed to embed memory content", err)
		}
		rec.Embedding = vec
	}

	props := recordToProps(rec)
	if _, err := m.client.CreateNode(ctx, LabelMemory, props); err != nil {
		return types.WrapError(types.ErrQuery, "memory: store failed", err)
	}

	if m.store != nil && rec.Embedding != nil {
		vr := vector.VectorRecord{ID: rec.ID.String(), Content: fmt.Sprint(rec.Content), Embedding: rec.Embedding}
		if err := m.store.Store(ctx, vr); err != nil {
			return NewVectorStoreError("failed to index memory embedding", err)
		}
	}

	for _, target := range associateWith {
		if err := m.Associate(ctx, rec.ID, target, 0.5); err != nil {
			return err
		}
	}
	return nil
}

// RecallByID fetches a single record by id, bumping its access bookkeeping.
func (m *AssociativeMemory) RecallByID(ctx context.Context, id types.ID) (*Record, error) {
	cypher := fmt.Sprintf("MATCH (m:%s {id: $id}) RETURN m", LabelMemory)
	result, err := m.client.Query(ctx, cypher, map[string]any{"id": id.String()})
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "memory: recall by id failed", err)
	}
	node, err := firstNode(result)
	if err != nil {
		return nil, NewMemoryNotFoundError(id.String())
	}
	rec := propsToRecord(node)
	m.touchAndPersist(ctx, rec)
	return rec, nil
}

// RecallByContent matches records whose content contains query, ordered by
// importance descending, mirroring recall_by_content's CONTAINS scan.
func (m *AssociativeMemory) RecallByContent(ctx context.Context, query string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	cypher := fmt.Sprintf(`
		MATCH (m:%s)
		WHERE m.content CONTAINS $query
		RETURN m
		ORDER BY m.importance DESC
		LIMIT $limit
	`, LabelMemory)
	result, err := m.client.Query(ctx, cypher, map[string]any{"query": query, "limit": limit})
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "memory: recall by content failed", err)
	}
	return m.nodesToRecords(ctx, result)
}

// RecallByContext scores candidate records by a weighted blend of context
// overlap, current importance, and (if an embedder/vector store is wired)
// semantic similarity to queryContent, returning the top results.
func (m *AssociativeMemory) RecallByContext(ctx context.Context, queryContext map[string]any, queryContent string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	cypher := fmt.Sprintf("MATCH (m:%s) RETURN m", LabelMemory)
	result, err := m.client.Query(ctx, cypher, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "memory: recall by context failed", err)
	}

	var queryVec []float64
	if m.embedder != nil && queryContent != "" {
		if v, err := m.embedder.Embed(ctx, queryContent); err == nil {
			queryVec = v
		}
	}

	now := time.Now().UTC()
	var results []Result
	for _, rawNode := range result.Records {
		node, ok := rawNode["m"].(map[string]any)
		if !ok {
			continue
		}
		rec := propsToRecord(node)
		score := m.weights.ContextWeight*contextOverlap(fmt.Sprint(node["context"]), queryContext) +
			m.weights.ImportanceWeight*currentImportance(rec, now, m.decay)
		if queryVec != nil && len(rec.Embedding) > 0 {
			score += m.weights.SemanticWeight * cosineSimilarity(rec.Embedding, queryVec)
		}
		results = append(results, Result{Record: *rec, Score: score})
	}
	sortResultsDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// RecallByTime returns records timestamped within [start, end], newest first.
func (m *AssociativeMemory) RecallByTime(ctx context.Context, start, end time.Time, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	cypher := fmt.Sprintf(`
		MATCH (m:%s)
		WHERE m.created_at >= $start AND m.created_at <= $end
		RETURN m
		ORDER BY m.created_at DESC
		LIMIT $limit
	`, LabelMemory)
	result, err := m.client.Query(ctx, cypher, map[string]any{"start": start, "end": end, "limit": limit})
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "memory: recall by time failed", err)
	}
	return m.nodesToRecords(ctx, result)
}

// RecallByKind returns records of the given kind, ordered by importance descending.
func (m *AssociativeMemory) RecallByKind(ctx context.Context, kind types.MemoryKind, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	cypher := fmt.Sprintf(`
		MATCH (m:%s {kind: $kind})
		RETURN m
		ORDER BY m.importance DESC
		LIMIT $limit
	`, LabelMemory)
	result, err := m.client.Query(ctx, cypher, map[string]any{"kind": string(kind), "limit": limit})
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "memory: recall by kind failed", err)
	}
	return m.nodesToRecords(ctx, result)
}

// RecallAssociations traverses ASSOCIATED_WITH edges up to depth hops from
// id, returning associated records ordered by hop distance then importance.
func (m *AssociativeMemory) RecallAssociations(ctx context.Context, id types.ID, depth int) ([]*Record, error) {
	if depth <= 0 {
		depth = 1
	}
	cypher := fmt.Sprintf(`
		MATCH (m:%s {id: $id})-[r:%s*1..%d]-(a:%s)
		RETURN a, min(length(r)) as distance
		ORDER BY distance, a.importance DESC
	`, LabelMemory, RelAssociatedWith, depth, LabelMemory)
	result, err := m.client.Query(ctx, cypher, map[string]any{"id": id.String()})
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "memory: recall associations failed", err)
	}
	var out []*Record
	for _, rec := range result.Records {
		node, ok := rec["a"].(map[string]any)
		if !ok {
			continue
		}
		r := propsToRecord(node)
		m.touchAndPersist(ctx, r)
		out = append(out, r)
	}
	return out, nil
}

// Associate creates or strengthens an ASSOCIATED_WITH edge between two
// memories, idempotently: a repeated call never lowers an edge's
// strength, it only raises it to max(existing, strength), so replaying
// the same association (or a weaker one) leaves the edge unchanged.
func (m *AssociativeMemory) Associate(ctx context.Context, sourceID, targetID types.ID, strength float64) error {
	cypher := fmt.Sprintf(`
		MERGE (s:%s {id: $source})
		MERGE (t:%s {id: $target})
		MERGE (s)-[r:%s]->(t)
		ON CREATE SET r.created_at = $now, r.strength = $strength
		ON MATCH SET r.strength = CASE WHEN r.strength > $strength THEN r.strength ELSE $strength END, r.updated_at = $now
	`, LabelMemory, LabelMemory, RelAssociatedWith)
	_, err := m.client.Query(ctx, cypher, map[string]any{
		"source":   sourceID.String(),
		"target":   targetID.String(),
		"strength": strength,
		"now":      time.Now().UTC(),
	})
	if err != nil {
		return types.WrapError(types.ErrQuery, "memory: associate failed", err)
	}
	return nil
}

// Decay applies exponential importance decay to every record, scaled by
// time since last access with a small frequency bonus for often-recalled
// memories, mirroring decay_memories. It never deletes records; pass
// autoPrune=true to additionally remove any record whose decayed
// importance falls below the configured threshold.
func (m *AssociativeMemory) Decay(ctx context.Context, now time.Time, autoPrune bool) (int, error) {
	cypher := fmt.Sprintf("MATCH (m:%s) RETURN m", LabelMemory)
	result, err := m.client.Query(ctx, cypher, nil)
	if err != nil {
		return 0, types.WrapError(types.ErrQuery, "memory: decay scan failed", err)
	}

	count := 0
	for _, raw := range result.Records {
		node, ok := raw["m"].(map[string]any)
		if !ok {
			continue
		}
		rec := propsToRecord(node)
		newImportance := currentImportance(rec, now, m.decay)
		if math.Abs(newImportance-rec.Importance) <= 0.01 {
			continue
		}
		rec.Importance = newImportance
		if err := m.updateImportance(ctx, rec.ID, newImportance); err != nil {
			return count, err
		}
		count++

		if autoPrune && newImportance < m.decay.ImportanceThreshold {
			if err := m.PruneBelow(ctx, rec.ID); err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

// PruneBelow removes a memory and all of its relationships by id,
// mirroring prune_memory's DETACH DELETE.
func (m *AssociativeMemory) PruneBelow(ctx context.Context, id types.ID) error {
	if err := m.client.DeleteNode(ctx, LabelMemory, id.String()); err != nil {
		return types.WrapError(types.ErrQuery, "memory: prune failed", err)
	}
	return nil
}

// Stats aggregates counts, averages, and a per-kind histogram over the
// whole store, mirroring get_memory_stats.
func (m *AssociativeMemory) Stats(ctx context.Context) (*Stats, error) {
	cypher := fmt.Sprintf("MATCH (m:%s) RETURN m", LabelMemory)
	result, err := m.client.Query(ctx, cypher, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrQuery, "memory: stats query failed", err)
	}

	stats := &Stats{MemoryKinds: map[types.MemoryKind]int{}}
	var importanceSum, accessSum float64
	for _, raw := range result.Records {
		node, ok := raw["m"].(map[string]any)
		if !ok {
			continue
		}
		rec := propsToRecord(node)
		stats.TotalMemories++
		importanceSum += rec.Importance
		accessSum += float64(rec.AccessCount)
		stats.MemoryKinds[rec.Kind]++
		if rec.Importance < m.decay.ImportanceThreshold {
			stats.LowImportanceCount++
		}
		if stats.OldestMemory == nil || rec.CreatedAt.Before(*stats.OldestMemory) {
			t := rec.CreatedAt
			stats.OldestMemory = &t
		}
		if stats.NewestMemory == nil || rec.CreatedAt.After(*stats.NewestMemory) {
			t := rec.CreatedAt
			stats.NewestMemory = &t
		}
	}
	if stats.TotalMemories > 0 {
		stats.AvgImportance = importanceSum / float64(stats.TotalMemories)
		stats.AvgAccessCount = accessSum / float64(stats.TotalMemories)
	}
	return stats, nil
}

func (m *AssociativeMemory) touchAndPersist(ctx context.Context, rec *Record) {
	rec.Touch(time.Now().UTC())
	cypher := fmt.Sprintf("MATCH (m:%s {id: $id}) SET m.last_accessed = $last_accessed, m.access_count = $access_count", LabelMemory)
	_, _ = m.client.Query(ctx, cypher, map[string]any{
		"id":            rec.ID.String(),
		"last_accessed": rec.LastAccessed,
		"access_count":  rec.AccessCount,
	})
}

func (m *AssociativeMemory) updateImportance(ctx context.Context, id types.ID, importance float64) error {
	cypher := fmt.Sprintf("MATCH (m:%s {id: $id}) SET m.importance = $importance", LabelMemory)
	_, err := m.client.Query(ctx, cypher, map[string]any{"id": id.String(), "importance": importance})
	if err != nil {
		return types.WrapError(types.ErrQuery, "memory: importance update failed", err)
	}
	return nil
}

func (m *AssociativeMemory) nodesToRecords(ctx context.Context, result *graph.QueryResult) ([]*Record, error) {
	var out []*Record
	for _, raw := range result.Records {
		node, ok := raw["m"].(map[string]any)
		if !ok {
			continue
		}
		rec := propsToRecord(node)
		m.touchAndPersist(ctx, rec)
		out = append(out, rec)
	}
	return out, nil
}

// currentImportance applies the same decay curve as Decay without
// persisting it, used to rank RecallByContext candidates by "importance
// right now" rather than their last-written value.
func currentImportance(rec *Record, now time.Time, cfg DecayConfig) float64 {
	timeSinceAccess := now.Sub(rec.LastAccessed).Seconds()
	decayFactor := math.Exp(-timeSinceAccess / (86400 * cfg.DecayFactor))
	accessBonus := math.Min(0.2, float64(rec.AccessCount)/100)
	value := rec.Importance*decayFactor + accessBonus
	return math.Max(0, math.Min(1, value))
}

// contextOverlap scores serializedContext against the query's context map,
// one point per query key normalized by the number of query keys: a key
// whose exact "key":value pairing appears in the serialized context scores
// 1, a key present whose value appears elsewhere in the context but not
// paired with it scores 0.5, and a key absent from the context entirely
// scores 0 (see contextKeyScore; a partial match on a value scores 0).
func contextOverlap(serializedContext string, want map[string]any) float64 {
	if len(want) == 0 {
		return 1
	}
	var total float64
	for k, v := range want {
		total += contextKeyScore(serializedContext, k, v)
	}
	return total / float64(len(want))
}

// contextKeyScore matches against the JSON-encoded form marshalField
// stores context as (e.g. `{"topic":"ops"}`): an encoded "key":value pair
// scores 1, the bare encoded value appearing anywhere else in the context
// scores 0.5, and a key whose name never appears scores 0.
func contextKeyScore(serializedContext string, key string, want any) float64 {
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return 0
	}
	if !strings.Contains(serializedContext, string(keyJSON)) {
		return 0
	}
	wantJSON, err := json.Marshal(want)
	if err != nil {
		return 0
	}
	if strings.Contains(serializedContext, string(keyJSON)+":"+string(wantJSON)) {
		return 1
	}
	if strings.Contains(serializedContext, string(wantJSON)) {
		return 0.5
	}
	return 0
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortResultsDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func recordToProps(rec *Record) map[string]any {
	return map[string]any{
		"id":            rec.ID.String(),
		"content":       marshalField(rec.Content),
		"context":       marshalField(rec.Context),
		"kind":          string(rec.Kind),
		"importance":    rec.Importance,
		"created_at":    rec.CreatedAt,
		"last_accessed": rec.LastAccessed,
		"access_count":  rec.AccessCount,
	}
}

// marshalField serializes a Content/Context map to JSON for storage, so
// propsToRecord can round-trip it back into structured data. Falls back to
// fmt.Sprint if the map somehow can't be marshaled (e.g. a non-serializable
// value was stuffed into it).
func marshalField(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// unmarshalField recovers a Content/Context map from its stored form.
// Records written before structured storage (or by a Store call that hit
// the fmt.Sprint fallback above) aren't valid JSON; those are preserved
// under a "raw" key rather than discarded.
func unmarshalField(stored any) map[string]any {
	s, ok := stored.(string)
	if !ok {
		return map[string]any{"raw": stored}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]any{"raw": s}
	}
	return m
}

func propsToRecord(node map[string]any) *Record {
	rec := &Record{}
	if v, ok := node["id"].(string); ok {
		if id, err := types.ParseID(v); err == nil {
			rec.ID = id
		}
	}
	rec.Content = unmarshalField(node["content"])
	rec.Context = unmarshalField(node["context"])
	if v, ok := node["kind"].(string); ok {
		rec.Kind = types.MemoryKind(v)
	}
	if v, ok := node["importance"].(float64); ok {
		rec.Importance = v
	}
	if v, ok := node["created_at"].(time.Time); ok {
		rec.CreatedAt = v
	}
	if v, ok := node["last_accessed"].(time.Time); ok {
		rec.LastAccessed = v
	}
	if v, ok := node["access_count"].(int); ok {
		rec.AccessCount = v
	}
	return rec
}

func firstNode(result *graph.QueryResult) (map[string]any, error) {
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("no records returned")
	}
	node, ok := result.Records[0]["m"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record missing node")
	}
	return node, nil
}
