package dkm

import "time"

// mergeProperties applies last-writer-wins conflict resolution between an
// incoming node's properties and an existing node's properties, keyed by
// the "updated_at" timestamp on each side, mirroring
// _update_shared_node/_update_individual_node. Key properties (used only
// for matching) and layer/ownership bookkeeping fields are never merged.
func mergeProperties(incoming, existing map[string]any, keyProps []string) map[string]any {
	skip := map[string]bool{"layer": true, "owner": true}
	for _, k := range keyProps {
		skip[k] = true
	}

	merged := map[string]any{}
	incomingUpdated, hasIncoming := asTime(incoming["updated_at"])
	existingUpdated, hasExisting := asTime(existing["updated_at"])

	for k, v := range incoming {
		if skip[k] {
			continue
		}
		if _, conflict := existing[k]; !conflict {
			merged[k] = v
			continue
		}
		if hasIncoming && hasExisting {
			if incomingUpdated.After(existingUpdated) {
				merged[k] = v
			}
			continue
		}
		// No comparable timestamp on both sides: default to the incoming
		// value, matching the Python fallback branch.
		merged[k] = v
	}
	return merged
}

func asTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// stampProvenance records where a promoted/demoted node's data originated,
// mirroring dual_knowledge.py's source_agent/original_source bookkeeping:
// sourceKG is the layer this copy now lives in, originalSourceKG names
// where the data was first authored: the authoring owner's id, or a layer
// when the source node has no owner (preserved across re-syncs).
func stampProvenance(props map[string]any, sourceKG, originalSourceKG string) {
	props["source_kg"] = sourceKG
	if _, exists := props["original_source_kg"]; !exists {
		props["original_source_kg"] = originalSourceKG
	}
}
