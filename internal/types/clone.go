package types

import "encoding/json"

// Clone returns a deep copy of the task. The reducer mutates only clones so
// that Apply stays a pure function of (snapshot, event).
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t

	if t.AssignedTo != nil {
		v := *t.AssignedTo
		out.AssignedTo = &v
	}
	if t.DoneAt != nil {
		v := *t.DoneAt
		out.DoneAt = &v
	}
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.RelationshipsOut != nil {
		out.RelationshipsOut = append([]Relationship(nil), t.RelationshipsOut...)
	}
	if t.EvidenceRefs != nil {
		out.EvidenceRefs = append([]EvidenceRef(nil), t.EvidenceRefs...)
	}
	if t.CustomFields != nil {
		out.CustomFields = cloneMap(t.CustomFields)
	}
	return &out
}

// cloneMap deep-copies arbitrary JSON-shaped values through a marshal
// roundtrip. Custom fields are small; clarity wins over speed here.
func cloneMap(m map[string]any) map[string]any {
	data, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
