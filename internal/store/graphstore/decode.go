package graphstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/notegraph/internal/core/model"
)

// Timestamps are stored as RFC 3339 strings so the same data works on
// Neo4j and Memgraph.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}

func str(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func integer(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func float(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func stringList(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func nodeProps(rec *neo4j.Record, key string) (map[string]any, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no column %q", key)
	}
	switch v := raw.(type) {
	case neo4j.Node:
		return v.Props, nil
	case map[string]any:
		return v, nil
	}
	return nil, fmt.Errorf("column %q is %T, not a node", key, raw)
}

func relProps(rec *neo4j.Record, key string) (map[string]any, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no column %q", key)
	}
	switch v := raw.(type) {
	case neo4j.Relationship:
		return v.Props, nil
	case map[string]any:
		return v, nil
	}
	return nil, fmt.Errorf("column %q is %T, not a relationship", key, raw)
}

func recordString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recordInt(rec *neo4j.Record, key string) int {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func decodeNote(p map[string]any) *model.Note {
	return &model.Note{
		ID:              str(p, "id"),
		UserID:          str(p, "user_id"),
		Title:           str(p, "title"),
		Body:            str(p, "body"),
		Category:        str(p, "category"),
		Tags:            stringList(p, "tags"),
		Visibility:      model.Visibility(str(p, "visibility")),
		Version:         integer(p, "version"),
		DetectionStatus: model.DetectionStatus(str(p, "detection_status")),
		CreatedAt:       parseTime(p["created_at"]),
		UpdatedAt:       parseTime(p["updated_at"]),
	}
}

func decodeVersion(p map[string]any) model.NoteVersion {
	return model.NoteVersion{
		NoteID:        str(p, "note_id"),
		Version:       integer(p, "version"),
		Title:         str(p, "title"),
		Body:          str(p, "body"),
		Category:      str(p, "category"),
		Tags:          stringList(p, "tags"),
		Visibility:    model.Visibility(str(p, "visibility")),
		ChangeSummary: str(p, "change_summary"),
		CreatedAt:     parseTime(p["created_at"]),
	}
}

func decodeEdge(rec *neo4j.Record) (model.Edge, error) {
	p, err := relProps(rec, "e")
	if err != nil {
		return model.Edge{}, err
	}
	return model.Edge{
		ID:           str(p, "id"),
		SourceNoteID: recordString(rec, "source_id"),
		TargetNoteID: recordString(rec, "target_id"),
		Type:         model.EdgeType(str(p, "type")),
		Strength:     float(p, "strength"),
		CreatedAt:    parseTime(p["created_at"]),
	}, nil
}

func decodeContradiction(p map[string]any) (*model.Contradiction, error) {
	c := &model.Contradiction{
		ID:               str(p, "id"),
		NoteAID:          str(p, "note_a_id"),
		NoteBID:          str(p, "note_b_id"),
		NoteAVersion:     integer(p, "note_a_version"),
		NoteBVersion:     integer(p, "note_b_version"),
		UserIDs:          stringList(p, "user_ids"),
		Description:      str(p, "description"),
		Score:            float(p, "score"),
		TopicScore:       float(p, "topic_score"),
		Status:           model.ContradictionStatus(str(p, "status")),
		Revision:         integer(p, "revision"),
		ResolutionNoteID: str(p, "resolution_note_id"),
		DetectedAt:       parseTime(p["detected_at"]),
	}
	if raw := str(p, "resolved_at"); raw != "" {
		at := parseTime(raw)
		c.ResolvedAt = &at
	}
	if raw := str(p, "audit"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Audit); err != nil {
			return nil, fmt.Errorf("failed to decode audit trail of %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// contradictionProps flattens a contradiction into node properties. The
// audit trail is kept as a JSON string property.
func contradictionProps(c *model.Contradiction) (map[string]any, error) {
	audit, err := json.Marshal(c.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit trail: %w", err)
	}
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = formatTime(*c.ResolvedAt)
	}
	return map[string]any{
		"id":                 c.ID,
		"note_a_id":          c.NoteAID,
		"note_b_id":          c.NoteBID,
		"note_a_version":     c.NoteAVersion,
		"note_b_version":     c.NoteBVersion,
		"user_ids":           c.UserIDs,
		"description":        c.Description,
		"score":              c.Score,
		"topic_score":        c.TopicScore,
		"status":             string(c.Status),
		"revision":           c.Revision,
		"resolution_note_id": c.ResolutionNoteID,
		"detected_at":        formatTime(c.DetectedAt),
		"resolved_at":        resolvedAt,
		"audit":              string(audit),
	}, nil
}
