package model

import "time"

type EdgeType string

const (
	EdgeRelated       EdgeType = "related"
	EdgeContradiction EdgeType = "contradiction"
	EdgeExtension     EdgeType = "extension"
	EdgeAISuggested   EdgeType = "ai_suggested"
	EdgeCategory      EdgeType = "category"
)

var EdgeTypes = []EdgeType{EdgeRelated, EdgeContradiction, EdgeExtension, EdgeAISuggested, EdgeCategory}

func (t EdgeType) Valid() bool {
	for _, et := range EdgeTypes {
		if t == et {
			return true
		}
	}
	return false
}

// Directed reports whether the source/target order carries meaning.
// Only extension edges are directed.
func (t EdgeType) Directed() bool {
	return t == EdgeExtension
}

type Edge struct {
	ID           string    `json:"id"`
	SourceNoteID string    `json:"source_note_id"`
	TargetNoteID string    `json:"target_note_id"`
	Type         EdgeType  `json:"type"`
	Strength     float64   `json:"strength"`
	CreatedAt    time.Time `json:"created_at"`
}

// Key identifies the edge for duplicate detection. Undirected edges use the
// ordered pair so that A-B and B-A collide.
func (e *Edge) Key() EdgeKey {
	return MakeEdgeKey(e.SourceNoteID, e.TargetNoteID, e.Type)
}

// Touches reports whether the edge has noteID as one of its endpoints.
func (e *Edge) Touches(noteID string) bool {
	return e.SourceNoteID == noteID || e.TargetNoteID == noteID
}

// Other returns the endpoint opposite to noteID.
func (e *Edge) Other(noteID string) string {
	if e.SourceNoteID == noteID {
		return e.TargetNoteID
	}
	return e.SourceNoteID
}

type EdgeKey struct {
	A, B string
	Type EdgeType
}

func MakeEdgeKey(source, target string, t EdgeType) EdgeKey {
	if !t.Directed() && target < source {
		source, target = target, source
	}
	return EdgeKey{A: source, B: target, Type: t}
}
