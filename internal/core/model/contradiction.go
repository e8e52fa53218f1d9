package model

import "time"

type ContradictionStatus string

const (
	StatusUnresolved ContradictionStatus = "unresolved"
	StatusResolved   ContradictionStatus = "resolved"
	StatusDismissed  ContradictionStatus = "dismissed"
)

func (s ContradictionStatus) Valid() bool {
	return s == StatusUnresolved || s == StatusResolved || s == StatusDismissed
}

// Terminal states accept no further transitions.
func (s ContradictionStatus) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

type Contradiction struct {
	ID               string              `json:"id"`
	NoteAID          string              `json:"note_a_id"`
	NoteBID          string              `json:"note_b_id"`
	NoteAVersion     int                 `json:"note_a_version"`
	NoteBVersion     int                 `json:"note_b_version"`
	UserIDs          []string            `json:"user_ids"`
	Description      string              `json:"description"`
	Score            float64             `json:"score"`
	TopicScore       float64             `json:"topic_score"`
	Status           ContradictionStatus `json:"status"`
	Revision         int                 `json:"revision"`
	ResolutionNoteID string              `json:"resolution_note_id,omitempty"`
	DetectedAt       time.Time           `json:"detected_at"`
	ResolvedAt       *time.Time          `json:"resolved_at,omitempty"`
	Audit            []AuditEntry        `json:"audit"`
}

type AuditEntry struct {
	Actor  string              `json:"actor"`
	At     time.Time           `json:"at"`
	From   ContradictionStatus `json:"from"`
	To     ContradictionStatus `json:"to"`
	Reason string              `json:"reason,omitempty"`
}

// InvolvesUser reports whether userID owns one of the two notes.
func (c *Contradiction) InvolvesUser(userID string) bool {
	for _, u := range c.UserIDs {
		if u == userID {
			return true
		}
	}
	return false
}

// VersionOf returns the version noteID was scored at, 0 if not part of the pair.
func (c *Contradiction) VersionOf(noteID string) int {
	switch noteID {
	case c.NoteAID:
		return c.NoteAVersion
	case c.NoteBID:
		return c.NoteBVersion
	}
	return 0
}

// OrderedPair returns the two ids in canonical order (a < b).
func OrderedPair(x, y string) (string, string) {
	if y < x {
		return y, x
	}
	return x, y
}

type ContradictionQuery struct {
	UserID string
	Status ContradictionStatus
	NoteID string
}

func (q ContradictionQuery) Matches(c *Contradiction) bool {
	if q.UserID != "" && !c.InvolvesUser(q.UserID) {
		return false
	}
	if q.Status != "" && c.Status != q.Status {
		return false
	}
	if q.NoteID != "" && c.NoteAID != q.NoteID && c.NoteBID != q.NoteID {
		return false
	}
	return true
}
