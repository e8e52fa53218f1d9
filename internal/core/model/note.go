package model

import (
	"sort"
	"strings"
	"time"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// DetectionStatus tracks whether the contradiction detector has processed the
// note's current version.
type DetectionStatus string

const (
	DetectionPending DetectionStatus = "pending"
	DetectionDone    DetectionStatus = "done"
	DetectionSkipped DetectionStatus = "skipped"
)

type Note struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	Category        string          `json:"category,omitempty"`
	Tags            []string        `json:"tags"`
	Visibility      Visibility      `json:"visibility"`
	Version         int             `json:"version"`
	DetectionStatus DetectionStatus `json:"detection_status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// VisibleTo reports whether userID may read the note.
func (n *Note) VisibleTo(userID string) bool {
	return n.UserID == userID || n.Visibility == VisibilityPublic
}

// Snapshot returns the note content as a version record.
func (n *Note) Snapshot(changeSummary string, at time.Time) NoteVersion {
	return NoteVersion{
		NoteID:        n.ID,
		Version:       n.Version,
		Title:         n.Title,
		Body:          n.Body,
		Category:      n.Category,
		Tags:          append([]string(nil), n.Tags...),
		Visibility:    n.Visibility,
		ChangeSummary: changeSummary,
		CreatedAt:     at,
	}
}

// Text is the content used for claim extraction.
func (n *Note) Text() string {
	if n.Title == "" {
		return n.Body
	}
	return n.Title + ".\n" + n.Body
}

// NoteVersion is an immutable snapshot of a note.
type NoteVersion struct {
	NoteID        string     `json:"note_id"`
	Version       int        `json:"version"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Category      string     `json:"category,omitempty"`
	Tags          []string   `json:"tags"`
	Visibility    Visibility `json:"visibility"`
	ChangeSummary string     `json:"change_summary,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NoteQuery filters note listings. Empty fields match everything.
type NoteQuery struct {
	UserID   string
	Category string
	Tag      string
	// IncludePublic also returns other users' public notes.
	IncludePublic bool
	Limit         int
}

func (q NoteQuery) Matches(n *Note) bool {
	if q.UserID != "" && n.UserID != q.UserID {
		if !q.IncludePublic || n.Visibility != VisibilityPublic {
			return false
		}
	}
	if q.Category != "" && n.Category != q.Category {
		return false
	}
	if q.Tag != "" && !n.HasTag(q.Tag) {
		return false
	}
	return true
}

func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SharesTopic reports whether two notes share a tag or a category.
func (n *Note) SharesTopic(other *Note) bool {
	if n.Category != "" && n.Category == other.Category {
		return true
	}
	for _, t := range n.Tags {
		if other.HasTag(t) {
			return true
		}
	}
	return false
}

// NormalizeTags trims, lowercases, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
