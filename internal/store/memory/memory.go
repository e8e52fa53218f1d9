// Package memory is an in-process implementation of the store contracts,
// used for tests and single-node runs without a graph database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	notes          map[string]*model.Note
	versions       map[string][]model.NoteVersion
	edges          map[string]*model.Edge
	edgeKeys       map[model.EdgeKey]string
	adjacency      map[string]map[string]struct{} // note id -> edge ids
	contradictions map[string]*model.Contradiction
}

func New() *Store {
	return &Store{
		notes:          make(map[string]*model.Note),
		versions:       make(map[string][]model.NoteVersion),
		edges:          make(map[string]*model.Edge),
		edgeKeys:       make(map[model.EdgeKey]string),
		adjacency:      make(map[string]map[string]struct{}),
		contradictions: make(map[string]*model.Contradiction),
	}
}

func (s *Store) Notes() store.NoteRepository                   { return s }
func (s *Store) Edges() store.EdgeRepository                   { return s }
func (s *Store) Contradictions() store.ContradictionRepository { return s }
func (s *Store) Close(context.Context) error                   { return nil }

func copyNote(n *model.Note) *model.Note {
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	return &c
}

func copyContradiction(c *model.Contradiction) *model.Contradiction {
	out := *c
	out.UserIDs = append([]string(nil), c.UserIDs...)
	out.Audit = append([]model.AuditEntry(nil), c.Audit...)
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}

// Notes

func (s *Store) CreateNote(_ context.Context, note *model.Note, first model.NoteVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[note.ID]; ok {
		return store.ErrDuplicate
	}
	s.notes[note.ID] = copyNote(note)
	s.versions[note.ID] = []model.NoteVersion{first}
	return nil
}

func (s *Store) GetNote(_ context.Context, id string) (*model.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyNote(n), nil
}

func (s *Store) ListNotes(_ context.Context, q model.NoteQuery) ([]*model.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Note
	for _, n := range s.notes {
		if q.Matches(n) {
			out = append(out, copyNote(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) AppendVersion(_ context.Context, note *model.Note, v model.NoteVersion, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.notes[note.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	s.notes[note.ID] = copyNote(note)
	s.versions[note.ID] = append(s.versions[note.ID], v)
	return nil
}

func (s *Store) History(_ context.Context, noteID string) ([]model.NoteVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.versions[noteID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]model.NoteVersion(nil), versions...), nil
}

func (s *Store) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return store.ErrNotFound
	}
	for edgeID := range s.adjacency[id] {
		s.removeEdgeLocked(edgeID)
	}
	for cid, c := range s.contradictions {
		if c.NoteAID == id || c.NoteBID == id {
			delete(s.contradictions, cid)
		}
	}
	delete(s.adjacency, id)
	delete(s.versions, id)
	delete(s.notes, id)
	return nil
}

func (s *Store) SetDetectionStatus(_ context.Context, id string, version int, status model.DetectionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if version != 0 && n.Version != version {
		return false, nil
	}
	n.DetectionStatus = status
	return true, nil
}

func (s *Store) ListByDetectionStatus(_ context.Context, status model.DetectionStatus, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, n := range s.notes {
		if n.DetectionStatus == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Edges

func (s *Store) CreateEdge(_ context.Context, e *model.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[e.SourceNoteID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.notes[e.TargetNoteID]; !ok {
		return store.ErrNotFound
	}
	key := e.Key()
	if _, ok := s.edgeKeys[key]; ok {
		return store.ErrDuplicate
	}

	stored := *e
	s.edges[e.ID] = &stored
	s.edgeKeys[key] = e.ID
	s.link(e.SourceNoteID, e.ID)
	s.link(e.TargetNoteID, e.ID)
	return nil
}

func (s *Store) link(noteID, edgeID string) {
	set, ok := s.adjacency[noteID]
	if !ok {
		set = make(map[string]struct{})
		s.adjacency[noteID] = set
	}
	set[edgeID] = struct{}{}
}

func (s *Store) GetEdge(_ context.Context, id string) (*model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (s *Store) DeleteEdge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return store.ErrNotFound
	}
	s.removeEdgeLocked(id)
	return nil
}

func (s *Store) removeEdgeLocked(id string) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	delete(s.edgeKeys, e.Key())
	delete(s.adjacency[e.SourceNoteID], id)
	delete(s.adjacency[e.TargetNoteID], id)
	delete(s.edges, id)
}

func (s *Store) Neighbors(_ context.Context, noteID string, types []model.EdgeType) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Edge
	for edgeID := range s.adjacency[noteID] {
		e := s.edges[edgeID]
		if len(types) > 0 && !containsType(types, e.Type) {
			continue
		}
		out = append(out, *e)
	}
	sortEdges(out)
	return out, nil
}

func (s *Store) UserEdges(_ context.Context, userID string) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Edge
	for _, e := range s.edges {
		src, tgt := s.notes[e.SourceNoteID], s.notes[e.TargetNoteID]
		if src.UserID == userID && tgt.UserID == userID {
			out = append(out, *e)
		}
	}
	sortEdges(out)
	return out, nil
}

func containsType(types []model.EdgeType, t model.EdgeType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func sortEdges(edges []model.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].ID < edges[j].ID
		}
		return edges[i].CreatedAt.Before(edges[j].CreatedAt)
	})
}

// Contradictions

func (s *Store) CreateContradiction(_ context.Context, c *model.Contradiction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[c.NoteAID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.notes[c.NoteBID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range s.contradictions {
		if existing.NoteAID == c.NoteAID && existing.NoteBID == c.NoteBID && existing.Status == model.StatusUnresolved {
			return store.ErrDuplicate
		}
	}
	s.contradictions[c.ID] = copyContradiction(c)
	return nil
}

func (s *Store) GetContradiction(_ context.Context, id string) (*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contradictions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyContradiction(c), nil
}

func (s *Store) FindByPair(_ context.Context, noteAID, noteBID string) ([]*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Contradiction
	for _, c := range s.contradictions {
		if c.NoteAID == noteAID && c.NoteBID == noteBID {
			out = append(out, copyContradiction(c))
		}
	}
	sortContradictions(out)
	return out, nil
}

func (s *Store) UpdateContradiction(_ context.Context, c *model.Contradiction, expectedRevision int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.contradictions[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Revision != expectedRevision {
		return store.ErrRevisionConflict
	}
	c.Revision = expectedRevision + 1
	s.contradictions[c.ID] = copyContradiction(c)
	return nil
}

func (s *Store) ListContradictions(_ context.Context, q model.ContradictionQuery) ([]*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Contradiction
	for _, c := range s.contradictions {
		if q.Matches(c) {
			out = append(out, copyContradiction(c))
		}
	}
	sortContradictions(out)
	return out, nil
}

func sortContradictions(cs []*model.Contradiction) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].DetectedAt.Equal(cs[j].DetectedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].DetectedAt.After(cs[j].DetectedAt)
	})
}
