// Package graphstore implements the store contracts on a bolt graph
// database (Neo4j or Memgraph) through driver.GraphDriver.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/driver"
	"github.com/agenthands/notegraph/internal/store"
)

const listLimit = 10000

// RetryConfig bounds the retries of read queries that failed with a
// transient error after the driver's own transaction retries.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.1,
	}
}

type Store struct {
	Driver driver.GraphDriver

	retry  RetryConfig
	randMu sync.Mutex
	rand   *rand.Rand
	// sleep waits between retries; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Store)

func WithRetry(cfg RetryConfig) Option {
	return func(s *Store) { s.retry = cfg }
}

func New(d driver.GraphDriver, opts ...Option) *Store {
	s := &Store{
		Driver: d,
		retry:  DefaultRetryConfig(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Notes() store.NoteRepository                   { return s }
func (s *Store) Edges() store.EdgeRepository                   { return s }
func (s *Store) Contradictions() store.ContradictionRepository { return s }

func (s *Store) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}

// run executes query once and classifies driver failures. Writes go through
// run only: they are conditional, so a replay after a lost acknowledgement
// would report a conflict for a write that succeeded.
func (s *Store) run(ctx context.Context, op, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	res, err := s.Driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		if driver.IsTransient(err) {
			return res, fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
		}
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// read runs an idempotent query, retrying transient failures with
// exponential backoff and jitter.
func (s *Store) read(ctx context.Context, op, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	for attempt := 0; ; attempt++ {
		res, err := s.run(ctx, op, query, params)
		if err == nil || !errors.Is(err, store.ErrUnavailable) || attempt >= s.retry.MaxRetries {
			return res, err
		}
		if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
	}
}

func (s *Store) backoff(attempt int) time.Duration {
	d := s.retry.InitialDelay << attempt
	if d > s.retry.MaxDelay || d <= 0 {
		d = s.retry.MaxDelay
	}
	if s.retry.JitterFactor > 0 {
		s.randMu.Lock()
		j := (s.rand.Float64()*2 - 1) * s.retry.JitterFactor
		s.randMu.Unlock()
		d = time.Duration(float64(d) * (1 + j))
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Notes

func (s *Store) CreateNote(ctx context.Context, note *model.Note, first model.NoteVersion) error {
	params := map[string]interface{}{
		"id":               note.ID,
		"user_id":          note.UserID,
		"title":            note.Title,
		"body":             note.Body,
		"category":         note.Category,
		"tags":             note.Tags,
		"visibility":       string(note.Visibility),
		"detection_status": string(note.DetectionStatus),
		"change_summary":   first.ChangeSummary,
		"created_at":       formatTime(note.CreatedAt),
		"updated_at":       formatTime(note.UpdatedAt),
	}
	_, err := s.run(ctx, "create note", driver.CreateNoteQuery, params)
	if driver.IsConstraintViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) GetNote(ctx context.Context, id string) (*model.Note, error) {
	res, err := s.read(ctx, "get note", driver.GetNoteQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, store.ErrNotFound
	}
	props, err := nodeProps(res.Records[0], "n")
	if err != nil {
		return nil, err
	}
	return decodeNote(props), nil
}

func (s *Store) ListNotes(ctx context.Context, q model.NoteQuery) ([]*model.Note, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = listLimit
	}
	params := map[string]interface{}{
		"user_id":        q.UserID,
		"include_public": q.IncludePublic,
		"category":       q.Category,
		"tag":            q.Tag,
		"limit":          limit,
	}
	res, err := s.read(ctx, "list notes", driver.ListNotesQuery, params)
	if err != nil {
		return nil, err
	}

	notes := make([]*model.Note, 0, len(res.Records))
	for _, rec := range res.Records {
		props, err := nodeProps(rec, "n")
		if err != nil {
			return nil, err
		}
		notes = append(notes, decodeNote(props))
	}
	return notes, nil
}

func (s *Store) AppendVersion(ctx context.Context, note *model.Note, v model.NoteVersion, expectedVersion int) error {
	params := map[string]interface{}{
		"id":               note.ID,
		"expected_version": expectedVersion,
		"title":            note.Title,
		"body":             note.Body,
		"category":         note.Category,
		"tags":             note.Tags,
		"visibility":       string(note.Visibility),
		"detection_status": string(note.DetectionStatus),
		"change_summary":   v.ChangeSummary,
		"updated_at":       formatTime(note.UpdatedAt),
	}
	res, err := s.run(ctx, "append version", driver.AppendVersionQuery, params)
	if driver.IsConstraintViolation(err) {
		return store.ErrVersionConflict
	}
	if err != nil {
		return err
	}
	if len(res.Records) > 0 {
		return nil
	}

	// No row: either the note is gone or its version moved on.
	if _, err := s.GetNote(ctx, note.ID); err != nil {
		return err
	}
	return store.ErrVersionConflict
}

func (s *Store) History(ctx context.Context, noteID string) ([]model.NoteVersion, error) {
	res, err := s.read(ctx, "get history", driver.GetHistoryQuery, map[string]interface{}{"id": noteID})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		// Every stored note has version 1.
		return nil, store.ErrNotFound
	}

	versions := make([]model.NoteVersion, 0, len(res.Records))
	for _, rec := range res.Records {
		props, err := nodeProps(rec, "v")
		if err != nil {
			return nil, err
		}
		versions = append(versions, decodeVersion(props))
	}
	return versions, nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	res, err := s.run(ctx, "delete note", driver.DeleteNoteQuery, map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	if len(res.Records) == 0 || recordInt(res.Records[0], "deleted") == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetDetectionStatus(ctx context.Context, id string, version int, status model.DetectionStatus) (bool, error) {
	params := map[string]interface{}{"id": id, "version": version, "status": string(status)}
	res, err := s.run(ctx, "set detection status", driver.SetDetectionStatusQuery, params)
	if err != nil {
		return false, err
	}
	if len(res.Records) > 0 {
		return true, nil
	}
	if _, err := s.GetNote(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ListByDetectionStatus(ctx context.Context, status model.DetectionStatus, limit int) ([]string, error) {
	if limit <= 0 {
		limit = listLimit
	}
	params := map[string]interface{}{"status": string(status), "limit": limit}
	res, err := s.read(ctx, "list by detection status", driver.ListNotesByDetectionStatusQuery, params)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		ids = append(ids, recordString(rec, "id"))
	}
	return ids, nil
}

// Edges

func (s *Store) CreateEdge(ctx context.Context, e *model.Edge) error {
	query := driver.CreateUndirectedEdgeQuery
	if e.Type.Directed() {
		query = driver.CreateDirectedEdgeQuery
	}
	params := map[string]interface{}{
		"id":         e.ID,
		"source_id":  e.SourceNoteID,
		"target_id":  e.TargetNoteID,
		"type":       string(e.Type),
		"strength":   e.Strength,
		"created_at": formatTime(e.CreatedAt),
	}
	res, err := s.run(ctx, "create edge", query, params)
	if err != nil {
		return err
	}
	if len(res.Records) > 0 {
		return nil
	}

	found, err := s.read(ctx, "create edge", driver.CountNotesQuery, map[string]interface{}{
		"source_id": e.SourceNoteID,
		"target_id": e.TargetNoteID,
	})
	if err != nil {
		return err
	}
	if len(found.Records) == 0 || recordInt(found.Records[0], "found") == 0 {
		return store.ErrNotFound
	}
	return store.ErrDuplicate
}

func (s *Store) GetEdge(ctx context.Context, id string) (*model.Edge, error) {
	res, err := s.read(ctx, "get edge", driver.GetEdgeQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, store.ErrNotFound
	}
	e, err := decodeEdge(res.Records[0])
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	res, err := s.run(ctx, "delete edge", driver.DeleteEdgeQuery, map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	if len(res.Records) == 0 || recordInt(res.Records[0], "deleted") == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Neighbors(ctx context.Context, noteID string, types []model.EdgeType) ([]model.Edge, error) {
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}
	res, err := s.read(ctx, "neighbors", driver.NeighborsQuery, map[string]interface{}{"id": noteID, "types": typeNames})
	if err != nil {
		return nil, err
	}
	return decodeEdges(res)
}

func (s *Store) UserEdges(ctx context.Context, userID string) ([]model.Edge, error) {
	res, err := s.read(ctx, "user edges", driver.UserEdgesQuery, map[string]interface{}{"user_id": userID})
	if err != nil {
		return nil, err
	}
	return decodeEdges(res)
}

func decodeEdges(res neo4j.EagerResult) ([]model.Edge, error) {
	edges := make([]model.Edge, 0, len(res.Records))
	for _, rec := range res.Records {
		e, err := decodeEdge(rec)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// Contradictions

func (s *Store) CreateContradiction(ctx context.Context, c *model.Contradiction) error {
	props, err := contradictionProps(c)
	if err != nil {
		return err
	}
	params := map[string]interface{}{
		"note_a_id": c.NoteAID,
		"note_b_id": c.NoteBID,
		"props":     props,
	}
	res, err := s.run(ctx, "create contradiction", driver.CreateContradictionQuery, params)
	if driver.IsConstraintViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if len(res.Records) > 0 {
		return nil
	}

	found, err := s.read(ctx, "create contradiction", driver.CountNotesQuery, map[string]interface{}{
		"source_id": c.NoteAID,
		"target_id": c.NoteBID,
	})
	if err != nil {
		return err
	}
	if len(found.Records) == 0 || recordInt(found.Records[0], "found") == 0 {
		return store.ErrNotFound
	}
	return store.ErrDuplicate
}

func (s *Store) GetContradiction(ctx context.Context, id string) (*model.Contradiction, error) {
	res, err := s.read(ctx, "get contradiction", driver.GetContradictionQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, store.ErrNotFound
	}
	props, err := nodeProps(res.Records[0], "c")
	if err != nil {
		return nil, err
	}
	return decodeContradiction(props)
}

func (s *Store) FindByPair(ctx context.Context, noteAID, noteBID string) ([]*model.Contradiction, error) {
	res, err := s.read(ctx, "find contradictions", driver.FindContradictionsByPairQuery, map[string]interface{}{
		"note_a_id": noteAID,
		"note_b_id": noteBID,
	})
	if err != nil {
		return nil, err
	}
	return decodeContradictions(res)
}

func (s *Store) UpdateContradiction(ctx context.Context, c *model.Contradiction, expectedRevision int) error {
	props, err := contradictionProps(c)
	if err != nil {
		return err
	}
	delete(props, "id")
	delete(props, "revision")

	params := map[string]interface{}{
		"id":                c.ID,
		"expected_revision": expectedRevision,
		"props":             props,
	}
	res, err := s.run(ctx, "update contradiction", driver.UpdateContradictionQuery, params)
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		if _, err := s.GetContradiction(ctx, c.ID); err != nil {
			return err
		}
		return store.ErrRevisionConflict
	}
	c.Revision = recordInt(res.Records[0], "revision")
	return nil
}

func (s *Store) ListContradictions(ctx context.Context, q model.ContradictionQuery) ([]*model.Contradiction, error) {
	params := map[string]interface{}{
		"user_id": q.UserID,
		"status":  string(q.Status),
		"note_id": q.NoteID,
	}
	res, err := s.read(ctx, "list contradictions", driver.ListContradictionsQuery, params)
	if err != nil {
		return nil, err
	}
	return decodeContradictions(res)
}

func decodeContradictions(res neo4j.EagerResult) ([]*model.Contradiction, error) {
	out := make([]*model.Contradiction, 0, len(res.Records))
	for _, rec := range res.Records {
		props, err := nodeProps(rec, "c")
		if err != nil {
			return nil, err
		}
		c, err := decodeContradiction(props)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
