package graphstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/driver"
	"github.com/agenthands/notegraph/internal/store"
)

func TestGetNote_DecodesNode(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mockDriver := &MockDriver{
		MockResult: records([]string{"n"}, []interface{}{noteNode(map[string]any{
			"id":               "note-1",
			"user_id":          "user-1",
			"title":            "Energy",
			"body":             "Nuclear energy is the best climate solution",
			"tags":             []any{"climate", "energy"},
			"visibility":       "public",
			"version":          int64(3),
			"detection_status": "done",
			"created_at":       created.Format(time.RFC3339Nano),
			"updated_at":       created.Format(time.RFC3339Nano),
		})}),
	}
	s := New(mockDriver)

	note, err := s.GetNote(context.Background(), "note-1")
	require.NoError(t, err)

	assert.Equal(t, "note-1", note.ID)
	assert.Equal(t, []string{"climate", "energy"}, note.Tags)
	assert.Equal(t, 3, note.Version)
	assert.Equal(t, model.VisibilityPublic, note.Visibility)
	assert.True(t, created.Equal(note.CreatedAt))
	assert.Equal(t, driver.GetNoteQuery, mockDriver.Executed[0].Query)
}

func TestGetNote_NotFound(t *testing.T) {
	s := New(&MockDriver{MockResult: neo4j.EagerResult{}})

	_, err := s.GetNote(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendVersion_ConflictWhenNoRow(t *testing.T) {
	mockDriver := &MockDriver{
		ResultQueue: []neo4j.EagerResult{
			{}, // CAS matched nothing
			records([]string{"n"}, []interface{}{noteNode(map[string]any{"id": "note-1", "version": int64(2)})}),
		},
	}
	s := New(mockDriver)

	note := &model.Note{ID: "note-1", Version: 2, UpdatedAt: time.Now()}
	err := s.AppendVersion(context.Background(), note, note.Snapshot("", note.UpdatedAt), 1)

	assert.ErrorIs(t, err, store.ErrVersionConflict)
	require.Len(t, mockDriver.Executed, 2)
	assert.Equal(t, 1, mockDriver.Executed[0].Params["expected_version"])
}

func TestAppendVersion_NotFoundWhenNoteGone(t *testing.T) {
	s := New(&MockDriver{ResultQueue: []neo4j.EagerResult{{}, {}}})

	note := &model.Note{ID: "gone", Version: 2}
	err := s.AppendVersion(context.Background(), note, note.Snapshot("", time.Now()), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateEdge_DuplicateVersusMissing(t *testing.T) {
	edge := &model.Edge{ID: "e1", SourceNoteID: "a", TargetNoteID: "b", Type: model.EdgeRelated, Strength: 0.8}

	dup := &MockDriver{ResultQueue: []neo4j.EagerResult{{}, records([]string{"found"}, []interface{}{int64(1)})}}
	err := New(dup).CreateEdge(context.Background(), edge)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.Equal(t, driver.CreateUndirectedEdgeQuery, dup.Executed[0].Query)

	missing := &MockDriver{ResultQueue: []neo4j.EagerResult{{}, records([]string{"found"}, []interface{}{int64(0)})}}
	err = New(missing).CreateEdge(context.Background(), edge)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateEdge_DirectedQueryForExtension(t *testing.T) {
	mockDriver := &MockDriver{MockResult: records([]string{"id"}, []interface{}{"e1"})}
	edge := &model.Edge{ID: "e1", SourceNoteID: "a", TargetNoteID: "b", Type: model.EdgeExtension, Strength: 1}

	require.NoError(t, New(mockDriver).CreateEdge(context.Background(), edge))
	assert.Equal(t, driver.CreateDirectedEdgeQuery, mockDriver.Executed[0].Query)
	assert.Equal(t, "extension", mockDriver.LastParams()["type"])
}

func TestNeighbors_DecodesRelationships(t *testing.T) {
	rel := neo4j.Relationship{Type: "RELATES", Props: map[string]any{
		"id":       "e1",
		"type":     "related",
		"strength": 0.8,
	}}
	mockDriver := &MockDriver{MockResult: records([]string{"e", "source_id", "target_id"}, []interface{}{rel, "a", "b"})}

	edges, err := New(mockDriver).Neighbors(context.Background(), "b", []model.EdgeType{model.EdgeRelated})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].SourceNoteID)
	assert.Equal(t, "b", edges[0].TargetNoteID)
	assert.InDelta(t, 0.8, edges[0].Strength, 1e-9)
	assert.Equal(t, []string{"related"}, mockDriver.LastParams()["types"])
}

func TestContradiction_RoundTripsAudit(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	c := &model.Contradiction{
		ID: "c1", NoteAID: "a", NoteBID: "b", Status: model.StatusDismissed, Revision: 1,
		DetectedAt: at, ResolvedAt: &at,
		Audit: []model.AuditEntry{{Actor: "u1", At: at, From: model.StatusUnresolved, To: model.StatusDismissed}},
	}
	props, err := contradictionProps(c)
	require.NoError(t, err)

	decoded, err := decodeContradiction(props)
	require.NoError(t, err)
	assert.Equal(t, c.Status, decoded.Status)
	require.Len(t, decoded.Audit, 1)
	assert.Equal(t, "u1", decoded.Audit[0].Actor)
	require.NotNil(t, decoded.ResolvedAt)
	assert.True(t, at.Equal(*decoded.ResolvedAt))
}

func TestUpdateContradiction_RevisionConflict(t *testing.T) {
	existing := noteNode(map[string]any{"id": "c1", "revision": int64(4), "status": "unresolved"})
	mockDriver := &MockDriver{ResultQueue: []neo4j.EagerResult{{}, records([]string{"c"}, []interface{}{existing})}}

	c := &model.Contradiction{ID: "c1", Status: model.StatusUnresolved}
	err := New(mockDriver).UpdateContradiction(context.Background(), c, 3)
	assert.ErrorIs(t, err, store.ErrRevisionConflict)

	props := mockDriver.Executed[0].Params["props"].(map[string]any)
	assert.NotContains(t, props, "revision", "revision is bumped by the query, never copied")
}

func noWait(context.Context, time.Duration) error { return nil }

func TestRun_ClassifiesTransientErrors(t *testing.T) {
	deadlock := &neo4j.Neo4jError{Code: "Neo.TransientError.Transaction.DeadlockDetected", Msg: "deadlock"}
	mockDriver := &MockDriver{Err: deadlock}
	s := New(mockDriver)
	s.sleep = noWait

	_, err := s.GetNote(context.Background(), "x")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Len(t, mockDriver.Executed, DefaultRetryConfig().MaxRetries+1)

	mockDriver = &MockDriver{Err: errors.New("syntax error")}
	s = New(mockDriver)
	s.sleep = noWait
	_, err = s.GetNote(context.Background(), "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
	assert.Len(t, mockDriver.Executed, 1, "permanent errors are not retried")
}

func TestRead_RecoversFromTransientFailure(t *testing.T) {
	deadlock := &neo4j.Neo4jError{Code: "Neo.TransientError.Transaction.DeadlockDetected", Msg: "deadlock"}
	mockDriver := &MockDriver{Err: deadlock, ErrTimes: 2}
	var waits []time.Duration
	s := New(mockDriver, WithRetry(RetryConfig{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond}))
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := s.GetNote(context.Background(), "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, mockDriver.Executed, 3)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, waits)
}

func TestWrite_IsNotReplayed(t *testing.T) {
	mockDriver := &MockDriver{Err: &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "down"}}
	s := New(mockDriver)
	s.sleep = noWait

	err := s.DeleteEdge(context.Background(), "e1")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Len(t, mockDriver.Executed, 1)
}

func TestRead_StopsWhenContextEnds(t *testing.T) {
	mockDriver := &MockDriver{Err: &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "down"}}
	s := New(mockDriver)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetEdge(ctx, "e1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mockDriver.Executed, 1)
}
