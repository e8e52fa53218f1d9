// Package store declares the persistence contracts of the note graph. The
// graphstore package implements them on a bolt graph database; the memory
// package implements them in process.
package store

import (
	"context"
	"errors"

	"github.com/agenthands/notegraph/internal/core/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an edge with the same key, or an
	// unresolved contradiction for the same pair, already exists.
	ErrDuplicate = errors.New("duplicate")
	// ErrVersionConflict is returned when a note's version moved past the
	// expected base version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrRevisionConflict is returned when a contradiction record changed
	// since it was read.
	ErrRevisionConflict = errors.New("revision conflict")
	// ErrUnavailable wraps backend failures worth retrying.
	ErrUnavailable = errors.New("store unavailable")
)

type NoteRepository interface {
	// CreateNote persists the note and its first version.
	CreateNote(ctx context.Context, note *model.Note, first model.NoteVersion) error
	GetNote(ctx context.Context, id string) (*model.Note, error)
	ListNotes(ctx context.Context, q model.NoteQuery) ([]*model.Note, error)
	// AppendVersion stores note (whose Version is expectedVersion+1) and the
	// matching version record if the stored version still equals
	// expectedVersion. Otherwise it returns ErrVersionConflict.
	AppendVersion(ctx context.Context, note *model.Note, v model.NoteVersion, expectedVersion int) error
	History(ctx context.Context, noteID string) ([]model.NoteVersion, error)
	// DeleteNote removes the note, its versions, every edge touching it and
	// every contradiction referencing it.
	DeleteNote(ctx context.Context, id string) error
	// SetDetectionStatus updates the status if the note is still at version
	// (0 matches any version). Reports whether the note was updated.
	SetDetectionStatus(ctx context.Context, id string, version int, status model.DetectionStatus) (bool, error)
	ListByDetectionStatus(ctx context.Context, status model.DetectionStatus, limit int) ([]string, error)
}

type EdgeRepository interface {
	// CreateEdge returns ErrDuplicate if an edge with the same key exists
	// and ErrNotFound if either note is missing.
	CreateEdge(ctx context.Context, e *model.Edge) error
	GetEdge(ctx context.Context, id string) (*model.Edge, error)
	DeleteEdge(ctx context.Context, id string) error
	// Neighbors returns edges in both directions. An empty filter matches
	// every type.
	Neighbors(ctx context.Context, noteID string, types []model.EdgeType) ([]model.Edge, error)
	// UserEdges returns the edges whose endpoints are both owned by userID.
	UserEdges(ctx context.Context, userID string) ([]model.Edge, error)
}

type ContradictionRepository interface {
	// CreateContradiction returns ErrDuplicate while an unresolved record
	// exists for the same pair.
	CreateContradiction(ctx context.Context, c *model.Contradiction) error
	GetContradiction(ctx context.Context, id string) (*model.Contradiction, error)
	FindByPair(ctx context.Context, noteAID, noteBID string) ([]*model.Contradiction, error)
	// UpdateContradiction writes c if the stored revision equals
	// expectedRevision and bumps c.Revision. Otherwise ErrRevisionConflict.
	UpdateContradiction(ctx context.Context, c *model.Contradiction, expectedRevision int) error
	ListContradictions(ctx context.Context, q model.ContradictionQuery) ([]*model.Contradiction, error)
}

type Store interface {
	Notes() NoteRepository
	Edges() EdgeRepository
	Contradictions() ContradictionRepository
	Close(ctx context.Context) error
}
