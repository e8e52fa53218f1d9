// Package graph manages typed, weighted relations between notes.
package graph

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/core/common"
	"github.com/agenthands/notegraph/internal/core/community"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/core/summary"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/store"
)

type ConnectInput struct {
	SourceNoteID string         `json:"source_note_id"`
	TargetNoteID string         `json:"target_note_id"`
	Type         model.EdgeType `json:"type"`
	Strength     float64        `json:"strength"`
}

type Service struct {
	notes    store.NoteRepository
	edges    store.EdgeRepository
	detector community.Detector
	namer    summary.Namer
	metrics  *metrics.Collector
	logger   *zap.Logger

	Now           func() time.Time
	UUIDGenerator func() string
}

type Option func(*Service)

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClusterDetector(d community.Detector) Option {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

func WithClusterNamer(n summary.Namer) Option {
	return func(s *Service) {
		if n != nil {
			s.namer = n
		}
	}
}

func NewService(notes store.NoteRepository, edges store.EdgeRepository, opts ...Option) *Service {
	s := &Service{
		notes:         notes,
		edges:         edges,
		detector:      community.NewLabelPropagationDetector(),
		namer:         summary.KeywordNamer{},
		logger:        zap.NewNop(),
		Now:           func() time.Time { return time.Now().UTC() },
		UUIDGenerator: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect creates an edge between two notes visible to userID. Strength is
// validated, never clamped.
func (s *Service) Connect(ctx context.Context, userID string, in ConnectInput) (*model.Edge, error) {
	if in.SourceNoteID == "" || in.TargetNoteID == "" {
		return nil, apperr.NewValidation("source and target notes are required")
	}
	if in.SourceNoteID == in.TargetNoteID {
		return nil, apperr.NewValidation("a note cannot be connected to itself")
	}
	if !in.Type.Valid() {
		return nil, apperr.NewValidation("unknown connection type %q", in.Type)
	}
	if math.IsNaN(in.Strength) || in.Strength < 0 || in.Strength > 1 {
		return nil, apperr.NewValidation("strength must be within [0, 1], got %v", in.Strength)
	}

	for _, id := range []string{in.SourceNoteID, in.TargetNoteID} {
		if _, err := s.visibleNote(ctx, userID, id); err != nil {
			return nil, err
		}
	}

	e := &model.Edge{
		ID:           s.UUIDGenerator(),
		SourceNoteID: in.SourceNoteID,
		TargetNoteID: in.TargetNoteID,
		Type:         in.Type,
		Strength:     in.Strength,
		CreatedAt:    s.Now(),
	}
	if err := s.edges.CreateEdge(ctx, e); err != nil {
		return nil, common.StoreError("connect notes", "connection", e.ID, err)
	}

	s.metrics.EdgeCreated(string(e.Type))
	s.logger.Info("notes connected",
		zap.String("edge_id", e.ID),
		zap.String("source", e.SourceNoteID),
		zap.String("target", e.TargetNoteID),
		zap.String("type", string(e.Type)))
	return e, nil
}

func (s *Service) visibleNote(ctx context.Context, userID, noteID string) (*model.Note, error) {
	n, err := s.notes.GetNote(ctx, noteID)
	if err != nil {
		return nil, common.StoreError("get note", "note", noteID, err)
	}
	if !n.VisibleTo(userID) {
		return nil, apperr.NewNotFound("note", noteID)
	}
	return n, nil
}

// Neighbors returns incoming and outgoing edges of the note, optionally
// restricted to types. Edges to notes the caller cannot see are omitted.
func (s *Service) Neighbors(ctx context.Context, userID, noteID string, types []model.EdgeType) ([]model.Edge, error) {
	for _, t := range types {
		if !t.Valid() {
			return nil, apperr.NewValidation("unknown connection type %q", t)
		}
	}
	if _, err := s.visibleNote(ctx, userID, noteID); err != nil {
		return nil, err
	}

	edges, err := s.edges.Neighbors(ctx, noteID, types)
	if err != nil {
		return nil, common.StoreError("list connections", "note", noteID, err)
	}

	visible := make(map[string]bool)
	out := make([]model.Edge, 0, len(edges))
	for _, e := range edges {
		other := e.Other(noteID)
		ok, seen := visible[other]
		if !seen {
			n, err := s.notes.GetNote(ctx, other)
			ok = err == nil && n.VisibleTo(userID)
			visible[other] = ok
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Disconnect removes an edge. The caller must own one of its endpoints.
func (s *Service) Disconnect(ctx context.Context, userID, edgeID string) error {
	e, err := s.edges.GetEdge(ctx, edgeID)
	if err != nil {
		return common.StoreError("get connection", "connection", edgeID, err)
	}

	owns := false
	for _, id := range []string{e.SourceNoteID, e.TargetNoteID} {
		n, err := s.notes.GetNote(ctx, id)
		if err == nil && n.UserID == userID {
			owns = true
			break
		}
	}
	if !owns {
		return apperr.NewNotFound("connection", edgeID)
	}

	if err := s.edges.DeleteEdge(ctx, edgeID); err != nil {
		return common.StoreError("disconnect notes", "connection", edgeID, err)
	}
	s.logger.Info("notes disconnected", zap.String("edge_id", edgeID), zap.String("user_id", userID))
	return nil
}

// Graph returns the user's notes and the edges among them.
func (s *Service) Graph(ctx context.Context, userID string) (*model.GraphView, error) {
	notes, err := s.notes.ListNotes(ctx, model.NoteQuery{UserID: userID})
	if err != nil {
		return nil, common.StoreError("load graph", "graph", userID, err)
	}
	edges, err := s.edges.UserEdges(ctx, userID)
	if err != nil {
		return nil, common.StoreError("load graph", "graph", userID, err)
	}

	ids := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		ids[n.ID] = struct{}{}
	}
	view := &model.GraphView{Notes: notes, Edges: make([]model.Edge, 0, len(edges))}
	for _, e := range edges {
		_, src := ids[e.SourceNoteID]
		_, dst := ids[e.TargetNoteID]
		if src && dst {
			view.Edges = append(view.Edges, e)
		}
	}
	return view, nil
}

// Clusters groups the user's notes by their connections. A cluster whose
// naming fails is returned unnamed.
func (s *Service) Clusters(ctx context.Context, userID string) ([]model.Cluster, error) {
	view, err := s.Graph(ctx, userID)
	if err != nil {
		return nil, err
	}
	clusters, err := s.detector.Detect(view.Notes, view.Edges)
	if err != nil {
		return nil, apperr.NewInternal("detect clusters", err)
	}
	if clusters == nil {
		clusters = []model.Cluster{}
	}
	for i := range clusters {
		name, err := s.namer.Name(ctx, clusters[i])
		if err != nil {
			s.logger.Warn("failed to name cluster", zap.String("label", clusters[i].Label), zap.Error(err))
			continue
		}
		clusters[i].Name = name
	}
	return clusters, nil
}
