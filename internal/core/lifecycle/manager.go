// Package lifecycle moves contradictions from unresolved to resolved or
// dismissed and keeps their audit trail.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/core/common"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/store"
)

const maxTransitionAttempts = 5

type ResolveInput struct {
	ResolutionNoteID string `json:"resolution_note_id"`
	Reason           string `json:"reason"`
}

type DismissInput struct {
	Reason string `json:"reason"`
}

type Manager struct {
	contradictions store.ContradictionRepository
	notes          store.NoteRepository
	metrics        *metrics.Collector
	logger         *zap.Logger

	Now func() time.Time
}

type Option func(*Manager)

func WithMetrics(m *metrics.Collector) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(mgr *Manager) {
		if l != nil {
			mgr.logger = l
		}
	}
}

func NewManager(contradictions store.ContradictionRepository, notes store.NoteRepository, opts ...Option) *Manager {
	m := &Manager{
		contradictions: contradictions,
		notes:          notes,
		logger:         zap.NewNop(),
		Now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a contradiction involving one of userID's notes.
func (m *Manager) Get(ctx context.Context, userID, id string) (*model.Contradiction, error) {
	c, err := m.contradictions.GetContradiction(ctx, id)
	if err != nil {
		return nil, common.StoreError("get contradiction", "contradiction", id, err)
	}
	if !c.InvolvesUser(userID) {
		return nil, apperr.NewNotFound("contradiction", id)
	}
	return c, nil
}

// List returns the user's contradictions, newest first. An empty status
// matches every state.
func (m *Manager) List(ctx context.Context, userID string, status model.ContradictionStatus) ([]*model.Contradiction, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.NewValidation("unknown contradiction status %q", status)
	}
	out, err := m.contradictions.ListContradictions(ctx, model.ContradictionQuery{UserID: userID, Status: status})
	if err != nil {
		return nil, common.StoreError("list contradictions", "contradiction", userID, err)
	}
	if out == nil {
		out = []*model.Contradiction{}
	}
	return out, nil
}

// Resolve marks the contradiction resolved, optionally pointing at the note
// that settles it.
func (m *Manager) Resolve(ctx context.Context, userID, id string, in ResolveInput) (*model.Contradiction, error) {
	noteID := strings.TrimSpace(in.ResolutionNoteID)
	if noteID != "" {
		n, err := m.notes.GetNote(ctx, noteID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, common.StoreError("get note", "note", noteID, err)
		}
		if err != nil || !n.VisibleTo(userID) {
			return nil, apperr.NewValidation("resolution note %s not found", noteID)
		}
	}
	return m.transition(ctx, userID, id, model.StatusResolved, in.Reason, func(c *model.Contradiction) {
		c.ResolutionNoteID = noteID
	})
}

func (m *Manager) Dismiss(ctx context.Context, userID, id string, in DismissInput) (*model.Contradiction, error) {
	return m.transition(ctx, userID, id, model.StatusDismissed, in.Reason, nil)
}

// transition applies an unresolved -> to move under the revision check.
// Losing a race re-reads the record, so a concurrent terminal transition
// surfaces as InvalidStateTransition.
func (m *Manager) transition(ctx context.Context, userID, id string, to model.ContradictionStatus, reason string, mutate func(*model.Contradiction)) (*model.Contradiction, error) {
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		c, err := m.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if c.Status.Terminal() {
			return nil, apperr.NewInvalidStateTransition(string(c.Status), string(to))
		}

		now := m.Now()
		from := c.Status
		c.Status = to
		c.ResolvedAt = &now
		c.Audit = append(c.Audit, model.AuditEntry{
			Actor:  userID,
			At:     now,
			From:   from,
			To:     to,
			Reason: strings.TrimSpace(reason),
		})
		if mutate != nil {
			mutate(c)
		}

		err = m.contradictions.UpdateContradiction(ctx, c, c.Revision)
		if errors.Is(err, store.ErrRevisionConflict) {
			m.logger.Debug("contradiction changed during transition, retrying",
				zap.String("contradiction_id", id), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, common.StoreError("update contradiction", "contradiction", id, err)
		}

		m.metrics.Transition(string(to))
		m.logger.Info("contradiction transitioned",
			zap.String("contradiction_id", id),
			zap.String("actor", userID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return c, nil
	}
	return nil, apperr.NewConflict("contradiction %s was modified concurrently", id)
}
