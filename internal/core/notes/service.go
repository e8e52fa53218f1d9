// Package notes is the versioned note store: every mutation appends a
// version, version numbers are assigned by compare-and-set in the store.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/core/common"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/store"
)

// DetectionQueue receives notes whose content changed. Enqueue must not block.
type DetectionQueue interface {
	Enqueue(noteID string)
}

type CreateInput struct {
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	Category   string           `json:"category"`
	Tags       []string         `json:"tags"`
	Visibility model.Visibility `json:"visibility"`
}

// Patch lists the fields to change. Nil fields keep their current value.
type Patch struct {
	Title         *string           `json:"title"`
	Body          *string           `json:"body"`
	Category      *string           `json:"category"`
	Tags          *[]string         `json:"tags"`
	Visibility    *model.Visibility `json:"visibility"`
	ChangeSummary string            `json:"change_summary"`
	// BaseVersion, when set, makes the update fail with a conflict unless the
	// note is still at that version.
	BaseVersion *int `json:"base_version"`
}

type Service struct {
	repo          store.NoteRepository
	queue         DetectionQueue
	metrics       *metrics.Collector
	logger        *zap.Logger
	maxCASRetries int

	Now           func() time.Time
	UUIDGenerator func() string
}

type Option func(*Service)

func WithQueue(q DetectionQueue) Option {
	return func(s *Service) { s.queue = q }
}

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

// WithMaxCASRetries bounds the attempts of an update without a base version.
func WithMaxCASRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCASRetries = n
		}
	}
}

func NewService(repo store.NoteRepository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		logger:        zap.NewNop(),
		maxCASRetries: 5,
		Now:           func() time.Time { return time.Now().UTC() },
		UUIDGenerator: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Note, error) {
	title := strings.TrimSpace(in.Title)
	body := strings.TrimSpace(in.Body)
	if title == "" {
		return nil, apperr.NewValidation("title must not be empty")
	}
	if body == "" {
		return nil, apperr.NewValidation("body must not be empty")
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, apperr.NewValidation("unknown visibility %q", visibility)
	}

	now := s.Now()
	note := &model.Note{
		ID:              s.UUIDGenerator(),
		UserID:          userID,
		Title:           title,
		Body:            body,
		Category:        strings.TrimSpace(in.Category),
		Tags:            model.NormalizeTags(in.Tags),
		Visibility:      visibility,
		Version:         1,
		DetectionStatus: model.DetectionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateNote(ctx, note, note.Snapshot("created", now)); err != nil {
		return nil, common.StoreError("create note", "note", note.ID, err)
	}

	s.metrics.NoteCreated()
	s.logger.Info("note created", zap.String("note_id", note.ID), zap.String("user_id", userID))
	s.enqueue(note.ID)
	return note, nil
}

// Get returns the note if userID owns it or it is public. Private notes of
// other users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, noteID string) (*model.Note, error) {
	note, err := s.repo.GetNote(ctx, noteID)
	if err != nil {
		return nil, common.StoreError("get note", "note", noteID, err)
	}
	if !note.VisibleTo(userID) {
		return nil, apperr.NewNotFound("note", noteID)
	}
	return note, nil
}

// owned loads a note for mutation. Only the owner may mutate.
func (s *Service) owned(ctx context.Context, userID, noteID string) (*model.Note, error) {
	note, err := s.repo.GetNote(ctx, noteID)
	if err != nil {
		return nil, common.StoreError("get note", "note", noteID, err)
	}
	if note.UserID != userID {
		return nil, apperr.NewNotFound("note", noteID)
	}
	return note, nil
}

func (s *Service) List(ctx context.Context, userID string, q model.NoteQuery) ([]*model.Note, error) {
	q.UserID = userID
	q.Tag = strings.ToLower(strings.TrimSpace(q.Tag))
	notes, err := s.repo.ListNotes(ctx, q)
	if err != nil {
		return nil, common.StoreError("list notes", "notes", userID, err)
	}
	return notes, nil
}

// Update appends a new version built from the current one and patch.
//
// With patch.BaseVersion set the write is a single compare-and-set against
// that version. Without it the current version is re-read and the
// compare-and-set retried up to the configured bound, so concurrent writers
// each land as their own version.
func (s *Service) Update(ctx context.Context, userID, noteID string, patch Patch) (*model.NoteVersion, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.owned(ctx, userID, noteID)
		if err != nil {
			return nil, err
		}
		if patch.BaseVersion != nil && *patch.BaseVersion != current.Version {
			s.metrics.VersionConflict()
			return nil, apperr.NewConflict("note %s is at version %d, not %d", noteID, current.Version, *patch.BaseVersion)
		}

		next, err := applyPatch(current, patch)
		if err != nil {
			return nil, err
		}
		now := s.Now()
		next.Version = current.Version + 1
		next.UpdatedAt = now
		next.DetectionStatus = model.DetectionPending

		summary := strings.TrimSpace(patch.ChangeSummary)
		if summary == "" {
			summary = Summarize(current, next)
		}
		version := next.Snapshot(summary, now)

		err = s.repo.AppendVersion(ctx, next, version, current.Version)
		if err == nil {
			s.metrics.VersionAppended()
			s.logger.Info("note updated",
				zap.String("note_id", noteID),
				zap.Int("version", next.Version),
				zap.Int("attempt", attempt))
			s.enqueue(noteID)
			return &version, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, common.StoreError("update note", "note", noteID, err)
		}

		s.metrics.VersionConflict()
		if patch.BaseVersion != nil {
			return nil, apperr.NewConflict("note %s was modified concurrently", noteID)
		}
		if attempt >= s.maxCASRetries {
			s.logger.Warn("note update gave up after repeated version conflicts",
				zap.String("note_id", noteID), zap.Int("attempts", attempt))
			return nil, apperr.NewConflict("note %s is being modified concurrently, retry later", noteID)
		}
	}
}

func applyPatch(current *model.Note, patch Patch) (*model.Note, error) {
	next := *current
	next.Tags = append([]string(nil), current.Tags...)

	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
		if next.Title == "" {
			return nil, apperr.NewValidation("title must not be empty")
		}
	}
	if patch.Body != nil {
		next.Body = strings.TrimSpace(*patch.Body)
		if next.Body == "" {
			return nil, apperr.NewValidation("body must not be empty")
		}
	}
	if patch.Category != nil {
		next.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Tags != nil {
		next.Tags = model.NormalizeTags(*patch.Tags)
	}
	if patch.Visibility != nil {
		if !patch.Visibility.Valid() {
			return nil, apperr.NewValidation("unknown visibility %q", *patch.Visibility)
		}
		next.Visibility = *patch.Visibility
	}
	return &next, nil
}

// History returns every version of the note, oldest first.
func (s *Service) History(ctx context.Context, userID, noteID string) ([]model.NoteVersion, error) {
	if _, err := s.Get(ctx, userID, noteID); err != nil {
		return nil, err
	}
	versions, err := s.repo.History(ctx, noteID)
	if err != nil {
		return nil, common.StoreError("get history", "note", noteID, err)
	}
	return versions, nil
}

// Delete removes the note with its versions, edges and contradictions.
func (s *Service) Delete(ctx context.Context, userID, noteID string) error {
	if _, err := s.owned(ctx, userID, noteID); err != nil {
		return err
	}
	if err := s.repo.DeleteNote(ctx, noteID); err != nil {
		return common.StoreError("delete note", "note", noteID, err)
	}
	s.metrics.NoteDeleted()
	s.logger.Info("note deleted", zap.String("note_id", noteID), zap.String("user_id", userID))
	return nil
}

// RequestDetection re-runs contradiction detection for a note the caller owns.
func (s *Service) RequestDetection(ctx context.Context, userID, noteID string) error {
	if _, err := s.owned(ctx, userID, noteID); err != nil {
		return err
	}
	s.enqueue(noteID)
	return nil
}

func (s *Service) enqueue(noteID string) {
	if s.queue != nil {
		s.queue.Enqueue(noteID)
	}
}

// Summarize describes what changed between two versions of a note.
func Summarize(prev, next *model.Note) string {
	var parts []string
	if prev.Title != next.Title {
		parts = append(parts, "title changed")
	}
	if prev.Body != next.Body {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(prev.Body, next.Body, false))
		var added, removed int
		for _, d := range diffs {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				added += len([]rune(d.Text))
			case diffmatchpatch.DiffDelete:
				removed += len([]rune(d.Text))
			}
		}
		parts = append(parts, fmt.Sprintf("body +%d/-%d chars", added, removed))
	}
	if prev.Category != next.Category {
		parts = append(parts, "category changed")
	}
	if strings.Join(prev.Tags, ",") != strings.Join(next.Tags, ",") {
		parts = append(parts, "tags changed")
	}
	if prev.Visibility != next.Visibility {
		parts = append(parts, "visibility set to "+string(next.Visibility))
	}
	if len(parts) == 0 {
		return "no content change"
	}
	return strings.Join(parts, "; ")
}
