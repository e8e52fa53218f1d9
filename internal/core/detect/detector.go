// Package detect finds contradictions between notes. A Detector scores one
// note against its candidates; a Queue runs detections in the background
// with retries.
package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/core/common"
	"github.com/agenthands/notegraph/internal/core/extraction"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/core/scoring"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/store"
)

// maxUpsertAttempts bounds revision conflicts while refreshing an
// unresolved record.
const maxUpsertAttempts = 5

// Result summarizes one detection run.
type Result struct {
	NoteID     string
	Version    int
	Candidates int
	Flagged    []*model.Contradiction
	Suggested  int
}

type Detector struct {
	notes          store.NoteRepository
	edges          store.EdgeRepository
	contradictions store.ContradictionRepository
	extractor      extraction.ClaimExtractor
	scorer         scoring.Scorer
	breaker        *gobreaker.CircuitBreaker
	extractBreaker *gobreaker.CircuitBreaker
	claims         singleflight.Group
	cfg            config.DetectionConfig
	metrics        *metrics.Collector
	logger         *zap.Logger

	Now           func() time.Time
	UUIDGenerator func() string
}

type Option func(*Detector)

func WithMetrics(m *metrics.Collector) Option {
	return func(d *Detector) { d.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDetector(st store.Store, extractor extraction.ClaimExtractor, scorer scoring.Scorer, cfg config.DetectionConfig, opts ...Option) *Detector {
	d := &Detector{
		notes:          st.Notes(),
		edges:          st.Edges(),
		contradictions: st.Contradictions(),
		extractor:      extractor,
		scorer:         scorer,
		cfg:            cfg,
		logger:         zap.NewNop(),
		Now:            func() time.Time { return time.Now().UTC() },
		UUIDGenerator:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}

	d.breaker = d.newBreaker("claim-scorer")
	d.extractBreaker = d.newBreaker("claim-extractor")
	return d
}

// newBreaker trips after five consecutive failures. Extraction and scoring
// each have their own.
func (d *Detector) newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			d.logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Run scores the note's current version against its candidates and records
// the outcome. Scorer failures come back as transient errors and leave the
// store untouched for this note.
func (d *Detector) Run(ctx context.Context, noteID string) (*Result, error) {
	note, err := d.notes.GetNote(ctx, noteID)
	if err != nil {
		return nil, common.StoreError("load note", "note", noteID, err)
	}

	candidates, err := d.candidates(ctx, note)
	if err != nil {
		return nil, err
	}
	res := &Result{NoteID: note.ID, Version: note.Version, Candidates: len(candidates)}

	verdicts, err := d.scoreCandidates(ctx, note, candidates)
	if err != nil {
		return nil, err
	}

	for _, v := range verdicts {
		flagged, err := d.record(ctx, v)
		if err != nil {
			return nil, err
		}
		if flagged != nil {
			res.Flagged = append(res.Flagged, flagged)
		} else if d.suggests(v) {
			res.Suggested++
		}
	}

	if _, err := d.notes.SetDetectionStatus(ctx, note.ID, note.Version, model.DetectionDone); err != nil {
		return nil, common.StoreError("mark detection done", "note", note.ID, err)
	}

	d.logger.Info("contradiction detection finished",
		zap.String("note_id", note.ID),
		zap.Int("version", note.Version),
		zap.Int("candidates", res.Candidates),
		zap.Int("flagged", len(res.Flagged)),
		zap.Int("suggested", res.Suggested))
	return res, nil
}

// candidates returns the notes the note is compared against, most recently
// updated first. Another user's note only qualifies when both notes are
// public.
func (d *Detector) candidates(ctx context.Context, note *model.Note) ([]*model.Note, error) {
	q := model.NoteQuery{UserID: note.UserID}
	if d.cfg.Scope == "shared_tags" {
		q.IncludePublic = true
	}
	all, err := d.notes.ListNotes(ctx, q)
	if err != nil {
		return nil, common.StoreError("list candidates", "note", note.ID, err)
	}

	out := make([]*model.Note, 0, len(all))
	for _, c := range all {
		if c.ID == note.ID {
			continue
		}
		if c.UserID != note.UserID {
			if note.Visibility != model.VisibilityPublic || c.Visibility != model.VisibilityPublic || !note.SharesTopic(c) {
				continue
			}
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if d.cfg.MaxCandidates > 0 && len(out) > d.cfg.MaxCandidates {
		out = out[:d.cfg.MaxCandidates]
	}
	return out, nil
}

// extract returns the claims of a note version. Concurrent jobs asking for
// the same version share one extraction.
func (d *Detector) extract(ctx context.Context, note *model.Note) ([]model.Claim, error) {
	key := note.ID + "@" + strconv.Itoa(note.Version)
	v, err, _ := d.claims.Do(key, func() (interface{}, error) {
		return d.call(ctx, d.extractBreaker, "claim extraction", func(callCtx context.Context) (interface{}, error) {
			return d.extractor.Extract(callCtx, note)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Claim), nil
}

func (d *Detector) scoreCandidates(ctx context.Context, note *model.Note, candidates []*model.Note) ([]model.PairVerdict, error) {
	claims, err := d.extract(ctx, note)
	if err != nil {
		return nil, err
	}

	verdicts := make([]*model.PairVerdict, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	limit := d.cfg.PairConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			other, err := d.extract(gctx, c)
			if err != nil {
				return err
			}
			v, err := d.bestPair(gctx, note, c, claims, other)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.PairVerdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

// bestPair scores every claim pair of two notes. The verdict carries the
// most opposed pair among those on a shared topic; without such a pair it
// carries the most similar one.
func (d *Detector) bestPair(ctx context.Context, note, other *model.Note, a, b []model.Claim) (*model.PairVerdict, error) {
	var best *model.PairVerdict
	var closest *model.PairVerdict

	for _, ca := range a {
		for _, cb := range b {
			score, err := d.score(ctx, ca, cb)
			if err != nil {
				return nil, err
			}
			v := &model.PairVerdict{NoteA: note, NoteB: other, ClaimA: ca, ClaimB: cb, Score: score}

			if score.Topic >= d.cfg.TopicThreshold {
				if best == nil || score.Opposition > best.Score.Opposition ||
					(score.Opposition == best.Score.Opposition && score.Topic > best.Score.Topic) {
					best = v
				}
			}
			if closest == nil || score.Topic > closest.Score.Topic {
				closest = v
			}
		}
	}

	if best != nil && d.flags(*best) {
		return best, nil
	}
	return closest, nil
}

// score runs one scorer call under the call timeout and the circuit breaker.
func (d *Detector) score(ctx context.Context, a, b model.Claim) (model.PairScore, error) {
	start := time.Now()
	v, err := d.call(ctx, d.breaker, "claim scoring", func(callCtx context.Context) (interface{}, error) {
		return d.scorer.Score(callCtx, a, b)
	})
	d.metrics.ObserveScorer(time.Since(start))
	if err != nil {
		return model.PairScore{}, err
	}
	return v.(model.PairScore), nil
}

// call bounds one model call by detection.scorer_timeout_ms and runs it
// through cb. Every failure is transient so the queue retries the job.
func (d *Detector) call(ctx context.Context, cb *gobreaker.CircuitBreaker, op string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	callCtx := ctx
	if t := d.cfg.ScorerTimeout(); t > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	v, err := cb.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
	if err == nil {
		return v, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", d.cfg.ScorerTimeout(), err)
	}
	return nil, apperr.NewTransient(op, err)
}

func (d *Detector) flags(v model.PairVerdict) bool {
	return v.Score.Opposition >= d.cfg.OppositionThreshold && v.Score.Topic >= d.cfg.TopicThreshold
}

func (d *Detector) suggests(v model.PairVerdict) bool {
	return !d.flags(v) && v.Score.Topic >= d.cfg.SuggestThreshold
}

// record writes the outcome of one pair: a contradiction and its edge when
// flagged, an ai_suggested edge when the notes are merely close.
func (d *Detector) record(ctx context.Context, v model.PairVerdict) (*model.Contradiction, error) {
	if !d.flags(v) {
		if d.suggests(v) {
			if err := d.link(ctx, v, model.EdgeAISuggested, v.Score.Topic); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	c, err := d.upsert(ctx, v)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	if err := d.link(ctx, v, model.EdgeContradiction, v.Score.Opposition); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Detector) link(ctx context.Context, v model.PairVerdict, t model.EdgeType, strength float64) error {
	a, b := model.OrderedPair(v.NoteA.ID, v.NoteB.ID)
	e := &model.Edge{
		ID:           d.UUIDGenerator(),
		SourceNoteID: a,
		TargetNoteID: b,
		Type:         t,
		Strength:     strength,
		CreatedAt:    d.Now(),
	}
	err := d.edges.CreateEdge(ctx, e)
	switch {
	case err == nil:
		d.metrics.EdgeCreated(string(t))
		return nil
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrNotFound):
		// Already linked, or one note was deleted meanwhile.
		return nil
	}
	return common.StoreError("link notes", "connection", e.ID, err)
}

// upsert refreshes the unresolved contradiction of the pair or creates one.
// It returns nil when a terminal record for the same versions suppresses
// the pair.
func (d *Detector) upsert(ctx context.Context, v model.PairVerdict) (*model.Contradiction, error) {
	noteA, noteB := v.NoteA, v.NoteB
	claimA, claimB := v.ClaimA, v.ClaimB
	if noteB.ID < noteA.ID {
		noteA, noteB = noteB, noteA
		claimA, claimB = claimB, claimA
	}
	description := describe(claimA, claimB, v.Score)

	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		existing, err := d.contradictions.FindByPair(ctx, noteA.ID, noteB.ID)
		if err != nil {
			return nil, common.StoreError("find contradictions", "contradiction", noteA.ID+"/"+noteB.ID, err)
		}

		var open *model.Contradiction
		suppressed := false
		for _, c := range existing {
			switch {
			case c.Status == model.StatusUnresolved:
				open = c
			case c.NoteAVersion == noteA.Version && c.NoteBVersion == noteB.Version:
				suppressed = true
			}
		}

		if open != nil {
			open.Description = description
			open.Score = v.Score.Opposition
			open.TopicScore = v.Score.Topic
			open.NoteAVersion = noteA.Version
			open.NoteBVersion = noteB.Version
			open.UserIDs = userIDs(noteA, noteB)
			err := d.contradictions.UpdateContradiction(ctx, open, open.Revision)
			if errors.Is(err, store.ErrRevisionConflict) || errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, common.StoreError("update contradiction", "contradiction", open.ID, err)
			}
			d.metrics.ContradictionFlagged("updated")
			return open, nil
		}

		if suppressed {
			d.logger.Debug("pair already reviewed at these versions",
				zap.String("note_a", noteA.ID), zap.String("note_b", noteB.ID))
			return nil, nil
		}

		c := &model.Contradiction{
			ID:           d.UUIDGenerator(),
			NoteAID:      noteA.ID,
			NoteBID:      noteB.ID,
			NoteAVersion: noteA.Version,
			NoteBVersion: noteB.Version,
			UserIDs:      userIDs(noteA, noteB),
			Description:  description,
			Score:        v.Score.Opposition,
			TopicScore:   v.Score.Topic,
			Status:       model.StatusUnresolved,
			DetectedAt:   d.Now(),
			Audit:        []model.AuditEntry{},
		}
		err = d.contradictions.CreateContradiction(ctx, c)
		if errors.Is(err, store.ErrDuplicate) {
			// Another job flagged the pair first; refresh that record instead.
			continue
		}
		if err != nil {
			return nil, common.StoreError("create contradiction", "contradiction", c.ID, err)
		}
		d.metrics.ContradictionFlagged("created")
		d.logger.Info("contradiction flagged",
			zap.String("contradiction_id", c.ID),
			zap.String("note_a", c.NoteAID),
			zap.String("note_b", c.NoteBID),
			zap.Float64("score", c.Score))
		return c, nil
	}
	return nil, apperr.NewConflict("contradiction for %s and %s kept changing", noteA.ID, noteB.ID)
}

func userIDs(a, b *model.Note) []string {
	if a.UserID == b.UserID {
		return []string{a.UserID}
	}
	ids := []string{a.UserID, b.UserID}
	sort.Strings(ids)
	return ids
}

func describe(a, b model.Claim, score model.PairScore) string {
	desc := fmt.Sprintf("%q conflicts with %q", a.Text, b.Text)
	if score.Explanation != "" {
		desc += ": " + score.Explanation
	}
	return desc
}
