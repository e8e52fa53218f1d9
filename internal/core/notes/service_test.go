package notes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/store"
	"github.com/agenthands/notegraph/internal/store/memory"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) Enqueue(noteID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, noteID)
}

func ptr[T any](v T) *T { return &v }

func newService(t *testing.T, opts ...Option) (*Service, *recordingQueue) {
	t.Helper()
	q := &recordingQueue{}
	opts = append([]Option{WithQueue(q)}, opts...)
	return NewService(memory.New().Notes(), opts...), q
}

func TestCreate(t *testing.T) {
	svc, q := newService(t)
	ctx := context.Background()

	note, err := svc.Create(ctx, "u1", CreateInput{
		Title: "  Energy ",
		Body:  "Nuclear energy is the best climate solution",
		Tags:  []string{"Climate", "energy", "climate "},
	})
	require.NoError(t, err)

	assert.Equal(t, "Energy", note.Title)
	assert.Equal(t, 1, note.Version)
	assert.Equal(t, model.VisibilityPrivate, note.Visibility)
	assert.Equal(t, []string{"climate", "energy"}, note.Tags)
	assert.Equal(t, []string{note.ID}, q.ids)

	history, err := svc.History(ctx, "u1", note.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Version)
}

func TestCreate_Validation(t *testing.T) {
	svc, q := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", CreateInput{Title: "   ", Body: "x"})
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = svc.Create(ctx, "u1", CreateInput{Title: "x", Body: "\n\t"})
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = svc.Create(ctx, "u1", CreateInput{Title: "x", Body: "y", Visibility: "friends"})
	assert.ErrorIs(t, err, apperr.Validation)

	assert.Empty(t, q.ids)
}

func TestUpdate_AppendsVersion(t *testing.T) {
	svc, q := newService(t)
	ctx := context.Background()

	note, err := svc.Create(ctx, "u1", CreateInput{Title: "Energy", Body: "Solar is cheap"})
	require.NoError(t, err)

	v, err := svc.Update(ctx, "u1", note.ID, Patch{Body: ptr("Solar is cheap and fast to build")})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Version)
	assert.Equal(t, "body +18/-0 chars", v.ChangeSummary)

	v, err = svc.Update(ctx, "u1", note.ID, Patch{Visibility: ptr(model.VisibilityPublic), ChangeSummary: "share"})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Version)
	assert.Equal(t, "share", v.ChangeSummary)

	history, err := svc.History(ctx, "u1", note.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Solar is cheap", history[0].Body, "history is never rewritten")
	assert.Len(t, q.ids, 3)
}

func TestUpdate_StaleBaseVersionConflicts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	note, err := svc.Create(ctx, "u1", CreateInput{Title: "Plan", Body: "v1"})
	require.NoError(t, err)

	// Both writers read version 1; the first one wins.
	first, err := svc.Update(ctx, "u1", note.ID, Patch{Body: ptr("first"), BaseVersion: ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Version)

	_, err = svc.Update(ctx, "u1", note.ID, Patch{Body: ptr("second"), BaseVersion: ptr(1)})
	assert.ErrorIs(t, err, apperr.Conflict)

	history, err := svc.History(ctx, "u1", note.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[1].Body)
}

// interleavingRepo lets another writer land between the read and the
// compare-and-set of the first n appends.
type interleavingRepo struct {
	store.NoteRepository
	interleave int
	writer     func()
}

func (r *interleavingRepo) AppendVersion(ctx context.Context, note *model.Note, v model.NoteVersion, expected int) error {
	if r.interleave > 0 {
		r.interleave--
		r.writer()
	}
	return r.NoteRepository.AppendVersion(ctx, note, v, expected)
}

func TestUpdate_RetriesWithoutBaseVersion(t *testing.T) {
	repo := &interleavingRepo{NoteRepository: memory.New().Notes()}
	svc := NewService(repo)
	ctx := context.Background()

	note, err := svc.Create(ctx, "u1", CreateInput{Title: "Plan", Body: "v1"})
	require.NoError(t, err)

	repo.interleave = 1
	repo.writer = func() {
		current, err := repo.GetNote(ctx, note.ID)
		require.NoError(t, err)
		other := *current
		other.Body = "concurrent"
		other.Version = current.Version + 1
		require.NoError(t, repo.NoteRepository.AppendVersion(ctx, &other, other.Snapshot("", svc.Now()), current.Version))
	}

	v, err := svc.Update(ctx, "u1", note.ID, Patch{Body: ptr("mine")})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Version)

	history, err := svc.History(ctx, "u1", note.ID)
	require.NoError(t, err)
	bodies := make([]string, 0, len(history))
	for _, h := range history {
		bodies = append(bodies, h.Body)
	}
	assert.Equal(t, []string{"v1", "concurrent", "mine"}, bodies, "both writers are preserved")
}

func TestUpdate_GivesUpAfterRetryBudget(t *testing.T) {
	repo := &interleavingRepo{NoteRepository: memory.New().Notes()}
	svc := NewService(repo, WithMaxCASRetries(2))
	ctx := context.Background()

	note, err := svc.Create(ctx, "u1", CreateInput{Title: "Plan", Body: "v1"})
	require.NoError(t, err)

	n := 0
	repo.interleave = 10
	repo.writer = func() {
		n++
		current, _ := repo.GetNote(ctx, note.ID)
		other := *current
		other.Body = fmt.Sprintf("other %d", n)
		other.Version = current.Version + 1
		_ = repo.NoteRepository.AppendVersion(ctx, &other, other.Snapshot("", svc.Now()), current.Version)
	}

	_, err = svc.Update(ctx, "u1", note.ID, Patch{Body: ptr("mine")})
	assert.ErrorIs(t, err, apperr.Conflict)
	assert.Equal(t, 2, n)
}

func TestUpdate_ConcurrentWritersAllLand(t *testing.T) {
	const writers = 8
	svc, _ := newService(t, WithMaxCASRetries(writers+1))
	ctx := context.Background()

	note, err := svc.Create(ctx, "u1", CreateInput{Title: "Plan", Body: "v1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Update(ctx, "u1", note.ID, Patch{Body: ptr(fmt.Sprintf("writer %d", i))})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	history, err := svc.History(ctx, "u1", note.ID)
	require.NoError(t, err)
	require.Len(t, history, writers+1)
	for i, h := range history {
		assert.Equal(t, i+1, h.Version)
	}
}

func TestAccessControl(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	private, err := svc.Create(ctx, "owner", CreateInput{Title: "Secret", Body: "hidden"})
	require.NoError(t, err)
	public, err := svc.Create(ctx, "owner", CreateInput{Title: "Open", Body: "shared", Visibility: model.VisibilityPublic})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "intruder", private.ID)
	assert.ErrorIs(t, err, apperr.NotFound)
	_, err = svc.History(ctx, "intruder", private.ID)
	assert.ErrorIs(t, err, apperr.NotFound)

	got, err := svc.Get(ctx, "intruder", public.ID)
	require.NoError(t, err)
	assert.Equal(t, "Open", got.Title)

	_, err = svc.Update(ctx, "intruder", public.ID, Patch{Body: ptr("defaced")})
	assert.ErrorIs(t, err, apperr.NotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "intruder", public.ID), apperr.NotFound)

	require.NoError(t, svc.Delete(ctx, "owner", private.ID))
	_, err = svc.Get(ctx, "owner", private.ID)
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestList_FiltersByTag(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", CreateInput{Title: "a", Body: "a", Tags: []string{"energy"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u1", CreateInput{Title: "b", Body: "b", Tags: []string{"food"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u2", CreateInput{Title: "c", Body: "c", Tags: []string{"energy"}})
	require.NoError(t, err)

	notes, err := svc.List(ctx, "u1", model.NoteQuery{Tag: " Energy"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "a", notes[0].Title)
}

func TestSummarize(t *testing.T) {
	prev := &model.Note{Title: "t", Body: "hello world", Tags: []string{"a"}}
	next := &model.Note{Title: "t2", Body: "hello there world", Tags: []string{"a", "b"}}

	summary := Summarize(prev, next)
	assert.True(t, strings.HasPrefix(summary, "title changed; body +6/-0 chars"), summary)
	assert.Contains(t, summary, "tags changed")
	assert.Equal(t, "no content change", Summarize(prev, prev))
}

func TestProperty_HistoryIsGapFree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("versions start at 1 and increase by one", prop.ForAll(
		func(bodies []string) bool {
			svc := NewService(memory.New().Notes())
			ctx := context.Background()

			note, err := svc.Create(ctx, "u1", CreateInput{Title: "t", Body: "start"})
			if err != nil {
				return false
			}
			for _, b := range bodies {
				// Empty bodies are rejected and must not consume a version.
				_, _ = svc.Update(ctx, "u1", note.ID, Patch{Body: ptr(b)})
			}

			history, err := svc.History(ctx, "u1", note.ID)
			if err != nil {
				return false
			}
			for i, h := range history {
				if h.Version != i+1 {
					return false
				}
			}
			current, err := svc.Get(ctx, "u1", note.ID)
			return err == nil && current.Version == len(history)
		},
		gen.SliceOf(gen.OneConstOf("", "   ", "solar", "wind is viable", "nuclear is the best")),
	))

	properties.TestingRun(t)
}
