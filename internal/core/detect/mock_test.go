package detect

import (
	"context"
	"sync"

	"github.com/agenthands/notegraph/internal/core/model"
)

type MockScorer struct {
	mu    sync.Mutex
	Calls int
	Out   model.PairScore
	Err   error
}

func (m *MockScorer) Score(_ context.Context, a, b model.Claim) (model.PairScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return model.PairScore{}, m.Err
	}
	return m.Out, nil
}

// MockRunner counts runs per note. When Block is set every run waits for
// it; Started receives the note id as a run begins.
type MockRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	Err     error
	Block   chan struct{}
	Started chan string
}

func (m *MockRunner) Run(ctx context.Context, noteID string) (*Result, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[noteID]++
	err := m.Err
	m.mu.Unlock()

	if m.Started != nil {
		select {
		case m.Started <- noteID:
		default:
		}
	}
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Result{NoteID: noteID}, nil
}

func (m *MockRunner) Calls(noteID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[noteID]
}

// MockExtractor returns one claim per note. With Hang set it waits for the
// call's context instead, like a provider that never answers.
type MockExtractor struct {
	mu    sync.Mutex
	Calls int
	Hang  bool
}

func (m *MockExtractor) Extract(ctx context.Context, note *model.Note) ([]model.Claim, error) {
	m.mu.Lock()
	m.Calls++
	hang := m.Hang
	m.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []model.Claim{{NoteID: note.ID, Text: note.Body}}, nil
}
