package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/notegraph/internal/auth"
	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/core"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	engine, err := core.NewEngine(config.Default(), core.Deps{
		Store:   memory.New(),
		Metrics: metrics.New("notegraph"),
	})
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, engine.Shutdown(ctx))
	})
	return New(engine, auth.HeaderVerifier{Header: "X-User-ID"}, nil).SetupRouter()
}

func do(t *testing.T, r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createNote(t *testing.T, r http.Handler, user, title, body string) model.Note {
	t.Helper()
	w := do(t, r, http.MethodPost, "/notes", user, map[string]any{"title": title, "body": body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Note](t, w)
}

func TestHealthAndMetricsNeedNoAuth(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	do(t, r, http.MethodGet, "/notes", "u1", nil)
	w = do(t, r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `notegraph_http_requests_total{method="GET",route="/notes",status="200"} 1`)
}

func TestUnauthenticated(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/notes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode[errorResponse](t, w).Error.Kind)
}

func TestNoteLifecycle(t *testing.T) {
	r := newTestRouter(t)
	note := createNote(t, r, "u1", "Groceries", "Buy milk")
	assert.Equal(t, 1, note.Version)

	w := do(t, r, http.MethodPatch, "/notes/"+note.ID, "u1", map[string]any{"body": "Buy milk and eggs", "base_version": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[model.NoteVersion](t, w).Version)

	// A second writer still holding version 1 loses.
	w = do(t, r, http.MethodPatch, "/notes/"+note.ID, "u1", map[string]any{"body": "Buy bread", "base_version": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode[errorResponse](t, w).Error.Kind)

	w = do(t, r, http.MethodGet, "/notes/"+note.ID+"/history", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Versions []model.NoteVersion `json:"versions"`
	}](t, w)
	require.Len(t, history.Versions, 2)
	assert.Equal(t, "Buy milk and eggs", history.Versions[1].Body)

	w = do(t, r, http.MethodGet, "/notes/"+note.ID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "private notes are invisible to others")

	w = do(t, r, http.MethodDelete, "/notes/"+note.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, "/notes/"+note.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationErrors(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/notes", "u1", map[string]any{"title": "", "body": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", decode[errorResponse](t, w).Error.Kind)

	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{not json"))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = do(t, r, http.MethodGet, "/notes?limit=-1", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/contradictions?status=archived", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConnectTwiceIsConflict(t *testing.T) {
	r := newTestRouter(t)
	a := createNote(t, r, "u1", "A", "alpha")
	b := createNote(t, r, "u1", "B", "beta")

	req := map[string]any{"source_note_id": a.ID, "target_note_id": b.ID, "type": "related", "strength": 0.8}
	w := do(t, r, http.MethodPost, "/connections", "u1", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	edge := decode[model.Edge](t, w)

	w = do(t, r, http.MethodPost, "/connections", "u1", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodGet, "/notes/"+a.ID+"/connections?type=related", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	conns := decode[struct {
		Connections []model.Edge `json:"connections"`
	}](t, w)
	assert.Len(t, conns.Connections, 1)

	w = do(t, r, http.MethodGet, "/graph/clusters", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	clusters := decode[struct {
		Clusters []model.Cluster `json:"clusters"`
	}](t, w)
	require.Len(t, clusters.Clusters, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, clusters.Clusters[0].NoteIDs)

	w = do(t, r, http.MethodDelete, "/connections/"+edge.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/graph", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.GraphView](t, w).Edges)
}

func TestContradictionFlow(t *testing.T) {
	r := newTestRouter(t)
	a := createNote(t, r, "u1", "Nuclear", "Nuclear energy is the best climate solution")
	createNote(t, r, "u1", "Renewables", "Only solar and wind are viable climate solutions")

	w := do(t, r, http.MethodPost, "/notes/"+a.ID+"/detect", "u1", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	type listResponse struct {
		Contradictions []model.Contradiction `json:"contradictions"`
	}
	var list listResponse
	require.Eventually(t, func() bool {
		w := do(t, r, http.MethodGet, "/contradictions?status=unresolved", "u1", nil)
		list = decode[listResponse](t, w)
		return len(list.Contradictions) == 1
	}, 2*time.Second, 10*time.Millisecond)
	id := list.Contradictions[0].ID

	w = do(t, r, http.MethodGet, "/contradictions/"+id, "u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/contradictions/"+id+"/dismiss", "u1", map[string]any{"reason": "different timescales"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dismissed := decode[model.Contradiction](t, w)
	assert.Equal(t, model.StatusDismissed, dismissed.Status)
	require.Len(t, dismissed.Audit, 1)
	assert.Equal(t, "different timescales", dismissed.Audit[0].Reason)

	w = do(t, r, http.MethodPost, "/contradictions/"+id+"/dismiss", "u1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decode[errorResponse](t, w).Error.Kind)

	w = do(t, r, http.MethodPost, "/contradictions/"+id+"/resolve", "u1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
