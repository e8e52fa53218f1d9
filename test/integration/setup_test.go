//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/driver"
	"github.com/agenthands/notegraph/internal/store/graphstore"
)

// openGraphStore connects to the database named by NEO4J_URI and skips the
// test when none is configured.
func openGraphStore(t *testing.T) *graphstore.Store {
	t.Helper()
	_ = godotenv.Load("../../.env")
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := driver.NewNeo4jDriver(ctx, config.Neo4jConfig{
		URI:      uri,
		User:     os.Getenv("NEO4J_USER"),
		Password: os.Getenv("NEO4J_PASSWORD"),
		Database: os.Getenv("NEO4J_DATABASE"),
		Enabled:  true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, d.BuildIndices(ctx))

	st := graphstore.New(d)
	t.Cleanup(func() {
		_ = st.Close(context.Background())
	})
	return st
}

// seed creates a private note with a unique id so runs do not collide.
func seed(t *testing.T, st *graphstore.Store, user, body string) *model.Note {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	n := &model.Note{
		ID:              uuid.NewString(),
		UserID:          user,
		Title:           body,
		Body:            body,
		Version:         1,
		Visibility:      model.VisibilityPrivate,
		DetectionStatus: model.DetectionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, st.CreateNote(context.Background(), n, n.Snapshot("created", now)))
	t.Cleanup(func() {
		_ = st.DeleteNote(context.Background(), n.ID)
	})
	return n
}
