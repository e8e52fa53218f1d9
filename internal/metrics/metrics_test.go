package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counts(t *testing.T) {
	c := New("notegraph")

	c.NoteCreated()
	c.NoteCreated()
	c.EdgeCreated("related")
	c.Transition("dismissed")
	c.DetectionJob("skipped")
	c.ObserveScorer(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.NotesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EdgesCreated.WithLabelValues("related")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Transitions.WithLabelValues("dismissed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DetectionJobs.WithLabelValues("skipped")))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	a := New("notegraph")
	b := New("notegraph")
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.NoteCreated()
		c.Transition("resolved")
		c.ObserveHTTP("GET", "/notes", "200", time.Millisecond)
	})
}
