// Package community groups connected notes into clusters for the graph view.
package community

import (
	"fmt"
	"sort"

	"github.com/agenthands/notegraph/internal/core/model"
)

// Detector groups notes into clusters. Clusters of one note are dropped.
type Detector interface {
	Detect(notes []*model.Note, edges []model.Edge) ([]model.Cluster, error)
}

// New returns the detector for a configured algorithm name.
func New(algorithm string) (Detector, error) {
	switch algorithm {
	case "", "label_propagation":
		return NewLabelPropagationDetector(), nil
	case "components":
		return &ComponentDetector{}, nil
	}
	return nil, fmt.Errorf("unknown clustering algorithm: %s", algorithm)
}

// ComponentDetector returns the connected components of the graph,
// ignoring edge strength.
type ComponentDetector struct{}

func (d *ComponentDetector) Detect(notes []*model.Note, edges []model.Edge) ([]model.Cluster, error) {
	byID := make(map[string]*model.Note, len(notes))
	adj := make(map[string][]string)
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	for _, e := range edges {
		if _, ok := byID[e.SourceNoteID]; !ok {
			continue
		}
		if _, ok := byID[e.TargetNoteID]; !ok {
			continue
		}
		adj[e.SourceNoteID] = append(adj[e.SourceNoteID], e.TargetNoteID)
		adj[e.TargetNoteID] = append(adj[e.TargetNoteID], e.SourceNoteID)
	}

	visited := make(map[string]bool, len(ids))
	var clusters []model.Cluster
	for _, id := range ids {
		if visited[id] {
			continue
		}
		var component []string
		d.dfs(id, adj, visited, &component)
		if len(component) < 2 {
			continue
		}
		sort.Strings(component)
		c := model.Cluster{Label: component[0], NoteIDs: component}
		for _, nid := range component {
			c.Titles = append(c.Titles, byID[nid].Title)
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

func (d *ComponentDetector) dfs(u string, adj map[string][]string, visited map[string]bool, component *[]string) {
	visited[u] = true
	*component = append(*component, u)
	for _, v := range adj[u] {
		if !visited[v] {
			d.dfs(v, adj, visited, component)
		}
	}
}
