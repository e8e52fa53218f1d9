package community

import (
	"sort"

	"github.com/agenthands/notegraph/internal/core/model"
)

// LabelPropagationDetector groups notes with the label propagation
// algorithm. Edge strength is the vote weight; parallel edges add up.
type LabelPropagationDetector struct {
	MaxIterations int
}

func NewLabelPropagationDetector() *LabelPropagationDetector {
	return &LabelPropagationDetector{
		MaxIterations: 20,
	}
}

func (d *LabelPropagationDetector) Detect(notes []*model.Note, edges []model.Edge) ([]model.Cluster, error) {
	if len(notes) == 0 {
		return nil, nil
	}

	adj := make(map[string]map[string]float64, len(notes))
	byID := make(map[string]*model.Note, len(notes))
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
		adj[n.ID] = make(map[string]float64)
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
		if e.SourceNoteID == e.TargetNoteID {
			continue
		}
		// A zero-strength edge still links the notes.
		w := e.Strength
		if w <= 0 {
			w = 0.01
		}
		adj[e.SourceNoteID][e.TargetNoteID] += w
		adj[e.TargetNoteID][e.SourceNoteID] += w
	}

	labels := make(map[string]string, len(ids))
	for _, id := range ids {
		labels[id] = id
	}

	for iter := 0; iter < d.MaxIterations; iter++ {
		changed := 0
		for _, u := range ids {
			neighbors := adj[u]
			if len(neighbors) == 0 {
				continue
			}

			votes := make(map[string]float64)
			best := 0.0
			for v, w := range neighbors {
				votes[labels[v]] += w
				if votes[labels[v]] > best {
					best = votes[labels[v]]
				}
			}

			var candidates []string
			for label, score := range votes {
				if score == best {
					candidates = append(candidates, label)
				}
			}
			// Ties go to the lexicographically largest label so runs are
			// deterministic.
			sort.Strings(candidates)
			winner := candidates[len(candidates)-1]

			if labels[u] != winner {
				labels[u] = winner
				changed++
			}
		}
		if changed == 0 {
			break
		}
	}

	members := make(map[string][]string)
	for _, id := range ids {
		members[labels[id]] = append(members[labels[id]], id)
	}

	var clusters []model.Cluster
	for label, noteIDs := range members {
		if len(noteIDs) < 2 {
			continue
		}
		c := model.Cluster{Label: label, NoteIDs: noteIDs}
		for _, id := range noteIDs {
			c.Titles = append(c.Titles, byID[id].Title)
		}
		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].NoteIDs) != len(clusters[j].NoteIDs) {
			return len(clusters[i].NoteIDs) > len(clusters[j].NoteIDs)
		}
		return clusters[i].Label < clusters[j].Label
	})
	return clusters, nil
}
