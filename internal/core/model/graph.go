package model

// GraphView is the graph view payload: a user's notes and the edges among them.
type GraphView struct {
	Notes []*Note `json:"notes"`
	Edges []Edge  `json:"edges"`
}

// Cluster is a group of densely connected notes.
type Cluster struct {
	Label   string   `json:"label"`
	Name    string   `json:"name,omitempty"`
	NoteIDs []string `json:"note_ids"`
	Titles  []string `json:"titles"`
}

// ClusterName matches the JSON the cluster naming prompt asks for.
type ClusterName struct {
	Name string `json:"name"`
}
