package model

// PairScore is the scorer's verdict on two claims.
type PairScore struct {
	Topic       float64 `json:"topic_similarity"`
	Opposition  float64 `json:"opposition"`
	Explanation string  `json:"explanation,omitempty"`
}

// PairVerdict is the best claim-level score for a note pair.
type PairVerdict struct {
	NoteA  *Note
	NoteB  *Note
	ClaimA Claim
	ClaimB Claim
	Score  PairScore
}
