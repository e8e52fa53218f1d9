package model

// Claim is an atomic assertion extracted from a note.
type Claim struct {
	NoteID string `json:"note_id"`
	Text   string `json:"text"`
}

// ExtractedClaims matches the JSON the claim extraction prompt asks for.
type ExtractedClaims struct {
	Claims []string `json:"claims"`
}
