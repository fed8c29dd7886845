package models

// ScoredItem is a single retrieval hit. Rank is 1-based position in the
// result ordering, which callers depend on (most relevant first).
type ScoredItem struct {
	Item          *Item   `json:"item"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
	Rank          int     `json:"rank"`
}

// Answer is the completed response for one question: the answer text with
// citation markers intact, the items it was grounded on, and extracted
// follow-up questions.
type Answer struct {
	Text      string   `json:"text"`
	Sources   []*Item  `json:"sources"`
	FollowUps []string `json:"follow_ups,omitempty"`
}
