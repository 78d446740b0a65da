// Package catalog holds the book catalog and the flat subject taxonomy.
// These are plain persistence collaborators with no derived state; the exam
// core only shares their subject ids.
package catalog

type Book struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Author    string `json:"author,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	ISBN      string `json:"isbn,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	PlanBuy   bool   `json:"plan_buy"`
	CreatedAt int64  `json:"created_at"`
}

type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BookQuery struct {
	Name      string
	Publisher string
	Limit     int
	Offset    int
}
