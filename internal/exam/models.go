package exam

import "github.com/LVYUANSU/book-manage-system/internal/grading"

// Question types form a closed set; the type picks the grading strategy.
const (
	TypeSingleChoice = grading.TypeSingleChoice
	TypeMultiChoice  = grading.TypeMultiChoice
	TypeFillBlank    = grading.TypeFillBlank
	TypeEssay        = grading.TypeEssay
)

func ValidQuestionType(t string) bool {
	switch t {
	case TypeSingleChoice, TypeMultiChoice, TypeFillBlank, TypeEssay:
		return true
	}
	return false
}

// Attempt lifecycle. Open is the only state that accepts answers.
const (
	StatusOpen      = "open"
	StatusSubmitted = "submitted"
	StatusExpired   = "expired"
)

type Question struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	SubjectID   string `json:"subject_id"`
	UserID      string `json:"user_id"`
	PromptHTML  string `json:"prompt_html"`            // rich-text body
	PromptText  string `json:"prompt_text"`            // plain rendering for lists
	Answer      string `json:"answer,omitempty"`       // reference answer / explanation
	RightAnswer string `json:"right_answer,omitempty"` // canonical token(s); "," separates multi-choice options, "|" fill-blank alternatives
	Score       int    `json:"score"`
	CreatedAt   int64  `json:"created_at"`
}

type Paper struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SubjectID  string `json:"subject_id"`
	UserID     string `json:"user_id"`
	Detail     string `json:"detail,omitempty"`
	LimitTime  int64  `json:"limit_time"`  // minutes; 0 = untimed
	TotalScore int    `json:"total_score"` // derived: sum of linked question scores
	Visible    bool   `json:"visible"`
	CreatedAt  int64  `json:"created_at"`
}

// PaperQuestion links a paper to a question. Position is insertion order
// and doubles as the display order.
type PaperQuestion struct {
	ID         string `json:"id"`
	PaperID    string `json:"paper_id"`
	QuestionID string `json:"question_id"`
	Position   int    `json:"position"`
}

type Attempt struct {
	ID         string `json:"id"`
	PaperID    string `json:"paper_id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	Score      int    `json:"score"`
	StartedAt  int64  `json:"started_at"`
	DueAt      int64  `json:"due_at,omitempty"` // 0 = never expires
	FinishedAt int64  `json:"finished_at,omitempty"`
}

// AttemptRecord is one scored answer within one attempt. At most one record
// per (attempt, question); resubmission overwrites while the attempt is open.
type AttemptRecord struct {
	ID          string `json:"id"`
	AttemptID   string `json:"attempt_id"`
	QuestionID  string `json:"question_id"`
	PaperID     string `json:"paper_id"`
	UserID      string `json:"user_id"`
	Score       int    `json:"score"`
	Answer      string `json:"answer"`
	NeedsReview bool   `json:"needs_review,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}
