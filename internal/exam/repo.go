package exam

import "context"

type QuestionListOpts struct {
	SubjectID string
	Q         string // substring match over prompt text
	Limit     int
	Offset    int
}

type PaperListOpts struct {
	SubjectID string
	Q         string
	ViewerID  string // hidden papers are listed only for their owner
	Limit     int
	Offset    int
}

type AttemptListOpts struct {
	PaperID string
	UserID  string
	Status  string
	Limit   int
	Offset  int
}

// Store is the persistence contract for the exam core. Implementations must
// make AddLinks/RemoveLinks recompute the paper total atomically with the
// link change, and CloseAttempt a single check-and-set on the open status.
type Store interface {
	PutQuestion(ctx context.Context, q Question) error
	UpdateQuestion(ctx context.Context, q Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	DeleteQuestions(ctx context.Context, ids []string) error
	ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, int, error)

	PutPaper(ctx context.Context, p Paper) error
	UpdatePaper(ctx context.Context, p Paper) error
	GetPaper(ctx context.Context, id string) (Paper, error)
	DeletePapers(ctx context.Context, ids []string) error
	ListPapers(ctx context.Context, opts PaperListOpts) ([]Paper, int, error)

	// AddLinks links each not-yet-linked question and returns the
	// recomputed paper total. RemoveLinks is a no-op for unlinked ids.
	AddLinks(ctx context.Context, paperID string, questionIDs []string) (int, error)
	RemoveLinks(ctx context.Context, paperID string, questionIDs []string) (int, error)
	ListLinkedQuestions(ctx context.Context, paperID string) ([]Question, error)

	// PutAttempt fails with Conflict when an open attempt already exists
	// for the same (paper, user).
	PutAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	GetOpenAttempt(ctx context.Context, paperID, userID string) (Attempt, error)
	// CloseAttempt transitions an open attempt to a terminal status,
	// computing the aggregate score from its records in the same atomic
	// step, and reports whether this call won the transition.
	CloseAttempt(ctx context.Context, id, status string, finishedAt int64) (bool, error)
	// UpdateAttemptScore rewrites the stored aggregate after manual grading.
	UpdateAttemptScore(ctx context.Context, id string, score int) error
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	UpsertRecord(ctx context.Context, r AttemptRecord) error
	ListRecords(ctx context.Context, attemptID string) ([]AttemptRecord, error)
	UpdateRecordScore(ctx context.Context, recordID string, score int, needsReview bool) error
}
