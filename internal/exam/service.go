package exam

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LVYUANSU/book-manage-system/internal/grading"
)

// Events receives attempt lifecycle notifications for the reporting log.
type Events interface {
	Record(ctx context.Context, typ, key string, data any)
}

type noopEvents struct{}

func (noopEvents) Record(context.Context, string, string, any) {}

// Service implements the question bank, paper composer and test
// administrator on top of a Store and a grading engine.
type Service struct {
	store  Store
	grader grading.Grader
	events Events
	now    func() time.Time
}

type ServiceOption func(*Service)

func WithEvents(e Events) ServiceOption { return func(s *Service) { s.events = e } }

// WithClock overrides the wall clock, used by time-limit tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, grader grading.Grader, opts ...ServiceOption) *Service {
	s := &Service{store: store, grader: grader, events: noopEvents{}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- Question bank ---

func (s *Service) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	if err := validateQuestion(q); err != nil {
		return Question{}, err
	}
	q.ID = uuid.NewString()
	q.CreatedAt = s.now().Unix()
	if err := s.store.PutQuestion(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, q Question) (Question, error) {
	if err := validateQuestion(q); err != nil {
		return Question{}, err
	}
	prev, err := s.store.GetQuestion(ctx, q.ID)
	if err != nil {
		return Question{}, err
	}
	q.CreatedAt = prev.CreatedAt // immutable
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *Service) GetQuestion(ctx context.Context, id string) (Question, error) {
	return s.store.GetQuestion(ctx, id)
}

// DeleteQuestions removes the given questions. Questions still linked to a
// paper are rejected with Conflict; ids that do not exist are skipped.
func (s *Service) DeleteQuestions(ctx context.Context, ids []string) error {
	return s.store.DeleteQuestions(ctx, ids)
}

func (s *Service) ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, int, error) {
	return s.store.ListQuestions(ctx, opts)
}

func validateQuestion(q Question) error {
	if !ValidQuestionType(q.Type) {
		return E(KindInvalidArgument, "unknown question type %q", q.Type)
	}
	if q.Score < 0 {
		return E(KindInvalidArgument, "score must be >= 0")
	}
	if strings.TrimSpace(q.PromptText) == "" && strings.TrimSpace(q.PromptHTML) == "" {
		return E(KindInvalidArgument, "question prompt required")
	}
	return nil
}

// --- Paper catalog ---

func (s *Service) CreatePaper(ctx context.Context, p Paper) (Paper, error) {
	if err := validatePaper(p); err != nil {
		return Paper{}, err
	}
	p.ID = uuid.NewString()
	p.TotalScore = 0 // derived, never client-settable
	p.CreatedAt = s.now().Unix()
	if err := s.store.PutPaper(ctx, p); err != nil {
		return Paper{}, err
	}
	return p, nil
}

func (s *Service) UpdatePaper(ctx context.Context, p Paper) (Paper, error) {
	if err := validatePaper(p); err != nil {
		return Paper{}, err
	}
	prev, err := s.store.GetPaper(ctx, p.ID)
	if err != nil {
		return Paper{}, err
	}
	p.TotalScore = prev.TotalScore
	p.CreatedAt = prev.CreatedAt
	if err := s.store.UpdatePaper(ctx, p); err != nil {
		return Paper{}, err
	}
	return p, nil
}

func (s *Service) GetPaper(ctx context.Context, id string) (Paper, error) {
	return s.store.GetPaper(ctx, id)
}

// DeletePapers deletes papers and their links. Papers with open attempts
// are rejected with Conflict; attempt history is retained.
func (s *Service) DeletePapers(ctx context.Context, ids []string) error {
	return s.store.DeletePapers(ctx, ids)
}

func (s *Service) ListPapers(ctx context.Context, opts PaperListOpts) ([]Paper, int, error) {
	return s.store.ListPapers(ctx, opts)
}

func validatePaper(p Paper) error {
	if strings.TrimSpace(p.Name) == "" {
		return E(KindInvalidArgument, "paper name required")
	}
	if p.LimitTime < 0 {
		return E(KindInvalidArgument, "limit time must be >= 0")
	}
	return nil
}

// --- Paper composer ---

// AddQuestions links the given questions to the paper and returns the
// recomputed total score. Already-linked ids are skipped. Questions from a
// different subject than the paper are rejected with Conflict.
func (s *Service) AddQuestions(ctx context.Context, paperID string, questionIDs []string) (int, error) {
	p, err := s.store.GetPaper(ctx, paperID)
	if err != nil {
		return 0, err
	}
	for _, qid := range questionIDs {
		q, err := s.store.GetQuestion(ctx, qid)
		if err != nil {
			return 0, err
		}
		if q.SubjectID != p.SubjectID {
			return 0, E(KindConflict, "question %s belongs to a different subject than paper %s", qid, paperID)
		}
	}
	return s.store.AddLinks(ctx, paperID, questionIDs)
}

// RemoveQuestions unlinks the given questions and returns the recomputed
// total score. Ids that are not linked are a no-op.
func (s *Service) RemoveQuestions(ctx context.Context, paperID string, questionIDs []string) (int, error) {
	if _, err := s.store.GetPaper(ctx, paperID); err != nil {
		return 0, err
	}
	return s.store.RemoveLinks(ctx, paperID, questionIDs)
}

// ListPaperQuestions returns the linked questions in insertion order.
// Reference answers are stripped unless the viewer owns the paper.
func (s *Service) ListPaperQuestions(ctx context.Context, paperID, viewerID string) ([]Question, error) {
	p, err := s.store.GetPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	qs, err := s.store.ListLinkedQuestions(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if viewerID != p.UserID {
		for i := range qs {
			qs[i].Answer = ""
			qs[i].RightAnswer = ""
		}
	}
	return qs, nil
}

// --- Test administrator ---

// BeginAttempt opens an attempt at a paper. A still-open attempt for the
// same (paper, user) is returned as-is rather than duplicated. Hidden
// papers may only be attempted by their owner.
func (s *Service) BeginAttempt(ctx context.Context, paperID, userID string) (Attempt, error) {
	p, err := s.store.GetPaper(ctx, paperID)
	if err != nil {
		return Attempt{}, err
	}
	if !p.Visible && p.UserID != userID {
		return Attempt{}, E(KindForbidden, "paper %s is not visible", paperID)
	}
	if open, err := s.store.GetOpenAttempt(ctx, paperID, userID); err == nil {
		open, expired, err := s.expireIfDue(ctx, open)
		if err != nil {
			return Attempt{}, err
		}
		if !expired {
			return open, nil
		}
		// stale attempt lapsed; fall through to a fresh one
	} else if !IsKind(err, KindNotFound) {
		return Attempt{}, err
	}

	now := s.now()
	a := Attempt{
		ID:        uuid.NewString(),
		PaperID:   paperID,
		UserID:    userID,
		Status:    StatusOpen,
		StartedAt: now.Unix(),
	}
	if p.LimitTime > 0 {
		a.DueAt = now.Add(time.Duration(p.LimitTime) * time.Minute).Unix()
	}
	if err := s.store.PutAttempt(ctx, a); err != nil {
		if IsKind(err, KindConflict) {
			// lost a concurrent begin; the winner's attempt is the attempt
			return s.store.GetOpenAttempt(ctx, paperID, userID)
		}
		return Attempt{}, err
	}
	return a, nil
}

// SubmitAnswer grades one answer within an open attempt and records it.
// Resubmitting the same question overwrites the earlier record.
func (s *Service) SubmitAnswer(ctx context.Context, attemptID, questionID, answer string) (int, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return 0, err
	}
	a, expired, err := s.expireIfDue(ctx, a)
	if err != nil {
		return 0, err
	}
	if expired {
		return 0, E(KindExpired, "attempt %s expired", attemptID)
	}
	if a.Status != StatusOpen {
		return 0, E(KindInvalidState, "attempt %s is %s", attemptID, a.Status)
	}

	q, err := s.linkedQuestion(ctx, a.PaperID, questionID)
	if err != nil {
		return 0, err
	}
	res, err := s.grader.Grade(ctx, grading.Q{Type: q.Type, Score: q.Score, RightAnswer: q.RightAnswer}, answer)
	if err != nil {
		return 0, E(KindInvalidArgument, "grade question %s: %v", questionID, err)
	}
	rec := AttemptRecord{
		ID:          uuid.NewString(),
		AttemptID:   a.ID,
		QuestionID:  q.ID,
		PaperID:     a.PaperID,
		UserID:      a.UserID,
		Score:       res.Points,
		Answer:      answer,
		NeedsReview: res.NeedsReview,
		CreatedAt:   s.now().Unix(),
	}
	if err := s.store.UpsertRecord(ctx, rec); err != nil {
		return 0, err
	}
	return res.Points, nil
}

// FinishAttempt transitions an open attempt to submitted (or expired when
// past due) and returns it with the aggregate score. Terminal attempts are
// returned unchanged.
func (s *Service) FinishAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusOpen {
		return a, nil
	}
	status := StatusSubmitted
	if pastDue(a, s.now()) {
		status = StatusExpired
	}
	return s.close(ctx, a, status)
}

// GetAttempt applies the lazy expiry check before returning the attempt.
func (s *Service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	a, _, err = s.expireIfDue(ctx, a)
	return a, err
}

func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

func (s *Service) ListAttemptRecords(ctx context.Context, attemptID string) ([]AttemptRecord, error) {
	if _, err := s.store.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, attemptID)
}

// ApplyManualGrades overrides scores of records that were flagged for
// review, clamped to the question's point value, and recomputes the
// attempt aggregate. Only terminal attempts can be regraded.
func (s *Service) ApplyManualGrades(ctx context.Context, attemptID string, grades map[string]int, gradedBy string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusOpen {
		return Attempt{}, E(KindInvalidState, "attempt %s is still open", attemptID)
	}
	recs, err := s.store.ListRecords(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	byQuestion := make(map[string]AttemptRecord, len(recs))
	for _, r := range recs {
		byQuestion[r.QuestionID] = r
	}
	// validate the whole grade set before touching any record; a bad entry
	// must not leave earlier entries half-applied
	type pendingGrade struct {
		recordID string
		points   int
	}
	apply := make([]pendingGrade, 0, len(grades))
	for qid, points := range grades {
		rec, ok := byQuestion[qid]
		if !ok {
			return Attempt{}, E(KindNotFound, "no answer recorded for question %s", qid)
		}
		if !rec.NeedsReview {
			return Attempt{}, E(KindConflict, "question %s was graded automatically", qid)
		}
		q, err := s.store.GetQuestion(ctx, qid)
		if err != nil {
			return Attempt{}, err
		}
		if points < 0 {
			points = 0
		}
		if points > q.Score {
			points = q.Score
		}
		apply = append(apply, pendingGrade{recordID: rec.ID, points: points})
	}
	for _, pg := range apply {
		if err := s.store.UpdateRecordScore(ctx, pg.recordID, pg.points, false); err != nil {
			return Attempt{}, err
		}
	}
	total, err := s.aggregate(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if err := s.store.UpdateAttemptScore(ctx, attemptID, total); err != nil {
		return Attempt{}, err
	}
	a.Score = total
	s.events.Record(ctx, "attempt_regraded", a.ID, map[string]any{"attempt": a, "graded_by": gradedBy})
	return a, nil
}

// --- internals ---

func pastDue(a Attempt, now time.Time) bool {
	return a.DueAt > 0 && now.Unix() >= a.DueAt
}

// expireIfDue performs the lazy Open -> Expired transition. The returned
// bool reports that the attempt is (now) expired.
func (s *Service) expireIfDue(ctx context.Context, a Attempt) (Attempt, bool, error) {
	if a.Status != StatusOpen || !pastDue(a, s.now()) {
		return a, a.Status == StatusExpired, nil
	}
	a, err := s.close(ctx, a, StatusExpired)
	if err != nil {
		return Attempt{}, false, err
	}
	return a, a.Status == StatusExpired, nil
}

// close performs the atomic terminal transition. The store computes the
// aggregate in the same step, so a submission racing the close cannot be
// left out of the stored score. If a concurrent transition wins, the
// stored terminal attempt is returned.
func (s *Service) close(ctx context.Context, a Attempt, status string) (Attempt, error) {
	won, err := s.store.CloseAttempt(ctx, a.ID, status, s.now().Unix())
	if err != nil {
		return Attempt{}, err
	}
	a, err = s.store.GetAttempt(ctx, a.ID)
	if err != nil {
		return Attempt{}, err
	}
	if won {
		s.events.Record(ctx, "attempt_"+status, a.ID, a)
	}
	return a, nil
}

// aggregate sums the latest recorded score per distinct question.
// Unanswered questions contribute 0.
func (s *Service) aggregate(ctx context.Context, attemptID string) (int, error) {
	recs, err := s.store.ListRecords(ctx, attemptID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range recs {
		total += r.Score
	}
	return total, nil
}

func (s *Service) linkedQuestion(ctx context.Context, paperID, questionID string) (Question, error) {
	qs, err := s.store.ListLinkedQuestions(ctx, paperID)
	if err != nil {
		return Question{}, err
	}
	for _, q := range qs {
		if q.ID == questionID {
			return q, nil
		}
	}
	return Question{}, E(KindNotFound, "question %s is not linked to paper %s", questionID, paperID)
}
