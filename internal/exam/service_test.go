package exam

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/LVYUANSU/book-manage-system/internal/grading"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func newFakeClock() *fakeClock               { return &fakeClock{t: time.Unix(1_000_000, 0)} }
func clockService(c *fakeClock, opts ...ServiceOption) *Service {
	opts = append([]ServiceOption{WithClock(c.Now)}, opts...)
	return NewService(NewInMemoryStore(), grading.NewDefaultGrader(), opts...)
}

func TestAttemptFullCorrectAnswer(t *testing.T) {
	// single-choice Q1 score=5 right="B" on an untimed paper
	ctx := context.Background()
	svc := newTestService(t)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{q1.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}

	a, err := svc.BeginAttempt(ctx, p.ID, "student-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if a.DueAt != 0 {
		t.Fatalf("untimed paper got due time %d", a.DueAt)
	}
	score, err := svc.SubmitAnswer(ctx, a.ID, q1.ID, "B")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if score != 5 {
		t.Fatalf("awarded = %d, want 5", score)
	}
	final, err := svc.FinishAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if final.Status != StatusSubmitted || final.Score != 5 {
		t.Fatalf("final = %s/%d, want submitted/5", final.Status, final.Score)
	}
}

func TestUnansweredQuestionsContributeZero(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	q2 := mustCreateQuestion(t, svc, "go", 3, "A")
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{q1.ID, q2.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}

	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")
	if _, err := svc.SubmitAnswer(ctx, a.ID, q1.ID, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	final, err := svc.FinishAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if final.Score != 5 {
		t.Fatalf("aggregate = %d, want 5 (q2 unanswered contributes 0)", final.Score)
	}
}

func TestSubmitAfterDueTimeExpires(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	svc := clockService(clk)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	p := mustCreatePaper(t, svc, "go", 1) // one minute
	if _, err := svc.AddQuestions(ctx, p.ID, []string{q1.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}

	a, err := svc.BeginAttempt(ctx, p.ID, "student-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if a.DueAt != clk.Now().Add(time.Minute).Unix() {
		t.Fatalf("due = %d, want start+1m", a.DueAt)
	}

	clk.Advance(2 * time.Minute)
	_, err = svc.SubmitAnswer(ctx, a.ID, q1.ID, "B")
	if !IsKind(err, KindExpired) {
		t.Fatalf("err = %v, want Expired", err)
	}
	// the rejection also performed the transition
	got, err := svc.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if got.Score != 0 {
		t.Fatalf("expired with nothing submitted scored %d", got.Score)
	}
}

func TestExpiryAppliesOnRead(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	svc := clockService(clk)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	p := mustCreatePaper(t, svc, "go", 1)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{q1.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}

	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")
	if _, err := svc.SubmitAnswer(ctx, a.ID, q1.ID, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	clk.Advance(time.Hour)

	got, err := svc.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status = %s, want expired without any submit call", got.Status)
	}
	if got.Score != 5 {
		t.Fatalf("expired aggregate = %d, want what was submitted before expiry", got.Score)
	}
}

func TestBeginIsIdempotentWhileOpen(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	p := mustCreatePaper(t, svc, "go", 0)

	a1, err := svc.BeginAttempt(ctx, p.ID, "student-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	a2, err := svc.BeginAttempt(ctx, p.ID, "student-1")
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if a1.ID != a2.ID {
		t.Fatalf("second begin created a new attempt: %s != %s", a1.ID, a2.ID)
	}
	// a different user gets their own attempt
	b, _ := svc.BeginAttempt(ctx, p.ID, "student-2")
	if b.ID == a1.ID {
		t.Fatal("attempts are not independent per user")
	}
}

func TestBeginHiddenPaperForbidden(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	p, err := svc.CreatePaper(ctx, Paper{Name: "secret", SubjectID: "go", UserID: "teacher-1", Visible: false})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.BeginAttempt(ctx, p.ID, "student-1"); !IsKind(err, KindForbidden) {
		t.Fatalf("err = %v, want Forbidden", err)
	}
	// the owner may preview a hidden paper
	if _, err := svc.BeginAttempt(ctx, p.ID, "teacher-1"); err != nil {
		t.Fatalf("owner begin: %v", err)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{q1.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}
	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")
	if _, err := svc.SubmitAnswer(ctx, a.ID, q1.ID, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	first, err := svc.FinishAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	second, err := svc.FinishAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("finish again: %v", err)
	}
	if second.Score != first.Score || second.Status != first.Status || second.FinishedAt != first.FinishedAt {
		t.Fatalf("second finish changed the attempt: %+v vs %+v", second, first)
	}
}

func TestResubmissionOverwrites(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{q1.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}
	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")

	if score, _ := svc.SubmitAnswer(ctx, a.ID, q1.ID, "A"); score != 0 {
		t.Fatalf("wrong answer scored %d", score)
	}
	if score, _ := svc.SubmitAnswer(ctx, a.ID, q1.ID, "B"); score != 5 {
		t.Fatal("resubmission not graded")
	}

	recs, err := svc.ListAttemptRecords(ctx, a.ID)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want exactly 1 after overwrite", len(recs))
	}
	if recs[0].Answer != "B" || recs[0].Score != 5 {
		t.Fatalf("record = %q/%d, want latest answer B/5", recs[0].Answer, recs[0].Score)
	}
	final, _ := svc.FinishAttempt(ctx, a.ID)
	if final.Score != 5 {
		t.Fatalf("aggregate = %d, want 5 (no double count)", final.Score)
	}
}

func TestTerminalAttemptRejectsSubmissions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{q1.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}
	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")
	if _, err := svc.FinishAttempt(ctx, a.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := svc.SubmitAnswer(ctx, a.ID, q1.ID, "B"); !IsKind(err, KindInvalidState) {
		t.Fatalf("err = %v, want InvalidState", err)
	}
	recs, _ := svc.ListAttemptRecords(ctx, a.ID)
	if len(recs) != 0 {
		t.Fatalf("rejected submission appended a record")
	}
}

func TestSubmitUnlinkedQuestionNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	q1 := mustCreateQuestion(t, svc, "go", 5, "B")
	p := mustCreatePaper(t, svc, "go", 0)
	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")
	if _, err := svc.SubmitAnswer(ctx, a.ID, q1.ID, "B"); !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound for unlinked question", err)
	}
}

func TestDeletePaperWithOpenAttemptConflicts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.BeginAttempt(ctx, p.ID, "student-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := svc.DeletePapers(ctx, []string{p.ID}); !IsKind(err, KindConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
}

func TestManualGrading(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	svc := clockService(clk) // default grader: essay policy manual
	essay, err := svc.CreateQuestion(ctx, Question{
		Type: TypeEssay, SubjectID: "go", UserID: "teacher-1",
		PromptText: "explain goroutines", RightAnswer: "goroutine,channel", Score: 6,
	})
	if err != nil {
		t.Fatalf("create essay: %v", err)
	}
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{essay.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}

	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")
	if score, _ := svc.SubmitAnswer(ctx, a.ID, essay.ID, "my essay"); score != 0 {
		t.Fatalf("manual policy auto-awarded %d", score)
	}

	// regrading an open attempt is rejected
	if _, err := svc.ApplyManualGrades(ctx, a.ID, map[string]int{essay.ID: 4}, "teacher-1"); !IsKind(err, KindInvalidState) {
		t.Fatalf("err = %v, want InvalidState for open attempt", err)
	}
	if _, err := svc.FinishAttempt(ctx, a.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	regraded, err := svc.ApplyManualGrades(ctx, a.ID, map[string]int{essay.ID: 40}, "teacher-1")
	if err != nil {
		t.Fatalf("apply grades: %v", err)
	}
	if regraded.Score != 6 {
		t.Fatalf("score = %d, want clamp to the question's 6 points", regraded.Score)
	}
	recs, _ := svc.ListAttemptRecords(ctx, a.ID)
	if recs[0].NeedsReview {
		t.Fatal("record still flagged for review after manual grade")
	}
}

func TestManualGradingIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	choice := mustCreateQuestion(t, svc, "go", 5, "B")
	essay, err := svc.CreateQuestion(ctx, Question{
		Type: TypeEssay, SubjectID: "go", UserID: "teacher-1",
		PromptText: "explain channels", Score: 6,
	})
	if err != nil {
		t.Fatalf("create essay: %v", err)
	}
	p := mustCreatePaper(t, svc, "go", 0)
	if _, err := svc.AddQuestions(ctx, p.ID, []string{choice.ID, essay.ID}); err != nil {
		t.Fatalf("add: %v", err)
	}

	a, _ := svc.BeginAttempt(ctx, p.ID, "student-1")
	if _, err := svc.SubmitAnswer(ctx, a.ID, choice.ID, "B"); err != nil {
		t.Fatalf("submit choice: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, a.ID, essay.ID, "my essay"); err != nil {
		t.Fatalf("submit essay: %v", err)
	}
	if _, err := svc.FinishAttempt(ctx, a.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	essayRecord := func() AttemptRecord {
		recs, err := svc.ListAttemptRecords(ctx, a.ID)
		if err != nil {
			t.Fatalf("records: %v", err)
		}
		for _, r := range recs {
			if r.QuestionID == essay.ID {
				return r
			}
		}
		t.Fatal("essay record missing")
		return AttemptRecord{}
	}

	// one bad entry rejects the whole set: nothing may be applied
	_, err = svc.ApplyManualGrades(ctx, a.ID, map[string]int{essay.ID: 4, "never-answered": 1}, "teacher-1")
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound for unanswered question", err)
	}
	if r := essayRecord(); r.Score != 0 || !r.NeedsReview {
		t.Fatalf("rejected grade set mutated the record: %+v", r)
	}
	got, _ := svc.GetAttempt(ctx, a.ID)
	if got.Score != 5 {
		t.Fatalf("rejected grade set changed the aggregate: %d, want 5", got.Score)
	}

	// an auto-graded question in the set rejects it the same way
	_, err = svc.ApplyManualGrades(ctx, a.ID, map[string]int{essay.ID: 4, choice.ID: 2}, "teacher-1")
	if !IsKind(err, KindConflict) {
		t.Fatalf("err = %v, want Conflict for auto-graded question", err)
	}
	if r := essayRecord(); r.Score != 0 || !r.NeedsReview {
		t.Fatalf("rejected grade set mutated the record: %+v", r)
	}

	regraded, err := svc.ApplyManualGrades(ctx, a.ID, map[string]int{essay.ID: 4}, "teacher-1")
	if err != nil {
		t.Fatalf("apply grades: %v", err)
	}
	if regraded.Score != 9 {
		t.Fatalf("score = %d, want 5+4", regraded.Score)
	}
}

// racingStore simulates a concurrent begin winning between the open-attempt
// pre-check and the insert.
type racingStore struct {
	Store
	stole bool
}

func (s *racingStore) GetOpenAttempt(ctx context.Context, paperID, userID string) (Attempt, error) {
	if !s.stole {
		s.stole = true
		return Attempt{}, E(KindNotFound, "no open attempt for paper %s user %s", paperID, userID)
	}
	return s.Store.GetOpenAttempt(ctx, paperID, userID)
}

func (s *racingStore) PutAttempt(ctx context.Context, a Attempt) error {
	winner := a
	winner.ID = "winner-" + a.ID
	if err := s.Store.PutAttempt(ctx, winner); err != nil {
		return err
	}
	return E(KindConflict, "open attempt exists for paper %s user %s", a.PaperID, a.UserID)
}

func TestBeginRaceLoserGetsWinnersAttempt(t *testing.T) {
	ctx := context.Background()
	st := &racingStore{Store: NewInMemoryStore()}
	svc := NewService(st, grading.NewDefaultGrader())
	p, err := svc.CreatePaper(ctx, Paper{Name: "midterm", SubjectID: "go", UserID: "teacher-1", Visible: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	a, err := svc.BeginAttempt(ctx, p.ID, "student-1")
	if err != nil {
		t.Fatalf("begin after losing the race: %v", err)
	}
	if !strings.HasPrefix(a.ID, "winner-") {
		t.Fatalf("got attempt %s, want the concurrent winner's", a.ID)
	}
	if a.Status != StatusOpen {
		t.Fatalf("status = %s, want open", a.Status)
	}
}

func TestCloseAttemptComputesAggregateInTransition(t *testing.T) {
	ctx := context.Background()
	st := NewInMemoryStore()
	if err := st.PutAttempt(ctx, Attempt{ID: "a1", PaperID: "p1", UserID: "u1", Status: StatusOpen, StartedAt: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	for _, r := range []AttemptRecord{
		{ID: "r1", AttemptID: "a1", QuestionID: "q1", Score: 5},
		{ID: "r2", AttemptID: "a1", QuestionID: "q2", Score: 3},
	} {
		if err := st.UpsertRecord(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	won, err := st.CloseAttempt(ctx, "a1", StatusSubmitted, 42)
	if err != nil || !won {
		t.Fatalf("close = %v/%v, want won", won, err)
	}
	got, _ := st.GetAttempt(ctx, "a1")
	if got.Score != 8 || got.Status != StatusSubmitted || got.FinishedAt != 42 {
		t.Fatalf("closed attempt = %+v, want score 8 from its records", got)
	}

	// a losing close must not rewrite the terminal state
	won, err = st.CloseAttempt(ctx, "a1", StatusExpired, 99)
	if err != nil || won {
		t.Fatalf("second close = %v/%v, want lost", won, err)
	}
	got, _ = st.GetAttempt(ctx, "a1")
	if got.Status != StatusSubmitted || got.FinishedAt != 42 {
		t.Fatalf("losing close mutated the attempt: %+v", got)
	}
}
