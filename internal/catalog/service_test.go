package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/LVYUANSU/book-manage-system/internal/exam"
	"github.com/LVYUANSU/book-manage-system/internal/grading"
)

func TestSaveBookAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore())

	b, err := svc.SaveBook(ctx, Book{Name: "The Go Programming Language", Publisher: "Addison-Wesley"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if b.ID == "" || b.CreatedAt == 0 {
		t.Fatalf("missing identity or timestamp: %+v", b)
	}
	if b.PlanBuy {
		t.Fatal("plan_buy should default to false")
	}

	if _, err := svc.SaveBook(ctx, Book{Name: "   "}); !exam.IsKind(err, exam.KindInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument for blank name", err)
	}
}

func TestQueryBooksPaginates(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore())
	for i := 0; i < 5; i++ {
		if _, err := svc.SaveBook(ctx, Book{Name: fmt.Sprintf("Go vol %d", i), Publisher: "OReilly"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if _, err := svc.SaveBook(ctx, Book{Name: "Cooking", Publisher: "Other"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	items, total, err := svc.QueryBooks(ctx, BookQuery{Name: "Go", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5 matches regardless of page size", total)
	}
	if len(items) != 2 {
		t.Fatalf("page = %d items, want 2", len(items))
	}

	items, total, err = svc.QueryBooks(ctx, BookQuery{Publisher: "OReilly", Limit: 10, Offset: 4})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 5 || len(items) != 1 {
		t.Fatalf("offset page = %d/%d, want 1 of 5", len(items), total)
	}
}

func TestDeleteSubjectInUseConflicts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore())

	sub, err := svc.SaveSubject(ctx, Subject{Name: "golang"})
	if err != nil {
		t.Fatalf("save subject: %v", err)
	}
	if _, err := svc.SaveBook(ctx, Book{Name: "Go", SubjectID: sub.ID}); err != nil {
		t.Fatalf("save book: %v", err)
	}

	if err := svc.DeleteSubjects(ctx, []string{sub.ID}); !exam.IsKind(err, exam.KindConflict) {
		t.Fatalf("err = %v, want Conflict while referenced", err)
	}
	if err := svc.DeleteBooks(ctx, nil); err != nil {
		t.Fatalf("noop delete: %v", err)
	}
}

func TestDeleteSubjectReferencedByExamData(t *testing.T) {
	ctx := context.Background()
	examSvc := exam.NewService(exam.NewInMemoryStore(), grading.NewDefaultGrader())
	questionRef := func(ctx context.Context, id string) (bool, error) {
		qs, _, err := examSvc.ListQuestions(ctx, exam.QuestionListOpts{SubjectID: id, Limit: 1})
		return len(qs) > 0, err
	}
	paperRef := func(ctx context.Context, id string) (bool, error) {
		ps, _, err := examSvc.ListPapers(ctx, exam.PaperListOpts{SubjectID: id, Limit: 1})
		return len(ps) > 0, err
	}
	svc := NewService(NewInMemoryStore(questionRef, paperRef))

	sub, err := svc.SaveSubject(ctx, Subject{Name: "golang"})
	if err != nil {
		t.Fatalf("save subject: %v", err)
	}

	q, err := examSvc.CreateQuestion(ctx, exam.Question{
		Type: exam.TypeSingleChoice, SubjectID: sub.ID, UserID: "teacher-1",
		PromptText: "pick one", RightAnswer: "A", Score: 1,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if err := svc.DeleteSubjects(ctx, []string{sub.ID}); !exam.IsKind(err, exam.KindConflict) {
		t.Fatalf("err = %v, want Conflict while a question uses the subject", err)
	}
	if err := examSvc.DeleteQuestions(ctx, []string{q.ID}); err != nil {
		t.Fatalf("delete question: %v", err)
	}

	p, err := examSvc.CreatePaper(ctx, exam.Paper{Name: "final", SubjectID: sub.ID, UserID: "teacher-1", Visible: true})
	if err != nil {
		t.Fatalf("create paper: %v", err)
	}
	if err := svc.DeleteSubjects(ctx, []string{sub.ID}); !exam.IsKind(err, exam.KindConflict) {
		t.Fatalf("err = %v, want Conflict while a paper uses the subject", err)
	}
	if err := examSvc.DeletePapers(ctx, []string{p.ID}); err != nil {
		t.Fatalf("delete paper: %v", err)
	}

	if err := svc.DeleteSubjects(ctx, []string{sub.ID}); err != nil {
		t.Fatalf("delete unreferenced subject: %v", err)
	}
}
