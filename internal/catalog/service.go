package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LVYUANSU/book-manage-system/internal/exam"
)

type Store interface {
	PutBook(ctx context.Context, b Book) error
	UpdateBook(ctx context.Context, b Book) error
	DeleteBooks(ctx context.Context, ids []string) error
	QueryBooks(ctx context.Context, q BookQuery) ([]Book, int, error)

	PutSubject(ctx context.Context, s Subject) error
	UpdateSubject(ctx context.Context, s Subject) error
	// DeleteSubjects fails with Conflict while a subject is still
	// referenced by a question, paper or book.
	DeleteSubjects(ctx context.Context, ids []string) error
	ListSubjects(ctx context.Context) ([]Subject, error)
}

// Service is a stateless CRUD layer over the store.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) SaveBook(ctx context.Context, b Book) (Book, error) {
	if strings.TrimSpace(b.Name) == "" {
		return Book{}, exam.E(exam.KindInvalidArgument, "book name required")
	}
	b.ID = uuid.NewString()
	b.CreatedAt = s.now().Unix()
	if err := s.store.PutBook(ctx, b); err != nil {
		return Book{}, err
	}
	return b, nil
}

func (s *Service) UpdateBook(ctx context.Context, b Book) (Book, error) {
	if strings.TrimSpace(b.Name) == "" {
		return Book{}, exam.E(exam.KindInvalidArgument, "book name required")
	}
	if err := s.store.UpdateBook(ctx, b); err != nil {
		return Book{}, err
	}
	return b, nil
}

func (s *Service) DeleteBooks(ctx context.Context, ids []string) error {
	return s.store.DeleteBooks(ctx, ids)
}

func (s *Service) QueryBooks(ctx context.Context, q BookQuery) ([]Book, int, error) {
	return s.store.QueryBooks(ctx, q)
}

func (s *Service) SaveSubject(ctx context.Context, sub Subject) (Subject, error) {
	if strings.TrimSpace(sub.Name) == "" {
		return Subject{}, exam.E(exam.KindInvalidArgument, "subject name required")
	}
	sub.ID = uuid.NewString()
	if err := s.store.PutSubject(ctx, sub); err != nil {
		return Subject{}, err
	}
	return sub, nil
}

func (s *Service) UpdateSubject(ctx context.Context, sub Subject) (Subject, error) {
	if strings.TrimSpace(sub.Name) == "" {
		return Subject{}, exam.E(exam.KindInvalidArgument, "subject name required")
	}
	if err := s.store.UpdateSubject(ctx, sub); err != nil {
		return Subject{}, err
	}
	return sub, nil
}

func (s *Service) DeleteSubjects(ctx context.Context, ids []string) error {
	return s.store.DeleteSubjects(ctx, ids)
}

func (s *Service) ListSubjects(ctx context.Context) ([]Subject, error) {
	return s.store.ListSubjects(ctx)
}
