package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/LVYUANSU/book-manage-system/internal/exam"
)

// SubjectRef reports whether a subject id is still referenced by an
// external collection, so subject deletion can be refused the same way the
// SQL store refuses it for questions and papers.
type SubjectRef func(ctx context.Context, subjectID string) (bool, error)

type memoryStore struct {
	mu       sync.RWMutex
	books    map[string]Book
	subjects map[string]Subject
	refs     []SubjectRef
}

func NewInMemoryStore(refs ...SubjectRef) Store {
	return &memoryStore{books: map[string]Book{}, subjects: map[string]Subject{}, refs: refs}
}

func (m *memoryStore) PutBook(_ context.Context, b Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

func (m *memoryStore) UpdateBook(_ context.Context, b Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return exam.E(exam.KindNotFound, "book %s not found", b.ID)
	}
	m.books[b.ID] = b
	return nil
}

func (m *memoryStore) DeleteBooks(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.books, id)
	}
	return nil
}

func (m *memoryStore) QueryBooks(_ context.Context, q BookQuery) ([]Book, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Book
	for _, b := range m.books {
		if q.Name != "" && !strings.Contains(b.Name, q.Name) {
			continue
		}
		if q.Publisher != "" && !strings.Contains(b.Publisher, q.Publisher) {
			continue
		}
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	total := len(all)
	if q.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && q.Limit < len(all) {
		all = all[:q.Limit]
	}
	return all, total, nil
}

func (m *memoryStore) PutSubject(_ context.Context, s Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = s
	return nil
}

func (m *memoryStore) UpdateSubject(_ context.Context, s Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[s.ID]; !ok {
		return exam.E(exam.KindNotFound, "subject %s not found", s.ID)
	}
	m.subjects[s.ID] = s
	return nil
}

func (m *memoryStore) DeleteSubjects(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for _, b := range m.books {
			if b.SubjectID == id {
				return exam.E(exam.KindConflict, "subject %s is referenced by books", id)
			}
		}
		for _, ref := range m.refs {
			used, err := ref(ctx, id)
			if err != nil {
				return err
			}
			if used {
				return exam.E(exam.KindConflict, "subject %s is still referenced", id)
			}
		}
		delete(m.subjects, id)
	}
	return nil
}

func (m *memoryStore) ListSubjects(_ context.Context) ([]Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
