package exam

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memoryStore keeps everything in maps behind one mutex. Used for tests and
// for running without a database. The mutex also serializes composer
// recomputes and attempt transitions, matching the SQL store's guarantees.
type memoryStore struct {
	mu        sync.RWMutex
	questions map[string]Question
	papers    map[string]Paper
	links     map[string][]PaperQuestion // paperID -> links in insertion order
	attempts  map[string]Attempt
	records   map[string][]AttemptRecord // attemptID -> records
}

func NewInMemoryStore() Store {
	return &memoryStore{
		questions: map[string]Question{},
		papers:    map[string]Paper{},
		links:     map[string][]PaperQuestion{},
		attempts:  map[string]Attempt{},
		records:   map[string][]AttemptRecord{},
	}
}

// --- questions ---

func (m *memoryStore) PutQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) UpdateQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; !ok {
		return E(KindNotFound, "question %s not found", q.ID)
	}
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, E(KindNotFound, "question %s not found", id)
	}
	return q, nil
}

func (m *memoryStore) DeleteQuestions(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for paperID, links := range m.links {
			for _, l := range links {
				if l.QuestionID == id {
					return E(KindConflict, "question %s is linked to paper %s", id, paperID)
				}
			}
		}
	}
	for _, id := range ids {
		delete(m.questions, id)
	}
	return nil
}

func (m *memoryStore) ListQuestions(_ context.Context, opts QuestionListOpts) ([]Question, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Question
	for _, q := range m.questions {
		if opts.SubjectID != "" && q.SubjectID != opts.SubjectID {
			continue
		}
		if opts.Q != "" && !strings.Contains(q.PromptText, opts.Q) && !strings.Contains(q.PromptHTML, opts.Q) {
			continue
		}
		all = append(all, q)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	return paginate(all, opts.Limit, opts.Offset), len(all), nil
}

// --- papers ---

func (m *memoryStore) PutPaper(_ context.Context, p Paper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.papers[p.ID] = p
	return nil
}

func (m *memoryStore) UpdatePaper(_ context.Context, p Paper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.papers[p.ID]; !ok {
		return E(KindNotFound, "paper %s not found", p.ID)
	}
	m.papers[p.ID] = p
	return nil
}

func (m *memoryStore) GetPaper(_ context.Context, id string) (Paper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.papers[id]
	if !ok {
		return Paper{}, E(KindNotFound, "paper %s not found", id)
	}
	return p, nil
}

func (m *memoryStore) DeletePapers(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for _, a := range m.attempts {
			if a.PaperID == id && a.Status == StatusOpen {
				return E(KindConflict, "paper %s has open attempts", id)
			}
		}
	}
	for _, id := range ids {
		delete(m.papers, id)
		delete(m.links, id)
	}
	return nil
}

func (m *memoryStore) ListPapers(_ context.Context, opts PaperListOpts) ([]Paper, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Paper
	for _, p := range m.papers {
		if !p.Visible && p.UserID != opts.ViewerID {
			continue
		}
		if opts.SubjectID != "" && p.SubjectID != opts.SubjectID {
			continue
		}
		if opts.Q != "" && !strings.Contains(p.Name, opts.Q) && !strings.Contains(p.Detail, opts.Q) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	return paginate(all, opts.Limit, opts.Offset), len(all), nil
}

// --- composer ---

func (m *memoryStore) AddLinks(_ context.Context, paperID string, questionIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[paperID]
	if !ok {
		return 0, E(KindNotFound, "paper %s not found", paperID)
	}
	links := m.links[paperID]
	for _, qid := range questionIDs {
		if _, ok := m.questions[qid]; !ok {
			return 0, E(KindNotFound, "question %s not found", qid)
		}
		if linkedLocked(links, qid) {
			continue
		}
		links = append(links, PaperQuestion{
			ID:         paperID + ":" + qid,
			PaperID:    paperID,
			QuestionID: qid,
			Position:   len(links),
		})
	}
	m.links[paperID] = links
	return m.recomputeLocked(p), nil
}

func (m *memoryStore) RemoveLinks(_ context.Context, paperID string, questionIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[paperID]
	if !ok {
		return 0, E(KindNotFound, "paper %s not found", paperID)
	}
	drop := map[string]bool{}
	for _, qid := range questionIDs {
		drop[qid] = true
	}
	kept := m.links[paperID][:0]
	for _, l := range m.links[paperID] {
		if !drop[l.QuestionID] {
			kept = append(kept, l)
		}
	}
	m.links[paperID] = kept
	return m.recomputeLocked(p), nil
}

func (m *memoryStore) ListLinkedQuestions(_ context.Context, paperID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.papers[paperID]; !ok {
		return nil, E(KindNotFound, "paper %s not found", paperID)
	}
	links := m.links[paperID]
	out := make([]Question, 0, len(links))
	for _, l := range links {
		if q, ok := m.questions[l.QuestionID]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func linkedLocked(links []PaperQuestion, questionID string) bool {
	for _, l := range links {
		if l.QuestionID == questionID {
			return true
		}
	}
	return false
}

func (m *memoryStore) recomputeLocked(p Paper) int {
	total := 0
	for _, l := range m.links[p.ID] {
		if q, ok := m.questions[l.QuestionID]; ok {
			total += q.Score
		}
	}
	p.TotalScore = total
	m.papers[p.ID] = p
	return total
}

// --- attempts ---

func (m *memoryStore) PutAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.attempts {
		if other.PaperID == a.PaperID && other.UserID == a.UserID && other.Status == StatusOpen {
			return E(KindConflict, "open attempt exists for paper %s user %s", a.PaperID, a.UserID)
		}
	}
	m.attempts[a.ID] = a
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, E(KindNotFound, "attempt %s not found", id)
	}
	return a, nil
}

func (m *memoryStore) GetOpenAttempt(_ context.Context, paperID, userID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.PaperID == paperID && a.UserID == userID && a.Status == StatusOpen {
			return a, nil
		}
	}
	return Attempt{}, E(KindNotFound, "no open attempt for paper %s user %s", paperID, userID)
}

func (m *memoryStore) CloseAttempt(_ context.Context, id, status string, finishedAt int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return false, E(KindNotFound, "attempt %s not found", id)
	}
	if a.Status != StatusOpen {
		return false, nil
	}
	total := 0
	for _, r := range m.records[id] {
		total += r.Score
	}
	a.Status = status
	a.Score = total
	a.FinishedAt = finishedAt
	m.attempts[id] = a
	return true, nil
}

func (m *memoryStore) UpdateAttemptScore(_ context.Context, id string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return E(KindNotFound, "attempt %s not found", id)
	}
	a.Score = score
	m.attempts[id] = a
	return nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Attempt
	for _, a := range m.attempts {
		if opts.PaperID != "" && a.PaperID != opts.PaperID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt > all[j].StartedAt })
	return paginate(all, opts.Limit, opts.Offset), nil
}

// --- records ---

func (m *memoryStore) UpsertRecord(_ context.Context, r AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[r.AttemptID]
	if !ok {
		return E(KindNotFound, "attempt %s not found", r.AttemptID)
	}
	if a.Status != StatusOpen {
		return E(KindInvalidState, "attempt %s is %s", r.AttemptID, a.Status)
	}
	recs := m.records[r.AttemptID]
	for i, prev := range recs {
		if prev.QuestionID == r.QuestionID {
			r.ID = prev.ID // keep identity, overwrite content
			recs[i] = r
			return nil
		}
	}
	m.records[r.AttemptID] = append(recs, r)
	return nil
}

func (m *memoryStore) ListRecords(_ context.Context, attemptID string) ([]AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[attemptID]
	out := make([]AttemptRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *memoryStore) UpdateRecordScore(_ context.Context, recordID string, score int, needsReview bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for attemptID, recs := range m.records {
		for i, r := range recs {
			if r.ID == recordID {
				r.Score = score
				r.NeedsReview = needsReview
				m.records[attemptID][i] = r
				return nil
			}
		}
	}
	return E(KindNotFound, "record %s not found", recordID)
}

func paginate[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
