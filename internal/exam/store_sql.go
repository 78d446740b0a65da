package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// SQLStore persists the exam core in a relational database. It works
// against both the sqlite and postgres schemas from internal/db; the
// driver is only consulted for row-locking syntax.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// lockSuffix serializes composer and attempt transactions per row on
// postgres. sqlite serializes writers on its own.
func (s *SQLStore) lockSuffix() string {
	if s.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// --- questions ---

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (id,type,subject_id,user_id,prompt_html,prompt_text,answer,right_answer,score,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		q.ID, q.Type, q.SubjectID, q.UserID, q.PromptHTML, q.PromptText, q.Answer, q.RightAnswer, q.Score, q.CreatedAt)
	return err
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, q Question) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET type=$2, subject_id=$3, user_id=$4, prompt_html=$5, prompt_text=$6,
		        answer=$7, right_answer=$8, score=$9 WHERE id=$1`,
		q.ID, q.Type, q.SubjectID, q.UserID, q.PromptHTML, q.PromptText, q.Answer, q.RightAnswer, q.Score)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return E(KindNotFound, "question %s not found", q.ID)
	}
	return nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,type,subject_id,user_id,prompt_html,prompt_text,answer,right_answer,score,created_at
		 FROM questions WHERE id=$1`, id)
	return scanQuestion(row)
}

func (s *SQLStore) DeleteQuestions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	in, args := placeholders(ids, 1)
	var linked string
	err = tx.QueryRowContext(ctx,
		`SELECT question_id FROM paper_questions WHERE question_id IN (`+in+`) LIMIT 1`, args...).Scan(&linked)
	switch {
	case err == nil:
		return E(KindConflict, "question %s is linked to a paper", linked)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id IN (`+in+`)`, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, int, error) {
	where, args := []string{"1=1"}, []any{}
	if opts.SubjectID != "" {
		args = append(args, opts.SubjectID)
		where = append(where, fmt.Sprintf("subject_id=$%d", len(args)))
	}
	if opts.Q != "" {
		args = append(args, "%"+opts.Q+"%")
		where = append(where, fmt.Sprintf("(prompt_text LIKE $%d OR prompt_html LIKE $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limitOr(opts.Limit, 50), opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,type,subject_id,user_id,prompt_html,prompt_text,answer,right_answer,score,created_at
		 FROM questions WHERE `+cond+fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

// --- papers ---

func (s *SQLStore) PutPaper(ctx context.Context, p Paper) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (id,name,subject_id,user_id,detail,limit_time,total_score,visible,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Name, p.SubjectID, p.UserID, p.Detail, p.LimitTime, p.TotalScore, p.Visible, p.CreatedAt)
	return err
}

func (s *SQLStore) UpdatePaper(ctx context.Context, p Paper) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET name=$2, subject_id=$3, user_id=$4, detail=$5, limit_time=$6, visible=$7 WHERE id=$1`,
		p.ID, p.Name, p.SubjectID, p.UserID, p.Detail, p.LimitTime, p.Visible)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return E(KindNotFound, "paper %s not found", p.ID)
	}
	return nil
}

func (s *SQLStore) GetPaper(ctx context.Context, id string) (Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,name,subject_id,user_id,detail,limit_time,total_score,visible,created_at
		 FROM papers WHERE id=$1`, id)
	return scanPaper(row)
}

func (s *SQLStore) DeletePapers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	in, args := placeholders(ids, 1)
	var open string
	err = tx.QueryRowContext(ctx,
		`SELECT paper_id FROM attempts WHERE paper_id IN (`+in+`) AND status='open' LIMIT 1`, args...).Scan(&open)
	switch {
	case err == nil:
		return E(KindConflict, "paper %s has open attempts", open)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	// links go with the paper (ON DELETE CASCADE); history rows stay
	if _, err := tx.ExecContext(ctx, `DELETE FROM papers WHERE id IN (`+in+`)`, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListPapers(ctx context.Context, opts PaperListOpts) ([]Paper, int, error) {
	args := []any{opts.ViewerID}
	where := []string{"(visible OR user_id=$1)"}
	if opts.SubjectID != "" {
		args = append(args, opts.SubjectID)
		where = append(where, fmt.Sprintf("subject_id=$%d", len(args)))
	}
	if opts.Q != "" {
		args = append(args, "%"+opts.Q+"%")
		where = append(where, fmt.Sprintf("(name LIKE $%d OR detail LIKE $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limitOr(opts.Limit, 50), opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,subject_id,user_id,detail,limit_time,total_score,visible,created_at
		 FROM papers WHERE `+cond+fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// --- composer ---

func (s *SQLStore) AddLinks(ctx context.Context, paperID string, questionIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM papers WHERE id=$1`+s.lockSuffix(), paperID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, E(KindNotFound, "paper %s not found", paperID)
		}
		return 0, err
	}
	var pos int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position),-1)+1 FROM paper_questions WHERE paper_id=$1`, paperID).Scan(&pos); err != nil {
		return 0, err
	}
	for _, qid := range questionIDs {
		var qExists string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM questions WHERE id=$1`, qid).Scan(&qExists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, E(KindNotFound, "question %s not found", qid)
			}
			return 0, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO paper_questions (id,paper_id,question_id,position) VALUES ($1,$2,$3,$4)
			 ON CONFLICT (paper_id,question_id) DO NOTHING`,
			paperID+":"+qid, paperID, qid, pos)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			pos++
		}
	}
	total, err := recomputeTotal(ctx, tx, paperID)
	if err != nil {
		return 0, err
	}
	return total, tx.Commit()
}

func (s *SQLStore) RemoveLinks(ctx context.Context, paperID string, questionIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM papers WHERE id=$1`+s.lockSuffix(), paperID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, E(KindNotFound, "paper %s not found", paperID)
		}
		return 0, err
	}
	if len(questionIDs) > 0 {
		in, args := placeholders(questionIDs, 2)
		args = append([]any{paperID}, args...)
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM paper_questions WHERE paper_id=$1 AND question_id IN (`+in+`)`, args...); err != nil {
			return 0, err
		}
	}
	total, err := recomputeTotal(ctx, tx, paperID)
	if err != nil {
		return 0, err
	}
	return total, tx.Commit()
}

func recomputeTotal(ctx context.Context, tx *sql.Tx, paperID string) (int, error) {
	_, err := tx.ExecContext(ctx,
		`UPDATE papers SET total_score = (
		    SELECT COALESCE(SUM(q.score),0) FROM paper_questions pq
		    JOIN questions q ON q.id = pq.question_id
		    WHERE pq.paper_id = $1
		 ) WHERE id=$1`, paperID)
	if err != nil {
		return 0, err
	}
	var total int
	err = tx.QueryRowContext(ctx, `SELECT total_score FROM papers WHERE id=$1`, paperID).Scan(&total)
	return total, err
}

func (s *SQLStore) ListLinkedQuestions(ctx context.Context, paperID string) ([]Question, error) {
	var exists string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM papers WHERE id=$1`, paperID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, E(KindNotFound, "paper %s not found", paperID)
		}
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id,q.type,q.subject_id,q.user_id,q.prompt_html,q.prompt_text,q.answer,q.right_answer,q.score,q.created_at
		 FROM paper_questions pq JOIN questions q ON q.id = pq.question_id
		 WHERE pq.paper_id=$1 ORDER BY pq.position`, paperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- attempts ---

func (s *SQLStore) PutAttempt(ctx context.Context, a Attempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM attempts WHERE paper_id=$1 AND user_id=$2 AND status='open'`+s.lockSuffix(),
		a.PaperID, a.UserID).Scan(&existing)
	switch {
	case err == nil:
		return E(KindConflict, "open attempt %s exists for paper %s user %s", existing, a.PaperID, a.UserID)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id,paper_id,user_id,status,score,started_at,due_at,finished_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PaperID, a.UserID, a.Status, a.Score, a.StartedAt, a.DueAt, a.FinishedAt); err != nil {
		// two begins can race past the pre-check; the loser trips the
		// attempts_one_open index and must surface as Conflict
		if isUniqueViolation(err) {
			return E(KindConflict, "open attempt exists for paper %s user %s", a.PaperID, a.UserID)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,paper_id,user_id,status,score,started_at,due_at,finished_at FROM attempts WHERE id=$1`, id)
	return scanAttempt(row)
}

func (s *SQLStore) GetOpenAttempt(ctx context.Context, paperID, userID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,paper_id,user_id,status,score,started_at,due_at,finished_at
		 FROM attempts WHERE paper_id=$1 AND user_id=$2 AND status='open'`, paperID, userID)
	a, err := scanAttempt(row)
	if IsKind(err, KindNotFound) {
		return Attempt{}, E(KindNotFound, "no open attempt for paper %s user %s", paperID, userID)
	}
	return a, err
}

// CloseAttempt recomputes the aggregate inside the same check-and-set, so
// the stored score always reflects every record that landed before the
// transition won.
func (s *SQLStore) CloseAttempt(ctx context.Context, id, status string, finishedAt int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status=$2, finished_at=$3,
		        score=(SELECT COALESCE(SUM(score),0) FROM test_history WHERE attempt_id=$1)
		 WHERE id=$1 AND status='open'`,
		id, status, finishedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) UpdateAttemptScore(ctx context.Context, id string, score int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET score=$2 WHERE id=$1`, id, score)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return E(KindNotFound, "attempt %s not found", id)
	}
	return nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	where, args := []string{"1=1"}, []any{}
	if opts.PaperID != "" {
		args = append(args, opts.PaperID)
		where = append(where, fmt.Sprintf("paper_id=$%d", len(args)))
	}
	if opts.UserID != "" {
		args = append(args, opts.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	args = append(args, limitOr(opts.Limit, 50), opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,paper_id,user_id,status,score,started_at,due_at,finished_at
		 FROM attempts WHERE `+strings.Join(where, " AND ")+
			fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- records ---

func (s *SQLStore) UpsertRecord(ctx context.Context, r AttemptRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// a record may only land while its attempt is still open; checking
	// inside the transaction closes the in-flight-past-expiry window
	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM attempts WHERE id=$1`+s.lockSuffix(), r.AttemptID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return E(KindNotFound, "attempt %s not found", r.AttemptID)
		}
		return err
	}
	if status != StatusOpen {
		return E(KindInvalidState, "attempt %s is %s", r.AttemptID, status)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO test_history (id,attempt_id,question_id,paper_id,user_id,score,answer,needs_review,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (attempt_id,question_id) DO UPDATE SET
		   score=EXCLUDED.score, answer=EXCLUDED.answer, needs_review=EXCLUDED.needs_review, created_at=EXCLUDED.created_at`,
		r.ID, r.AttemptID, r.QuestionID, r.PaperID, r.UserID, r.Score, r.Answer, r.NeedsReview, r.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListRecords(ctx context.Context, attemptID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,attempt_id,question_id,paper_id,user_id,score,answer,needs_review,created_at
		 FROM test_history WHERE attempt_id=$1 ORDER BY created_at`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &r.PaperID, &r.UserID, &r.Score, &r.Answer, &r.NeedsReview, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateRecordScore(ctx context.Context, recordID string, score int, needsReview bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_history SET score=$2, needs_review=$3 WHERE id=$1`, recordID, score, needsReview)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return E(KindNotFound, "record %s not found", recordID)
	}
	return nil
}

// --- scan helpers ---

type rowScanner interface{ Scan(dest ...any) error }

func scanQuestion(row rowScanner) (Question, error) {
	var q Question
	err := row.Scan(&q.ID, &q.Type, &q.SubjectID, &q.UserID, &q.PromptHTML, &q.PromptText,
		&q.Answer, &q.RightAnswer, &q.Score, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, E(KindNotFound, "question not found")
	}
	return q, err
}

func scanPaper(row rowScanner) (Paper, error) {
	var p Paper
	err := row.Scan(&p.ID, &p.Name, &p.SubjectID, &p.UserID, &p.Detail, &p.LimitTime,
		&p.TotalScore, &p.Visible, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Paper{}, E(KindNotFound, "paper not found")
	}
	return p, err
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	err := row.Scan(&a.ID, &a.PaperID, &a.UserID, &a.Status, &a.Score, &a.StartedAt, &a.DueAt, &a.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, E(KindNotFound, "attempt not found")
	}
	return a, err
}

// postgres SQLSTATE for a unique-constraint violation.
const pgUniqueViolation = "23505"

// isUniqueViolation recognizes a unique-index violation from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
	}
	return false
}

// placeholders renders $n,$n+1,... for an IN clause.
func placeholders(ids []string, start int) (string, []any) {
	parts := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(parts, ","), args
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
