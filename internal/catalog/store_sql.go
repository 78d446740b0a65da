package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/LVYUANSU/book-manage-system/internal/exam"
)

type SQLStore struct{ db *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutBook(ctx context.Context, b Book) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (id,name,author,publisher,isbn,subject_id,plan_buy,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.Name, b.Author, b.Publisher, b.ISBN, b.SubjectID, b.PlanBuy, b.CreatedAt)
	return err
}

func (s *SQLStore) UpdateBook(ctx context.Context, b Book) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET name=$2, author=$3, publisher=$4, isbn=$5, subject_id=$6, plan_buy=$7 WHERE id=$1`,
		b.ID, b.Name, b.Author, b.Publisher, b.ISBN, b.SubjectID, b.PlanBuy)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return exam.E(exam.KindNotFound, "book %s not found", b.ID)
	}
	return nil
}

func (s *SQLStore) DeleteBooks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := placeholders(ids)
	_, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id IN (`+in+`)`, args...)
	return err
}

func (s *SQLStore) QueryBooks(ctx context.Context, q BookQuery) ([]Book, int, error) {
	where, args := []string{"1=1"}, []any{}
	if q.Name != "" {
		args = append(args, "%"+q.Name+"%")
		where = append(where, fmt.Sprintf("name LIKE $%d", len(args)))
	}
	if q.Publisher != "" {
		args = append(args, "%"+q.Publisher+"%")
		where = append(where, fmt.Sprintf("publisher LIKE $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, q.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,author,publisher,isbn,subject_id,plan_buy,created_at FROM books WHERE `+cond+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Name, &b.Author, &b.Publisher, &b.ISBN, &b.SubjectID, &b.PlanBuy, &b.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (s *SQLStore) PutSubject(ctx context.Context, sub Subject) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO subjects (id,name) VALUES ($1,$2)`, sub.ID, sub.Name)
	return err
}

func (s *SQLStore) UpdateSubject(ctx context.Context, sub Subject) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subjects SET name=$2 WHERE id=$1`, sub.ID, sub.Name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return exam.E(exam.KindNotFound, "subject %s not found", sub.ID)
	}
	return nil
}

func (s *SQLStore) DeleteSubjects(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := placeholders(ids)
	for _, table := range []string{"questions", "papers", "books"} {
		var used string
		err := s.db.QueryRowContext(ctx,
			`SELECT subject_id FROM `+table+` WHERE subject_id IN (`+in+`) LIMIT 1`, args...).Scan(&used)
		switch {
		case err == nil:
			return exam.E(exam.KindConflict, "subject %s is referenced by %s", used, table)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id IN (`+in+`)`, args...)
	return err
}

func (s *SQLStore) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subject
	for rows.Next() {
		var sub Subject
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func placeholders(ids []string) (string, []any) {
	parts := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(parts, ","), args
}
