package quiz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/globalquiz/go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS quizzes (
    name        TEXT PRIMARY KEY,
    theme       TEXT NOT NULL,
    difficulty  TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quiz_questions (
    quiz_name       TEXT NOT NULL REFERENCES quizzes(name) ON DELETE CASCADE,
    position        INT  NOT NULL,
    prompt          TEXT NOT NULL,
    options         TEXT[] NOT NULL,
    correct_answer  INT  NOT NULL,
    explanation     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (quiz_name, position)
);
`

// DBTX is the subset of pgxpool.Pool the repository uses
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertResult summarizes a catalog write
type UpsertResult struct {
	Total    int
	Inserted int
	Updated  int
	Errors   []error
}

// PostgresRepository stores catalogs in Postgres
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a repository over db
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the catalog tables when missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

// Load reads the named quiz ordered by position
func (r *PostgresRepository) Load(ctx context.Context, quizName string) (*Catalog, error) {
	var theme, difficulty string
	err := r.db.QueryRow(ctx,
		`SELECT theme, difficulty FROM quizzes WHERE name = $1`, quizName,
	).Scan(&theme, &difficulty)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz %q: %w", quizName, err)
	}

	rows, err := r.db.Query(ctx, `
        SELECT prompt, options, correct_answer, explanation
        FROM quiz_questions
        WHERE quiz_name = $1
        ORDER BY position
    `, quizName)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Question, error) {
		var q models.Question
		err := row.Scan(&q.Prompt, &q.Options, &q.CorrectOption, &q.Explanation)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan questions: %w", err)
	}

	return NewCatalog(theme, difficulty, questions)
}

// Upsert writes the catalog under quizName, replacing questions at the same positions
func (r *PostgresRepository) Upsert(ctx context.Context, quizName string, catalog *Catalog) (UpsertResult, error) {
	result := UpsertResult{Total: catalog.Len()}

	_, err := r.db.Exec(ctx, `
        INSERT INTO quizzes (name, theme, difficulty)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET theme = EXCLUDED.theme, difficulty = EXCLUDED.difficulty
    `, quizName, catalog.Theme(), catalog.Difficulty())
	if err != nil {
		return result, fmt.Errorf("failed to upsert quiz: %w", err)
	}

	for _, q := range catalog.Questions() {
		var inserted bool
		err := r.db.QueryRow(ctx, `
            INSERT INTO quiz_questions (quiz_name, position, prompt, options, correct_answer, explanation)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (quiz_name, position) DO UPDATE SET
              prompt = EXCLUDED.prompt,
              options = EXCLUDED.options,
              correct_answer = EXCLUDED.correct_answer,
              explanation = EXCLUDED.explanation
            RETURNING (xmax = 0)
        `, quizName, q.Index, q.Prompt, q.Options, q.CorrectOption, q.Explanation).Scan(&inserted)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("question %d: %w", q.Index, err))
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	// Drop questions beyond the new catalog length
	if _, err := r.db.Exec(ctx,
		`DELETE FROM quiz_questions WHERE quiz_name = $1 AND position >= $2`,
		quizName, catalog.Len(),
	); err != nil {
		return result, fmt.Errorf("failed to trim questions: %w", err)
	}

	return result, nil
}
