package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/privanote/pkg/types"
)

// Schema is the SQL DDL for the meetings table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS meetings (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    meeting_date     TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    duration_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
    file_size_mb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    transcript       TEXT NOT NULL,
    analysis         JSONB NOT NULL,
    source           TEXT NOT NULL DEFAULT 'uploaded',
    version          TEXT NOT NULL DEFAULT '1.0',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    saved_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_meetings_created ON meetings(created_at DESC, id DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL database. The analysis is
// stored as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("meeting: migrate: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, title, meeting_date, notes, duration_minutes, file_size_mb,
	       transcript, analysis, source, version, created_at, saved_at, updated_at
	FROM meetings`

const insertQuery = `
	INSERT INTO meetings (
		id, title, meeting_date, notes, duration_minutes, file_size_mb,
		transcript, analysis, source, version, created_at, saved_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

// Save implements [Store.Save].
func (s *PostgresStore) Save(ctx context.Context, m Meeting) (string, error) {
	if err := prepare(&m, time.Now().UTC()); err != nil {
		return "", err
	}
	args, err := insertArgs(&m)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Exec(ctx, insertQuery, args...); err != nil {
		if isDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %q", ErrDuplicateID, m.ID)
		}
		return "", fmt.Errorf("meeting: save: %w", err)
	}
	return m.ID, nil
}

// Get implements [Store.Get].
func (s *PostgresStore) Get(ctx context.Context, id string) (Meeting, error) {
	m, err := scanMeeting(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Meeting{}, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return Meeting{}, fmt.Errorf("meeting: get %q: %w", id, err)
	}
	return m, nil
}

// Update implements [Store.Update]. Nil patch fields keep the stored value
// through COALESCE so the update is a single statement.
func (s *PostgresStore) Update(ctx context.Context, id string, p Patch) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	var analysisJSON []byte
	if p.Analysis != nil {
		a := p.Analysis.Clone()
		a.Normalize()
		b, err := json.Marshal(a)
		if err != nil {
			return false, fmt.Errorf("meeting: marshal analysis: %w", err)
		}
		analysisJSON = b
	}

	const query = `
		UPDATE meetings SET
			title = COALESCE($2, title),
			meeting_date = COALESCE($3, meeting_date),
			notes = COALESCE($4, notes),
			transcript = COALESCE($5, transcript),
			analysis = COALESCE($6::jsonb, analysis),
			updated_at = $7
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		id, p.Title, p.Date, p.Notes, p.Transcript, analysisJSON, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("meeting: update %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete implements [Store.Delete].
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("meeting: delete %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List implements [Store.List].
func (s *PostgresStore) List(ctx context.Context) ([]Meeting, error) {
	return s.query(ctx, "list", selectColumns+` ORDER BY created_at DESC, id DESC`)
}

// ClearAll implements [Store.ClearAll].
func (s *PostgresStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM meetings`); err != nil {
		return fmt.Errorf("meeting: clear: %w", err)
	}
	return nil
}

// Search implements [Store.Search]. Matching uses strpos on the lowered
// concatenation so that LIKE wildcards in the query are taken literally.
func (s *PostgresStore) Search(ctx context.Context, query string, fields ...Field) ([]Meeting, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	expr := searchExpr(fields)
	sql := selectColumns + ` WHERE strpos(lower(` + expr + `), lower($1)) > 0 ORDER BY created_at DESC, id DESC`
	return s.query(ctx, "search", sql, query)
}

// searchExpr builds the SQL text expression for the selected fields. Field
// values are fixed identifiers, never user input.
func searchExpr(fields []Field) string {
	expr := `concat_ws(' '`
	for _, f := range fields {
		switch f {
		case FieldTitle:
			expr += `, title`
		case FieldTranscript:
			expr += `, transcript`
		case FieldNotes:
			expr += `, notes`
		case FieldAnalysis:
			expr += `, analysis->>'summary'` +
				`, (SELECT string_agg(x, ' ') FROM jsonb_array_elements_text(analysis->'action_items') AS x)` +
				`, (SELECT string_agg(x, ' ') FROM jsonb_array_elements_text(analysis->'key_decisions') AS x)`
		}
	}
	return expr + `)`
}

// Stats implements [Store.Stats].
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT count(*),
		       COALESCE(sum(duration_minutes), 0),
		       COALESCE(sum(char_length(transcript) + char_length(analysis::text)), 0),
		       min(created_at), max(created_at)
		FROM meetings`

	var (
		st             Stats
		chars          int64
		oldest, newest *time.Time
	)
	if err := s.db.QueryRow(ctx, query).Scan(&st.TotalMeetings, &st.TotalDuration, &chars, &oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("meeting: stats: %w", err)
	}
	st.StorageSizeEstimate = bytesToMB(chars * 2)
	if oldest != nil {
		st.Oldest = oldest.UTC()
	}
	if newest != nil {
		st.Newest = newest.UTC()
	}
	return st, nil
}

// ExportAll implements [Store.ExportAll].
func (s *PostgresStore) ExportAll(ctx context.Context) (Archive, error) {
	ms, err := s.List(ctx)
	if err != nil {
		return Archive{}, err
	}
	return Archive{ExportDate: time.Now().UTC(), Version: Version, Meetings: ms}, nil
}

// Import implements [Store.Import]. Existing ids are skipped with
// ON CONFLICT DO NOTHING.
func (s *PostgresStore) Import(ctx context.Context, a Archive) (int, error) {
	now := time.Now().UTC()
	added := 0
	for _, m := range a.Meetings {
		if err := prepare(&m, now); err != nil {
			slog.Debug("meeting: import: skipping invalid record", "id", m.ID, "err", err)
			continue
		}
		args, err := insertArgs(&m)
		if err != nil {
			return added, err
		}
		tag, err := s.db.Exec(ctx, insertQuery+` ON CONFLICT (id) DO NOTHING`, args...)
		if err != nil {
			return added, fmt.Errorf("meeting: import %q: %w", m.ID, err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// Ping implements [Store.Ping].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("meeting: ping: %w", err)
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, op, sql string, args ...any) ([]Meeting, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("meeting: %s: %w", op, err)
	}
	defer rows.Close()

	out := []Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("meeting: %s scan: %w", op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("meeting: %s: %w", op, err)
	}
	return out, nil
}

// scanMeeting reads one row selected with selectColumns.
func scanMeeting(row pgx.Row) (Meeting, error) {
	var (
		m            Meeting
		analysisJSON []byte
		source       string
		updatedAt    *time.Time
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.Date, &m.Notes, &m.Duration, &m.FileSize,
		&m.Transcript, &analysisJSON, &source, &m.Version,
		&m.CreatedAt, &m.SavedAt, &updatedAt,
	)
	if err != nil {
		return Meeting{}, err
	}
	var a types.AnalysisResult
	if err := json.Unmarshal(analysisJSON, &a); err != nil {
		return Meeting{}, fmt.Errorf("meeting: unmarshal analysis: %w", err)
	}
	a.Normalize()
	m.Analysis = &a
	m.Source = types.Source(source)
	if updatedAt != nil {
		m.UpdatedAt = *updatedAt
	}
	return m, nil
}

func insertArgs(m *Meeting) ([]any, error) {
	analysisJSON, err := json.Marshal(m.Analysis)
	if err != nil {
		return nil, fmt.Errorf("meeting: marshal analysis: %w", err)
	}
	return []any{
		m.ID, m.Title, m.Date, m.Notes, m.Duration, m.FileSize,
		m.Transcript, analysisJSON, string(m.Source), m.Version, m.CreatedAt, m.SavedAt,
	}, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
