package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"KnowledgeEvolver/internal/domain"
	"KnowledgeEvolver/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    content     TEXT NOT NULL,
    source      TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT 'general',
    confidence  REAL NOT NULL DEFAULT 1.0,
    version     INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_category ON knowledge_entries (category);
CREATE INDEX IF NOT EXISTS idx_entries_updated ON knowledge_entries (updated_at);
`

// SQLiteStore persists knowledge entries in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.KnowledgeStore = (*SQLiteStore)(nil)

// Open creates (if needed) and migrates the SQLite database at path.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer keeps SQLITE_BUSY out of the merge path.
	db.SetMaxOpenConns(1)

	return NewSQLiteStore(db)
}

// NewSQLiteStore migrates the schema on an existing handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByCategory returns the most recently updated entries in a category,
// newest first, for the merger's closest-match comparison.
func (s *SQLiteStore) FindByCategory(ctx context.Context, category domain.Category, limit int) ([]domain.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := s.sb.
		Select("id", "title", "content", "source", "url", "category", "confidence", "version", "created_at", "updated_at").
		From("knowledge_entries").
		Where(sq.Eq{"category": string(category)}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.KnowledgeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return entries, nil
}

// Get fetches a single entry by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.KnowledgeEntry, error) {
	query, args, err := s.sb.
		Select("id", "title", "content", "source", "url", "category", "confidence", "version", "created_at", "updated_at").
		From("knowledge_entries").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.KnowledgeEntry{}, fmt.Errorf("build select: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.KnowledgeEntry{}, fmt.Errorf("entry %s: %w", id, err)
		}
		return domain.KnowledgeEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	return entry, nil
}

// Insert writes a brand-new entry at version 1.
func (s *SQLiteStore) Insert(ctx context.Context, entry domain.KnowledgeEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	query, args, err := s.sb.
		Insert("knowledge_entries").
		Columns("id", "title", "content", "source", "url", "category", "confidence", "version", "created_at", "updated_at").
		Values(entry.ID, entry.Title, entry.Content, entry.Source, entry.URL, string(entry.Category),
			entry.Confidence, 1, formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert entry %s: %w", entry.ID, err)
	}

	return nil
}

// AppendVersion replaces the content of an existing entry and bumps its
// version counter in the same statement, returning the new version. The
// increment happens inside SQLite, so concurrent appenders can never mint
// the same version number.
func (s *SQLiteStore) AppendVersion(ctx context.Context, entry domain.KnowledgeEntry) (int, error) {
	query, args, err := s.sb.
		Update("knowledge_entries").
		Set("title", entry.Title).
		Set("content", entry.Content).
		Set("source", entry.Source).
		Set("url", entry.URL).
		Set("confidence", entry.Confidence).
		Set("updated_at", formatTime(time.Now().UTC())).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": entry.ID}).
		Suffix("RETURNING version").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("append version: entry %s not found", entry.ID)
		}
		return 0, fmt.Errorf("append version for %s: %w", entry.ID, err)
	}

	return version, nil
}

// CountEntries reports the total number of stored entries.
func (s *SQLiteStore) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (domain.KnowledgeEntry, error) {
	var (
		entry              domain.KnowledgeEntry
		category           string
		createdAt, updated string
	)

	err := row.Scan(&entry.ID, &entry.Title, &entry.Content, &entry.Source, &entry.URL,
		&category, &entry.Confidence, &entry.Version, &createdAt, &updated)
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}

	entry.Category = domain.Category(category)
	entry.CreatedAt = parseTime(createdAt)
	entry.UpdatedAt = parseTime(updated)
	return entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
