package llmcall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/jackzampolin/skim/internal/types"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Store provides access to LLM call records in SQLite.
type Store struct {
	db *bun.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: open llm call database: %v", types.ErrStorage, err)
	}
	// SQLite allows a single writer.
	sqldb.SetMaxOpenConns(1)

	s := &Store{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := s.migrate(ctx); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Call)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("%w: create llm_calls table: %v", types.ErrStorage, err)
	}
	if _, err := s.db.NewCreateIndex().Model((*Call)(nil)).
		Index("llm_calls_book_id_idx").
		Column("book_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create llm_calls index: %v", types.ErrStorage, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping llm call database: %v", types.ErrStorage, err)
	}
	return nil
}

// Insert stores a call.
func (s *Store) Insert(ctx context.Context, call *Call) error {
	if call == nil {
		return nil
	}
	if _, err := s.db.NewInsert().Model(call).Exec(ctx); err != nil {
		return fmt.Errorf("%w: insert llm call: %v", types.ErrStorage, err)
	}
	return nil
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	BookID    string
	ChapterID string
	Provider  string
	Model     string
	Source    string
	After     *time.Time
	Before    *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// Get retrieves a single LLM call by ID.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	call := new(Call)
	if err := s.db.NewSelect().Model(call).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: llm call %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get llm call: %v", types.ErrStorage, err)
	}
	return call, nil
}

// List retrieves LLM calls matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	calls := make([]Call, 0)
	q := s.db.NewSelect().Model(&calls)
	q = applyFilter(q, filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q = q.Order("timestamp DESC").Limit(limit)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list llm calls: %v", types.ErrStorage, err)
	}
	return calls, nil
}

// CountByProvider returns call counts grouped by provider, optionally for one book.
func (s *Store) CountByProvider(ctx context.Context, bookID string) (map[string]int, error) {
	var rows []struct {
		Provider string `bun:"provider"`
		Count    int    `bun:"count"`
	}

	q := s.db.NewSelect().Model((*Call)(nil)).
		Column("provider").
		ColumnExpr("COUNT(*) AS count").
		Group("provider")
	if bookID != "" {
		q = q.Where("book_id = ?", bookID)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: count llm calls: %v", types.ErrStorage, err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Provider] = r.Count
	}
	return counts, nil
}

// DeleteBook removes every call recorded for a book.
func (s *Store) DeleteBook(ctx context.Context, bookID string) (int64, error) {
	res, err := s.db.NewDelete().Model((*Call)(nil)).Where("book_id = ?", bookID).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: delete llm calls: %v", types.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func applyFilter(q *bun.SelectQuery, filter QueryFilter) *bun.SelectQuery {
	if filter.BookID != "" {
		q = q.Where("book_id = ?", filter.BookID)
	}
	if filter.ChapterID != "" {
		q = q.Where("chapter_id = ?", filter.ChapterID)
	}
	if filter.Provider != "" {
		q = q.Where("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		q = q.Where("model = ?", filter.Model)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Success != nil {
		q = q.Where("success = ?", *filter.Success)
	}
	if filter.After != nil {
		q = q.Where("timestamp > ?", *filter.After)
	}
	if filter.Before != nil {
		q = q.Where("timestamp < ?", *filter.Before)
	}
	return q
}
