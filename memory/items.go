package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

// DefaultSearchLimit applies when a query does not set one.
const DefaultSearchLimit = 10

// InsertMemoryItem records a new memory item, stamping recorded_at.
func (s *Store) InsertMemoryItem(ctx context.Context, in NewMemoryItem) (MemoryItem, error) {
	s.logger.Debug().
		Str("method", "InsertMemoryItem").
		Str("kind", string(in.Kind)).
		Str("content", truncateString(in.Content, 40)).
		Msg("called")

	if strings.TrimSpace(in.Content) == "" {
		return MemoryItem{}, storeErr("insert memory item", errors.New("content is empty"))
	}
	names := lo.Uniq(lo.Compact(in.PersonNames))
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return MemoryItem{}, storeErr("insert memory item", fmt.Errorf("marshal person_names: %w", err))
	}

	recorded := s.now()
	query := StatementBuilder().
		Insert("memory_items").
		Columns("kind", "content", "body", "happened_at", "place", "amount",
			"category", "person_names", "confidence", "is_ignored", "recorded_at", "source").
		Values(string(in.Kind), in.Content, nullable(in.Body), nullableTime(in.HappenedAt),
			nullable(in.Place), nullable(in.Amount), string(in.Category), string(namesJSON),
			nullable(in.Confidence), false, formatTime(recorded), in.Source)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return MemoryItem{}, storeErr("insert memory item", fmt.Errorf("build insert query: %w", err))
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Str("method", "InsertMemoryItem").Err(err).Msg("Failed to insert memory_item")
		return MemoryItem{}, storeErr("insert memory item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MemoryItem{}, storeErr("insert memory item", err)
	}

	s.logger.Info().
		Str("method", "InsertMemoryItem").
		Int64("id", id).
		Str("kind", string(in.Kind)).
		Str("source", in.Source).
		Msg("MemoryItem saved")

	return MemoryItem{
		ID:          id,
		Kind:        in.Kind,
		Content:     in.Content,
		Body:        in.Body,
		HappenedAt:  in.HappenedAt,
		Place:       in.Place,
		Amount:      in.Amount,
		Category:    in.Category,
		PersonNames: names,
		Confidence:  in.Confidence,
		RecordedAt:  parseTime(formatTime(recorded)),
		Source:      in.Source,
	}, nil
}

// SearchMemoryItems returns non-ignored items matching q, newest event first.
func (s *Store) SearchMemoryItems(ctx context.Context, q SearchQuery) ([]MemoryItem, error) {
	s.logger.Debug().
		Str("method", "SearchMemoryItems").
		Str("kind", string(q.Kind)).
		Strs("keywords", q.Keywords).
		Strs("person_names", q.PersonNames).
		Int("limit", q.Limit).
		Msg("called")

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query := StatementBuilder().
		Select(memoryItemColumns()...).
		From("memory_items").
		Where(sq.Eq{"is_ignored": false}).
		OrderBy(eventTimeExpr+" DESC", "id DESC").
		Limit(uint64(limit))

	if q.Kind != "" {
		query = query.Where(sq.Eq{"kind": string(q.Kind)})
	}
	if q.From != nil {
		query = query.Where(sq.GtOrEq{eventTimeExpr: formatTime(*q.From)})
	}
	if q.To != nil {
		query = query.Where(sq.LtOrEq{eventTimeExpr: formatTime(*q.To)})
	}
	for _, name := range q.PersonNames {
		query = query.Where(
			"EXISTS (SELECT 1 FROM json_each(memory_items.person_names) WHERE json_each.value = ?)", name)
	}
	if keywords := lo.Compact(q.Keywords); len(keywords) > 0 {
		ors := sq.Or{}
		for _, k := range keywords {
			ors = append(ors, likeExpr("content", k), likeExpr("body", k), likeExpr("place", k))
		}
		query = query.Where(ors)
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, storeErr("search memory items", fmt.Errorf("build search query: %w", err))
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Str("method", "SearchMemoryItems").Err(err).Msg("Search query failed")
		return nil, storeErr("search memory items", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	items := []MemoryItem{}
	for rows.Next() {
		item, err := scanMemoryItem(rows)
		if err != nil {
			return nil, storeErr("search memory items", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search memory items", err)
	}
	s.logger.Debug().Str("method", "SearchMemoryItems").Int("results", len(items)).Msg("done")
	return items, nil
}

// IgnoreLatestMemoryItem soft-deletes the most recently recorded item that is
// not already ignored. It returns nil when there is nothing to ignore.
func (s *Store) IgnoreLatestMemoryItem(ctx context.Context) (*MemoryItem, error) {
	s.logger.Debug().Str("method", "IgnoreLatestMemoryItem").Msg("called")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("ignore latest memory item", err)
	}
	defer func() { _ = tx.Rollback() }()

	queryStr, args, err := StatementBuilder().
		Select(memoryItemColumns()...).
		From("memory_items").
		Where(sq.Eq{"is_ignored": false}).
		OrderBy("recorded_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, storeErr("ignore latest memory item", err)
	}
	item, err := scanMemoryItem(tx.QueryRowContext(ctx, queryStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("ignore latest memory item", err)
	}

	updStr, updArgs, err := StatementBuilder().
		Update("memory_items").
		Set("is_ignored", true).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return nil, storeErr("ignore latest memory item", err)
	}
	if _, err := tx.ExecContext(ctx, updStr, updArgs...); err != nil {
		return nil, storeErr("ignore latest memory item", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("ignore latest memory item", err)
	}

	item.IsIgnored = true
	s.logger.Info().Str("method", "IgnoreLatestMemoryItem").Int64("id", item.ID).Msg("MemoryItem ignored")
	return &item, nil
}

// CountMemoryItems returns the number of stored items, ignored or not.
func (s *Store) CountMemoryItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memory_items").Scan(&n); err != nil {
		return 0, storeErr("count memory items", err)
	}
	return n, nil
}

func scanMemoryItem(row rowScanner) (MemoryItem, error) {
	var (
		item       MemoryItem
		kind       string
		category   string
		body       sql.NullString
		happened   sql.NullString
		place      sql.NullString
		amount     sql.NullFloat64
		namesJSON  string
		confidence sql.NullFloat64
		recorded   string
	)
	if err := row.Scan(&item.ID, &kind, &item.Content, &body, &happened, &place, &amount,
		&category, &namesJSON, &confidence, &item.IsIgnored, &recorded, &item.Source); err != nil {
		return MemoryItem{}, err
	}
	item.Kind = Kind(kind)
	item.Category = Category(category)
	item.Body = strPtr(body)
	item.Place = strPtr(place)
	item.Amount = floatPtr(amount)
	item.Confidence = floatPtr(confidence)
	item.RecordedAt = parseTime(recorded)
	if happened.Valid {
		t := parseTime(happened.String)
		item.HappenedAt = &t
	}
	if err := json.Unmarshal([]byte(namesJSON), &item.PersonNames); err != nil || item.PersonNames == nil {
		item.PersonNames = []string{}
	}
	return item, nil
}
