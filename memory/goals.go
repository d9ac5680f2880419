package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// InsertGoal creates a goal.
func (s *Store) InsertGoal(ctx context.Context, in NewGoal) (Goal, error) {
	s.logger.Debug().
		Str("method", "InsertGoal").
		Str("title", truncateString(in.Title, 40)).
		Str("category", string(in.Category)).
		Msg("called")

	if strings.TrimSpace(in.Title) == "" {
		return Goal{}, storeErr("insert goal", errors.New("title is empty"))
	}
	created := s.stamp()
	queryStr, args, err := StatementBuilder().
		Insert("goals").
		Columns("title", "category", "why", "target_date", "created_at").
		Values(in.Title, string(in.Category), nullable(in.Why), formatDate(in.TargetDate), created).
		ToSql()
	if err != nil {
		return Goal{}, storeErr("insert goal", fmt.Errorf("build insert query: %w", err))
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Str("method", "InsertGoal").Err(err).Msg("Failed to insert goal")
		return Goal{}, storeErr("insert goal", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Goal{}, storeErr("insert goal", err)
	}
	s.logger.Info().Str("method", "InsertGoal").Int64("id", id).Msg("Goal created")
	return Goal{
		ID:         id,
		Title:      in.Title,
		Category:   in.Category,
		Why:        in.Why,
		TargetDate: in.TargetDate,
		CreatedAt:  parseTime(created),
	}, nil
}

// FindGoalByTitle returns the most recently created goal whose title contains
// fragment, case-insensitively, or nil if none matches.
func (s *Store) FindGoalByTitle(ctx context.Context, fragment string) (*Goal, error) {
	s.logger.Debug().Str("method", "FindGoalByTitle").Str("fragment", fragment).Msg("called")

	queryStr, args, err := StatementBuilder().
		Select(goalColumns()...).
		From("goals").
		Where(likeExpr("title", fragment)).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, storeErr("find goal", err)
	}
	g, err := scanGoal(s.db.QueryRowContext(ctx, queryStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find goal", err)
	}
	return &g, nil
}

// ListGoals returns goals in category ordered by target date, undated last.
// An empty category lists every goal.
func (s *Store) ListGoals(ctx context.Context, category GoalCategory) ([]Goal, error) {
	query := StatementBuilder().
		Select(goalColumns()...).
		From("goals").
		OrderBy("target_date IS NULL", "target_date ASC", "created_at ASC")
	if category != "" {
		query = query.Where(sq.Eq{"category": string(category)})
	}
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, storeErr("list goals", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, storeErr("list goals", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	goals := []Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, storeErr("list goals", err)
		}
		goals = append(goals, g)
	}
	return goals, storeErr("list goals", rows.Err())
}

func scanGoal(row rowScanner) (Goal, error) {
	var (
		g        Goal
		category string
		why      sql.NullString
		target   sql.NullString
		created  string
	)
	if err := row.Scan(&g.ID, &g.Title, &category, &why, &target, &created); err != nil {
		return Goal{}, err
	}
	g.Category = GoalCategory(category)
	g.Why = strPtr(why)
	g.TargetDate = parseDate(target)
	g.CreatedAt = parseTime(created)
	return g, nil
}
