package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ErrTaskNotFound is returned by operations addressing a missing task id.
var ErrTaskNotFound = errors.New("task not found")

// InsertTask creates an open task.
func (s *Store) InsertTask(ctx context.Context, in NewTask) (Task, error) {
	s.logger.Debug().
		Str("method", "InsertTask").
		Str("title", truncateString(in.Title, 40)).
		Str("category", string(in.Category)).
		Msg("called")

	if strings.TrimSpace(in.Title) == "" {
		return Task{}, storeErr("insert task", errors.New("title is empty"))
	}
	stamp := s.stamp()
	queryStr, args, err := StatementBuilder().
		Insert("tasks").
		Columns("title", "category", "goal_id", "next_action", "due", "impact", "energy_fit",
			"effort_hours", "status", "created_at", "updated_at").
		Values(in.Title, string(in.Category), nullable(in.GoalID), nullable(in.NextAction),
			formatDate(in.Due), nullable(in.Impact), nullable(in.EnergyFit), nullable(in.EffortHours),
			string(StatusOpen), stamp, stamp).
		ToSql()
	if err != nil {
		return Task{}, storeErr("insert task", fmt.Errorf("build insert query: %w", err))
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Str("method", "InsertTask").Err(err).Msg("Failed to insert task")
		return Task{}, storeErr("insert task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, storeErr("insert task", err)
	}
	s.logger.Info().Str("method", "InsertTask").Int64("id", id).Str("category", string(in.Category)).Msg("Task created")
	return Task{
		ID:          id,
		Title:       in.Title,
		Category:    in.Category,
		GoalID:      in.GoalID,
		NextAction:  in.NextAction,
		Due:         in.Due,
		Impact:      in.Impact,
		EnergyFit:   in.EnergyFit,
		EffortHours: in.EffortHours,
		Status:      StatusOpen,
		CreatedAt:   parseTime(stamp),
		UpdatedAt:   parseTime(stamp),
	}, nil
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	queryStr, args, err := StatementBuilder().
		Select(taskColumns()...).
		From("tasks").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, storeErr("get task", err)
	}
	t, err := scanTask(s.db.QueryRowContext(ctx, queryStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get task", ErrTaskNotFound)
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	return &t, nil
}

// FindOpenTaskByTitle returns the most recently created open task whose title
// contains fragment, case-insensitively, or nil if none matches.
func (s *Store) FindOpenTaskByTitle(ctx context.Context, fragment string) (*Task, error) {
	s.logger.Debug().Str("method", "FindOpenTaskByTitle").Str("fragment", fragment).Msg("called")

	queryStr, args, err := StatementBuilder().
		Select(taskColumns()...).
		From("tasks").
		Where(sq.Eq{"status": string(StatusOpen)}).
		Where(likeExpr("title", fragment)).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, storeErr("find task", err)
	}
	t, err := scanTask(s.db.QueryRowContext(ctx, queryStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find task", err)
	}
	return &t, nil
}

// ListActiveTasks returns open tasks in category in storage order. Callers
// rank them. A limit of zero or less returns every task.
func (s *Store) ListActiveTasks(ctx context.Context, category TaskCategory, limit int) ([]Task, error) {
	query := StatementBuilder().
		Select(taskColumns()...).
		From("tasks").
		Where(sq.Eq{"status": string(StatusOpen)})
	if category != "" {
		query = query.Where(sq.Eq{"category": string(category)})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storeErr("list tasks", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, storeErr("list tasks", rows.Err())
}

// CompleteTask marks a task done.
func (s *Store) CompleteTask(ctx context.Context, id int64) error {
	status := StatusDone
	_, err := s.UpdateTask(ctx, id, TaskPatch{Status: &status})
	return err
}

// MinOrderOverride returns the smallest order_override among all tasks in
// category, done ones included so a reopened task never shares a value, or nil
// when none of them is pinned.
func (s *Store) MinOrderOverride(ctx context.Context, category TaskCategory) (*int64, error) {
	queryStr, args, err := StatementBuilder().
		Select("MIN(order_override)").
		From("tasks").
		Where(sq.Eq{"category": string(category)}).
		ToSql()
	if err != nil {
		return nil, storeErr("min order override", err)
	}
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, queryStr, args...).Scan(&v); err != nil {
		return nil, storeErr("min order override", err)
	}
	return int64Ptr(v), nil
}

// SetOrderOverride pins a task at position v.
func (s *Store) SetOrderOverride(ctx context.Context, id int64, v int64) error {
	s.logger.Debug().Str("method", "SetOrderOverride").Int64("id", id).Int64("value", v).Msg("called")
	return s.execTaskUpdate(ctx, "set order override", id, map[string]interface{}{"order_override": v})
}

// UpdateTask applies the non-nil fields of patch and returns the updated task.
func (s *Store) UpdateTask(ctx context.Context, id int64, patch TaskPatch) (*Task, error) {
	s.logger.Debug().Str("method", "UpdateTask").Int64("id", id).Msg("called")

	set := map[string]interface{}{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Category != nil {
		set["category"] = string(*patch.Category)
	}
	if patch.NextAction != nil {
		set["next_action"] = *patch.NextAction
	}
	if patch.Due != nil {
		set["due"] = formatDate(patch.Due)
	}
	if patch.Impact != nil {
		set["impact"] = *patch.Impact
	}
	if patch.EnergyFit != nil {
		set["energy_fit"] = *patch.EnergyFit
	}
	if patch.EffortHours != nil {
		set["effort_hours"] = *patch.EffortHours
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.ClearOverride {
		set["order_override"] = nil
	}
	if len(set) > 0 {
		if err := s.execTaskUpdate(ctx, "update task", id, set); err != nil {
			return nil, err
		}
	}
	return s.GetTask(ctx, id)
}

func (s *Store) execTaskUpdate(ctx context.Context, op string, id int64, set map[string]interface{}) error {
	set["updated_at"] = s.stamp()
	queryStr, args, err := StatementBuilder().
		Update("tasks").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return storeErr(op, err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Str("method", op).Int64("id", id).Err(err).Msg("Task update failed")
		return storeErr(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storeErr(op, ErrTaskNotFound)
	}
	return nil
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t          Task
		category   string
		status     string
		goalID     sql.NullInt64
		nextAction sql.NullString
		due        sql.NullString
		impact     sql.NullInt64
		energyFit  sql.NullInt64
		effort     sql.NullFloat64
		override   sql.NullInt64
		score      sql.NullFloat64
		created    string
		updated    string
	)
	if err := row.Scan(&t.ID, &t.Title, &category, &goalID, &nextAction, &due, &impact,
		&energyFit, &effort, &status, &override, &score, &created, &updated); err != nil {
		return Task{}, err
	}
	t.Category = TaskCategory(category)
	t.Status = TaskStatus(status)
	t.GoalID = int64Ptr(goalID)
	t.NextAction = strPtr(nextAction)
	t.Due = parseDate(due)
	t.Impact = intPtr(impact)
	t.EnergyFit = intPtr(energyFit)
	t.EffortHours = floatPtr(effort)
	t.OrderOverride = int64Ptr(override)
	t.Score = floatPtr(score)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}
