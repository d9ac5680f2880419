// Package conversations records orchestrator turns and their transcripts so a
// turn can be inspected after the fact.
package conversations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/memory"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrTurnNotFound is returned by GetTurn for an unknown id.
var ErrTurnNotFound = errors.New("turn not found")

// Entry is one transcript row.
type Entry struct {
	Seq       int
	Role      string
	Content   string
	ToolName  string
	ToolID    string
	Source    string
	CreatedAt time.Time
}

// Turn is the summary row of one orchestrator turn.
type Turn struct {
	TurnID     string
	Source     string
	State      string
	Iterations int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Store handles persistence of turns and transcripts.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore creates a new Store on a migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "conversation_store").Logger(),
		now:    time.Now,
	}
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(memory.TimeLayout)
}

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// StartTurn opens the summary row for a turn.
func (s *Store) StartTurn(ctx context.Context, turnID, state string) error {
	queryStr, args, err := builder().
		Insert("turns").
		Columns("turn_id", "source", "state", "iterations", "started_at").
		Values(turnID, ctxpkg.Source(ctx), state, 0, s.stamp()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("start turn %s: %w", turnID, err)
	}
	return nil
}

// UpdateTurn records progress on an open turn.
func (s *Store) UpdateTurn(ctx context.Context, turnID, state string, iterations int) error {
	return s.updateTurn(ctx, turnID, map[string]interface{}{
		"state":      state,
		"iterations": iterations,
	})
}

// FinishTurn records the terminal state of a turn. errMsg is empty on success.
func (s *Store) FinishTurn(ctx context.Context, turnID, state string, iterations int, errMsg string) error {
	set := map[string]interface{}{
		"state":       state,
		"iterations":  iterations,
		"finished_at": s.stamp(),
	}
	if errMsg != "" {
		set["error"] = errMsg
	}
	return s.updateTurn(ctx, turnID, set)
}

func (s *Store) updateTurn(ctx context.Context, turnID string, set map[string]interface{}) error {
	queryStr, args, err := builder().
		Update("turns").
		SetMap(set).
		Where(sq.Eq{"turn_id": turnID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("update turn %s: %w", turnID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTurnNotFound
	}
	return nil
}

// AppendUserMessage saves a user text message to the turn's transcript.
func (s *Store) AppendUserMessage(ctx context.Context, turnID, content string) error {
	return s.append(ctx, turnID, RoleUser, content, nil, nil, false)
}

// AppendAssistantMessage saves an assistant text-only message.
func (s *Store) AppendAssistantMessage(ctx context.Context, turnID, content string) error {
	return s.append(ctx, turnID, RoleAssistant, content, nil, nil, false)
}

// AppendToolCall saves one tool invocation requested by the model.
// A repeated toolID within a turn is ignored.
func (s *Store) AppendToolCall(ctx context.Context, turnID, toolID, toolName string, toolInput any) error {
	contentJSON, err := json.Marshal(map[string]interface{}{
		"id":    toolID,
		"input": toolInput,
		"name":  toolName,
	})
	if err != nil {
		return fmt.Errorf("marshal tool use data: %w", err)
	}
	return s.append(ctx, turnID, RoleAssistant, string(contentJSON), toolName, toolID, true)
}

// AppendToolResult saves the result returned to the model for toolID.
// A repeated toolID within a turn is ignored.
func (s *Store) AppendToolResult(ctx context.Context, turnID, toolID, toolName, result string, isError bool) error {
	contentJSON, err := json.Marshal(map[string]interface{}{
		"id":       toolID,
		"result":   result,
		"is_error": isError,
	})
	if err != nil {
		return fmt.Errorf("marshal tool result data: %w", err)
	}
	return s.append(ctx, turnID, RoleTool, string(contentJSON), toolName, toolID, true)
}

// append assigns the next seq for the turn inside the insert itself, so two
// appends never race for the same position.
func (s *Store) append(ctx context.Context, turnID, role, content string, toolName, toolID interface{}, orIgnore bool) error {
	next := builder().
		Select("?", "COALESCE(MAX(seq), 0) + 1", "?", "?", "?", "?", "?", "?").
		From("transcripts").
		Where(sq.Eq{"turn_id": turnID})

	queryStr, args, err := builder().
		Insert("transcripts").
		Columns("turn_id", "seq", "role", "content", "tool_name", "tool_id", "source", "created_at").
		Select(next).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	// The select placeholders precede its WHERE argument.
	args = append([]interface{}{turnID, role, content, toolName, toolID, ctxpkg.Source(ctx), s.stamp()}, args...)

	if orIgnore {
		// SQLite requires "OR IGNORE" to come after "INSERT".
		queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		s.logger.Error().Err(err).Str("turn_id", turnID).Str("role", role).Msg("Failed to append transcript entry")
		return fmt.Errorf("append %s entry: %w", role, err)
	}
	return nil
}

// Transcript returns a turn's entries in sequence order.
func (s *Store) Transcript(ctx context.Context, turnID string) ([]Entry, error) {
	queryStr, args, err := builder().
		Select("seq", "role", "content", "tool_name", "tool_id", "source", "created_at").
		From("transcripts").
		Where(sq.Eq{"turn_id": turnID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	entries := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			toolName sql.NullString
			toolID   sql.NullString
			created  string
		)
		if err := rows.Scan(&e.Seq, &e.Role, &e.Content, &toolName, &toolID, &e.Source, &created); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		e.ToolName = toolName.String
		e.ToolID = toolID.String
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetTurn loads one turn summary.
func (s *Store) GetTurn(ctx context.Context, turnID string) (*Turn, error) {
	queryStr, args, err := turnSelect().Where(sq.Eq{"turn_id": turnID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	t, err := scanTurn(s.db.QueryRowContext(ctx, queryStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTurnNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RecentTurns returns up to limit turns, newest first.
func (s *Store) RecentTurns(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	queryStr, args, err := turnSelect().
		OrderBy("started_at DESC", "turn_id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	turns := []Turn{}
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func turnSelect() sq.SelectBuilder {
	return builder().
		Select("turn_id", "source", "state", "iterations", "error", "started_at", "finished_at").
		From("turns")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (Turn, error) {
	var (
		t        Turn
		errMsg   sql.NullString
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&t.TurnID, &t.Source, &t.State, &t.Iterations, &errMsg, &started, &finished); err != nil {
		return Turn{}, err
	}
	t.Error = errMsg.String
	t.StartedAt = parseTime(started)
	if finished.Valid {
		f := parseTime(finished.String)
		t.FinishedAt = &f
	}
	return t, nil
}

func parseTime(v string) time.Time {
	t, err := time.Parse(memory.TimeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
