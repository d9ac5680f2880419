package memory

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// StatementBuilder returns a Squirrel StatementBuilder configured for SQLite.
// SQLite uses '?' as placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}

// eventTimeExpr orders and filters items by when they happened, falling back
// to when they were recorded.
const eventTimeExpr = "COALESCE(happened_at, recorded_at)"

func memoryItemColumns() []string {
	return []string{
		"id", "kind", "content", "body", "happened_at", "place", "amount",
		"category", "person_names", "confidence", "is_ignored", "recorded_at", "source",
	}
}

func goalColumns() []string {
	return []string{"id", "title", "category", "why", "target_date", "created_at"}
}

func taskColumns() []string {
	return []string{
		"id", "title", "category", "goal_id", "next_action", "due", "impact",
		"energy_fit", "effort_hours", "status", "order_override", "score",
		"created_at", "updated_at",
	}
}

func contactColumns() []string {
	return []string{
		"c.id", "c.full_name", "c.preferred_name", "c.email", "c.phone", "c.notes",
		"r.relation",
		"(SELECT MIN(k.the_date) FROM contact_key_dates k WHERE k.contact_id = c.id AND k.kind = 'birthday')",
		"c.created_at", "c.updated_at",
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s anywhere. SQLite LIKE is
// case-insensitive for ASCII.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func likeExpr(column, s string) sq.Sqlizer {
	return sq.Expr(column+` LIKE ? ESCAPE '\'`, containsPattern(s))
}
