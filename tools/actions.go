package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JamesWemyss/psyclone/actions"
)

// RegisterActionTools registers every action executor as a tool. Searches
// through tools are capped at searchLimit.
func (r *Registry) RegisterActionTools(ex *actions.Executors, searchLimit int) {
	r.logger.Info().Msg("Registering action tools in registry")

	r.Register("save_document", decoded(func(ctx context.Context, p actions.SaveMemoryParams) (any, error) {
		return ex.SaveMemoryItem(ctx, p)
	}))
	r.Register("search_documents", decoded(func(ctx context.Context, p actions.SearchParams) (any, error) {
		return ex.SearchMemoryItems(ctx, p, searchLimit)
	}))
	r.Register("ignore_last_document", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ex.IgnoreLast(ctx)
	})

	r.Register("create_goal", decoded(func(ctx context.Context, p actions.CreateGoalParams) (any, error) {
		return ex.CreateGoal(ctx, p)
	}))
	r.Register("create_task", decoded(func(ctx context.Context, p actions.CreateTaskParams) (any, error) {
		return ex.CreateTask(ctx, p)
	}))
	r.Register("complete_task", decoded(func(ctx context.Context, p actions.TaskRefParams) (any, error) {
		return ex.CompleteTask(ctx, p)
	}))
	r.Register("reorder_task_top", decoded(func(ctx context.Context, p actions.TaskRefParams) (any, error) {
		return ex.ReorderTask(ctx, p)
	}))
	r.Register("list_priorities", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ex.ListActive(ctx)
	})

	r.Register("upsert_contact", decoded(func(ctx context.Context, p actions.UpsertContactParams) (any, error) {
		return ex.UpsertContact(ctx, p)
	}))
	r.Register("add_contact_key_date", decoded(func(ctx context.Context, p actions.KeyDateParams) (any, error) {
		return ex.AddContactKeyDate(ctx, p)
	}))
	r.Register("search_contacts", decoded(func(ctx context.Context, p actions.SearchContactsParams) (any, error) {
		return ex.SearchContacts(ctx, p)
	}))
}

// decoded adapts a typed executor call to a ToolHandler. Malformed arguments
// are reported as a ValidationError.
func decoded[P any](fn func(ctx context.Context, p P) (any, error)) ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var p P
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, &actions.ValidationError{Field: "arguments", Message: fmt.Sprintf("malformed JSON: %v", err)}
		}
		return fn(ctx, p)
	}
}
