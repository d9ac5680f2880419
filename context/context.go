// Package context carries per-turn values (calling surface, turn id) through
// the executors without threading extra parameters. It lives in its own
// package to avoid import cycles.
package context

import (
	stdctx "context"
)

type sourceKey struct{}

type turnIDKey struct{}

// DefaultSource tags writes whose caller did not name a surface.
const DefaultSource = "web"

// WithSource records the surface (web, assistant, mcp, cli) a request came from.
func WithSource(ctx stdctx.Context, source string) stdctx.Context {
	return stdctx.WithValue(ctx, sourceKey{}, source)
}

// Source returns the surface recorded by WithSource, or DefaultSource.
func Source(ctx stdctx.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return DefaultSource
}

// WithTurnID attaches the id of the orchestrator turn in progress.
func WithTurnID(ctx stdctx.Context, id string) stdctx.Context {
	return stdctx.WithValue(ctx, turnIDKey{}, id)
}

// TurnID returns the id attached by WithTurnID, if any.
func TurnID(ctx stdctx.Context) (string, bool) {
	id, ok := ctx.Value(turnIDKey{}).(string)
	return id, ok && id != ""
}
