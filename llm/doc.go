// Package llm provides a provider-neutral abstraction over chat-completion
// services that can return either plain text or a list of requested tool
// invocations.
//
// # Core Concepts
//
//  1. Messages: a Message has a role (user, assistant, system) and content
//     blocks (text, tool use, tool result).
//
//  2. Tools: ToolSpec describes a callable action; ToolUseBlock and
//     ToolResultBlock carry one invocation and its outcome, correlated by ID.
//
//  3. Client: Synchronous sends a request and returns the whole response.
//     Provider packages (openai, anthropic, ollama, gemini) translate to and
//     from their SDK types.
//
//  4. Middleware: cross-cutting hooks (logging, retry, rate limiting) that
//     wrap any Client via WrapWithMiddleware. WithCircuitBreaker adds a
//     breaker in front of a flaky provider.
//
//  5. Errors: Error classifies provider failures (rate limit, timeout,
//     invalid request) so callers can decide whether to retry.
//
// Usage Example
//
//	base := openai.NewOpenAIClient(key, "", "gpt-4o-mini", "")
//	client := llm.WrapWithMiddleware(llm.WithCircuitBreaker(base, "openai"), loggingMiddleware)
//
//	resp, err := client.Synchronous(ctx, &llm.Request{
//	    Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello!")},
//	})
package llm
