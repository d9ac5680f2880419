// Package agent runs the multi-turn tool-call loop: it sends the
// conversation to the model, executes the tools it asks for and repeats
// until the model replies in plain text or a safety bound trips.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/metrics"
)

// Loop defaults.
const (
	DefaultMaxIterations = 6
	DefaultTimeout       = 45 * time.Second
	DefaultPollInterval  = 750 * time.Millisecond
	maxPollInterval      = 3 * time.Second

	// EmptyReply stands in for a final model reply with no text.
	EmptyReply = "OK"
)

const systemPromptTemplate = `You are Psyclone, a personal assistant with a memory.
Use the tools to save memories, search them, manage goals and tasks, and keep track of people and their key dates.
Save only durable facts, events, places, people, amounts and commitments. Do not invent amounts or people.
When the user asks about the past, search before answering. Keep replies short.
Current time: %s. Resolve relative dates in %s and send dates as ISO 8601.`

// Config tunes the loop.
type Config struct {
	Model         string
	MaxIterations int
	Timeout       time.Duration
	PollInterval  time.Duration
	MaxTokens     int64
	Temperature   *float64
	Location      *time.Location
}

func (c Config) withDefaults() Config {
	if c.MaxIterations < 1 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Orchestrator runs one independent state machine per user turn. It holds no
// per-turn state, so one value serves concurrent turns.
type Orchestrator struct {
	source   TurnSource
	toolExec ToolExecutor
	recorder Recorder
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder persists turns and transcripts.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithMetrics records turn, tool and model metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the clock used in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator with all required dependencies.
func NewOrchestrator(source TurnSource, toolExec ToolExecutor, cfg Config, logger zerolog.Logger, opts ...Option) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("turn source is required for Orchestrator")
	}
	if toolExec == nil {
		return nil, fmt.Errorf("tool executor is required for Orchestrator")
	}
	o := &Orchestrator{
		source:   source,
		toolExec: toolExec,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// turn is the mutable state of one Run.
type turn struct {
	id         string
	state      State
	iterations int
	messages   []llm.Message
	calls      []ToolCall
}

// Run drives one user turn to a terminal state. A FAILED or TIMED_OUT turn
// returns a *TurnError; its conversation is discarded.
func (o *Orchestrator) Run(ctx context.Context, text string) (*TurnResult, error) {
	t := &turn{
		id:       o.newID(),
		state:    StateAwaitingModel,
		messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, text)},
	}
	ctx = ctxpkg.WithTurnID(ctx, t.id)
	// Bookkeeping outlives the turn deadline.
	persistCtx := context.WithoutCancel(ctx)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	logger := o.logger.With().Str("turn_id", t.id).Logger()
	logger.Info().Str("source", ctxpkg.Source(ctx)).Msg("Turn started")

	tlc := &toolLoopContext{
		turnID:   t.id,
		toolExec: o.toolExec,
		recorder: o.recorder,
		metrics:  o.metrics,
		logger:   logger,
	}
	o.record(logger, func(r Recorder) error {
		if err := r.StartTurn(persistCtx, t.id, string(t.state)); err != nil {
			return err
		}
		return r.AppendUserMessage(persistCtx, t.id, text)
	})

	req := &llm.Request{
		Model:       o.cfg.Model,
		System:      fmt.Sprintf(systemPromptTemplate, o.now().In(o.cfg.Location).Format(time.RFC3339), o.cfg.Location),
		Tools:       o.toolExec.Specs(),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}

	for {
		if t.iterations >= o.cfg.MaxIterations {
			return nil, o.fail(persistCtx, logger, t, StateFailed,
				fmt.Errorf("%w: %d model calls", ErrOrchestrationBoundExceeded, t.iterations))
		}
		t.iterations++
		t.state = StateAwaitingModel
		o.record(logger, func(r Recorder) error {
			return r.UpdateTurn(persistCtx, t.id, string(t.state), t.iterations)
		})

		turnReq := *req
		turnReq.Messages = append([]llm.Message(nil), t.messages...)
		resp, err := o.nextModelTurn(ctx, &turnReq)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, o.fail(persistCtx, logger, t, StateTimedOut,
					fmt.Errorf("%w after %s: %w", ErrOrchestrationTimeout, o.cfg.Timeout, err))
			}
			return nil, o.fail(persistCtx, logger, t, StateFailed, fmt.Errorf("model request: %w", err))
		}
		t.state = StateModelResponded

		uses := withCallIDs(resp.ToolUses())
		if len(uses) == 0 {
			return o.complete(persistCtx, logger, t, resp.Text()), nil
		}

		t.state = StateExecutingTools
		logger.Debug().Int("iteration", t.iterations).Int("tool_calls", len(uses)).Msg("Executing tools")
		t.messages = append(t.messages, llm.NewToolUseMessage(resp.Text(), uses))
		tlc.persistToolCalls(persistCtx, uses)

		results := tlc.executeTools(ctx, uses)
		tlc.persistToolResults(persistCtx, results)
		t.calls = append(t.calls, toToolCalls(results)...)
		t.messages = append(t.messages, buildToolResultMessage(results))

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, o.fail(persistCtx, logger, t, StateTimedOut,
				fmt.Errorf("%w after %s", ErrOrchestrationTimeout, o.cfg.Timeout))
		}
	}
}

// nextModelTurn asks the source for the model's reply, polling with backoff
// while the source reports that it needs more time.
func (o *Orchestrator) nextModelTurn(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := o.awaitModel(ctx, req)
	o.metrics.ObserveModelCall(time.Since(start), err)
	return resp, err
}

func (o *Orchestrator) awaitModel(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	mt, err := o.source.Request(ctx, req)
	if err != nil {
		return nil, err
	}

	var b backoff.BackOff
	for mt.Status == TurnNeedsInput {
		if b == nil {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = o.cfg.PollInterval
			eb.MaxInterval = maxPollInterval
			// The turn deadline bounds polling.
			eb.MaxElapsedTime = 0
			eb.Reset()
			b = backoff.WithContext(eb, ctx)
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil, ctx.Err()
		}
		if err := WaitForRetry(ctx, delay); err != nil {
			return nil, err
		}
		mt, err = o.source.Poll(ctx, mt.Handle)
		if err != nil {
			return nil, err
		}
	}
	if mt.Response == nil {
		return nil, llm.NewProviderError("model returned no response", nil)
	}
	return mt.Response, nil
}

func (o *Orchestrator) complete(ctx context.Context, logger zerolog.Logger, t *turn, text string) *TurnResult {
	reply := strings.TrimSpace(text)
	if reply == "" {
		reply = EmptyReply
	}
	t.state = StateCompleted
	o.record(logger, func(r Recorder) error {
		if err := r.AppendAssistantMessage(ctx, t.id, reply); err != nil {
			return err
		}
		return r.FinishTurn(ctx, t.id, string(t.state), t.iterations, "")
	})
	o.metrics.ObserveTurn(string(t.state), t.iterations)
	logger.Info().Int("iterations", t.iterations).Int("tool_calls", len(t.calls)).Msg("Turn completed")

	calls := t.calls
	if calls == nil {
		calls = []ToolCall{}
	}
	return &TurnResult{
		TurnID:     t.id,
		State:      t.state,
		Reply:      reply,
		Iterations: t.iterations,
		ToolCalls:  calls,
	}
}

func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, t *turn, state State, err error) error {
	t.state = state
	o.record(logger, func(r Recorder) error {
		return r.FinishTurn(ctx, t.id, string(state), t.iterations, err.Error())
	})
	o.metrics.ObserveTurn(string(state), t.iterations)
	logger.Error().Str("state", string(state)).Int("iterations", t.iterations).Err(err).Msg("Turn failed")
	return &TurnError{TurnID: t.id, State: state, Iterations: t.iterations, Err: err}
}

func (o *Orchestrator) record(logger zerolog.Logger, fn func(Recorder) error) {
	if o.recorder == nil {
		return
	}
	if err := fn(o.recorder); err != nil {
		logger.Warn().Err(err).Msg("failed to persist turn")
	}
}
