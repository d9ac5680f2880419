package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/intent"
	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/memory"
)

// Ask response types.
const (
	AskSaved    = "saved"
	AskNoSave   = "no-save"
	AskResults  = "results"
	AskNoAction = "no-action"
)

// Chat replies with fixed wording.
const (
	ShowListsReply = "Here are your current priorities and goals."
	FallbackReply  = "Okay."
	chatContextN   = 6
)

const chatPromptTemplate = `You are Psyclone, a concise, encouraging assistant (UK English).
When relevant, use the context list of the user's top tasks. Offer one short follow-up question if it clearly helps. Avoid long paragraphs.
CONTEXT:
%s`

// Classifier is the single-shot SAVE/SEARCH/NONE classifier.
type Classifier interface {
	Classify(ctx context.Context, text string) intent.Result
}

// Router is the single-shot command router behind chat.
type Router interface {
	Route(ctx context.Context, text string) intent.Result
}

// AskResponse is the outcome of Ask.
type AskResponse struct {
	Type    string              `json:"type"`
	ID      int64               `json:"id,omitempty"`
	Summary string              `json:"summary,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	Count   int                 `json:"count"`
	Items   []memory.MemoryItem `json:"items,omitempty"`
}

// ChatResponse is the outcome of Chat.
type ChatResponse struct {
	Intent  intent.Intent `json:"intent"`
	Reply   string        `json:"reply"`
	Refresh bool          `json:"refresh,omitempty"`
}

// Dispatcher runs the single-shot flows: classify once, then call one
// executor.
type Dispatcher struct {
	executors  *actions.Executors
	classifier Classifier
	router     Router
	client     llm.Client
	model      string
	logger     zerolog.Logger
}

// NewDispatcher wires the flows. client and model serve the conversational
// fallback of Chat.
func NewDispatcher(ex *actions.Executors, classifier Classifier, router Router, client llm.Client, model string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		executors:  ex,
		classifier: classifier,
		router:     router,
		client:     client,
		model:      model,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Classify runs the heuristic and falls back to the model classifier.
func (d *Dispatcher) Classify(ctx context.Context, text string) intent.Result {
	if r := intent.Heuristic(text, d.executors.Now(), d.executors.Location()); r != nil {
		d.logger.Debug().Msg("Heuristic matched search")
		return *r
	}
	return d.classifier.Classify(ctx, text)
}

// Ask classifies text as SAVE, SEARCH or NONE and acts on it.
func (d *Dispatcher) Ask(ctx context.Context, text string) (AskResponse, error) {
	res := d.Classify(ctx, text)
	d.logger.Info().Str("intent", string(res.Intent)).Msg("Ask classified")

	switch {
	case res.Intent == intent.IntentSave && res.Save != nil:
		p := *res.Save
		p.RawText = text
		out, err := d.executors.SaveMemoryItem(ctx, p)
		if err != nil {
			return AskResponse{}, err
		}
		if out.Status == actions.StatusNotSaveworthy {
			return AskResponse{Type: AskNoSave, Reason: out.Summary}, nil
		}
		summary := out.Summary
		if item, ok := out.Entity.(memory.MemoryItem); ok {
			summary = item.Content
		}
		return AskResponse{Type: AskSaved, ID: out.ID, Summary: summary}, nil

	case res.Intent == intent.IntentSearch && res.Search != nil:
		out, err := d.executors.SearchMemoryItems(ctx, *res.Search, actions.MaxSearchLimit)
		if err != nil {
			return AskResponse{}, err
		}
		return AskResponse{Type: AskResults, Count: out.Count, Items: out.Items}, nil
	}
	return AskResponse{Type: AskNoAction, Reason: "Just chat"}, nil
}

// Save asks the model whether text is worth keeping and records it if so.
// The query heuristic is not consulted.
func (d *Dispatcher) Save(ctx context.Context, text string) (actions.Outcome, error) {
	res := d.classifier.Classify(ctx, text)
	if res.Intent != intent.IntentSave || res.Save == nil {
		return actions.Outcome{Status: actions.StatusNotSaveworthy, Summary: "Not saveworthy"}, nil
	}
	p := *res.Save
	p.RawText = text
	return d.executors.SaveMemoryItem(ctx, p)
}

// Chat routes text to one command and replies in a sentence.
func (d *Dispatcher) Chat(ctx context.Context, text string) (ChatResponse, error) {
	res := d.router.Route(ctx, text)
	d.logger.Info().Str("intent", string(res.Intent)).Msg("Chat routed")

	var (
		out actions.Outcome
		err error
	)
	switch {
	case res.Intent == intent.IntentCreateGoal && res.Goal != nil:
		out, err = d.executors.CreateGoal(ctx, *res.Goal)
	case res.Intent == intent.IntentCreateTask && res.Task != nil:
		out, err = d.executors.CreateTask(ctx, *res.Task)
	case res.Intent == intent.IntentCompleteTask && res.TaskRef != nil:
		out, err = d.executors.CompleteTask(ctx, *res.TaskRef)
	case res.Intent == intent.IntentReorderTask && res.TaskRef != nil:
		out, err = d.executors.ReorderTask(ctx, *res.TaskRef)
	case res.Intent == intent.IntentSave && res.Save != nil:
		p := *res.Save
		p.RawText = text
		out, err = d.executors.SaveMemoryItem(ctx, p)
	case res.Intent == intent.IntentShowLists:
		return ChatResponse{Intent: res.Intent, Reply: ShowListsReply, Refresh: true}, nil
	default:
		reply, err := d.converse(ctx, text)
		if err != nil {
			return ChatResponse{}, err
		}
		return ChatResponse{Intent: intent.IntentNone, Reply: reply}, nil
	}
	if err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{
		Intent:  res.Intent,
		Reply:   out.Summary,
		Refresh: out.Status != actions.StatusNotFound && out.Status != actions.StatusNotSaveworthy,
	}, nil
}

// converse answers small talk with the user's top tasks as context. A failed
// model call degrades to FallbackReply.
func (d *Dispatcher) converse(ctx context.Context, text string) (string, error) {
	top, err := d.executors.TopTasks(ctx, chatContextN)
	if err != nil {
		return "", err
	}
	temp := 0.5
	resp, err := d.client.Synchronous(ctx, &llm.Request{
		Model:       d.model,
		System:      fmt.Sprintf(chatPromptTemplate, taskContext(top)),
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, text)},
		MaxTokens:   512,
		Temperature: &temp,
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("Conversational reply failed")
		return FallbackReply, nil
	}
	if reply := strings.TrimSpace(resp.Text()); reply != "" {
		return reply, nil
	}
	return FallbackReply, nil
}

func taskContext(tasks []memory.Task) string {
	if len(tasks) == 0 {
		return "(no active priorities yet)"
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		line := fmt.Sprintf("• [%s] %s", t.Category, t.Title)
		if t.NextAction != nil && *t.NextAction != "" {
			line += " (next: " + *t.NextAction + ")"
		}
		if t.Due != nil {
			line += " (due: " + t.Due.Format(time.DateOnly) + ")"
		}
		if t.Score != nil {
			line += fmt.Sprintf(" (score %g)", *t.Score)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
