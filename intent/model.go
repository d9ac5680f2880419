package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/memory"
	"github.com/rs/zerolog"
)

const classifierPrompt = `You are Psyclone's router.
Decide INTENT for the user's message:
- "SAVE" if it's a durable note/event/fact/task we should store.
- "SEARCH" if it's a question requesting items from memory.
- Otherwise "NONE".

When INTENT="SAVE", return:
  save: {
    kind: "event|fact|note|task",
    content: string,
    body: string or "",
    happened_at: ISO8601 string or "",
    place: string or "",
    amount: number or null,
    category: "work|health|finance|places|personal|other",
    person_names: [string, ...],
    confidence: number 0..1
  }

When INTENT="SEARCH", return:
  search: {
    keywords: [string,...],
    person_names: [string,...],
    kind: "event|fact|note|task" or "",
    date_from: ISO date or "",
    date_to: ISO date or "",
    limit: number <= 20
  }

Output STRICT JSON:
{ "intent": "SAVE|SEARCH|NONE", "save": {...} or null, "search": {...} or null }

Rules:
- If the message begins with or contains words like "show", "list", "find", "search", "entries", or is clearly a question ("when did I", "what did I", "where did I", "?"), classify as SEARCH.
- Only SAVE if confidence >= 0.75.
- Resolve relative dates ("yesterday 6pm") in %s. The current time is %s.
- Do not invent people or amounts.`

// ClassificationError reports a model reply that could not be read. The
// classifier logs it and degrades to NONE.
type ClassificationError struct {
	Raw string
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unreadable classification %q: %v", truncate(e.Raw, 80), e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ModelClassifier asks a language model for SAVE, SEARCH or NONE.
type ModelClassifier struct {
	client llm.Client
	model  string
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// NewModelClassifier creates a classifier using model on client. Relative
// dates in the prompt resolve in loc.
func NewModelClassifier(client llm.Client, model string, loc *time.Location, logger zerolog.Logger) *ModelClassifier {
	if loc == nil {
		loc = time.UTC
	}
	return &ModelClassifier{
		client: client,
		model:  model,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "model_classifier").Logger(),
	}
}

// WithClock replaces the classifier's clock and returns it.
func (c *ModelClassifier) WithClock(now func() time.Time) *ModelClassifier {
	c.now = now
	return c
}

// Classify always returns a result. Transport failures and unreadable
// replies both come back as NONE.
func (c *ModelClassifier) Classify(ctx context.Context, text string) Result {
	temp := 0.2
	resp, err := c.client.Synchronous(ctx, &llm.Request{
		Model:       c.model,
		System:      fmt.Sprintf(classifierPrompt, c.loc, c.now().In(c.loc).Format(time.RFC3339)),
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, text)},
		Temperature: &temp,
		JSONMode:    true,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Classifier request failed, treating as NONE")
		return None()
	}
	result, err := c.parse(resp.Text(), text)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Classifier reply unreadable, treating as NONE")
		return None()
	}
	c.logger.Debug().Str("intent", string(result.Intent)).Msg("Classified")
	return result
}

type classifierReply struct {
	Intent string       `json:"intent"`
	Save   *saveReply   `json:"save"`
	Search *searchReply `json:"search"`
}

type saveReply struct {
	Kind        string   `json:"kind"`
	Content     string   `json:"content"`
	Body        string   `json:"body"`
	HappenedAt  string   `json:"happened_at"`
	Place       string   `json:"place"`
	Amount      *float64 `json:"amount"`
	Category    string   `json:"category"`
	PersonNames []string `json:"person_names"`
	Confidence  *float64 `json:"confidence"`
}

type searchReply struct {
	Keywords    []string `json:"keywords"`
	PersonNames []string `json:"person_names"`
	Kind        string   `json:"kind"`
	DateFrom    string   `json:"date_from"`
	DateTo      string   `json:"date_to"`
	Limit       int      `json:"limit"`
}

// parse reads the reply and replaces out-of-range values with safe defaults.
func (c *ModelClassifier) parse(raw, text string) (Result, error) {
	var reply classifierReply
	if err := decodeObject(raw, &reply); err != nil {
		return None(), err
	}

	switch Intent(strings.ToUpper(strings.TrimSpace(reply.Intent))) {
	case IntentSave:
		if reply.Save == nil {
			return None(), &ClassificationError{Raw: raw, Err: errors.New("SAVE without save payload")}
		}
		return Result{Intent: IntentSave, Save: c.sanitizeSave(reply.Save, text)}, nil
	case IntentSearch:
		s := reply.Search
		if s == nil {
			s = &searchReply{}
		}
		return Result{Intent: IntentSearch, Search: c.sanitizeSearch(s)}, nil
	case IntentNone:
		return None(), nil
	default:
		return None(), &ClassificationError{Raw: raw, Err: fmt.Errorf("unknown intent %q", reply.Intent)}
	}
}

func (c *ModelClassifier) sanitizeSave(s *saveReply, text string) *actions.SaveMemoryParams {
	confidence := 0.0
	if s.Confidence != nil && *s.Confidence >= 0 && *s.Confidence <= 1 {
		confidence = *s.Confidence
	}
	kind := memory.Kind(strings.ToLower(s.Kind))
	if !kind.Valid() {
		kind = memory.KindNote
	}
	category := memory.Category(strings.ToLower(s.Category))
	if !category.Valid() {
		category = memory.CategoryOther
	}
	return &actions.SaveMemoryParams{
		Kind:        string(kind),
		Content:     s.Content,
		Body:        s.Body,
		HappenedAt:  instantOrEmpty(s.HappenedAt, c.loc, false),
		Place:       s.Place,
		Amount:      s.Amount,
		Category:    string(category),
		PersonNames: s.PersonNames,
		Confidence:  &confidence,
		RawText:     text,
	}
}

func (c *ModelClassifier) sanitizeSearch(s *searchReply) *actions.SearchParams {
	kind := memory.Kind(strings.ToLower(s.Kind))
	if !kind.Valid() {
		kind = ""
	}
	keywords := make([]string, 0, len(s.Keywords))
	for _, k := range s.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	names := s.PersonNames
	if names == nil {
		names = []string{}
	}
	return &actions.SearchParams{
		Keywords:    keywords,
		PersonNames: names,
		Kind:        string(kind),
		DateFrom:    instantOrEmpty(s.DateFrom, c.loc, false),
		DateTo:      instantOrEmpty(s.DateTo, c.loc, true),
		Limit:       actions.ClampLimit(s.Limit, actions.MaxSearchLimit),
	}
}

// instantOrEmpty and dateOrEmpty drop values the executors would reject.
func instantOrEmpty(s string, loc *time.Location, endOfDay bool) string {
	if t, err := actions.ParseInstant(s, loc, endOfDay); err != nil || t == nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func dateOrEmpty(s string, loc *time.Location) string {
	if t, err := actions.ParseDate(s, loc); err != nil || t == nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// decodeObject unmarshals the outermost JSON object in raw, tolerating code
// fences or prose around it.
func decodeObject(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return &ClassificationError{Raw: raw, Err: errors.New("no JSON object")}
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return &ClassificationError{Raw: raw, Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
