package actions

import (
	"context"
	"fmt"
	"strings"

	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/memory"
)

// SearchOutcome lists matching memory items.
type SearchOutcome struct {
	Count int                 `json:"count"`
	Items []memory.MemoryItem `json:"items"`
}

// SaveMemoryItem records a memory item. Classified input below SaveThreshold
// is reported as not-saveworthy and nothing is written.
func (e *Executors) SaveMemoryItem(ctx context.Context, p SaveMemoryParams) (Outcome, error) {
	log := e.logger.With().Str("method", "SaveMemoryItem").Logger()

	if p.Confidence != nil && *p.Confidence >= 0 && *p.Confidence < SaveThreshold {
		log.Debug().Float64("confidence", *p.Confidence).Msg("Below save threshold")
		return Outcome{Status: StatusNotSaveworthy, Summary: "Not saveworthy"}, nil
	}
	if err := e.validateStruct(p); err != nil {
		return Outcome{}, err
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		content = prefix(strings.TrimSpace(p.RawText), FallbackContentLength)
	}
	if content == "" {
		return Outcome{}, invalid("content", "is required")
	}
	content = prefix(content, MaxContentLength)

	happened, err := ParseInstant(p.HappenedAt, e.loc, false)
	if err != nil {
		return Outcome{}, invalid("happened_at", err.Error())
	}

	kind := memory.Kind(p.Kind)
	if kind == "" {
		kind = memory.KindNote
	}
	category := memory.Category(p.Category)
	if category == "" {
		category = memory.CategoryOther
	}

	item, err := e.store.InsertMemoryItem(ctx, memory.NewMemoryItem{
		Kind:        kind,
		Content:     content,
		Body:        optional(p.Body),
		HappenedAt:  happened,
		Place:       optional(p.Place),
		Amount:      p.Amount,
		Category:    category,
		PersonNames: trimAll(p.PersonNames),
		Confidence:  p.Confidence,
		Source:      ctxpkg.Source(ctx),
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status:  StatusSaved,
		ID:      item.ID,
		Summary: fmt.Sprintf("Saved: “%s”.", item.Content),
		Entity:  item,
	}, nil
}

// SearchMemoryItems runs a filtered search. The limit defaults to
// DefaultSearchLimit and is clamped into [1, maxLimit].
func (e *Executors) SearchMemoryItems(ctx context.Context, p SearchParams, maxLimit int) (SearchOutcome, error) {
	if err := e.validateStruct(p); err != nil {
		return SearchOutcome{}, err
	}
	from, err := ParseInstant(p.DateFrom, e.loc, false)
	if err != nil {
		return SearchOutcome{}, invalid("date_from", err.Error())
	}
	to, err := ParseInstant(p.DateTo, e.loc, true)
	if err != nil {
		return SearchOutcome{}, invalid("date_to", err.Error())
	}

	keywords := make([]string, 0, len(p.Keywords))
	for _, k := range trimAll(p.Keywords) {
		keywords = append(keywords, strings.ToLower(k))
	}

	items, err := e.store.SearchMemoryItems(ctx, memory.SearchQuery{
		Kind:        memory.Kind(p.Kind),
		From:        from,
		To:          to,
		PersonNames: trimAll(p.PersonNames),
		Keywords:    keywords,
		Limit:       ClampLimit(p.Limit, maxLimit),
	})
	if err != nil {
		return SearchOutcome{}, err
	}
	return SearchOutcome{Count: len(items), Items: items}, nil
}

// IgnoreLast soft-deletes the most recently recorded memory item.
func (e *Executors) IgnoreLast(ctx context.Context) (Outcome, error) {
	item, err := e.store.IgnoreLatestMemoryItem(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if item == nil {
		return Outcome{Status: StatusNotFound, Summary: "Nothing to ignore"}, nil
	}
	return Outcome{
		Status:  StatusIgnored,
		ID:      item.ID,
		Summary: item.Content,
		Entity:  item,
	}, nil
}

// ClampLimit applies the default search limit when limit is zero and bounds
// the result to [1, maxLimit].
func ClampLimit(limit, maxLimit int) int {
	if maxLimit < 1 {
		maxLimit = MaxSearchLimit
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	return min(max(limit, 1), maxLimit)
}
