package intent

import (
	"regexp"
	"strings"
	"time"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/samber/lo"
)

var (
	queryWords     = regexp.MustCompile(`\b(show|list|find|search|entries?)\b`)
	questionWords  = regexp.MustCompile(`\b(when|what|where|who|did i|have i|how many)\b`)
	nonAlphanumRun = regexp.MustCompile(`[^a-z0-9]+`)
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`show list find search entries entry this last week month today
		yesterday the a an of at in with for to and or me my did i what when where who how many
		from about have any all`) {
		stopWords[w] = struct{}{}
	}
}

// IsQuery reports whether text reads as a request to look something up.
func IsQuery(text string) bool {
	m := strings.ToLower(strings.TrimSpace(text))
	return queryWords.MatchString(m) || questionWords.MatchString(m) || strings.Contains(m, "?")
}

// Keywords lower-cases text, splits it on non-alphanumeric runs and keeps
// unique tokens longer than two characters that are not stop words.
func Keywords(text string) []string {
	tokens := nonAlphanumRun.Split(strings.ToLower(text), -1)
	kept := lo.Filter(tokens, func(w string, _ int) bool {
		_, stop := stopWords[w]
		return len(w) > 2 && !stop
	})
	return lo.Uniq(kept)
}

// Heuristic classifies obvious memory searches without calling a model. It
// only ever returns SEARCH, or nil when text does not look like a query.
// now and loc anchor relative time phrases.
func Heuristic(text string, now time.Time, loc *time.Location) *Result {
	if !IsQuery(text) {
		return nil
	}
	search := &actions.SearchParams{
		Keywords:    Keywords(text),
		PersonNames: []string{},
		Limit:       actions.DefaultSearchLimit,
	}
	if phrase, ok := FindPhrase(text); ok {
		if r, err := Resolve(phrase, now, loc); err == nil {
			search.DateFrom, search.DateTo = r.Format()
		}
	}
	return &Result{Intent: IntentSearch, Search: search}
}
