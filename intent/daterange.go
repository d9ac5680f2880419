package intent

import (
	"fmt"
	"strings"
	"time"

	"github.com/JamesWemyss/psyclone/memory"
)

// Phrase is a recognised relative time expression.
type Phrase string

const (
	PhraseToday     Phrase = "today"
	PhraseYesterday Phrase = "yesterday"
	PhraseThisMonth Phrase = "this month"
	PhraseLastMonth Phrase = "last month"
	PhraseThisWeek  Phrase = "this week"
	PhraseLastWeek  Phrase = "last week"
)

// phrases is the match priority: the first one found in the text wins.
var phrases = []Phrase{
	PhraseToday,
	PhraseYesterday,
	PhraseThisMonth,
	PhraseLastMonth,
	PhraseThisWeek,
	PhraseLastWeek,
}

// FindPhrase returns the first recognised phrase contained in text.
func FindPhrase(text string) (Phrase, bool) {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, string(p)) {
			return p, true
		}
	}
	return "", false
}

// Range is an inclusive window of instants.
type Range struct {
	From time.Time
	To   time.Time
}

// Format renders both bounds in the store's canonical instant format.
func (r Range) Format() (from, to string) {
	return r.From.UTC().Format(memory.TimeLayout), r.To.UTC().Format(memory.TimeLayout)
}

// Resolve maps phrase to calendar bounds around now in loc. Days run from
// 00:00:00.000 to 23:59:59.999 and weeks start on Monday.
func Resolve(phrase Phrase, now time.Time, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	y, m, d := n.Date()

	switch phrase {
	case PhraseToday:
		return days(y, m, d, d, loc), nil
	case PhraseYesterday:
		return days(y, m, d-1, d-1, loc), nil
	case PhraseThisMonth:
		return days(y, m, 1, lastDay(y, m, loc), loc), nil
	case PhraseLastMonth:
		first := time.Date(y, m-1, 1, 0, 0, 0, 0, loc)
		return days(first.Year(), first.Month(), 1, lastDay(first.Year(), first.Month(), loc), loc), nil
	case PhraseThisWeek, PhraseLastWeek:
		monday := d - (int(n.Weekday())+6)%7
		if phrase == PhraseLastWeek {
			monday -= 7
		}
		return days(y, m, monday, monday+6, loc), nil
	default:
		return Range{}, fmt.Errorf("unknown time phrase %q", phrase)
	}
}

// days spans the start of day first to the end of day last of month m.
// Out-of-range day numbers normalise through time.Date.
func days(y int, m time.Month, first, last int, loc *time.Location) Range {
	return Range{
		From: time.Date(y, m, first, 0, 0, 0, 0, loc),
		To:   time.Date(y, m, last, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

func lastDay(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
