package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JamesWemyss/psyclone/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replying returns a client that answers every request with text and
// records the last request.
func replying(text string, last **llm.Request) llm.Client {
	return llm.ClientFunc(func(_ context.Context, req *llm.Request) (*llm.Response, error) {
		if last != nil {
			*last = req
		}
		return &llm.Response{Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}}}, nil
	})
}

func fixedClock() time.Time { return time.Date(2025, 3, 12, 18, 30, 0, 0, time.UTC) }

func newClassifier(t *testing.T, client llm.Client) *ModelClassifier {
	t.Helper()
	return NewModelClassifier(client, "test-model", mustLoad(t, "Europe/London"), zerolog.Nop()).WithClock(fixedClock)
}

func TestModelClassifierSave(t *testing.T) {
	var req *llm.Request
	reply := `{"intent":"SAVE","save":{"kind":"event","content":"Dinner with Sam","happened_at":"2025-03-11T18:00:00Z",
		"category":"personal","person_names":["Sam"],"amount":42.5,"confidence":0.9},"search":null}`
	c := newClassifier(t, replying(reply, &req))

	res := c.Classify(context.Background(), "Had dinner with Sam yesterday, £42.50")
	require.Equal(t, IntentSave, res.Intent)
	require.NotNil(t, res.Save)
	assert.Equal(t, "Dinner with Sam", res.Save.Content)
	assert.Equal(t, "personal", res.Save.Category)
	assert.Equal(t, []string{"Sam"}, res.Save.PersonNames)
	assert.InDelta(t, 42.5, *res.Save.Amount, 1e-9)
	assert.InDelta(t, 0.9, *res.Save.Confidence, 1e-9)
	assert.Equal(t, "Had dinner with Sam yesterday, £42.50", res.Save.RawText)

	require.NotNil(t, req)
	assert.True(t, req.JSONMode)
	assert.Equal(t, "test-model", req.Model)
	assert.Contains(t, req.System, "Europe/London")
	assert.Contains(t, req.System, "2025-03-12T18:30:00Z")
}

func TestModelClassifierSanitizesOutOfRangeValues(t *testing.T) {
	reply := `{"intent":"save","save":{"kind":"story","content":"x","category":"gardening",
		"happened_at":"sometime soon","confidence":1.7}}`
	res := newClassifier(t, replying(reply, nil)).Classify(context.Background(), "x")

	require.Equal(t, IntentSave, res.Intent)
	assert.Equal(t, "note", res.Save.Kind)
	assert.Equal(t, "other", res.Save.Category)
	assert.Empty(t, res.Save.HappenedAt)
	assert.Zero(t, *res.Save.Confidence)
}

func TestModelClassifierSearch(t *testing.T) {
	reply := "```json\n{\"intent\":\"SEARCH\",\"search\":{\"keywords\":[\" Tatton \",\"\"],\"kind\":\"bogus\"," +
		"\"date_from\":\"2025-03-01\",\"date_to\":\"not a date\",\"limit\":500}}\n```"
	res := newClassifier(t, replying(reply, nil)).Classify(context.Background(), "tatton stuff")

	require.Equal(t, IntentSearch, res.Intent)
	assert.Equal(t, []string{"tatton"}, res.Search.Keywords)
	assert.Empty(t, res.Search.Kind)
	assert.Equal(t, "2025-03-01", res.Search.DateFrom)
	assert.Empty(t, res.Search.DateTo)
	assert.Equal(t, 20, res.Search.Limit)
	assert.NotNil(t, res.Search.PersonNames)
}

func TestModelClassifierDegradesToNone(t *testing.T) {
	replies := []string{
		"",
		"I think this is a SAVE",
		`{"intent": "SAVE"`,
		`{"intent":"DELETE_EVERYTHING"}`,
		`{"intent":"SAVE","save":null}`,
		`{"intent":"NONE"}`,
		`{"intent": 7}`,
	}
	for _, reply := range replies {
		res := newClassifier(t, replying(reply, nil)).Classify(context.Background(), "hello")
		assert.Equal(t, None(), res, "reply %q", reply)
	}
}

func TestModelClassifierTransportFailure(t *testing.T) {
	failing := llm.ClientFunc(func(context.Context, *llm.Request) (*llm.Response, error) {
		return nil, llm.NewUnavailableError("down", errors.New("503"))
	})
	res := newClassifier(t, failing).Classify(context.Background(), "hello")
	assert.Equal(t, IntentNone, res.Intent)
}

func TestClassificationErrorMessage(t *testing.T) {
	err := decodeObject(strings.Repeat("z", 200), &struct{}{})
	var ce *ClassificationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "no JSON object")
	assert.Less(t, len(err.Error()), 150)
}
