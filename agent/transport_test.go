package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesWemyss/psyclone/llm"
)

func TestSyncSourceIsAlwaysReady(t *testing.T) {
	s := NewSyncSource(script(text("hi")))

	mt, err := s.Request(context.Background(), &llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, TurnReady, mt.Status)
	assert.Equal(t, "hi", mt.Response.Text())

	_, err = s.Poll(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestPollSourceReportsNeedsInputUntilDone(t *testing.T) {
	release := make(chan struct{})
	client := script(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		<-release
		return text("ready now")(ctx, req)
	})
	runner := NewAsyncRunner(client, zerolog.Nop())
	s := NewPollSource(runner)

	mt, err := s.Request(context.Background(), &llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, TurnNeedsInput, mt.Status)
	require.NotEmpty(t, mt.Handle)

	again, err := s.Poll(context.Background(), mt.Handle)
	require.NoError(t, err)
	assert.Equal(t, TurnNeedsInput, again.Status)
	assert.Equal(t, 1, runner.Pending())

	close(release)
	runner.Wait()

	done, err := s.Poll(context.Background(), mt.Handle)
	require.NoError(t, err)
	assert.Equal(t, TurnReady, done.Status)
	assert.Equal(t, "ready now", done.Response.Text())
	assert.Zero(t, runner.Pending())

	_, err = s.Poll(context.Background(), mt.Handle)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestPollSourceSurfacesJobFailure(t *testing.T) {
	client := script(func(context.Context, *llm.Request) (*llm.Response, error) {
		return nil, llm.NewProviderError("exploded", nil)
	})
	runner := NewAsyncRunner(client, zerolog.Nop())
	s := NewPollSource(runner)

	mt, err := s.Request(context.Background(), &llm.Request{})
	require.NoError(t, err)
	runner.Wait()

	_, err = s.Poll(context.Background(), mt.Handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
}

func TestAsyncRunnerDropsAbandonedJobs(t *testing.T) {
	runner := NewAsyncRunner(script(blockUntilDone), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	id := runner.Submit(ctx, &llm.Request{})
	assert.Equal(t, 1, runner.Pending())
	runner.Wait()

	assert.Zero(t, runner.Pending())
	_, _, err := runner.Status(id)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}
