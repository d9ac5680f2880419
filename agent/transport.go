package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/JamesWemyss/psyclone/llm"
)

// TurnStatus is what a transport reports about a model turn.
type TurnStatus string

const (
	// TurnReady means Response holds the model's reply.
	TurnReady TurnStatus = "ready"
	// TurnNeedsInput means the reply is not available yet and the caller
	// should poll Handle again after a delay.
	TurnNeedsInput TurnStatus = "requires_more_input"
)

// ModelTurn is one observation of a model request.
type ModelTurn struct {
	Status   TurnStatus
	Response *llm.Response
	Handle   string
}

// TurnSource gets the next model turn. Synchronous sources answer Request
// with TurnReady; polled sources answer TurnNeedsInput and resolve through
// Poll.
type TurnSource interface {
	Request(ctx context.Context, req *llm.Request) (ModelTurn, error)
	Poll(ctx context.Context, handle string) (ModelTurn, error)
}

// ErrUnknownHandle is returned by Poll for a handle it never issued.
var ErrUnknownHandle = errors.New("unknown model turn handle")

// SyncSource answers every request immediately from an llm.Client.
type SyncSource struct {
	client llm.Client
}

// NewSyncSource wraps client.
func NewSyncSource(client llm.Client) *SyncSource {
	return &SyncSource{client: client}
}

// Request calls the model and blocks for its reply.
func (s *SyncSource) Request(ctx context.Context, req *llm.Request) (ModelTurn, error) {
	resp, err := s.client.Synchronous(ctx, req)
	if err != nil {
		return ModelTurn{}, err
	}
	return ModelTurn{Status: TurnReady, Response: resp}, nil
}

// Poll always fails: a synchronous source has nothing pending.
func (s *SyncSource) Poll(_ context.Context, handle string) (ModelTurn, error) {
	return ModelTurn{}, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
}

// JobState is the lifecycle of an AsyncRunner job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

type job struct {
	state    JobState
	response *llm.Response
	err      error
}

// AsyncRunner runs model requests in the background and lets callers poll
// them by id, the way hosted run APIs do.
type AsyncRunner struct {
	client llm.Client
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewAsyncRunner creates a runner backed by client.
func NewAsyncRunner(client llm.Client, logger zerolog.Logger) *AsyncRunner {
	return &AsyncRunner{
		client: client,
		logger: logger.With().Str("component", "async_runner").Logger(),
		jobs:   make(map[string]*job),
	}
}

// Submit starts req and returns its job id. The job stops when ctx is done
// and is then dropped without being reported.
func (r *AsyncRunner) Submit(ctx context.Context, req *llm.Request) string {
	id := ulid.Make().String()
	j := &job{state: JobRunning}

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		resp, err := r.client.Synchronous(ctx, req)

		r.mu.Lock()
		defer r.mu.Unlock()
		if ctx.Err() != nil {
			// Nobody polls a job whose turn has ended.
			delete(r.jobs, id)
			r.logger.Debug().Str("job", id).Err(ctx.Err()).Msg("Model job abandoned")
			return
		}
		if err != nil {
			j.state, j.err = JobFailed, err
			r.logger.Debug().Str("job", id).Err(err).Msg("Model job failed")
			return
		}
		j.state, j.response = JobCompleted, resp
	}()
	return id
}

// Status reports a job. Finished jobs are forgotten once reported.
func (r *AsyncRunner) Status(id string) (JobState, *llm.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownHandle, id)
	}
	if j.state != JobRunning {
		delete(r.jobs, id)
	}
	return j.state, j.response, j.err
}

// Pending returns the number of jobs not yet reported finished.
func (r *AsyncRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Wait blocks until every submitted job has returned.
func (r *AsyncRunner) Wait() {
	r.wg.Wait()
}

// PollSource submits requests to an AsyncRunner and polls them.
type PollSource struct {
	runner *AsyncRunner
}

// NewPollSource wraps runner.
func NewPollSource(runner *AsyncRunner) *PollSource {
	return &PollSource{runner: runner}
}

// Request submits req and returns a pending turn.
func (s *PollSource) Request(ctx context.Context, req *llm.Request) (ModelTurn, error) {
	handle := s.runner.Submit(ctx, req)
	return ModelTurn{Status: TurnNeedsInput, Handle: handle}, nil
}

// Poll checks a submitted request.
func (s *PollSource) Poll(_ context.Context, handle string) (ModelTurn, error) {
	state, resp, err := s.runner.Status(handle)
	switch state {
	case JobCompleted:
		return ModelTurn{Status: TurnReady, Response: resp, Handle: handle}, nil
	case JobFailed:
		return ModelTurn{}, err
	case JobRunning:
		return ModelTurn{Status: TurnNeedsInput, Handle: handle}, nil
	default:
		return ModelTurn{}, err
	}
}
