// Package actions holds the executors behind every durable action: saving and
// searching memory items, goals and tasks, and contacts. Each executor
// validates its input, performs the minimal store operations and returns an
// Outcome or an error (ValidationError or memory.StoreError).
package actions

import (
	"context"
	"sync"
	"time"

	"github.com/JamesWemyss/psyclone/memory"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Store is the persistence the executors need. *memory.Store implements it.
type Store interface {
	InsertMemoryItem(ctx context.Context, in memory.NewMemoryItem) (memory.MemoryItem, error)
	SearchMemoryItems(ctx context.Context, q memory.SearchQuery) ([]memory.MemoryItem, error)
	IgnoreLatestMemoryItem(ctx context.Context) (*memory.MemoryItem, error)

	InsertGoal(ctx context.Context, in memory.NewGoal) (memory.Goal, error)
	FindGoalByTitle(ctx context.Context, fragment string) (*memory.Goal, error)
	ListGoals(ctx context.Context, category memory.GoalCategory) ([]memory.Goal, error)

	InsertTask(ctx context.Context, in memory.NewTask) (memory.Task, error)
	GetTask(ctx context.Context, id int64) (*memory.Task, error)
	FindOpenTaskByTitle(ctx context.Context, fragment string) (*memory.Task, error)
	ListActiveTasks(ctx context.Context, category memory.TaskCategory, limit int) ([]memory.Task, error)
	CompleteTask(ctx context.Context, id int64) error
	MinOrderOverride(ctx context.Context, category memory.TaskCategory) (*int64, error)
	SetOrderOverride(ctx context.Context, id int64, v int64) error
	UpdateTask(ctx context.Context, id int64, patch memory.TaskPatch) (*memory.Task, error)

	FindContactByName(ctx context.Context, fullName string) (*memory.Contact, error)
	InsertContact(ctx context.Context, fullName string, patch memory.ContactPatch) (memory.Contact, error)
	UpdateContact(ctx context.Context, id int64, patch memory.ContactPatch) error
	UpsertContactRelation(ctx context.Context, contactID int64, relation string) error
	InsertKeyDate(ctx context.Context, in memory.NewKeyDate) (memory.KeyDate, error)
	SearchContacts(ctx context.Context, q memory.ContactQuery) ([]memory.Contact, error)
}

// Status summarises what an executor did.
type Status string

const (
	StatusSaved          Status = "saved"
	StatusNotSaveworthy  Status = "not-saveworthy"
	StatusCreated        Status = "created"
	StatusUpdated        Status = "updated"
	StatusCompleted      Status = "completed"
	StatusMoved          Status = "moved"
	StatusNotFound       Status = "not-found"
	StatusIgnored        Status = "ignored"
	StatusNothingToApply Status = "nothing"
)

// Outcome is the result of a write action.
type Outcome struct {
	Status  Status `json:"status"`
	ID      int64  `json:"id,omitempty"`
	Summary string `json:"summary"`
	Entity  any    `json:"entity,omitempty"`
}

// Limits and thresholds shared by the surfaces.
const (
	SaveThreshold         = 0.75
	DefaultSearchLimit    = memory.DefaultSearchLimit
	MaxSearchLimit        = 20
	AssistantSearchLimit  = 50
	FallbackContentLength = 180
	MaxContentLength      = 500
	ListLimit             = 50
)

// Executors runs actions against a Store.
type Executors struct {
	store    Store
	loc      *time.Location
	now      func() time.Time
	validate *validator.Validate
	logger   zerolog.Logger

	// reorderMu serialises read-min/write-min so two moves in one process
	// never produce the same override.
	reorderMu sync.Mutex
}

// Option configures Executors.
type Option func(*Executors)

// WithClock overrides the executors' clock.
func WithClock(now func() time.Time) Option {
	return func(e *Executors) { e.now = now }
}

// New returns Executors bound to store. Relative dates resolve in loc.
func New(store Store, loc *time.Location, logger zerolog.Logger, opts ...Option) *Executors {
	if loc == nil {
		loc = time.UTC
	}
	e := &Executors{
		store:    store,
		loc:      loc,
		now:      time.Now,
		validate: newValidator(),
		logger:   logger.With().Str("component", "actions").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location is the zone relative dates resolve in.
func (e *Executors) Location() *time.Location { return e.loc }

// Now returns the executors' current time.
func (e *Executors) Now() time.Time { return e.now() }
