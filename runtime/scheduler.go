// Package runtime runs background jobs next to the daemon. Today that is the
// key-date reminder: on a cron schedule it looks ahead over contact
// birthdays and anniversaries and raises a notification for each.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/JamesWemyss/psyclone/memory"
	"github.com/JamesWemyss/psyclone/tools"
)

// ReminderTitle heads every reminder notification.
const ReminderTitle = "Psyclone reminder"

// KeyDateLister lists contact key dates. *memory.Store implements it.
type KeyDateLister interface {
	ListKeyDates(ctx context.Context) ([]memory.KeyDate, error)
}

// Reminder is one key date falling inside the lookahead window.
type Reminder struct {
	KeyDate  memory.KeyDate `json:"key_date"`
	On       time.Time      `json:"on"`
	DaysAway int            `json:"days_away"`
}

// Message is the notification body for r.
func (r Reminder) Message() string {
	what := string(r.KeyDate.Kind)
	if r.KeyDate.Label != nil && *r.KeyDate.Label != "" {
		what = *r.KeyDate.Label
	}
	subject := fmt.Sprintf("%s's %s", r.KeyDate.FullName, what)
	switch r.DaysAway {
	case 0:
		return subject + " is today."
	case 1:
		return subject + " is tomorrow."
	default:
		return fmt.Sprintf("%s is in %d days (%s).", subject, r.DaysAway, r.On.Format("Mon 2 Jan"))
	}
}

// Upcoming returns the key dates occurring within lookahead days of now,
// soonest first. Birthdays and anniversaries recur yearly; other dates are
// one-off.
func Upcoming(dates []memory.KeyDate, now time.Time, loc *time.Location, lookahead int) []Reminder {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)

	var out []Reminder
	for _, k := range dates {
		on := occurrence(k, today, loc)
		days := daysBetween(today, on)
		if on.Before(today) || days > lookahead {
			continue
		}
		out = append(out, Reminder{KeyDate: k, On: on, DaysAway: days})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysAway != out[j].DaysAway {
			return out[i].DaysAway < out[j].DaysAway
		}
		return out[i].KeyDate.ID < out[j].KeyDate.ID
	})
	return out
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// occurrence is the next date on or after today that k falls on.
func occurrence(k memory.KeyDate, today time.Time, loc *time.Location) time.Time {
	d := k.TheDate
	if k.Kind == memory.KeyDateOther {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	}
	on := yearly(today.Year(), d.Month(), d.Day(), loc)
	if on.Before(today) {
		on = yearly(today.Year()+1, d.Month(), d.Day(), loc)
	}
	return on
}

// yearly places month/day in year y. 29 February falls on the 28th outside
// leap years.
func yearly(y int, m time.Month, day int, loc *time.Location) time.Time {
	t := time.Date(y, m, day, 0, 0, 0, 0, loc)
	if t.Month() != m {
		t = time.Date(y, m+1, 0, 0, 0, 0, 0, loc)
	}
	return t
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the scheduler's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler raises key-date reminders on a cron schedule.
type Scheduler struct {
	lister    KeyDateLister
	notifier  tools.Notifier
	schedule  cron.Schedule
	spec      string
	loc       *time.Location
	lookahead int
	now       func() time.Time
	logger    zerolog.Logger

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewScheduler creates a reminder scheduler running on schedule.
func NewScheduler(lister KeyDateLister, notifier tools.Notifier, schedule string, lookahead int, loc *time.Location, logger zerolog.Logger, opts ...Option) (*Scheduler, error) {
	if lister == nil {
		return nil, fmt.Errorf("lister cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if lookahead < 0 {
		lookahead = 0
	}
	s := &Scheduler{
		lister:    lister,
		notifier:  notifier,
		schedule:  sched,
		spec:      schedule,
		loc:       loc,
		lookahead: lookahead,
		now:       time.Now,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		notified:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the schedule until ctx is done, then waits for a running check
// to finish.
func (s *Scheduler) Start(ctx context.Context) {
	c := cron.New(cron.WithLocation(s.loc), cron.WithLogger(cronLogger{logger: s.logger}))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Reminder check failed")
		}
	}))

	s.logger.Info().
		Str("schedule", s.spec).
		Time("next", s.schedule.Next(s.now())).
		Int("lookaheadDays", s.lookahead).
		Msg("Starting reminder scheduler")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("Reminder scheduler stopped")
}

// RunOnce notifies every upcoming key date not already notified for the
// same occurrence, and returns the reminders it sent.
func (s *Scheduler) RunOnce(ctx context.Context) ([]Reminder, error) {
	dates, err := s.lister.ListKeyDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list key dates: %w", err)
	}
	due := Upcoming(dates, s.now(), s.loc, s.lookahead)

	var sent []Reminder
	for _, r := range due {
		key := fmt.Sprintf("%d@%s#%d", r.KeyDate.ID, r.On.Format(memory.DateLayout), r.DaysAway)
		if !s.markNotified(key) {
			continue
		}
		if err := s.notifier.Notify(ReminderTitle, r.Message()); err != nil {
			s.logger.Warn().Err(err).Int64("keyDateID", r.KeyDate.ID).Msg("Failed to send reminder")
			s.unmark(key)
			continue
		}
		sent = append(sent, r)
	}
	s.logger.Info().Int("upcoming", len(due)).Int("sent", len(sent)).Msg("Reminder check complete")
	return sent, nil
}

func (s *Scheduler) markNotified(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notified[key]; ok {
		return false
	}
	s.notified[key] = struct{}{}
	return true
}

func (s *Scheduler) unmark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notified, key)
}
