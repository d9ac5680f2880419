package memory

import "time"

// Kind describes what a memory item records.
type Kind string

const (
	KindEvent Kind = "event"
	KindFact  Kind = "fact"
	KindNote  Kind = "note"
	KindTask  Kind = "task"
)

// Category buckets memory items.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategoryFinance  Category = "finance"
	CategoryPlaces   Category = "places"
	CategoryPersonal Category = "personal"
	CategoryOther    Category = "other"
)

// GoalCategory places a goal on the work/personal axis, or neither ("overall").
type GoalCategory string

const (
	GoalOverall  GoalCategory = "overall"
	GoalPersonal GoalCategory = "personal"
	GoalWork     GoalCategory = "work"
)

// TaskCategory is the list a task belongs to. Exactly one per task.
type TaskCategory string

const (
	TaskWork     TaskCategory = "work"
	TaskPersonal TaskCategory = "personal"
)

// TaskStatus is open until a task is completed. Done is terminal for ranking.
type TaskStatus string

const (
	StatusOpen TaskStatus = "open"
	StatusDone TaskStatus = "done"
)

// KeyDateKind labels a contact's key date.
type KeyDateKind string

const (
	KeyDateBirthday    KeyDateKind = "birthday"
	KeyDateAnniversary KeyDateKind = "anniversary"
	KeyDateOther       KeyDateKind = "other"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindEvent, KindFact, KindNote, KindTask:
		return true
	}
	return false
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryWork, CategoryHealth, CategoryFinance, CategoryPlaces, CategoryPersonal, CategoryOther:
		return true
	}
	return false
}

// Valid reports whether c is one of the known goal categories.
func (c GoalCategory) Valid() bool {
	return c == GoalOverall || c == GoalPersonal || c == GoalWork
}

// Valid reports whether c is work or personal.
func (c TaskCategory) Valid() bool {
	return c == TaskWork || c == TaskPersonal
}

// Valid reports whether k is one of the known key date kinds.
func (k KeyDateKind) Valid() bool {
	return k == KeyDateBirthday || k == KeyDateAnniversary || k == KeyDateOther
}

// MemoryItem is a durable record of an event, fact, note or task-like reminder.
type MemoryItem struct {
	ID          int64      `json:"id"`
	Kind        Kind       `json:"kind"`
	Content     string     `json:"content"`
	Body        *string    `json:"body,omitempty"`
	HappenedAt  *time.Time `json:"happened_at,omitempty"`
	Place       *string    `json:"place,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	Category    Category   `json:"category"`
	PersonNames []string   `json:"person_names"`
	Confidence  *float64   `json:"confidence,omitempty"`
	IsIgnored   bool       `json:"is_ignored"`
	RecordedAt  time.Time  `json:"recorded_at"`
	Source      string     `json:"source"`
}

// EventTime is when the item happened, or when it was recorded if unknown.
func (m MemoryItem) EventTime() time.Time {
	if m.HappenedAt != nil {
		return *m.HappenedAt
	}
	return m.RecordedAt
}

// NewMemoryItem holds the caller-supplied fields of a memory item.
// RecordedAt is stamped by the store.
type NewMemoryItem struct {
	Kind        Kind
	Content     string
	Body        *string
	HappenedAt  *time.Time
	Place       *string
	Amount      *float64
	Category    Category
	PersonNames []string
	Confidence  *float64
	Source      string
}

// SearchQuery filters memory items. Zero values mean "no filter".
type SearchQuery struct {
	Kind        Kind
	From        *time.Time // inclusive, on event time
	To          *time.Time // inclusive, on event time
	PersonNames []string   // all must be present
	Keywords    []string   // any may match content, body or place
	Limit       int
}

// Goal is a long-running objective.
type Goal struct {
	ID         int64        `json:"id"`
	Title      string       `json:"title"`
	Category   GoalCategory `json:"category"`
	Why        *string      `json:"why,omitempty"`
	TargetDate *time.Time   `json:"target_date,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewGoal holds the fields needed to create a goal.
type NewGoal struct {
	Title      string
	Category   GoalCategory
	Why        *string
	TargetDate *time.Time
}

// Task is a prioritised unit of work on the work or personal list.
type Task struct {
	ID            int64        `json:"id"`
	Title         string       `json:"title"`
	Category      TaskCategory `json:"category"`
	GoalID        *int64       `json:"goal_id,omitempty"`
	NextAction    *string      `json:"next_action,omitempty"`
	Due           *time.Time   `json:"due,omitempty"`
	Impact        *int         `json:"impact,omitempty"`
	EnergyFit     *int         `json:"energy_fit,omitempty"`
	EffortHours   *float64     `json:"effort_hours,omitempty"`
	Status        TaskStatus   `json:"status"`
	OrderOverride *int64       `json:"order_override,omitempty"`
	// Score is maintained outside this process and only ever read here.
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask holds the fields needed to create a task.
type NewTask struct {
	Title       string
	Category    TaskCategory
	GoalID      *int64
	NextAction  *string
	Due         *time.Time
	Impact      *int
	EnergyFit   *int
	EffortHours *float64
}

// TaskPatch carries the task fields a direct edit may change. Nil fields are
// left untouched.
type TaskPatch struct {
	Title       *string
	Category    *TaskCategory
	NextAction  *string
	Due         *time.Time
	Impact      *int
	EnergyFit   *int
	EffortHours *float64
	Status      *TaskStatus
	// ClearOverride unpins the task.
	ClearOverride bool
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Category == nil && p.NextAction == nil && p.Due == nil &&
		p.Impact == nil && p.EnergyFit == nil && p.EffortHours == nil && p.Status == nil && !p.ClearOverride
}

// Contact is a person, keyed by case-insensitive full name.
type Contact struct {
	ID            int64      `json:"id"`
	FullName      string     `json:"full_name"`
	PreferredName *string    `json:"preferred_name,omitempty"`
	Email         *string    `json:"email,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	Relation      *string    `json:"relation,omitempty"`
	Birthday      *time.Time `json:"birthday,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ContactPatch carries optional contact fields. Nil means "not supplied".
type ContactPatch struct {
	PreferredName *string
	Email         *string
	Phone         *string
	Notes         *string
}

// Empty reports whether the patch changes nothing.
func (p ContactPatch) Empty() bool {
	return p.PreferredName == nil && p.Email == nil && p.Phone == nil && p.Notes == nil
}

// ContactQuery filters contacts.
type ContactQuery struct {
	NameContains string
	Relation     string
	Limit        int
}

// KeyDate is an append-only dated fact about a contact.
type KeyDate struct {
	ID        int64       `json:"id"`
	ContactID int64       `json:"contact_id"`
	Kind      KeyDateKind `json:"kind"`
	TheDate   time.Time   `json:"the_date"`
	Label     *string     `json:"label,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	// FullName is populated by ListKeyDates.
	FullName string `json:"full_name,omitempty"`
}

// NewKeyDate holds the fields needed to record a key date.
type NewKeyDate struct {
	ContactID int64
	Kind      KeyDateKind
	TheDate   time.Time
	Label     *string
}
