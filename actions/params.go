package actions

import "strings"

// SaveMemoryParams describes a memory item to record.
type SaveMemoryParams struct {
	Kind        string   `json:"kind,omitempty" validate:"omitempty,oneof=event fact note task"`
	Content     string   `json:"content,omitempty"`
	Body        string   `json:"body,omitempty"`
	HappenedAt  string   `json:"happened_at,omitempty"`
	Place       string   `json:"place,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Category    string   `json:"category,omitempty" validate:"omitempty,oneof=work health finance places personal other"`
	PersonNames []string `json:"person_names,omitempty" validate:"dive,required"`
	// Confidence is set only by classification. Below SaveThreshold the item
	// is not saved.
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	// RawText is the user's message, used when Content is empty.
	RawText string `json:"-"`
}

// SearchParams filters memory items.
type SearchParams struct {
	Keywords    []string `json:"keywords,omitempty"`
	PersonNames []string `json:"person_names,omitempty"`
	Kind        string   `json:"kind,omitempty" validate:"omitempty,oneof=event fact note task"`
	DateFrom    string   `json:"date_from,omitempty"`
	DateTo      string   `json:"date_to,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// CreateGoalParams describes a new goal.
type CreateGoalParams struct {
	Title      string `json:"title" validate:"required"`
	Category   string `json:"category,omitempty" validate:"omitempty,oneof=overall personal work"`
	Why        string `json:"why,omitempty"`
	TargetDate string `json:"target_date,omitempty"`
}

// CreateTaskParams describes a new task. GoalTitle is matched against
// existing goals when GoalID is not given.
type CreateTaskParams struct {
	Title       string   `json:"title" validate:"required"`
	Category    string   `json:"category" validate:"required,oneof=work personal"`
	GoalID      *int64   `json:"goal_id,omitempty"`
	GoalTitle   string   `json:"goal_title,omitempty"`
	NextAction  string   `json:"next_action,omitempty"`
	Due         string   `json:"due,omitempty"`
	Impact      *int     `json:"impact,omitempty" validate:"omitempty,min=1,max=5"`
	EnergyFit   *int     `json:"energy_fit,omitempty" validate:"omitempty,min=1,max=5"`
	EffortHours *float64 `json:"effort_hours,omitempty" validate:"omitempty,gte=0"`
}

// TaskRefParams names a task by id or by a fragment of its title.
type TaskRefParams struct {
	ID    *int64 `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// UpdateTaskParams is a direct edit of a task. Omitted fields are unchanged.
type UpdateTaskParams struct {
	ID          int64    `json:"id" validate:"required"`
	Title       *string  `json:"title,omitempty" validate:"omitempty,min=1"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,oneof=work personal"`
	NextAction  *string  `json:"next_action,omitempty"`
	Due         *string  `json:"due,omitempty"`
	Impact      *int     `json:"impact,omitempty" validate:"omitempty,min=1,max=5"`
	EnergyFit   *int     `json:"energy_fit,omitempty" validate:"omitempty,min=1,max=5"`
	EffortHours *float64 `json:"effort_hours,omitempty" validate:"omitempty,gte=0"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=open done"`
}

// UpsertContactParams identifies a contact by full name. Nil fields are not
// supplied and never overwrite stored values.
type UpsertContactParams struct {
	FullName      string  `json:"full_name" validate:"required"`
	PreferredName *string `json:"preferred_name,omitempty"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Relation      string  `json:"relation,omitempty" validate:"omitempty,max=40"`
}

// KeyDateParams records a dated fact about a contact, found by id or name.
type KeyDateParams struct {
	ContactID *int64 `json:"contact_id,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Kind      string `json:"kind,omitempty" validate:"omitempty,oneof=birthday anniversary other"`
	TheDate   string `json:"the_date" validate:"required"`
	Label     string `json:"label,omitempty"`
}

// SearchContactsParams filters contacts.
type SearchContactsParams struct {
	NameContains string `json:"name_contains,omitempty"`
	Relation     string `json:"relation,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func trimmedPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
