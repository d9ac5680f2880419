// Package ranking orders tasks for display and implements the "move to top"
// mutation.
//
// Active tasks in one category are ordered by:
//
//  1. order_override ascending, unpinned tasks last
//  2. score descending, missing score counts as 0
//  3. due date ascending, undated tasks last
//  4. creation time ascending
//
// Row id breaks any remaining tie so the order is total.
package ranking

import (
	"cmp"
	"slices"

	"github.com/JamesWemyss/psyclone/memory"
)

// Compare returns a negative number when a sorts before b, positive when
// after, and zero only when a and b are the same row.
func Compare(a, b memory.Task) int {
	if c := compareOverride(a.OrderOverride, b.OrderOverride); c != 0 {
		return c
	}
	// Higher score first.
	if c := cmp.Compare(scoreOf(b), scoreOf(a)); c != 0 {
		return c
	}
	if c := compareDue(a, b); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Less reports whether a sorts strictly before b.
func Less(a, b memory.Task) bool {
	return Compare(a, b) < 0
}

// Sort orders tasks in place.
func Sort(tasks []memory.Task) {
	slices.SortFunc(tasks, Compare)
}

// Active returns the open tasks of category, ranked. The input is not modified.
func Active(tasks []memory.Task, category memory.TaskCategory) []memory.Task {
	out := make([]memory.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status != memory.StatusDone && t.Category == category {
			out = append(out, t)
		}
	}
	Sort(out)
	return out
}

// ByScore orders tasks by score alone, highest first, falling back to the full
// ranking. Used where tasks from several categories are mixed.
func ByScore(tasks []memory.Task) {
	slices.SortFunc(tasks, func(a, b memory.Task) int {
		if c := cmp.Compare(scoreOf(b), scoreOf(a)); c != 0 {
			return c
		}
		return Compare(a, b)
	})
}

// TopOverride returns the override that places a task ahead of every pinned
// task, given the current minimum override in its category (nil if none).
func TopOverride(currentMin *int64) int64 {
	if currentMin == nil {
		return -1
	}
	return *currentMin - 1
}

// MinOverride returns the smallest override among open tasks of category.
func MinOverride(tasks []memory.Task, category memory.TaskCategory) *int64 {
	var lowest *int64
	for _, t := range tasks {
		if t.Status == memory.StatusDone || t.Category != category || t.OrderOverride == nil {
			continue
		}
		if lowest == nil || *t.OrderOverride < *lowest {
			v := *t.OrderOverride
			lowest = &v
		}
	}
	return lowest
}

// MoveToTop pins the task with id ahead of every other open task in its
// category. It returns the new override and false if id is not an open task.
func MoveToTop(tasks []memory.Task, id int64) (int64, bool) {
	idx := slices.IndexFunc(tasks, func(t memory.Task) bool {
		return t.ID == id && t.Status != memory.StatusDone
	})
	if idx < 0 {
		return 0, false
	}
	v := TopOverride(MinOverride(tasks, tasks[idx].Category))
	tasks[idx].OrderOverride = &v
	return v, true
}

func compareOverride(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

func compareDue(a, b memory.Task) int {
	switch {
	case a.Due == nil && b.Due == nil:
		return 0
	case a.Due == nil:
		return 1
	case b.Due == nil:
		return -1
	}
	return a.Due.Compare(*b.Due)
}

func scoreOf(t memory.Task) float64 {
	if t.Score == nil {
		return 0
	}
	return *t.Score
}
