// Package admission provides the priority-ordered backlog used when a
// concurrency cap defers work.
package admission

import "fmt"

// Priority orders deferred admissions. It never preempts work that has
// already started.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// Priorities lists all classes from lowest to highest.
var Priorities = []Priority{Low, Normal, High}

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority maps a config/API string to a Priority. The empty string maps
// to Normal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return Low, nil
	case "normal", "":
		return Normal, nil
	case "high":
		return High, nil
	default:
		return Normal, fmt.Errorf("admission: unknown priority %q", s)
	}
}

// Queue holds deferred items, FIFO within a priority class, higher classes
// drained first.
//
// Queue is not safe for concurrent use; the owning coordinator serializes all
// access under its own lock, since admission decisions are inherently coupled
// to the rest of its state.
type Queue[T any] struct {
	classes map[Priority][]T
	size    int
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{classes: make(map[Priority][]T)}
}

// Enqueue appends item to the back of its priority class.
func (q *Queue[T]) Enqueue(p Priority, item T) {
	q.classes[p] = append(q.classes[p], item)
	q.size++
}

// Dequeue removes and returns the oldest item of the highest non-empty
// priority class.
func (q *Queue[T]) Dequeue() (T, bool) {
	for i := len(Priorities) - 1; i >= 0; i-- {
		p := Priorities[i]
		items := q.classes[p]
		if len(items) == 0 {
			continue
		}
		item := items[0]
		var zero T
		items[0] = zero
		q.classes[p] = items[1:]
		q.size--
		return item, true
	}
	var zero T
	return zero, false
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return q.size
}

// CountByPriority returns the number of queued items per class.
func (q *Queue[T]) CountByPriority() map[Priority]int {
	counts := make(map[Priority]int, len(Priorities))
	for _, p := range Priorities {
		counts[p] = len(q.classes[p])
	}
	return counts
}
