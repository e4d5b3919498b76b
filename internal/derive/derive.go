// Package derive turns a schedule payload into the lists the grid is drawn
// from: categories, filtered occurrences and time intervals. Everything here
// is a pure function of its inputs.
package derive

import (
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "backupviz/internal/log"
	"backupviz/internal/model"
)

// IntervalOrder selects how DeriveTimeIntervals orders its columns.
type IntervalOrder string

const (
	// OrderFirstSeen keeps the order in which times first appear.
	OrderFirstSeen IntervalOrder = "first_seen"
	// OrderChronological sorts by parsed time; unparseable times go last.
	OrderChronological IntervalOrder = "chronological"
)

// ErrIncompleteWindow is returned when either filter bound is empty.
var ErrIncompleteWindow = errors.New("both start and end must be set")

// WindowError reports a filter bound that could not be used.
type WindowError struct {
	Field string // "start", "end" or "range"
	Value string
	Err   error
}

func (e *WindowError) Error() string {
	if e.Field == "range" {
		return "end must not be before start"
	}
	return fmt.Sprintf("invalid %s date %q: %v", e.Field, e.Value, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// Message is the user-facing validation text.
func (e *WindowError) Message() string {
	switch e.Field {
	case "start":
		return "Invalid start date"
	case "end":
		return "Invalid end date"
	default:
		return "End must not be before start"
	}
}

// DeriveCategories flattens each entry's schedules_involved into categories,
// keeping the first category seen for each id.
func DeriveCategories(p model.Payload) []model.Category {
	out := make([]model.Category, 0)
	seen := make(map[model.ScheduleID]struct{})
	for _, entry := range p.Data {
		for _, s := range entry.SchedulesInvolved {
			if _, ok := seen[s.ID]; ok {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, model.Category{ID: s.ID, Name: s.Type})
		}
	}
	return out
}

// FlattenOccurrences concatenates every entry's occurrences in entry order.
func FlattenOccurrences(p model.Payload) []model.Occurrence {
	n := 0
	for _, entry := range p.Data {
		n += len(entry.Occurrences)
	}
	out := make([]model.Occurrence, 0, n)
	for _, entry := range p.Data {
		out = append(out, entry.Occurrences...)
	}
	return out
}

// FilterResult is the outcome of FilterByWindow.
type FilterResult struct {
	Occurrences []model.Occurrence
	// Unparseable counts occurrences dropped because their time did not parse.
	Unparseable int
}

// FilterByWindow keeps occurrences whose parsed time lies in [w.From, w.To].
// Times that do not parse never match.
func FilterByWindow(occs []model.Occurrence, w model.Window, loc *time.Location) FilterResult {
	res := FilterResult{Occurrences: make([]model.Occurrence, 0)}
	for _, o := range occs {
		t, err := ParseTimestamp(o.Time, loc)
		if err != nil {
			res.Unparseable++
			continue
		}
		if w.Contains(t) {
			res.Occurrences = append(res.Occurrences, o)
		}
	}
	if res.Unparseable > 0 {
		appLog.Debug("filter: skipped occurrences with unparseable time", "count", res.Unparseable)
	}
	return res
}

// DeriveTimeIntervals returns each distinct occurrence time once.
func DeriveTimeIntervals(occs []model.Occurrence, order IntervalOrder, loc *time.Location) []model.TimeInterval {
	out := make([]model.TimeInterval, 0)
	seen := make(map[string]struct{})
	for _, o := range occs {
		if _, ok := seen[o.Time]; ok {
			continue
		}
		seen[o.Time] = struct{}{}
		out = append(out, model.TimeInterval{StartTime: o.Time})
	}

	if order == OrderChronological {
		sortChronological(out, loc)
	}
	return out
}

func sortChronological(intervals []model.TimeInterval, loc *time.Location) {
	type keyed struct {
		t  time.Time
		ok bool
	}
	keys := make(map[string]keyed, len(intervals))
	for _, iv := range intervals {
		t, err := ParseTimestamp(iv.StartTime, loc)
		keys[iv.StartTime] = keyed{t: t, ok: err == nil}
	}
	sort.SliceStable(intervals, func(i, j int) bool {
		a, b := keys[intervals[i].StartTime], keys[intervals[j].StartTime]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return false
		}
		return a.t.Before(b.t)
	})
}

// ParseWindow validates the two raw filter inputs.
func ParseWindow(in model.FilterInput, loc *time.Location) (model.Window, error) {
	if !in.Complete() {
		return model.Window{}, ErrIncompleteWindow
	}
	from, err := ParseTimestamp(in.Start, loc)
	if err != nil {
		return model.Window{}, &WindowError{Field: "start", Value: in.Start, Err: err}
	}
	to, err := ParseTimestamp(in.End, loc)
	if err != nil {
		return model.Window{}, &WindowError{Field: "end", Value: in.End, Err: err}
	}
	if to.Before(from) {
		return model.Window{}, &WindowError{Field: "range", Value: in.Start + ".." + in.End}
	}
	return model.Window{From: from, To: to}, nil
}
