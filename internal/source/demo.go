package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"backupviz/internal/config"
	"backupviz/internal/derive"
	appLog "backupviz/internal/log"
	"backupviz/internal/model"
)

// DemoTimeLayout matches what a datetime-local input produces, so demo
// times can be pasted straight into the filter.
const DemoTimeLayout = "2006-01-02T15:04"

// DefaultMaxOccurrences caps each demo schedule's expansion when the config
// does not set one.
const DefaultMaxOccurrences = 5000

// DemoLoader expands RRULE-defined schedules into a payload. It stands in
// for the external payload supplier during development.
type DemoLoader struct {
	Config   config.DemoConfig
	Location *time.Location
}

func (l DemoLoader) Load(ctx context.Context) (model.Payload, error) {
	if err := ctx.Err(); err != nil {
		return model.Payload{}, err
	}
	return GenerateDemo(l.Config, l.Location)
}

// GenerateDemo expands every schedule over [Start, Start+Days]. A schedule
// with Source set is placed in the same entry as its source chain, and each
// of its occurrences links to the latest source occurrence at or before it.
func GenerateDemo(cfg config.DemoConfig, loc *time.Location) (model.Payload, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := derive.ParseTimestamp(cfg.Start, loc)
	if err != nil {
		return model.Payload{}, fmt.Errorf("source: demo start %q: %w", cfg.Start, err)
	}
	days := cfg.Days
	if days <= 0 {
		days = 3
	}
	end := start.AddDate(0, 0, days)
	maxOcc := cfg.MaxOccurrences
	if maxOcc <= 0 {
		maxOcc = DefaultMaxOccurrences
	}

	byID := make(map[string]config.DemoSchedule, len(cfg.Schedules))
	times := make(map[string][]time.Time, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		if _, dup := byID[s.ID]; dup {
			return model.Payload{}, fmt.Errorf("source: duplicate demo schedule id %q", s.ID)
		}
		byID[s.ID] = s

		r, err := rrule.StrToRRule(s.RRule)
		if err != nil {
			return model.Payload{}, fmt.Errorf("source: demo schedule %s: %w", s.ID, err)
		}
		r.DTStart(start)
		ts, truncated := expandCapped(r, start, end, maxOcc)
		if truncated {
			appLog.Warn("demo schedule truncated", "id", s.ID, "cap", maxOcc)
		}
		times[s.ID] = ts
	}

	// One entry per root schedule, in config order.
	entryIdx := make(map[string]int)
	payload := model.Payload{Data: []model.Entry{}}
	for _, s := range cfg.Schedules {
		root := rootOf(s.ID, byID)
		idx, ok := entryIdx[root]
		if !ok {
			idx = len(payload.Data)
			entryIdx[root] = idx
			payload.Data = append(payload.Data, model.Entry{
				SchedulesInvolved: []model.ScheduleRef{},
				Occurrences:       []model.Occurrence{},
			})
		}
		entry := &payload.Data[idx]
		if s.Source != "" {
			if src, ok := byID[s.Source]; ok {
				entry.SchedulesInvolved = appendRef(entry.SchedulesInvolved, model.ScheduleRef{ID: model.ScheduleID(src.ID), Type: src.Type})
			}
		}
		entry.SchedulesInvolved = appendRef(entry.SchedulesInvolved, model.ScheduleRef{ID: model.ScheduleID(s.ID), Type: s.Type})

		for _, t := range times[s.ID] {
			occ := model.Occurrence{ID: model.ScheduleID(s.ID), Time: t.In(loc).Format(DemoTimeLayout)}
			if s.Source != "" {
				if st, ok := latestAtOrBefore(times[s.Source], t); ok {
					occ.SourceID = model.ScheduleID(s.Source)
					occ.SourceTime = st.In(loc).Format(DemoTimeLayout)
				}
			}
			entry.Occurrences = append(entry.Occurrences, occ)
		}
	}

	appLog.Debug("demo payload generated", "schedules", len(cfg.Schedules), "entries", len(payload.Data))
	return payload, nil
}

// expandCapped returns the rule's occurrences in [start, end], stopping after
// limit values. truncated reports whether the cap was hit.
func expandCapped(r *rrule.RRule, start, end time.Time, limit int) (out []time.Time, truncated bool) {
	next := r.Iterator()
	for t, ok := next(); ok; t, ok = next() {
		if t.After(end) {
			break
		}
		if t.Before(start) {
			continue
		}
		if len(out) == limit {
			return out, true
		}
		out = append(out, t)
	}
	return out, false
}

// rootOf follows Source links to the first schedule without a known source.
func rootOf(id string, byID map[string]config.DemoSchedule) string {
	seen := map[string]bool{}
	for {
		s, ok := byID[id]
		if !ok || s.Source == "" || seen[id] {
			return id
		}
		if _, ok := byID[s.Source]; !ok {
			return id
		}
		seen[id] = true
		id = s.Source
	}
}

func appendRef(refs []model.ScheduleRef, ref model.ScheduleRef) []model.ScheduleRef {
	for _, r := range refs {
		if r.ID == ref.ID {
			return refs
		}
	}
	return append(refs, ref)
}

// latestAtOrBefore assumes ts is sorted ascending, as rrule returns it.
func latestAtOrBefore(ts []time.Time, t time.Time) (time.Time, bool) {
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(t) })
	if i == 0 {
		return time.Time{}, false
	}
	return ts[i-1], true
}
