package model

import "time"

// Known schedule types. Anything else is carried through derivation but never
// gets a visible grid row.
const (
	TypeSnapshot    = "SNAPSHOT"
	TypeBackup      = "BACKUP"
	TypeCloudBackup = "CLOUD_BACKUP"
)

// ScheduleID is the canonical text form of a schedule id. Payloads carry ids
// as JSON numbers or strings. Strings are kept as written; numbers are
// normalized so that 1, 1.0 and 1e0 name the same schedule. A number and a
// string with the same text ("1" and 1) are also the same id.
type ScheduleID string

// ScheduleRef is one element of an entry's schedules_involved list.
type ScheduleRef struct {
	ID   ScheduleID `json:"id"`
	Type string     `json:"type"`
}

// Occurrence represents one realized execution of a schedule. SourceID and
// SourceTime link it to the schedule run that triggered it (e.g. a cloud
// backup started by a local backup) and are empty when there is no link.
type Occurrence struct {
	ID         ScheduleID `json:"id"`
	Time       string     `json:"time"`
	SourceID   ScheduleID `json:"source_id"`
	SourceTime string     `json:"source_time"`
}

// Entry groups the schedules involved in a chain with their occurrences.
type Entry struct {
	SchedulesInvolved []ScheduleRef `json:"schedules_involved"`
	Occurrences       []Occurrence  `json:"occurrences"`
}

// Payload is the single input structure supplied by the external fetcher.
type Payload struct {
	Data []Entry `json:"data"`
}

// Category is a derived (schedule id, type) row candidate.
type Category struct {
	ID   ScheduleID `json:"id"`
	Name string     `json:"name"`
}

// Known reports whether the category is one of the three rendered types.
func (c Category) Known() bool {
	switch c.Name {
	case TypeSnapshot, TypeBackup, TypeCloudBackup:
		return true
	default:
		return false
	}
}

// TimeInterval is one grid column, keyed by the literal occurrence time.
type TimeInterval struct {
	StartTime string `json:"start_time"`
}

// Window is a parsed, inclusive filter range.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies in [From, To].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// FilterInput is the raw text of the two datetime inputs.
type FilterInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Complete reports whether both bounds are set. The grid only renders when
// this is true.
func (f FilterInput) Complete() bool {
	return f.Start != "" && f.End != ""
}

// OccurrenceDetail is one block of the details panel.
type OccurrenceDetail struct {
	ScheduleID         ScheduleID `json:"schedule_id"`
	ScheduleTime       string     `json:"schedule_time"`
	SourceScheduleID   ScheduleID `json:"source_schedule_id"`
	SourceScheduleTime string     `json:"source_schedule_time"`
}

// DetailOf converts an occurrence into its details-panel form.
func DetailOf(o Occurrence) OccurrenceDetail {
	return OccurrenceDetail{
		ScheduleID:         o.ID,
		ScheduleTime:       o.Time,
		SourceScheduleID:   o.SourceID,
		SourceScheduleTime: o.SourceTime,
	}
}

// HoverDetail captures the most recently hovered cell.
type HoverDetail struct {
	CategoryID ScheduleID         `json:"category_id"`
	TimeStart  string             `json:"time_start"`
	Details    []OccurrenceDetail `json:"details"`
}

// MarkerKey identifies a hovered marker by its occurrence id and time.
type MarkerKey struct {
	ID   ScheduleID `json:"id"`
	Time string     `json:"time"`
}

// Matches reports whether o is the marker identified by k.
func (k MarkerKey) Matches(o Occurrence) bool {
	return k.ID == o.ID && k.Time == o.Time
}
