package source

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "backupviz/internal/log"
	"backupviz/internal/model"
)

// iCalendar properties carrying schedule data. The export package writes the
// same names, so an exported window can be loaded back as a payload.
const (
	PropScheduleID   ical.ComponentProperty = "X-SCHEDULE-ID"
	PropScheduleTime ical.ComponentProperty = "X-SCHEDULE-TIME"
	PropSourceID     ical.ComponentProperty = "X-SOURCE-ID"
	PropSourceTime   ical.ComponentProperty = "X-SOURCE-TIME"
)

// ParseICS reads every VEVENT as one occurrence and returns a single-entry
// payload. The schedule type comes from CATEGORIES. The occurrence time is
// X-SCHEDULE-TIME when present (the literal text the grid keys on),
// otherwise DTSTART in RFC 3339. Events without a schedule id or type are
// skipped.
func ParseICS(body []byte) (model.Payload, error) {
	if len(body) == 0 {
		return model.Payload{}, errors.New("source: empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return model.Payload{}, fmt.Errorf("source: parse ICS: %w", err)
	}

	entry := model.Entry{
		SchedulesInvolved: []model.ScheduleRef{},
		Occurrences:       []model.Occurrence{},
	}
	seen := make(map[model.ScheduleID]bool)
	skipped := 0

	for _, ev := range cal.Events() {
		occ, typ, err := occurrenceFromEvent(ev)
		if err != nil {
			skipped++
			appLog.Debug("ics event skipped", "reason", err.Error())
			continue
		}
		if !seen[occ.ID] {
			seen[occ.ID] = true
			entry.SchedulesInvolved = append(entry.SchedulesInvolved, model.ScheduleRef{ID: occ.ID, Type: typ})
		}
		entry.Occurrences = append(entry.Occurrences, occ)
	}

	appLog.Info("ics payload parsed", "occurrences", len(entry.Occurrences), "skipped", skipped)
	return model.Payload{Data: []model.Entry{entry}}, nil
}

func occurrenceFromEvent(ev *ical.VEvent) (model.Occurrence, string, error) {
	var occ model.Occurrence

	id := propValue(ev, PropScheduleID)
	if id == "" {
		return occ, "", errors.New("missing " + string(PropScheduleID))
	}
	typ := propValue(ev, ical.ComponentPropertyCategories)
	if typ == "" {
		return occ, "", errors.New("missing CATEGORIES")
	}

	occ.ID = model.ScheduleID(id)
	occ.Time = propValue(ev, PropScheduleTime)
	if occ.Time == "" {
		start, err := ev.GetStartAt()
		if err != nil {
			return occ, "", fmt.Errorf("bad DTSTART: %w", err)
		}
		occ.Time = start.Format(time.RFC3339)
	}
	occ.SourceID = model.ScheduleID(propValue(ev, PropSourceID))
	occ.SourceTime = propValue(ev, PropSourceTime)
	return occ, typ, nil
}

func propValue(ev *ical.VEvent, name ical.ComponentProperty) string {
	if p := ev.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}
