// Package export writes the occurrences of the current filter window as an
// iCalendar feed.
package export

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"backupviz/internal/derive"
	appLog "backupviz/internal/log"
	"backupviz/internal/model"
	"backupviz/internal/source"
)

// markerDuration gives exported events a visible length in calendar apps.
const markerDuration = 15 * time.Minute

// uidNamespace scopes the name-based UIDs so that the same occurrence always
// exports with the same UID.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("backupviz:occurrence"))

// ICS writes one VEVENT per occurrence. Occurrences whose time does not parse
// are skipped. loc interprets zone-less times; now stamps DTSTAMP.
func ICS(w io.Writer, categories []model.Category, occs []model.Occurrence, loc *time.Location, now time.Time) error {
	types := make(map[model.ScheduleID]string, len(categories))
	for _, c := range categories {
		types[c.ID] = c.Name
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//backupviz//schedule export//EN")
	cal.SetXWRCalName("Backup schedule occurrences")

	skipped := 0
	for _, o := range occs {
		start, err := derive.ParseTimestamp(o.Time, loc)
		if err != nil {
			skipped++
			continue
		}
		typ := types[o.ID]

		ev := cal.AddEvent(OccurrenceUID(o))
		ev.SetDtStampTime(now)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(markerDuration))
		ev.SetSummary(fmt.Sprintf("%s %s", typ, o.ID))
		ev.SetProperty(ical.ComponentPropertyCategories, typ)
		ev.SetProperty(source.PropScheduleID, string(o.ID))
		ev.SetProperty(source.PropScheduleTime, o.Time)
		if o.SourceID != "" {
			ev.SetDescription(fmt.Sprintf("Triggered by schedule %s at %s", o.SourceID, o.SourceTime))
			ev.SetProperty(source.PropSourceID, string(o.SourceID))
			ev.SetProperty(source.PropSourceTime, o.SourceTime)
		}
	}

	if skipped > 0 {
		appLog.Warn("export: skipped occurrences with unparseable time", "count", skipped)
	}
	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// OccurrenceUID is stable for a given (id, time) pair.
func OccurrenceUID(o model.Occurrence) string {
	return uuid.NewSHA1(uidNamespace, []byte(string(o.ID)+"\x00"+o.Time)).String() + "@backupviz"
}
