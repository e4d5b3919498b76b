package derive

import (
	"time"

	"backupviz/internal/model"
)

// Options tune the pipeline. The zero value uses UTC and first-seen order.
type Options struct {
	Location *time.Location
	Order    IntervalOrder
}

// Derivation is everything the grid needs for one (payload, window) pair.
type Derivation struct {
	Categories  []model.Category
	Occurrences []model.Occurrence // flattened, unfiltered
	Filtered    []model.Occurrence
	Intervals   []model.TimeInterval
	Unparseable int
}

// Derive runs the whole pipeline. A nil window means no filter has been
// applied yet: Filtered and Intervals are empty.
func Derive(p model.Payload, w *model.Window, opts Options) Derivation {
	d := Derivation{
		Categories:  DeriveCategories(p),
		Occurrences: FlattenOccurrences(p),
		Filtered:    []model.Occurrence{},
		Intervals:   []model.TimeInterval{},
	}
	if w == nil {
		return d
	}
	d.Refilter(*w, opts)
	return d
}

// Refilter recomputes Filtered and Intervals from the already flattened
// occurrences. Categories are untouched.
func (d *Derivation) Refilter(w model.Window, opts Options) {
	res := FilterByWindow(d.Occurrences, w, opts.Location)
	d.Filtered = res.Occurrences
	d.Unparseable = res.Unparseable
	d.Intervals = DeriveTimeIntervals(d.Filtered, opts.Order, opts.Location)
}
