// Package view holds the interactive state of the schedule visualization:
// filter inputs, the derived grid, marker hover and the details panel.
package view

import (
	"errors"
	"sync"
	"time"

	"backupviz/internal/derive"
	"backupviz/internal/grid"
	appLog "backupviz/internal/log"
	"backupviz/internal/model"
)

// DetailMode decides what happens to the details panel when the pointer
// leaves a cell.
type DetailMode string

const (
	// DetailSticky keeps the last hovered cell's details on screen.
	DetailSticky DetailMode = "sticky"
	// DetailClear empties the panel on cell leave.
	DetailClear DetailMode = "clear"
)

// Options configure a View.
type Options struct {
	Location *time.Location
	Order    derive.IntervalOrder
	Match    grid.MatchMode
	Detail   DetailMode
}

func (o Options) deriveOptions() derive.Options {
	return derive.Options{Location: o.Location, Order: o.Order}
}

// View is safe for concurrent use; every HTTP request goes through it.
type View struct {
	mu   sync.RWMutex
	opts Options

	derived derive.Derivation
	grid    grid.Grid

	input      model.FilterInput
	applied    *model.Window
	validation string

	hovered *model.MarkerKey
	detail  *model.HoverDetail

	// Last applied hover sequence numbers, per event kind.
	cellSeq   uint64
	markerSeq uint64
}

// New derives categories and occurrences for p. No filter is applied yet.
func New(p model.Payload, opts Options) *View {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Match == "" {
		opts.Match = grid.MatchExact
	}
	if opts.Detail == "" {
		opts.Detail = DetailSticky
	}
	if opts.Order == "" {
		opts.Order = derive.OrderFirstSeen
	}
	v := &View{opts: opts}
	v.derived = derive.Derive(p, nil, opts.deriveOptions())
	v.rebuild()
	return v
}

// Replace swaps in a new payload. The last applied window, if any, is
// applied to the new occurrences; hover state is dropped since it may point
// at markers that no longer exist.
func (v *View) Replace(p model.Payload) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.derived = derive.Derive(p, v.applied, v.opts.deriveOptions())
	v.hovered = nil
	v.detail = nil
	v.rebuild()

	appLog.Info("view: payload replaced",
		"categories", len(v.derived.Categories),
		"occurrences", len(v.derived.Occurrences),
		"filtered", len(v.derived.Filtered),
	)
}

// SetStart stores the raw start input. Nothing is recomputed until Filter.
func (v *View) SetStart(s string) {
	v.mu.Lock()
	v.input.Start = s
	v.mu.Unlock()
}

// SetEnd stores the raw end input. Nothing is recomputed until Filter.
func (v *View) SetEnd(s string) {
	v.mu.Lock()
	v.input.End = s
	v.mu.Unlock()
}

// Filter applies the current inputs. With a bound missing it does nothing
// and returns derive.ErrIncompleteWindow. With an unparseable bound it
// records a validation message, keeps the previous grid and returns the
// *derive.WindowError.
func (v *View) Filter() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	w, err := derive.ParseWindow(v.input, v.opts.Location)
	if err != nil {
		var we *derive.WindowError
		if errors.As(err, &we) {
			v.validation = we.Message()
			appLog.Warn("view: filter rejected", "field", we.Field, "value", we.Value)
		}
		return err
	}

	v.validation = ""
	v.applied = &w
	v.derived.Refilter(w, v.opts.deriveOptions())
	v.rebuild()

	appLog.Debug("view: filter applied",
		"start", w.From.Format(time.RFC3339),
		"end", w.To.Format(time.RFC3339),
		"filtered", len(v.derived.Filtered),
		"intervals", len(v.derived.Intervals),
		"unparseable", v.derived.Unparseable,
	)
	return nil
}

// admit reports whether a hover event numbered seq is newer than the last one
// applied for its kind, and records it. Zero is unordered and always applies.
// Caller holds mu.
func admit(last *uint64, seq uint64) bool {
	if seq == 0 {
		return true
	}
	if seq <= *last {
		return false
	}
	*last = seq
	return true
}

// CellEnter records the details of the cell at (categoryID, start). It
// reports false when no such cell is on screen.
func (v *View) CellEnter(categoryID model.ScheduleID, start string) (model.HoverDetail, bool) {
	return v.CellEnterAt(0, categoryID, start)
}

// CellEnterAt is CellEnter for the event numbered seq. A stale event changes
// nothing and reports false.
func (v *View) CellEnterAt(seq uint64, categoryID model.ScheduleID, start string) (model.HoverDetail, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !admit(&v.cellSeq, seq) {
		appLog.Debug("view: stale cell enter ignored", "seq", seq, "last", v.cellSeq)
		return model.HoverDetail{}, false
	}
	cell, ok := v.grid.Cell(categoryID, start)
	if !ok {
		return model.HoverDetail{}, false
	}
	occs := cell.Occurrences()
	d := model.HoverDetail{
		CategoryID: categoryID,
		TimeStart:  start,
		Details:    make([]model.OccurrenceDetail, 0, len(occs)),
	}
	for _, o := range occs {
		d.Details = append(d.Details, model.DetailOf(o))
	}
	v.detail = &d
	return d, true
}

// CellLeave clears the details panel in DetailClear mode only.
func (v *View) CellLeave() {
	v.CellLeaveAt(0)
}

// CellLeaveAt is CellLeave for the event numbered seq.
func (v *View) CellLeaveAt(seq uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !admit(&v.cellSeq, seq) {
		return false
	}
	if v.opts.Detail == DetailClear {
		v.detail = nil
	}
	return true
}

// MarkerEnter marks the marker (id, time) as hovered.
func (v *View) MarkerEnter(id model.ScheduleID, t string) {
	v.MarkerEnterAt(0, id, t)
}

// MarkerEnterAt is MarkerEnter for the event numbered seq. A leave that
// arrives before an older enter wins.
func (v *View) MarkerEnterAt(seq uint64, id model.ScheduleID, t string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !admit(&v.markerSeq, seq) {
		appLog.Debug("view: stale marker enter ignored", "seq", seq, "last", v.markerSeq)
		return false
	}
	v.hovered = &model.MarkerKey{ID: id, Time: t}
	return true
}

// MarkerLeave clears marker hover.
func (v *View) MarkerLeave() {
	v.MarkerLeaveAt(0)
}

// MarkerLeaveAt is MarkerLeave for the event numbered seq.
func (v *View) MarkerLeaveAt(seq uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !admit(&v.markerSeq, seq) {
		return false
	}
	v.hovered = nil
	return true
}

// rebuild lays out the grid from the current derivation. Caller holds mu.
func (v *View) rebuild() {
	v.grid = grid.Build(v.derived.Categories, v.derived.Intervals, v.derived.Filtered, v.opts.Match)
}

// State is a point-in-time copy of everything a renderer needs.
type State struct {
	Input       model.FilterInput
	Ready       bool // both bounds set; grid and details are shown
	Validation  string
	Window      *model.Window
	Categories  []model.Category
	Intervals   []model.TimeInterval
	Filtered    []model.Occurrence
	Unparseable int
	Grid        grid.Grid
	Hovered     *model.MarkerKey
	Detail      *model.HoverDetail
	// HoverSeq is the newest hover sequence applied; a fresh page numbers its
	// events after it.
	HoverSeq    uint64
}

// Snapshot returns the current state. Slices are shared with the view but
// are never mutated after being built.
func (v *View) Snapshot() State {
	v.mu.RLock()
	defer v.mu.RUnlock()

	st := State{
		Input:       v.input,
		Ready:       v.input.Complete(),
		Validation:  v.validation,
		Categories:  v.derived.Categories,
		Intervals:   v.derived.Intervals,
		Filtered:    v.derived.Filtered,
		Unparseable: v.derived.Unparseable,
		Grid:        v.grid.WithHover(v.hovered),
		HoverSeq:    max(v.cellSeq, v.markerSeq),
	}
	if v.applied != nil {
		w := *v.applied
		st.Window = &w
	}
	if v.hovered != nil {
		k := *v.hovered
		st.Hovered = &k
	}
	if v.detail != nil {
		d := *v.detail
		st.Detail = &d
	}
	return st
}
