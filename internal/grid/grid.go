// Package grid lays out occurrences on a category-by-time grid and renders it
// as HTML.
package grid

import (
	"strings"

	"backupviz/internal/model"
)

// Fixed header labels preceding the time columns.
const (
	HeaderCategory = "Category"
	HeaderIDs      = "IDs"
)

// MatchMode decides whether an occurrence time belongs to a time column.
type MatchMode string

const (
	// MatchExact requires the occurrence time to equal the column time.
	MatchExact MatchMode = "exact"
	// MatchContains accepts any occurrence time containing the column time
	// as a substring. Kept for payloads whose times carry extra formatting.
	MatchContains MatchMode = "contains"
)

// Match reports whether occTime falls into the column keyed by start.
func (m MatchMode) Match(occTime, start string) bool {
	if m == MatchContains {
		return strings.Contains(occTime, start)
	}
	return occTime == start
}

// CategoryColor returns the marker fill for a schedule type.
func CategoryColor(name string) string {
	switch name {
	case model.TypeSnapshot:
		return "#87CEEB"
	case model.TypeBackup:
		return "#90EE90"
	case model.TypeCloudBackup:
		return "#FFFF00"
	default:
		return "#000000"
	}
}

// Style is the SVG geometry of one marker.
type Style struct {
	Size        int
	CX, CY      int
	Radius      int
	Stroke      string
	StrokeWidth int
}

// MarkerStyle returns the geometry for a normal or hovered marker.
func MarkerStyle(hovered bool) Style {
	s := Style{Size: 30, CX: 20, CY: 20, Radius: 10, Stroke: "none", StrokeWidth: 2}
	if hovered {
		s.Size = 40
		s.Radius = 15
		s.Stroke = "#555"
	}
	return s
}

// Marker is one occurrence drawn inside a cell.
type Marker struct {
	Occurrence model.Occurrence
	Color      string
	Hovered    bool
}

// Style returns the marker's current geometry.
func (m Marker) Style() Style {
	return MarkerStyle(m.Hovered)
}

// Cell is the intersection of a category row and a time column.
type Cell struct {
	CategoryID model.ScheduleID
	Time       string
	Markers    []Marker
}

// Occurrences returns the occurrences drawn in the cell, in marker order.
func (c Cell) Occurrences() []model.Occurrence {
	out := make([]model.Occurrence, 0, len(c.Markers))
	for _, m := range c.Markers {
		out = append(out, m.Occurrence)
	}
	return out
}

// Row is one visible category.
type Row struct {
	Category model.Category
	Cells    []Cell
}

// Grid is the fully laid out table.
type Grid struct {
	Intervals []model.TimeInterval
	Rows      []Row
}

// Header returns the header row labels: the two fixed columns, then one per
// interval. The template renders the header row from it.
func (g Grid) Header() []string {
	out := make([]string, 0, len(g.Intervals)+2)
	out = append(out, HeaderCategory, HeaderIDs)
	for _, iv := range g.Intervals {
		out = append(out, iv.StartTime)
	}
	return out
}

// Build lays out occurrences. Only SNAPSHOT, BACKUP and CLOUD_BACKUP
// categories get a row; each row has one cell per interval holding every
// occurrence with the row's id whose time matches the column.
func Build(categories []model.Category, intervals []model.TimeInterval, occurrences []model.Occurrence, mode MatchMode) Grid {
	byID := make(map[model.ScheduleID][]model.Occurrence)
	for _, o := range occurrences {
		byID[o.ID] = append(byID[o.ID], o)
	}

	g := Grid{
		Intervals: append([]model.TimeInterval(nil), intervals...),
		Rows:      make([]Row, 0, len(categories)),
	}
	for _, cat := range categories {
		if !cat.Known() {
			continue
		}
		row := Row{Category: cat, Cells: make([]Cell, 0, len(intervals))}
		color := CategoryColor(cat.Name)
		for _, iv := range intervals {
			cell := Cell{CategoryID: cat.ID, Time: iv.StartTime}
			for _, o := range byID[cat.ID] {
				if mode.Match(o.Time, iv.StartTime) {
					cell.Markers = append(cell.Markers, Marker{Occurrence: o, Color: color})
				}
			}
			row.Cells = append(row.Cells, cell)
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// WithHover returns a copy of g where exactly the markers matching key are
// hovered. A nil key clears all hover flags.
func (g Grid) WithHover(key *model.MarkerKey) Grid {
	out := Grid{Intervals: g.Intervals, Rows: make([]Row, len(g.Rows))}
	for i, row := range g.Rows {
		cells := make([]Cell, len(row.Cells))
		for j, cell := range row.Cells {
			markers := make([]Marker, len(cell.Markers))
			for k, m := range cell.Markers {
				m.Hovered = key != nil && key.Matches(m.Occurrence)
				markers[k] = m
			}
			cell.Markers = markers
			cells[j] = cell
		}
		out.Rows[i] = Row{Category: row.Category, Cells: cells}
	}
	return out
}

// Cell looks up the cell at (categoryID, time).
func (g Grid) Cell(categoryID model.ScheduleID, time string) (Cell, bool) {
	for _, row := range g.Rows {
		if row.Category.ID != categoryID {
			continue
		}
		for _, cell := range row.Cells {
			if cell.Time == time {
				return cell, true
			}
		}
	}
	return Cell{}, false
}
