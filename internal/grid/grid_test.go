package grid

import (
	"bytes"
	"strings"
	"testing"

	"backupviz/internal/model"
)

func intervals(times ...string) []model.TimeInterval {
	out := make([]model.TimeInterval, 0, len(times))
	for _, t := range times {
		out = append(out, model.TimeInterval{StartTime: t})
	}
	return out
}

func TestBuildSkipsUnknownCategories(t *testing.T) {
	cats := []model.Category{
		{ID: "1", Name: model.TypeSnapshot},
		{ID: "2", Name: "UNKNOWN"},
	}
	occs := []model.Occurrence{
		{ID: "1", Time: "2024-01-01T10:00"},
		{ID: "2", Time: "2024-01-01T10:00"},
	}

	g := Build(cats, intervals("2024-01-01T10:00"), occs, MatchExact)

	if len(g.Rows) != 1 {
		t.Fatalf("expected 1 visible row, got %d", len(g.Rows))
	}
	if g.Rows[0].Category.ID != "1" {
		t.Errorf("visible row = %q, want 1", g.Rows[0].Category.ID)
	}
	if n := len(g.Rows[0].Cells[0].Markers); n != 1 {
		t.Errorf("expected 1 marker in SNAPSHOT cell, got %d", n)
	}
}

func TestBuildSameTimeDifferentRows(t *testing.T) {
	cats := []model.Category{
		{ID: "1", Name: model.TypeBackup},
		{ID: "2", Name: model.TypeCloudBackup},
	}
	occs := []model.Occurrence{
		{ID: "1", Time: "2024-01-01T10:00"},
		{ID: "2", Time: "2024-01-01T10:00"},
	}

	g := Build(cats, intervals("2024-01-01T10:00"), occs, MatchExact)

	if len(g.Intervals) != 1 {
		t.Fatalf("expected one time column, got %d", len(g.Intervals))
	}
	for i, row := range g.Rows {
		cell := row.Cells[0]
		if len(cell.Markers) != 1 || cell.Markers[0].Occurrence.ID != row.Category.ID {
			t.Errorf("row %d: unexpected markers %+v", i, cell.Markers)
		}
	}
	if g.Rows[0].Cells[0].Markers[0].Color != "#90EE90" || g.Rows[1].Cells[0].Markers[0].Color != "#FFFF00" {
		t.Errorf("unexpected marker colors: %+v", g.Rows)
	}
}

func TestMatchModes(t *testing.T) {
	cats := []model.Category{{ID: "1", Name: model.TypeBackup}}
	occs := []model.Occurrence{{ID: "1", Time: "2024-01-01T10:00:00.000Z"}}
	iv := intervals("2024-01-01T10:00")

	exact := Build(cats, iv, occs, MatchExact)
	if n := len(exact.Rows[0].Cells[0].Markers); n != 0 {
		t.Errorf("exact mode: expected no marker, got %d", n)
	}

	contains := Build(cats, iv, occs, MatchContains)
	if n := len(contains.Rows[0].Cells[0].Markers); n != 1 {
		t.Errorf("contains mode: expected one marker, got %d", n)
	}
}

func TestMarkerPresenceProperty(t *testing.T) {
	cats := []model.Category{
		{ID: "1", Name: model.TypeSnapshot},
		{ID: "2", Name: model.TypeBackup},
	}
	occs := []model.Occurrence{
		{ID: "1", Time: "a"},
		{ID: "1", Time: "b"},
		{ID: "2", Time: "b"},
		{ID: "2", Time: "b"},
		{ID: "3", Time: "a"},
	}
	iv := intervals("a", "b")

	for _, mode := range []MatchMode{MatchExact, MatchContains} {
		g := Build(cats, iv, occs, mode)
		for _, row := range g.Rows {
			for _, cell := range row.Cells {
				want := 0
				for _, o := range occs {
					if o.ID == row.Category.ID && mode.Match(o.Time, cell.Time) {
						want++
					}
				}
				if len(cell.Markers) != want {
					t.Errorf("%s: cell (%s, %s) has %d markers, want %d", mode, row.Category.ID, cell.Time, len(cell.Markers), want)
				}
			}
		}
	}
}

func TestCategoryColor(t *testing.T) {
	tests := map[string]string{
		model.TypeSnapshot:    "#87CEEB",
		model.TypeBackup:      "#90EE90",
		model.TypeCloudBackup: "#FFFF00",
		"OTHER":               "#000000",
	}
	for name, want := range tests {
		if got := CategoryColor(name); got != want {
			t.Errorf("CategoryColor(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestWithHoverEnlargesOnlyMatchingMarker(t *testing.T) {
	cats := []model.Category{{ID: "1", Name: model.TypeSnapshot}}
	occs := []model.Occurrence{
		{ID: "1", Time: "2024-01-01T10:00"},
		{ID: "1", Time: "2024-01-01T11:00"},
	}
	g := Build(cats, intervals("2024-01-01T10:00", "2024-01-01T11:00"), occs, MatchExact)

	hovered := g.WithHover(&model.MarkerKey{ID: "1", Time: "2024-01-01T10:00"})

	m0 := hovered.Rows[0].Cells[0].Markers[0].Style()
	if m0.Size != 40 || m0.Radius != 15 || m0.Stroke != "#555" {
		t.Errorf("hovered marker style = %+v", m0)
	}
	m1 := hovered.Rows[0].Cells[1].Markers[0].Style()
	if m1.Size != 30 || m1.Radius != 10 || m1.Stroke != "none" {
		t.Errorf("sibling marker style = %+v", m1)
	}
	if g.Rows[0].Cells[0].Markers[0].Hovered {
		t.Error("WithHover must not mutate the source grid")
	}

	cleared := hovered.WithHover(nil)
	if cleared.Rows[0].Cells[0].Markers[0].Hovered {
		t.Error("nil key should clear hover")
	}
}

func TestCellLookup(t *testing.T) {
	cats := []model.Category{{ID: "1", Name: model.TypeSnapshot}}
	occs := []model.Occurrence{{ID: "1", Time: "t1", SourceID: "9", SourceTime: "t0"}}
	g := Build(cats, intervals("t1"), occs, MatchExact)

	cell, ok := g.Cell("1", "t1")
	if !ok {
		t.Fatal("expected cell")
	}
	got := cell.Occurrences()
	if len(got) != 1 || got[0].SourceID != "9" {
		t.Errorf("unexpected cell occurrences %+v", got)
	}
	if _, ok := g.Cell("1", "t2"); ok {
		t.Error("unexpected cell for unknown time")
	}
}

func TestRenderHeaderOnlyWhenEmpty(t *testing.T) {
	cats := []model.Category{{ID: "1", Name: model.TypeSnapshot}}
	g := Build(cats, nil, nil, MatchExact)

	if h := g.Header(); len(h) != 2 || h[0] != "Category" || h[1] != "IDs" {
		t.Errorf("Header() = %v", h)
	}

	var buf bytes.Buffer
	if err := Render(&buf, g); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "header time") {
		t.Errorf("expected no time columns, got %s", out)
	}
	if !strings.Contains(out, ">Category<") || !strings.Contains(out, ">IDs<") {
		t.Errorf("missing fixed header columns in %s", out)
	}
}

func TestRenderMarkers(t *testing.T) {
	cats := []model.Category{
		{ID: "1", Name: model.TypeSnapshot},
		{ID: "2", Name: "UNKNOWN"},
	}
	occs := []model.Occurrence{
		{ID: "1", Time: "2024-01-01T10:00"},
		{ID: "1", Time: "2024-01-01T11:00"},
	}
	g := Build(cats, intervals("2024-01-01T10:00", "2024-01-01T11:00"), occs, MatchExact).
		WithHover(&model.MarkerKey{ID: "1", Time: "2024-01-01T11:00"})

	out, err := HTML(g)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	s := string(out)

	if strings.Count(s, `class="grid-row"`) != 2 {
		t.Errorf("expected header row plus one category row:\n%s", s)
	}
	if strings.Contains(s, "UNKNOWN") {
		t.Errorf("unknown category must not render:\n%s", s)
	}
	if !strings.Contains(s, `<svg width="30" height="30"><circle cx="20" cy="20" r="10" fill="#87CEEB" stroke="none" stroke-width="2"/></svg>`) {
		t.Errorf("missing normal marker:\n%s", s)
	}
	if !strings.Contains(s, `<svg width="40" height="40"><circle cx="20" cy="20" r="15" fill="#87CEEB" stroke="#555" stroke-width="2"/></svg>`) {
		t.Errorf("missing hovered marker:\n%s", s)
	}
	if !strings.Contains(s, `data-category="1" data-time="2024-01-01T10:00"`) {
		t.Errorf("missing cell hover attributes:\n%s", s)
	}
}

func TestRenderHeaderFollowsHeader(t *testing.T) {
	cats := []model.Category{{ID: "1", Name: model.TypeBackup}}
	g := Build(cats, intervals("t2", "t1"), nil, MatchExact)

	var buf bytes.Buffer
	if err := Render(&buf, g); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	want := []string{
		`<div class="grid-cell header fixed-cell">Category</div>`,
		`<div class="grid-cell header fixed-cell-2">IDs</div>`,
		`<div class="grid-cell header time">t2</div>`,
		`<div class="grid-cell header time">t1</div>`,
	}
	last := -1
	for i, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("missing header cell %q:\n%s", w, out)
		}
		idx := strings.Index(out, w)
		if idx <= last {
			t.Errorf("header cell %d out of order:\n%s", i, out)
		}
		last = idx
	}
}
