package grid

import (
	"bytes"
	"html/template"
	"io"
)

// gridTemplate mirrors the class names the page stylesheet targets.
// data-category / data-time on cells and data-id / data-time on markers are
// what the page script posts back on pointer enter/leave.
const gridTemplate = `<div class="grid-container" id="grid">
  <div class="grid">
    <div class="grid-row">
      {{- range $i, $label := .Header}}
      {{- if eq $i 0}}
      <div class="grid-cell header fixed-cell">{{$label}}</div>
      {{- else if eq $i 1}}
      <div class="grid-cell header fixed-cell-2">{{$label}}</div>
      {{- else}}
      <div class="grid-cell header time">{{$label}}</div>
      {{- end}}
      {{- end}}
    </div>
    {{- range .Rows}}
    <div class="grid-row" data-row="{{.Category.ID}}">
      <div class="grid-cell header fixed-cell">{{.Category.Name}}</div>
      <div class="grid-cell header fixed-cell-2">{{.Category.ID}}</div>
      {{- range .Cells}}
      <div class="grid-cell" data-category="{{.CategoryID}}" data-time="{{.Time}}">
        {{- range .Markers}}
        {{- $s := .Style}}
        <div class="circle{{if .Hovered}} hovered{{end}}" data-id="{{.Occurrence.ID}}" data-time="{{.Occurrence.Time}}">
          <svg width="{{$s.Size}}" height="{{$s.Size}}"><circle cx="{{$s.CX}}" cy="{{$s.CY}}" r="{{$s.Radius}}" fill="{{.Color}}" stroke="{{$s.Stroke}}" stroke-width="{{$s.StrokeWidth}}"/></svg>
        </div>
        {{- end}}
      </div>
      {{- end}}
    </div>
    {{- end}}
  </div>
</div>
`

var tmpl = template.Must(template.New("grid").Parse(gridTemplate))

// Render writes the grid markup.
func Render(w io.Writer, g Grid) error {
	return tmpl.Execute(w, g)
}

// HTML renders the grid into a value that can be embedded in another
// html/template without re-escaping.
func HTML(g Grid) (template.HTML, error) {
	var buf bytes.Buffer
	if err := Render(&buf, g); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
