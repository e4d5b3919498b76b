package view

import (
	"html/template"
	"io"

	"backupviz/internal/grid"
)

const detailsTemplate = `{{define "details"}}<div class="details-slot" id="details">
{{- if .}}
  <div class="details">
    <h3 class="heading">SCHEDULE DETAILS</h3>
    {{- range .Details}}
    <div class="detail">
      <div class="detail-item"><span class="label">Schedule ID:</span> {{.ScheduleID}}</div>
      <div class="detail-item"><span class="label">Schedule Time:</span> {{.ScheduleTime}}</div>
      <div class="detail-item"><span class="label">Source Schedule ID:</span> {{.SourceScheduleID}}</div>
      <div class="detail-item"><span class="label">Source Schedule Time:</span> {{.SourceScheduleTime}}</div>
    </div>
    {{- end}}
  </div>
{{- end}}
</div>{{end}}`

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Backup Schedule Visualization</title>
<style>
.grid { display: table; border-collapse: collapse; }
.grid-row { display: table-row; }
.grid-cell { display: table-cell; border: 1px solid #ddd; min-width: 44px; height: 44px; vertical-align: middle; text-align: center; }
.grid-cell.header { font-weight: bold; padding: 4px 8px; }
.grid-cell.header.time { writing-mode: vertical-rl; font-size: 11px; }
.circle { display: inline-block; cursor: pointer; }
.validation { color: #b00020; margin: 8px 0; }
.details { margin-top: 16px; }
.detail { border-top: 1px solid #eee; padding: 6px 0; }
.label { font-weight: bold; }
</style>
</head>
<body>
<div class="visualization" data-ready="true" data-hover-seq="{{.HoverSeq}}">
  <h2>Backup Schedule Visualization</h2>
  <form class="date-time-input" method="post" action="/filter">
    <label>
      Start Date and Time:
      <input type="datetime-local" name="start" value="{{.Input.Start}}">
    </label>
    <label>
      End Date and Time:
      <input type="datetime-local" name="end" value="{{.Input.End}}">
    </label>
    <button class="filter-button" type="submit">Filter</button>
  </form>
  {{- if .Validation}}
  <div class="validation" role="alert">{{.Validation}}</div>
  {{- end}}
  {{- if .Ready}}
  {{.GridHTML}}
  {{template "details" .Detail}}
  {{- end}}
</div>
<script>
(function () {
  var cellKey = null, markerKey = null;
  var root = document.querySelector(".visualization");
  var seq = parseInt(root.getAttribute("data-hover-seq"), 10) || 0;
  // Hover requests go out one at a time, numbered, so the server and the
  // DOM both see them in pointer order.
  var queue = Promise.resolve();
  function swap(url, id) {
    seq += 1;
    var target = url + (url.indexOf("?") === -1 ? "?" : "&") + "seq=" + seq;
    queue = queue.then(function () {
      return fetch(target, {method: "POST"}).then(function (r) { return r.text(); }).then(function (html) {
        var el = document.getElementById(id);
        if (el) { el.outerHTML = html; }
      });
    }).catch(function () {});
  }
  function q(params) {
    return Object.keys(params).map(function (k) {
      return encodeURIComponent(k) + "=" + encodeURIComponent(params[k]);
    }).join("&");
  }
  document.addEventListener("mouseover", function (e) {
    var m = e.target.closest ? e.target.closest(".circle") : null;
    var c = e.target.closest ? e.target.closest(".grid-cell[data-category]") : null;
    var mk = m ? m.dataset.id + "\u0000" + m.dataset.time : null;
    var ck = c ? c.dataset.category + "\u0000" + c.dataset.time : null;
    if (ck !== cellKey) {
      if (ck) {
        swap("/api/hover/cell?" + q({category: c.dataset.category, time: c.dataset.time}), "details");
      } else {
        swap("/api/hover/cell/leave", "details");
      }
      cellKey = ck;
    }
    if (mk !== markerKey) {
      if (mk) {
        swap("/api/hover/marker?" + q({id: m.dataset.id, time: m.dataset.time}), "grid");
      } else {
        swap("/api/hover/marker/leave", "grid");
      }
      markerKey = mk;
    }
  });
})();
</script>
</body>
</html>
`

var (
	pageTmpl    = template.Must(template.New("page").Parse(detailsTemplate + pageTemplate))
	detailsTmpl = pageTmpl.Lookup("details")
)

type pageData struct {
	State
	GridHTML template.HTML
}

// Render writes the full page for the current state.
func (v *View) Render(w io.Writer) error {
	st := v.Snapshot()
	data := pageData{State: st}
	if st.Ready {
		h, err := grid.HTML(st.Grid)
		if err != nil {
			return err
		}
		data.GridHTML = h
	}
	return pageTmpl.Execute(w, data)
}

// RenderGrid writes only the grid fragment (the #grid element).
func (v *View) RenderGrid(w io.Writer) error {
	return grid.Render(w, v.Snapshot().Grid)
}

// RenderDetails writes only the details fragment (the #details element).
func (v *View) RenderDetails(w io.Writer) error {
	return detailsTmpl.Execute(w, v.Snapshot().Detail)
}
