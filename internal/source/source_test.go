package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"backupviz/internal/config"
	"backupviz/internal/model"
)

const payloadJSON = `{"data":[{"schedules_involved":[{"id":1,"type":"SNAPSHOT"}],"occurrences":[{"id":1,"time":"2024-01-01T10:00","source_id":null,"source_time":null}]}]}`

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "payload.json")
	if err := os.WriteFile(good, []byte(payloadJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := FileLoader{Path: good}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Data) != 1 || p.Data[0].Occurrences[0].ID != "1" {
		t.Errorf("unexpected payload %+v", p)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"data":[{"occurrences":[]}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (FileLoader{Path: bad}).Load(context.Background()); !errors.Is(err, model.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	if _, err := (FileLoader{Path: filepath.Join(dir, "missing.json")}).Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFetcherConditionalGet(t *testing.T) {
	var hits, conditional int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&conditional, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payloadJSON))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/payload", t.TempDir())

	first, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache {
		t.Error("first fetch should not come from cache")
	}

	p, err := f.Load(context.Background())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(p.Data) != 1 {
		t.Errorf("unexpected payload %+v", p)
	}
	if atomic.LoadInt32(&conditional) != 1 {
		t.Errorf("expected one conditional request, got %d", conditional)
	}
}

func TestFetcherFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(payloadJSON))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, t.TempDir())
	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("warm-up fetch: %v", err)
	}

	fail.Store(true)
	res, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch with cached body should succeed: %v", err)
	}
	if !res.FromCache || string(res.Body) != payloadJSON {
		t.Errorf("expected cached body, got %+v", res)
	}

	empty := NewFetcher(srv.URL+"/other", t.TempDir())
	if _, err := empty.Fetch(context.Background()); err == nil {
		t.Error("expected error without cache")
	}
}

func TestGenerateDemoLinksSources(t *testing.T) {
	cfg := config.DemoConfig{
		Start: "2024-01-01T00:00",
		Days:  2,
		Schedules: []config.DemoSchedule{
			{ID: "10", Type: model.TypeBackup, RRule: "FREQ=DAILY;BYHOUR=1;BYMINUTE=0;BYSECOND=0"},
			{ID: "11", Type: model.TypeCloudBackup, RRule: "FREQ=DAILY;BYHOUR=2;BYMINUTE=0;BYSECOND=0", Source: "10"},
			{ID: "12", Type: model.TypeSnapshot, RRule: "FREQ=HOURLY;INTERVAL=12"},
		},
	}

	p, err := GenerateDemo(cfg, time.UTC)
	if err != nil {
		t.Fatalf("GenerateDemo: %v", err)
	}
	if len(p.Data) != 2 {
		t.Fatalf("expected backup chain and snapshot entries, got %d", len(p.Data))
	}

	chain := p.Data[0]
	if len(chain.SchedulesInvolved) != 2 {
		t.Errorf("chain schedules = %+v", chain.SchedulesInvolved)
	}
	var cloud []model.Occurrence
	for _, o := range chain.Occurrences {
		if o.ID == "11" {
			cloud = append(cloud, o)
		}
	}
	if len(cloud) != 2 {
		t.Fatalf("expected 2 cloud backups, got %+v", cloud)
	}
	if cloud[0].Time != "2024-01-01T02:00" || cloud[0].SourceID != "10" || cloud[0].SourceTime != "2024-01-01T01:00" {
		t.Errorf("unexpected cloud occurrence %+v", cloud[0])
	}

	snaps := p.Data[1].Occurrences
	// 00:00, 12:00 on two days plus the inclusive end at day 3 00:00.
	if len(snaps) != 5 {
		t.Errorf("expected 5 snapshots, got %d: %+v", len(snaps), snaps)
	}
}

func TestGenerateDemoErrors(t *testing.T) {
	bad := config.DemoConfig{Start: "2024-01-01T00:00", Schedules: []config.DemoSchedule{{ID: "1", Type: "BACKUP", RRule: "FREQ=SOMETIMES"}}}
	if _, err := GenerateDemo(bad, nil); err == nil {
		t.Error("expected RRULE error")
	}
	dup := config.DemoConfig{Start: "2024-01-01T00:00", Schedules: []config.DemoSchedule{
		{ID: "1", Type: "BACKUP", RRule: "FREQ=DAILY"},
		{ID: "1", Type: "BACKUP", RRule: "FREQ=DAILY"},
	}}
	if _, err := GenerateDemo(dup, nil); err == nil {
		t.Error("expected duplicate id error")
	}
	if _, err := GenerateDemo(config.DemoConfig{Start: "soon"}, nil); err == nil {
		t.Error("expected start parse error")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, ok := FromConfig(cfg, time.UTC).(DemoLoader); !ok {
		t.Error("no payload configured: expected demo loader")
	}
	cfg.Payload.URL = "https://example.com/schedules?token=secret"
	l := FromConfig(cfg, time.UTC)
	if _, ok := l.(*Fetcher); !ok {
		t.Errorf("expected *Fetcher, got %T", l)
	}
	if d := Describe(l); d != "url:https://example.com/...(redacted)" {
		t.Errorf("Describe = %q", d)
	}
	cfg.Payload.Path = "/tmp/payload.json"
	if _, ok := FromConfig(cfg, time.UTC).(FileLoader); !ok {
		t.Error("path should win over URL")
	}
}

func TestGenerateDemoCapsExpansion(t *testing.T) {
	cfg := config.DemoConfig{
		Start:          "2024-01-01T00:00",
		Days:           30,
		MaxOccurrences: 100,
		Schedules: []config.DemoSchedule{
			{ID: "1", Type: model.TypeSnapshot, RRule: "FREQ=SECONDLY"},
			{ID: "2", Type: model.TypeBackup, RRule: "FREQ=DAILY"},
		},
	}

	p, err := GenerateDemo(cfg, time.UTC)
	if err != nil {
		t.Fatalf("GenerateDemo: %v", err)
	}
	if n := len(p.Data[0].Occurrences); n != 100 {
		t.Errorf("secondly schedule: got %d occurrences, want cap of 100", n)
	}
	if got := p.Data[0].Occurrences[99].Time; got != "2024-01-01T00:01" {
		t.Errorf("last kept occurrence = %q", got)
	}
	// 31 days inclusive, well under the cap.
	if n := len(p.Data[1].Occurrences); n != 31 {
		t.Errorf("daily schedule: got %d occurrences, want 31", n)
	}

	cfg.MaxOccurrences = 0
	cfg.Schedules = cfg.Schedules[:1]
	p, err = GenerateDemo(cfg, time.UTC)
	if err != nil {
		t.Fatalf("GenerateDemo: %v", err)
	}
	if n := len(p.Data[0].Occurrences); n != DefaultMaxOccurrences {
		t.Errorf("default cap: got %d, want %d", n, DefaultMaxOccurrences)
	}
}
