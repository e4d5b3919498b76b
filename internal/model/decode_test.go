package model

import (
	"errors"
	"testing"
)

func TestDecodeValidPayload(t *testing.T) {
	body := []byte(`{
		"data": [
			{
				"schedules_involved": [{"id": 1, "type": "BACKUP"}, {"id": "cb-7", "type": "CLOUD_BACKUP"}],
				"occurrences": [
					{"id": 1, "time": "2024-01-01T10:00", "source_id": null, "source_time": null},
					{"id": "cb-7", "time": "2024-01-01T10:30", "source_id": 1, "source_time": "2024-01-01T10:00"}
				]
			}
		]
	}`)

	p, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Data) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(p.Data))
	}
	e := p.Data[0]
	if e.SchedulesInvolved[0].ID != "1" || e.SchedulesInvolved[1].ID != "cb-7" {
		t.Errorf("unexpected schedule ids: %+v", e.SchedulesInvolved)
	}
	if e.Occurrences[0].SourceID != "" || e.Occurrences[0].SourceTime != "" {
		t.Errorf("null source fields should decode empty, got %+v", e.Occurrences[0])
	}
	if e.Occurrences[1].SourceID != "1" || e.Occurrences[1].SourceTime != "2024-01-01T10:00" {
		t.Errorf("unexpected source link: %+v", e.Occurrences[1])
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
	}{
		{"not json", `{`, ""},
		{"missing data", `{}`, "data"},
		{"missing schedules", `{"data":[{"occurrences":[]}]}`, "data[0].schedules_involved"},
		{"missing occurrences", `{"data":[{"schedules_involved":[]}]}`, "data[0].occurrences"},
		{"schedule without id", `{"data":[{"schedules_involved":[{"type":"BACKUP"}],"occurrences":[]}]}`, "data[0].schedules_involved[0].id"},
		{"schedule without type", `{"data":[{"schedules_involved":[{"id":1}],"occurrences":[]}]}`, "data[0].schedules_involved[0].type"},
		{"occurrence without time", `{"data":[{"schedules_involved":[],"occurrences":[{"id":1}]}]}`, "data[0].occurrences[0].time"},
		{"bool id", `{"data":[{"schedules_involved":[{"id":true,"type":"BACKUP"}],"occurrences":[]}]}`, "data[0].schedules_involved[0].id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("error %v should wrap ErrMalformedPayload", err)
			}
			if tt.path == "" {
				return
			}
			var pe *PayloadError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PayloadError, got %T", err)
			}
			if pe.Path != tt.path {
				t.Errorf("path = %q, want %q", pe.Path, tt.path)
			}
		})
	}
}

func TestDecodeEmptyData(t *testing.T) {
	p, err := Decode([]byte(`{"data":[]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Data) != 0 {
		t.Errorf("expected no entries, got %d", len(p.Data))
	}
}

func TestCategoryKnown(t *testing.T) {
	for name, want := range map[string]bool{
		TypeSnapshot:    true,
		TypeBackup:      true,
		TypeCloudBackup: true,
		"UNKNOWN":       false,
		"":              false,
	} {
		if got := (Category{Name: name}).Known(); got != want {
			t.Errorf("Known(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDecodeNumericIDsNormalized(t *testing.T) {
	body := []byte(`{"data":[{
		"schedules_involved":[{"id":1,"type":"BACKUP"},{"id":1.0,"type":"SNAPSHOT"},{"id":2.5,"type":"SNAPSHOT"}],
		"occurrences":[
			{"id":1e0,"time":"2024-01-01T10:00","source_id":10.0,"source_time":"2024-01-01T09:00"},
			{"id":"1","time":"2024-01-01T11:00"}
		]}]}`)

	p, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	e := p.Data[0]
	wantRefs := []ScheduleID{"1", "1", "2.5"}
	for i, want := range wantRefs {
		if got := e.SchedulesInvolved[i].ID; got != want {
			t.Errorf("schedules_involved[%d].id = %q, want %q", i, got, want)
		}
	}
	if e.Occurrences[0].ID != "1" || e.Occurrences[0].SourceID != "10" {
		t.Errorf("occurrence ids = %+v", e.Occurrences[0])
	}
	if e.Occurrences[1].ID != "1" {
		t.Errorf("string id = %q", e.Occurrences[1].ID)
	}
}

func TestCanonicalNumber(t *testing.T) {
	tests := map[string]string{
		"1":                 "1",
		"1.0":               "1",
		"-0":                "0",
		"1e3":               "1000",
		"0.50":              "0.5",
		"12345678901234567": "12345678901234567",
	}
	for in, want := range tests {
		if got := canonicalNumber(in); got != want {
			t.Errorf("canonicalNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
