package capture

import (
	"context"
	"testing"
	"time"
)

func TestOptionsNormalize(t *testing.T) {
	if err := (&Options{OutputPath: "/tmp/x.png"}).normalize(); err == nil {
		t.Error("missing URL should fail")
	}
	if err := (&Options{URL: "http://127.0.0.1/"}).normalize(); err == nil {
		t.Error("missing output path should fail")
	}

	o := Options{URL: "http://127.0.0.1/", OutputPath: "/tmp/x.png"}
	if err := o.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if o.Width != DefaultWidth || o.Height != DefaultHeight || o.Timeout != DefaultTimeoutSec*time.Second {
		t.Errorf("defaults not applied: %+v", o)
	}
}

func TestPagePNGRejectsBadOptions(t *testing.T) {
	if err := PagePNG(context.Background(), Options{}); err == nil {
		t.Error("expected validation error before launching a browser")
	}
}

func TestLocalURL(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{"127.0.0.1:8080", "http://127.0.0.1:8080/"},
		{":8080", "http://127.0.0.1:8080/"},
		{"0.0.0.0:9000", "http://127.0.0.1:9000/"},
		{"[::]:9000", "http://127.0.0.1:9000/"},
		{"[::1]:9000", "http://[::1]:9000/"},
		{"viz.internal:80", "http://viz.internal:80/"},
	}
	for _, tt := range tests {
		if got := LocalURL(tt.listen, "/"); got != tt.want {
			t.Errorf("LocalURL(%q) = %q, want %q", tt.listen, got, tt.want)
		}
	}
}
