package source

import (
	"time"

	"backupviz/internal/config"
)

// FromConfig picks the payload loader: a local path wins over a URL, and
// with neither configured the demo generator is used.
func FromConfig(cfg *config.Config, loc *time.Location) Loader {
	switch {
	case cfg.Payload.Path != "":
		return FileLoader{Path: cfg.Payload.Path}
	case cfg.Payload.URL != "":
		return NewFetcher(cfg.Payload.URL, cfg.Payload.CacheDir)
	default:
		return DemoLoader{Config: cfg.Demo, Location: loc}
	}
}

// Describe names a loader for logs.
func Describe(l Loader) string {
	switch v := l.(type) {
	case FileLoader:
		return "file:" + v.Path
	case *Fetcher:
		return "url:" + redactURL(v.url)
	case DemoLoader:
		return "demo"
	default:
		return "custom"
	}
}
