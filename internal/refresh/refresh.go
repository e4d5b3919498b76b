// Package refresh reloads the schedule payload on a cron schedule.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "backupviz/internal/log"
	"backupviz/internal/model"
	"backupviz/internal/source"
)

// Target receives each successfully loaded payload.
type Target interface {
	Replace(p model.Payload)
}

// Refresher runs loader on a schedule and hands results to target. A failed
// load keeps whatever the target already shows.
type Refresher struct {
	loader source.Loader
	target Target
	cron   *cron.Cron

	mu       sync.Mutex
	lastOK   time.Time
	lastErr  error
	attempts int
}

// New validates schedule (standard 5-field cron or a descriptor such as
// "@hourly") and prepares the scheduler. Nothing runs until Run.
func New(loader source.Loader, target Target, schedule string, loc *time.Location) (*Refresher, error) {
	if loc == nil {
		loc = time.Local
	}
	r := &Refresher{
		loader: loader,
		target: target,
		cron:   cron.New(cron.WithLocation(loc)),
	}
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", schedule, err)
	}
	return r, nil
}

// RefreshNow loads once, synchronously.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	p, err := r.loader.Load(ctx)

	r.mu.Lock()
	r.attempts++
	r.lastErr = err
	if err == nil {
		r.lastOK = time.Now()
	}
	r.mu.Unlock()

	if err != nil {
		appLog.Error("payload refresh failed; keeping previous payload", err, "source", source.Describe(r.loader))
		return err
	}
	r.target.Replace(p)
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running refresh to finish.
func (r *Refresher) Run(ctx context.Context) {
	r.cron.Start()
	appLog.Info("payload refresh scheduled", "source", source.Describe(r.loader), "next", r.Next().Format(time.RFC3339))
	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
}

// Next reports the next scheduled run.
func (r *Refresher) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now())
}

// Status summarizes refresh history for the health endpoint.
type Status struct {
	Attempts  int       `json:"attempts"`
	LastOK    time.Time `json:"last_ok"`
	LastError string    `json:"last_error,omitempty"`
}

func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{Attempts: r.attempts, LastOK: r.lastOK}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

func (r *Refresher) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_ = r.RefreshNow(ctx)
}
