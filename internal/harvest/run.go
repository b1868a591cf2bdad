// Package harvest owns the end-to-end pipeline for one run: drive the
// external view, derive canonical events, encode, validate and publish.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"calharvest/internal/config"
	"calharvest/internal/extract"
	"calharvest/internal/history"
	"calharvest/internal/ics"
	appLog "calharvest/internal/log"
	"calharvest/internal/model"
	"calharvest/internal/navigate"
	"calharvest/internal/publish"
)

// ErrSanity marks a run whose windowed event count fell below the configured
// minimum. Fatal; nothing is published.
var ErrSanity = errors.New("harvested event count below minimum")

// Page is the page-driving collaborator surface the pipeline needs. It is
// satisfied by browser.Session and by fakes in tests.
type Page interface {
	Load(ctx context.Context, url string) error
	Step(ctx context.Context, dir navigate.Direction) (bool, error)
	Settle(ctx context.Context) error
	RangeLabel(ctx context.Context) (string, error)
	Fragments(ctx context.Context) ([]extract.Fragment, error)
	HTML(ctx context.Context) (string, error)
}

// Result reports one run's outcome.
type Result struct {
	Window     model.Window
	Events     []model.Event
	Published  bool
	RolledBack bool
	Status     string
	Reason     string
	PrevSteps  int
	NextSteps  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// ResolveWindow computes the requested window from config: the start date
// ("today" or an explicit date) at midnight in the display timezone, plus
// the configured number of days.
func ResolveWindow(cfg *config.Config, now time.Time) (model.Window, *time.Location, error) {
	loc, err := cfg.Location()
	if err != nil {
		return model.Window{}, nil, err
	}

	var start time.Time
	if cfg.WindowStart == "today" {
		local := now.In(loc)
		start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	} else {
		day, perr := time.ParseInLocation("2006-01-02", cfg.WindowStart, loc)
		if perr != nil {
			return model.Window{}, nil, fmt.Errorf("harvest: bad window start %q: %w", cfg.WindowStart, perr)
		}
		start = day
	}

	return model.Window{Start: start, End: start.AddDate(0, 0, cfg.WindowDays)}, loc, nil
}

// Run executes one harvest. Per-record issues never abort the run; only a
// sanity or validation failure does, and validation failure only after a
// rollback attempt. The outcome is recorded to store when one is given.
func Run(ctx context.Context, cfg *config.Config, page Page, captures *CaptureLog, store history.Store) (Result, error) {
	res := Result{StartedAt: time.Now(), Status: history.StatusError}
	defer func() {
		res.FinishedAt = time.Now()
		recordRun(store, &res)
	}()

	window, loc, err := ResolveWindow(cfg, res.StartedAt)
	if err != nil {
		res.Reason = err.Error()
		return res, err
	}
	res.Window = window

	deadline := time.Duration(cfg.Navigation.TimeoutSec) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	appLog.Info("harvest starting",
		"url", cfg.SourceURL,
		"window_start", window.Start.Format(time.RFC3339),
		"window_end", window.End.Format(time.RFC3339),
		"timezone", cfg.Timezone,
	)

	if err := page.Load(runCtx, cfg.SourceURL); err != nil {
		res.Reason = err.Error()
		return res, err
	}

	// Canonical events are re-derived from the capture accumulation on every
	// coverage check; there is no separately mutated event store.
	derive := func() []model.Event {
		return model.Dedupe(extract.FromPayloads(captures.Payloads(), loc))
	}

	nav := navigate.New(page, derive, navigate.Config{
		MaxPrev:  cfg.Navigation.MaxPrev,
		MaxNext:  cfg.Navigation.MaxNext,
		MaxStale: cfg.Navigation.MaxStale,
		Deadline: res.StartedAt.Add(deadline),
	})
	outcome := nav.Run(runCtx, window)
	res.PrevSteps = outcome.PrevSteps
	res.NextSteps = outcome.NextSteps
	if !(outcome.FullBackward && outcome.FullForward) {
		// Coverage shortfall is reported, not fatal; the sanity check below
		// decides whether the accumulated set is acceptable.
		res.Reason = "partial coverage: " + outcome.StopReason
		appLog.Info("window not fully covered", "reason", outcome.StopReason)
	}

	events := derive()
	if len(events) == 0 {
		// Fallback chain: no structured capture yielded events, so read
		// loosely structured text fragments out of the rendered markup.
		frags, ferr := page.Fragments(runCtx)
		if ferr != nil {
			appLog.Error("fragment query failed", ferr)
		} else {
			events = model.Dedupe(extract.FromFragments(frags, loc))
			appLog.Info("text fallback extraction", "fragments", len(frags), "events", len(events))
		}
	}

	windowed := window.Filter(events)
	res.Events = windowed
	appLog.Info("events harvested", "total", len(events), "windowed", len(windowed), "captures", captures.Len())

	dumpDebugArtifacts(runCtx, cfg, page, captures)

	gate := &publish.Gate{
		ICSPath:      cfg.ICSPath,
		JSONPath:     cfg.JSONPath,
		LastGoodPath: cfg.LastGoodPath,
		Protect:      cfg.ProtectLastGood,
	}

	if len(windowed) < cfg.MinEvents {
		res.Status = history.StatusSanityFailure
		res.Reason = fmt.Sprintf("%d events, minimum %d", len(windowed), cfg.MinEvents)
		return res, fmt.Errorf("%w: %s", ErrSanity, res.Reason)
	}

	artifact := ics.Encode(windowed)
	if err := ics.Validate(artifact, windowed, window, loc, cfg.ExpectedSplit); err != nil {
		restored, rerr := gate.Rollback()
		if rerr != nil {
			appLog.Error("rollback failed", rerr)
		}
		res.Status = history.StatusValidationFailed
		res.Reason = err.Error()
		res.RolledBack = restored
		return res, err
	}

	if err := gate.Publish(artifact, windowed); err != nil {
		res.Reason = err.Error()
		return res, err
	}

	res.Published = true
	res.Status = history.StatusPublished
	appLog.Info("harvest succeeded", "published_events", len(windowed))
	return res, nil
}

// dumpDebugArtifacts writes raw payloads and the final page HTML to the dump
// directory. Best effort: failures are logged, never fatal.
func dumpDebugArtifacts(ctx context.Context, cfg *config.Config, page Page, captures *CaptureLog) {
	if cfg.DumpDir == "" {
		return
	}
	if err := os.MkdirAll(cfg.DumpDir, 0o755); err != nil {
		appLog.Error("dump dir create failed", err, "dir", cfg.DumpDir)
		return
	}

	for i, payload := range captures.Payloads() {
		name := filepath.Join(cfg.DumpDir, fmt.Sprintf("capture-%03d.json", i))
		if err := os.WriteFile(name, payload, 0o644); err != nil {
			appLog.Error("capture dump failed", err, "path", name)
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		appLog.Error("page html dump failed", err)
		return
	}
	name := filepath.Join(cfg.DumpDir, "page.html")
	if err := os.WriteFile(name, []byte(html), 0o644); err != nil {
		appLog.Error("page html write failed", err, "path", name)
	}
}

func recordRun(store history.Store, res *Result) {
	if store == nil {
		return
	}
	err := store.Record(history.Run{
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Status:     res.Status,
		EventCount: len(res.Events),
		Reason:     res.Reason,
		RolledBack: res.RolledBack,
		PrevSteps:  res.PrevSteps,
		NextSteps:  res.NextSteps,
	})
	if err != nil {
		appLog.Error("run history record failed", err)
	}
}
