// Package navigate drives a paginated external calendar view until the
// accumulated events span a requested window or the search budgets run out.
package navigate

import (
	"context"
	"time"

	appLog "calharvest/internal/log"
	"calharvest/internal/model"
)

// Direction of one navigation step.
type Direction int

const (
	Backward Direction = iota
	Forward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// View is the paginated external view being driven. Step returns whether the
// underlying control claims the click landed; that claim is not trusted —
// actual movement is judged by comparing RangeLabel snapshots.
type View interface {
	// Step requests the adjacent page in the given direction.
	Step(ctx context.Context, dir Direction) (bool, error)
	// Settle re-triggers lazy content reveal (scroll and wait) so newly
	// shown items are captured before the next coverage check.
	Settle(ctx context.Context) error
	// RangeLabel reads a cheap snapshot of the view's current-range
	// indicator, e.g. a header label.
	RangeLabel(ctx context.Context) (string, error)
}

// Config bounds the search.
type Config struct {
	MaxPrev  int
	MaxNext  int
	MaxStale int
	// Deadline stops the machine unconditionally once passed. Zero means
	// only the context bounds wall-clock time.
	Deadline time.Time
}

// State of the machine. A harvest that already covers the window on first
// load skips straight to Done.
type State int

const (
	SeekingBackward State = iota
	SeekingForward
	Done
)

// Outcome reports how the search ended. Partial coverage is not an error at
// this layer; whether it is fatal belongs to the sanity check downstream.
type Outcome struct {
	Coverage     model.Coverage
	FullBackward bool
	FullForward  bool
	PrevSteps    int
	NextSteps    int
	StopReason   string
}

// Navigator is the coverage-driven search over a View. Events are re-derived
// from the capture accumulation on every check via the supplied function.
type Navigator struct {
	view   View
	events func() []model.Event
	cfg    Config

	state     State
	prevSteps int
	nextSteps int
	stale     int
	lastCount int
}

// New returns a navigator over view. events must derive the current
// canonical event set from the captures accumulated so far.
func New(view View, events func() []model.Event, cfg Config) *Navigator {
	if cfg.MaxPrev <= 0 {
		cfg.MaxPrev = 8
	}
	if cfg.MaxNext <= 0 {
		cfg.MaxNext = 12
	}
	if cfg.MaxStale <= 0 {
		cfg.MaxStale = 3
	}
	return &Navigator{view: view, events: events, cfg: cfg}
}

// Run drives the view until the window is covered or a budget fires. It only
// returns an error when the context is cancelled before any work happens;
// budget exhaustion and dead controls are reported through the Outcome.
func (n *Navigator) Run(ctx context.Context, window model.Window) Outcome {
	out := Outcome{StopReason: "covered"}
	n.lastCount = len(n.events())

	for n.state != Done {
		if stop, reason := n.expired(ctx); stop {
			out.StopReason = reason
			break
		}

		cov := model.CoverageOf(n.events())

		switch n.state {
		case SeekingBackward:
			if cov.ReachesBack(window) {
				out.FullBackward = true
				n.state = SeekingForward
				continue
			}
			if n.prevSteps >= n.cfg.MaxPrev {
				appLog.Info("backward step budget exhausted", "steps", n.prevSteps)
				n.state = SeekingForward
				continue
			}
			n.prevSteps++
			if !n.move(ctx, Backward) {
				// Already at the earliest page; further attempts are futile.
				appLog.Info("no backward movement, abandoning backward seek")
				n.state = SeekingForward
				continue
			}
			if n.grewStale() {
				out.StopReason = "stale"
				n.state = Done
			}

		case SeekingForward:
			if cov.ReachesForward(window) {
				out.FullForward = true
				n.state = Done
				continue
			}
			if n.nextSteps >= n.cfg.MaxNext {
				appLog.Info("forward step budget exhausted", "steps", n.nextSteps)
				out.StopReason = "forward budget"
				n.state = Done
				continue
			}
			n.nextSteps++
			if !n.move(ctx, Forward) {
				appLog.Info("no forward movement, stopping")
				out.StopReason = "no forward movement"
				n.state = Done
				continue
			}
			if n.grewStale() {
				out.StopReason = "stale"
				n.state = Done
			}
		}
	}

	out.Coverage = model.CoverageOf(n.events())
	out.PrevSteps = n.prevSteps
	out.NextSteps = n.nextSteps
	appLog.Info("navigation finished",
		"reason", out.StopReason,
		"prev_steps", out.PrevSteps,
		"next_steps", out.NextSteps,
		"events", out.Coverage.Count,
	)
	return out
}

// expired checks the wall-clock budget and context.
func (n *Navigator) expired(ctx context.Context) (bool, string) {
	if ctx.Err() != nil {
		return true, "deadline"
	}
	if !n.cfg.Deadline.IsZero() && time.Now().After(n.cfg.Deadline) {
		return true, "deadline"
	}
	return false, ""
}

// move performs one navigation step and reports whether the view actually
// changed. The range label is snapshotted before and after; an unchanged
// label means the action was a no-op even if the click claimed success.
// Errors and timeouts count as no movement, keeping the machine progressing
// toward its budgets.
func (n *Navigator) move(ctx context.Context, dir Direction) bool {
	before, err := n.view.RangeLabel(ctx)
	if err != nil {
		appLog.Debug("range label read failed before step", "dir", dir.String(), "err", err)
		before = ""
	}

	if _, err := n.view.Step(ctx, dir); err != nil {
		appLog.Debug("navigation step failed", "dir", dir.String(), "err", err)
		return false
	}

	after, err := n.view.RangeLabel(ctx)
	if err != nil {
		appLog.Debug("range label read failed after step", "dir", dir.String(), "err", err)
		return false
	}
	if after == before {
		return false
	}

	// Movement happened; reveal lazily loaded items before the caller
	// recomputes coverage.
	if err := n.view.Settle(ctx); err != nil {
		appLog.Debug("settle failed after movement", "err", err)
	}
	return true
}

// grewStale updates the staleness counter after a successful movement and
// reports whether movement keeps happening without yielding new events.
func (n *Navigator) grewStale() bool {
	count := len(n.events())
	if count > n.lastCount {
		n.lastCount = count
		n.stale = 0
		return false
	}
	n.stale++
	if n.stale >= n.cfg.MaxStale {
		appLog.Info("movement yielding no new events, stopping early", "stale_steps", n.stale)
		return true
	}
	return false
}
