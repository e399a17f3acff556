package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// Unit is one schedulable piece of work with dependencies on other units.
type Unit struct {
	// ID is the unique identifier for this unit.
	ID string
	// Deps lists unit IDs that must complete before this unit runs.
	Deps []string
	// Run executes the unit's work and returns its outputs.
	Run func(ctx context.Context) (map[string]any, error)
}

// UnitStatus is the terminal state of a coordinated unit.
type UnitStatus string

const (
	// UnitCompleted indicates the unit ran and succeeded.
	UnitCompleted UnitStatus = "completed"
	// UnitFailed indicates the unit ran and returned an error.
	UnitFailed UnitStatus = "failed"
	// UnitSkipped indicates the unit never ran because a dependency failed.
	UnitSkipped UnitStatus = "skipped"
)

// Result records the outcome of one unit.
type Result struct {
	// UnitID identifies the unit.
	UnitID string
	// Status is the terminal status.
	Status UnitStatus
	// Output holds whatever the unit's Run returned.
	Output map[string]any
	// Err is the failure, if any.
	Err error
	// Duration is how long the unit ran.
	Duration time.Duration
}

// Coordinator runs a set of dependency-ordered units concurrently. Units
// become eligible once every dependency is in the completed set; a unit's
// failure marks its transitive dependents skipped but does not affect
// independent units.
type Coordinator struct {
	maxParallel int
	logger      *DebugLogger
	emit        func(Event)
}

// NewCoordinator creates a coordinator with the given concurrency limit.
// A limit below 1 means unbounded.
func NewCoordinator(maxParallel int) *Coordinator {
	return &Coordinator{maxParallel: maxParallel, logger: NopLogger()}
}

// SetLogger sets the debug logger. It also installs the logger at package
// level so helpers can log without a coordinator reference.
func (c *Coordinator) SetLogger(l *DebugLogger) {
	if l == nil {
		l = NopLogger()
	}
	c.logger = l
	setPackageLogger(l)
}

// SetEventSink registers a callback for progress events. The callback is
// invoked from coordinator goroutines and must be safe for concurrent use.
func (c *Coordinator) SetEventSink(fn func(Event)) {
	c.emit = fn
}

func (c *Coordinator) emitEvent(ev Event) {
	if c.emit != nil {
		ev.Timestamp = time.Now()
		c.emit(ev)
	}
}

type unitOutcome struct {
	id       string
	output   map[string]any
	err      error
	duration time.Duration
}

// Run executes all units, honoring dependencies and the concurrency limit.
// It returns one Result per unit. The error is non-nil only for invalid
// input or context cancellation; individual unit failures are reported in
// their Results.
func (c *Coordinator) Run(ctx context.Context, units []Unit) (map[string]Result, error) {
	byID := make(map[string]Unit, len(units))
	for _, u := range units {
		if u.ID == "" {
			return nil, fmt.Errorf("unit with empty id")
		}
		if _, dup := byID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit id %q", u.ID)
		}
		byID[u.ID] = u
	}
	for _, u := range units {
		for _, dep := range u.Deps {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("unit %s depends on unknown unit %s", u.ID, dep)
			}
		}
	}

	for _, u := range units {
		debugLog("[coordinator] unit %s queued (%d deps)", u.ID, len(u.Deps))
		c.emitEvent(Event{Type: EventUnitQueued, UnitID: u.ID})
	}

	results := make(map[string]Result, len(units))
	completed := make(map[string]bool, len(units))
	failed := make(map[string]bool)
	running := make(map[string]bool)

	outcomeCh := make(chan unitOutcome, len(units))

	record := func(oc unitOutcome) {
		delete(running, oc.id)
		if oc.err != nil {
			failed[oc.id] = true
			results[oc.id] = Result{UnitID: oc.id, Status: UnitFailed, Output: oc.output, Err: oc.err, Duration: oc.duration}
			c.logger.Log("[coordinator] unit %s failed after %s: %v", oc.id, oc.duration, oc.err)
			c.emitEvent(Event{Type: EventUnitFailed, UnitID: oc.id, Error: oc.err})
			return
		}
		completed[oc.id] = true
		results[oc.id] = Result{UnitID: oc.id, Status: UnitCompleted, Output: oc.output, Duration: oc.duration}
		c.logger.Log("[coordinator] unit %s completed in %s", oc.id, oc.duration)
		c.emitEvent(Event{Type: EventUnitCompleted, UnitID: oc.id})
	}

	// depState reports whether a unit is ready to run or permanently
	// starved by a failed or skipped dependency.
	depState := func(u Unit) (ready, starved bool) {
		ready = true
		for _, dep := range u.Deps {
			if failed[dep] {
				return false, true
			}
			if r, done := results[dep]; done && r.Status == UnitSkipped {
				return false, true
			}
			if !completed[dep] {
				ready = false
			}
		}
		return ready, false
	}

	// drain waits for in-flight units so their goroutines can exit. They
	// still report what their Run actually returned; only units that never
	// started carry the context error.
	drain := func() (map[string]Result, error) {
		for len(running) > 0 {
			record(<-outcomeCh)
		}
		for _, u := range units {
			if _, done := results[u.ID]; !done {
				results[u.ID] = Result{UnitID: u.ID, Status: UnitSkipped, Err: ctx.Err()}
			}
		}
		return results, ctx.Err()
	}

	for len(results) < len(units) {
		if ctx.Err() != nil {
			return drain()
		}
		launched := 0
		for _, u := range sortedPending(units, results, running) {
			if c.maxParallel > 0 && len(running) >= c.maxParallel {
				break
			}
			ready, starved := depState(u)
			if starved {
				results[u.ID] = Result{UnitID: u.ID, Status: UnitSkipped}
				c.logger.Log("[coordinator] unit %s skipped: dependency failed", u.ID)
				c.emitEvent(Event{Type: EventUnitSkipped, UnitID: u.ID})
				launched++
				continue
			}
			if !ready {
				continue
			}

			running[u.ID] = true
			launched++
			c.logger.Log("[coordinator] launching unit %s (%d running)", u.ID, len(running))
			c.emitEvent(Event{Type: EventUnitStarted, UnitID: u.ID})

			go func(u Unit) {
				start := time.Now()
				out, err := u.Run(ctx)
				outcomeCh <- unitOutcome{id: u.ID, output: out, err: err, duration: time.Since(start)}
			}(u)
		}

		if launched > 0 {
			// Skipping may unblock further skips; re-sweep before waiting.
			continue
		}

		if len(running) == 0 {
			// Nothing running and nothing launchable. Remaining units are
			// deadlocked, which validation should have prevented.
			for _, u := range units {
				if _, done := results[u.ID]; !done {
					return results, fmt.Errorf("unit %s can never become ready", u.ID)
				}
			}
			break
		}

		select {
		case <-ctx.Done():
			return drain()

		case oc := <-outcomeCh:
			record(oc)
		}
	}

	return results, nil
}

// sortedPending returns units with no result yet and not currently running,
// in input order. Input order keeps launch order deterministic for units
// that become ready in the same sweep.
func sortedPending(units []Unit, results map[string]Result, running map[string]bool) []Unit {
	pending := make([]Unit, 0, len(units))
	for _, u := range units {
		if _, done := results[u.ID]; done {
			continue
		}
		if running[u.ID] {
			continue
		}
		pending = append(pending, u)
	}
	return pending
}
