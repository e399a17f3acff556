package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCoordinatorDiamond(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(id string) func(ctx context.Context) (map[string]any, error) {
		return func(ctx context.Context) (map[string]any, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return map[string]any{id: "done"}, nil
		}
	}

	c := NewCoordinator(4)
	results, err := c.Run(context.Background(), []Unit{
		{ID: "a", Run: record("a")},
		{ID: "b", Deps: []string{"a"}, Run: record("b")},
		{ID: "c", Deps: []string{"a"}, Run: record("c")},
		{ID: "d", Deps: []string{"b", "c"}, Run: record("d")},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for id, res := range results {
		if res.Status != UnitCompleted {
			t.Errorf("unit %s: expected completed, got %s (%v)", id, res.Status, res.Err)
		}
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] != 0 {
		t.Errorf("a must run first: %v", order)
	}
	if pos["d"] != 3 {
		t.Errorf("d must run last: %v", order)
	}
}

func TestCoordinatorMaxParallel(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0

	unit := func(id string) Unit {
		return Unit{ID: id, Run: func(ctx context.Context) (map[string]any, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil, nil
		}}
	}

	c := NewCoordinator(2)
	_, err := c.Run(context.Background(), []Unit{unit("u1"), unit("u2"), unit("u3"), unit("u4"), unit("u5")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent units, saw %d", peak)
	}
}

func TestCoordinatorFailureSkipsDependents(t *testing.T) {
	boom := errors.New("boom")
	ran := make(map[string]bool)
	var mu sync.Mutex
	mark := func(id string, err error) func(ctx context.Context) (map[string]any, error) {
		return func(ctx context.Context) (map[string]any, error) {
			mu.Lock()
			ran[id] = true
			mu.Unlock()
			return nil, err
		}
	}

	c := NewCoordinator(4)
	results, err := c.Run(context.Background(), []Unit{
		{ID: "bad", Run: mark("bad", boom)},
		{ID: "child", Deps: []string{"bad"}, Run: mark("child", nil)},
		{ID: "grandchild", Deps: []string{"child"}, Run: mark("grandchild", nil)},
		{ID: "independent", Run: mark("independent", nil)},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if results["bad"].Status != UnitFailed || !errors.Is(results["bad"].Err, boom) {
		t.Errorf("bad: %+v", results["bad"])
	}
	if results["child"].Status != UnitSkipped {
		t.Errorf("child should be skipped, got %s", results["child"].Status)
	}
	if results["grandchild"].Status != UnitSkipped {
		t.Errorf("grandchild should be skipped transitively, got %s", results["grandchild"].Status)
	}
	if results["independent"].Status != UnitCompleted {
		t.Errorf("independent unit must not be affected, got %s", results["independent"].Status)
	}
	if ran["child"] || ran["grandchild"] {
		t.Error("skipped units must never run")
	}
}

func TestCoordinatorUnknownDependency(t *testing.T) {
	c := NewCoordinator(1)
	_, err := c.Run(context.Background(), []Unit{
		{ID: "u1", Deps: []string{"ghost"}, Run: func(ctx context.Context) (map[string]any, error) { return nil, nil }},
	})
	if err == nil {
		t.Error("expected error for unknown dependency")
	}
}

func TestCoordinatorDuplicateID(t *testing.T) {
	noop := func(ctx context.Context) (map[string]any, error) { return nil, nil }
	c := NewCoordinator(1)
	_, err := c.Run(context.Background(), []Unit{{ID: "u1", Run: noop}, {ID: "u1", Run: noop}})
	if err == nil {
		t.Error("expected error for duplicate unit id")
	}
}

func TestCoordinatorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	c := NewCoordinator(1)
	_, err := c.Run(ctx, []Unit{
		{ID: "slow", Run: func(ctx context.Context) (map[string]any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		{ID: "next", Deps: []string{"slow"}, Run: func(ctx context.Context) (map[string]any, error) {
			t.Error("next should never run after cancellation")
			return nil, nil
		}},
	})

	// Run returns after the in-flight unit observes cancellation.
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCoordinatorCancellationKeepsFinishedResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fastDone := make(chan struct{})
	slowStarted := make(chan struct{})
	go func() {
		<-fastDone
		<-slowStarted
		cancel()
	}()

	c := NewCoordinator(2)
	results, err := c.Run(ctx, []Unit{
		{ID: "fast", Run: func(ctx context.Context) (map[string]any, error) {
			defer close(fastDone)
			return map[string]any{"result": "fast"}, nil
		}},
		{ID: "slow", Run: func(ctx context.Context) (map[string]any, error) {
			close(slowStarted)
			<-ctx.Done()
			return map[string]any{"result": "slow"}, nil
		}},
		{ID: "after", Deps: []string{"slow"}, Run: func(ctx context.Context) (map[string]any, error) {
			t.Error("after should never run once the context is canceled")
			return nil, nil
		}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Units whose Run returned successfully keep their real outcome even
	// when the run was canceled around them.
	for _, id := range []string{"fast", "slow"} {
		res := results[id]
		if res.Status != UnitCompleted || res.Err != nil {
			t.Errorf("%s: expected completed result, got %s (%v)", id, res.Status, res.Err)
		}
		if res.Output["result"] != id {
			t.Errorf("%s: output lost: %v", id, res.Output)
		}
	}
	if res := results["after"]; res.Status != UnitSkipped || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("after: expected skipped with context error, got %s (%v)", res.Status, res.Err)
	}
}

func TestCoordinatorEvents(t *testing.T) {
	var mu sync.Mutex
	var types []EventType

	c := NewCoordinator(1)
	c.SetEventSink(func(ev Event) {
		mu.Lock()
		types = append(types, ev.Type)
		mu.Unlock()
	})

	_, err := c.Run(context.Background(), []Unit{
		{ID: "u1", Run: func(ctx context.Context) (map[string]any, error) { return nil, nil }},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []EventType{EventUnitQueued, EventUnitStarted, EventUnitCompleted}
	if len(types) != len(want) {
		t.Fatalf("unexpected event sequence: %v", types)
	}
	for i, ty := range want {
		if types[i] != ty {
			t.Errorf("event %d: expected %s, got %s", i, ty, types[i])
		}
	}
}
