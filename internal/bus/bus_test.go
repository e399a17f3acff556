package bus

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPublishPeekSubscribe(t *testing.T) {
	b := New()

	id, err := b.Publish("a", "b", "notification", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id == "" {
		t.Fatal("expected message id")
	}

	// Peek returns the message and leaves the mailbox non-empty.
	peeked := b.Peek("b")
	if len(peeked) != 1 {
		t.Fatalf("expected 1 peeked message, got %d", len(peeked))
	}
	if peeked[0].ID != id || peeked[0].From != "a" || peeked[0].Type != "notification" {
		t.Errorf("unexpected message: %+v", peeked[0])
	}

	// Subscribe drains.
	got := b.Subscribe("b")
	if len(got) != 1 {
		t.Fatalf("expected 1 subscribed message, got %d", len(got))
	}
	if got[0].ID != id {
		t.Errorf("subscribe returned different message: %s", got[0].ID)
	}
	if len(b.Peek("b")) != 0 {
		t.Error("expected empty mailbox after subscribe")
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := New()
	for _, id := range []string{"a", "b", "c"} {
		b.Register(id)
	}

	if _, err := b.Publish("a", "*", "status", nil); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if len(b.Peek("a")) != 0 {
		t.Error("broadcast must never reach the sender")
	}
	for _, id := range []string{"b", "c"} {
		if len(b.Peek(id)) != 1 {
			t.Errorf("expected 1 message for %s, got %d", id, len(b.Peek(id)))
		}
	}
}

func TestPublishValidation(t *testing.T) {
	b := New()
	if _, err := b.Publish("", "b", "t", nil); err == nil {
		t.Error("expected error for empty sender")
	}
	if _, err := b.Publish("a", "", "t", nil); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestShareContextLastWriteWins(t *testing.T) {
	b := New()

	b.ShareContext("a", map[string]any{"phase": "one"})
	b.ShareContext("a", map[string]any{"phase": "two"})

	ctx := b.GetContext("a")
	if ctx["phase"] != "two" {
		t.Errorf("expected last write to win, got %v", ctx["phase"])
	}

	// Returned context is a copy.
	ctx["phase"] = "mutated"
	if b.GetContext("a")["phase"] != "two" {
		t.Error("GetContext must return a copy")
	}

	if b.GetContext("unknown") != nil {
		t.Error("expected nil context for unknown agent")
	}
}

func TestConcurrentPublishers(t *testing.T) {
	b := New()
	b.Register("sink")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Publish("worker", "sink", "tick", nil); err != nil {
				t.Errorf("publish: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(b.Subscribe("sink")); got != n {
		t.Errorf("expected %d messages, got %d", n, got)
	}
}

func TestPersistenceWritesMessageFiles(t *testing.T) {
	dir := t.TempDir()

	b := New()
	if err := b.EnablePersistence(dir); err != nil {
		t.Fatalf("enable persistence: %v", err)
	}
	defer b.Close()

	id, err := b.Publish("a", "b", "request", map[string]any{"q": "state"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, id+".json")); err != nil {
		t.Errorf("expected persisted message file: %v", err)
	}
}

func TestPersistenceReplayOnRegister(t *testing.T) {
	dir := t.TempDir()

	// First process publishes.
	b1 := New()
	if err := b1.EnablePersistence(dir); err != nil {
		t.Fatalf("enable persistence: %v", err)
	}
	id, err := b1.Publish("a", "b", "handoff", map[string]any{"step": "review"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	b1.Close()

	// Second process restores the mailbox on Register.
	b2 := New()
	if err := b2.EnablePersistence(dir); err != nil {
		t.Fatalf("enable persistence: %v", err)
	}
	defer b2.Close()

	b2.Register("b")
	msgs := b2.Peek("b")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 replayed message, got %d", len(msgs))
	}
	if msgs[0].ID != id || msgs[0].Type != "handoff" {
		t.Errorf("unexpected replayed message: %+v", msgs[0])
	}
	if msgs[0].Content["step"] != "review" {
		t.Errorf("content did not round-trip: %v", msgs[0].Content)
	}

	// Re-registering must not duplicate delivery.
	b2.Register("b")
	if len(b2.Peek("b")) != 1 {
		t.Error("replay delivered the same message twice")
	}
}

func TestPersistenceWriteFailureBlocksDelivery(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "msgs")

	b := New()
	if err := b.EnablePersistence(dir); err != nil {
		t.Fatalf("enable persistence: %v", err)
	}
	defer b.Close()
	b.Register("b")

	// Removing the directory makes the next write fail.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove message dir: %v", err)
	}

	if _, err := b.Publish("a", "b", "request", map[string]any{"q": "state"}); err == nil {
		t.Fatal("expected publish to fail when the message cannot be persisted")
	}
	if msgs := b.Peek("b"); len(msgs) != 0 {
		t.Errorf("message delivered despite persistence failure: %+v", msgs)
	}
}
