package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbright/conductor/pkg/models"
)

func TestClassifyKeywords(t *testing.T) {
	cases := []struct {
		msg  string
		want models.ErrorKind
	}{
		{"validation failed on field x", models.ErrKindValidation},
		{"schema mismatch", models.ErrKindValidation},
		{"operation timeout after 30s", models.ErrKindTimeout},
		{"3 tests failed", models.ErrKindTestFailure},
		{"not enough context to proceed", models.ErrKindInsufficientContext},
		{"missing required input", models.ErrKindInsufficientContext},
		{"exit status 1", models.ErrKindExecution},
	}

	for _, tc := range cases {
		got := Classify(errors.New(tc.msg))
		if got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.msg, got, tc.want)
		}
	}
}

func TestClassifyDeclaredKindWins(t *testing.T) {
	// Message says timeout, declared kind says test failure.
	err := WithKind(errors.New("timeout reached"), models.ErrKindTestFailure)
	if got := Classify(err); got != models.ErrKindTestFailure {
		t.Errorf("expected declared kind to win, got %q", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Errorf("expected empty kind for nil error, got %q", got)
	}
}

func TestDelayExponentialIncreasing(t *testing.T) {
	p := &Policy{Strategy: StrategyExponential, BaseDelay: 100 * time.Millisecond}

	prev := time.Duration(0)
	for i := 0; i < 5; i++ {
		d := p.Delay(i)
		if d <= prev {
			t.Errorf("delay not strictly increasing at retry %d: %v <= %v", i, d, prev)
		}
		prev = d
	}

	if p.Delay(0) != 100*time.Millisecond {
		t.Errorf("expected base delay at retry 0, got %v", p.Delay(0))
	}
	if p.Delay(3) != 800*time.Millisecond {
		t.Errorf("expected 800ms at retry 3, got %v", p.Delay(3))
	}
}

func TestDelayLinear(t *testing.T) {
	p := &Policy{Strategy: StrategyLinear, BaseDelay: 100 * time.Millisecond}
	if p.Delay(0) != 100*time.Millisecond || p.Delay(2) != 300*time.Millisecond {
		t.Errorf("unexpected linear delays: %v %v", p.Delay(0), p.Delay(2))
	}
}

func TestDelayFixed(t *testing.T) {
	p := &Policy{Strategy: StrategyFixed, BaseDelay: 250 * time.Millisecond}
	for i := 0; i < 4; i++ {
		if p.Delay(i) != 250*time.Millisecond {
			t.Errorf("expected fixed delay at retry %d, got %v", i, p.Delay(i))
		}
	}
}

func TestDelayCapped(t *testing.T) {
	p := &Policy{Strategy: StrategyExponential, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	if p.Delay(10) != 4*time.Second {
		t.Errorf("expected delay capped at 4s, got %v", p.Delay(10))
	}
}

// memorySink collects appended records in memory.
type memorySink struct {
	recs []models.ExecutionRecord
}

func (m *memorySink) Append(rec *models.ExecutionRecord) error {
	m.recs = append(m.recs, *rec)
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestDoNoPolicyPropagates(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(sink)
	r.SetSleep(noSleep)

	boom := errors.New("exit status 1")
	calls := 0
	_, err := r.Do(context.Background(), Request{
		SkillID: "build",
		Attempt: func(ctx context.Context) (map[string]any, error) {
			calls++
			return nil, boom
		},
	})

	if !errors.Is(err, boom) {
		t.Errorf("expected raw error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt without policy, got %d", calls)
	}
	if len(sink.recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.recs))
	}
	if sink.recs[0].Status != models.RecordFailure {
		t.Errorf("expected failure record, got %q", sink.recs[0].Status)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(sink)
	r.SetSleep(noSleep)

	calls := 0
	out, err := r.Do(context.Background(), Request{
		SkillID: "fetch",
		Policy:  &Policy{Strategy: StrategyFixed, BaseDelay: time.Millisecond, MaxRetries: 5},
		Attempt: func(ctx context.Context) (map[string]any, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("timeout talking to backend")
			}
			return map[string]any{"ok": true}, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["ok"] != true {
		t.Errorf("unexpected output: %v", out)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(sink.recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(sink.recs))
	}
	if sink.recs[2].RetryCount != 2 {
		t.Errorf("expected retry count 2 on final record, got %d", sink.recs[2].RetryCount)
	}
	if sink.recs[2].Status != models.RecordSuccess {
		t.Errorf("expected final record success, got %q", sink.recs[2].Status)
	}
}

func TestDoExhaustion(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(sink)
	r.SetSleep(noSleep)

	calls := 0
	_, err := r.Do(context.Background(), Request{
		SkillID:      "flaky",
		Policy:       &Policy{Strategy: StrategyFixed, BaseDelay: time.Millisecond, MaxRetries: 2},
		SuggestedFix: "check credentials",
		Attempt: func(ctx context.Context) (map[string]any, error) {
			calls++
			return nil, errors.New("validation error: bad payload")
		},
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.ErrKind != models.ErrKindValidation {
		t.Errorf("expected validation_error kind, got %q", exhausted.ErrKind)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if exhausted.SuggestedFix != "check credentials" {
		t.Errorf("suggested fix lost: %q", exhausted.SuggestedFix)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoCeiling(t *testing.T) {
	r := NewRunner(nil)
	r.SetSleep(noSleep)

	calls := 0
	_, err := r.Do(context.Background(), Request{
		SkillID: "stubborn",
		Policy:  &Policy{Strategy: StrategyFixed, BaseDelay: time.Millisecond, MaxRetries: 100},
		Attempt: func(ctx context.Context) (map[string]any, error) {
			calls++
			return nil, errors.New("nope")
		},
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if calls != MaxAttempts {
		t.Errorf("expected attempts capped at %d, got %d", MaxAttempts, calls)
	}
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	r := NewRunner(nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := r.Do(ctx, Request{
			SkillID: "slow",
			Policy:  &Policy{Strategy: StrategyFixed, BaseDelay: time.Hour, MaxRetries: 3},
			Attempt: func(ctx context.Context) (map[string]any, error) {
				calls++
				return nil, errors.New("fail")
			},
		})
		done <- err
	}()

	// Let the first attempt happen, then cancel during backoff.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls)
	}
}
