package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/mbright/conductor/pkg/models"
)

// RecordSink receives one execution record per attempt.
type RecordSink interface {
	Append(rec *models.ExecutionRecord) error
}

// ExhaustedError is the terminal, non-retryable failure returned after the
// attempt budget is spent.
type ExhaustedError struct {
	// SkillID is the unit of work that failed.
	SkillID string
	// ErrKind is the classification of the final failure.
	ErrKind models.ErrorKind
	// Message is the final failure message.
	Message string
	// Attempts is how many attempts were made.
	Attempts int
	// SuggestedFix is drawn from unit-of-work metadata, if configured.
	SuggestedFix string
}

// Error formats the terminal failure with its classification.
func (e *ExhaustedError) Error() string {
	s := fmt.Sprintf("%s failed after %d attempts (%s): %s", e.SkillID, e.Attempts, e.ErrKind, e.Message)
	if e.SuggestedFix != "" {
		s += " (suggested fix: " + e.SuggestedFix + ")"
	}
	return s
}

// Kind returns the classification of the final failure.
func (e *ExhaustedError) Kind() models.ErrorKind { return e.ErrKind }

// Request describes one retry-wrapped invocation.
type Request struct {
	// SkillID is the unit of work being invoked.
	SkillID string
	// Input is recorded with each attempt.
	Input map[string]any
	// StageID and RoleID are recorded as execution context.
	StageID string
	RoleID  string
	// Policy enables retry. When nil the first failure propagates
	// unwrapped and unretried.
	Policy *Policy
	// SuggestedFix is attached to the terminal error, if any.
	SuggestedFix string
	// Attempt performs one invocation of the unit of work.
	Attempt func(ctx context.Context) (map[string]any, error)
}

// Runner wraps unit-of-work attempts with classification, backoff, and
// record appending.
type Runner struct {
	records RecordSink
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner appending attempt records to the given sink.
// A nil sink disables recording.
func NewRunner(records RecordSink) *Runner {
	return &Runner{
		records: records,
		sleep:   sleepCtx,
	}
}

// SetSleep replaces the backoff sleep function. Used by tests to avoid
// real delays.
func (r *Runner) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		r.sleep = fn
	}
}

// Do runs the request. Without a policy it performs exactly one attempt and
// propagates any error. With a policy it retries failed attempts with
// backoff up to the configured budget (never more than MaxAttempts), then
// returns an *ExhaustedError.
func (r *Runner) Do(ctx context.Context, req Request) (map[string]any, error) {
	if req.Policy == nil {
		out, err := r.attempt(ctx, req, 0)
		return out, err
	}

	attempts := maxAttemptsFor(req.Policy)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := r.sleep(ctx, req.Policy.Delay(i-1)); err != nil {
				return nil, err
			}
		}

		out, err := r.attempt(ctx, req, i)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ExhaustedError{
		SkillID:      req.SkillID,
		ErrKind:      Classify(lastErr),
		Message:      lastErr.Error(),
		Attempts:     attempts,
		SuggestedFix: req.SuggestedFix,
	}
}

// attempt performs one invocation and appends its record.
func (r *Runner) attempt(ctx context.Context, req Request, retryCount int) (map[string]any, error) {
	start := time.Now()
	out, err := req.Attempt(ctx)
	elapsed := time.Since(start)

	rec := &models.ExecutionRecord{
		SkillID:    req.SkillID,
		Input:      req.Input,
		Output:     out,
		Status:     models.RecordSuccess,
		Duration:   elapsed,
		RetryCount: retryCount,
		StageID:    req.StageID,
		RoleID:     req.RoleID,
		Timestamp:  time.Now(),
	}
	if err != nil {
		rec.Status = models.RecordFailure
		rec.ErrorKind = Classify(err)
		rec.ErrorMessage = err.Error()
		rec.Output = nil
	}

	if r.records != nil {
		// Recording failures must not mask the attempt outcome.
		_ = r.records.Append(rec)
	}

	return out, err
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
