package adapter

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds how often a failed call is repeated.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// CallReport captures adapter call metadata.
type CallReport struct {
	Adapter  string        `json:"adapter"`
	Model    string        `json:"model"`
	Usage    Usage         `json:"usage"`
	Retries  int           `json:"retries"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Call invokes a.Generate, retrying transient failures up to
// policy.MaxRetries times with exponential backoff. Non-transient errors and
// context cancellation end the loop immediately.
func Call(ctx context.Context, a Adapter, model, prompt string, policy RetryPolicy) (*Response, CallReport, error) {
	report := CallReport{Adapter: a.Name(), Model: model}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		report.Retries = attempt

		resp, err := a.Generate(ctx, model, prompt)
		if err == nil {
			if resp.Usage != nil {
				report.Usage = *resp.Usage
			}
			report.Duration = time.Since(start)
			return resp, report, nil
		}

		lastErr = err
		if !IsTransient(err) || attempt == policy.MaxRetries {
			break
		}
		if err := sleepWithContext(ctx, computeBackoff(policy.BaseBackoff, policy.MaxBackoff, attempt)); err != nil {
			lastErr = err
			break
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("adapter call failed")
	}
	report.Duration = time.Since(start)
	report.Error = lastErr.Error()
	return nil, report, lastErr
}

func computeBackoff(base, ceiling time.Duration, attempt int) time.Duration {
	if ceiling <= 0 {
		ceiling = base
	}
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= ceiling {
			return ceiling
		}
	}
	if backoff > ceiling {
		return ceiling
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
