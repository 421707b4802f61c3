package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyAdapter struct {
	errs  []error
	calls int
}

func (f *flakyAdapter) Name() string     { return "flaky" }
func (f *flakyAdapter) Models() []string { return []string{"flaky-1"} }

func (f *flakyAdapter) Generate(_ context.Context, model, _ string) (*Response, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &Response{Content: "ok", Model: model, Usage: &Usage{TotalTokens: 7}}, nil
}

func TestCallRetriesTransientOnce(t *testing.T) {
	a := &flakyAdapter{errs: []error{&AdapterError{Status: 503, Err: errors.New("unavailable")}}}
	resp, report, err := Call(context.Background(), a, "flaky-1", "hi", RetryPolicy{MaxRetries: 1, BaseBackoff: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 1, report.Retries)
	assert.Equal(t, 7, report.Usage.TotalTokens)
}

func TestCallStopsAfterMaxRetries(t *testing.T) {
	transient := &AdapterError{Status: 429, Err: errors.New("slow down")}
	a := &flakyAdapter{errs: []error{transient, transient, transient}}
	_, report, err := Call(context.Background(), a, "flaky-1", "hi", RetryPolicy{MaxRetries: 1})
	require.Error(t, err)
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, "slow down", report.Error)
}

func TestCallDoesNotRetryPermanentErrors(t *testing.T) {
	a := &flakyAdapter{errs: []error{&AdapterError{Status: 400, Err: errors.New("bad request")}}}
	_, _, err := Call(context.Background(), a, "flaky-1", "hi", RetryPolicy{MaxRetries: 1})
	require.Error(t, err)
	assert.Equal(t, 1, a.calls)
}

func TestCallHonorsCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &flakyAdapter{errs: []error{&AdapterError{Temporary: true, Err: errors.New("blip")}}}
	_, _, err := Call(ctx, a, "flaky-1", "hi", RetryPolicy{MaxRetries: 1, BaseBackoff: time.Second})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, a.calls)
}

func TestComputeBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, computeBackoff(100*time.Millisecond, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, computeBackoff(100*time.Millisecond, time.Second, 10))
	assert.Equal(t, 50*time.Millisecond, computeBackoff(50*time.Millisecond, 0, 3))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(&AdapterError{Status: 502}))
	assert.False(t, IsTransient(&AdapterError{Status: 401}))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&AdapterError{Status: 529}))
	assert.True(t, IsTransient(&AdapterError{Status: 408}))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", &AdapterError{Status: 500})))
}

func TestAdapterErrorFormatting(t *testing.T) {
	err := &AdapterError{Provider: "anthropic", Status: 401, Err: errors.New("invalid x-api-key")}
	assert.Equal(t, "anthropic (status 401): invalid x-api-key", err.Error())
	assert.True(t, IsAuth(err))
	assert.False(t, IsAuth(&AdapterError{Status: 500}))
	assert.Equal(t, "adapter: status 503", (&AdapterError{Status: 503}).Error())
}

func TestMockAdapter(t *testing.T) {
	m := NewMockAdapterWithResponses(map[string]string{"ping": "pong"}, "")
	resp, err := m.Generate(context.Background(), "", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "mock-1", resp.Model)

	resp, err = m.Generate(context.Background(), "", "other")
	require.NoError(t, err)
	assert.Contains(t, resp.Content, `"agent":"orchestrator"`)

	m.FailWith(errors.New("down"))
	_, err = m.Generate(context.Background(), "", "ping")
	require.Error(t, err)
	assert.Equal(t, 3, m.Calls())
}
