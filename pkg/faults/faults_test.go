package faults_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/pkg/faults"
)

func TestFaultErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	f := faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkConnectionFailed, "spotify token request failed", cause)

	assert.Contains(t, f.Error(), faults.CodeNetworkConnectionFailed)
	assert.Contains(t, f.Error(), "connection refused")
	assert.ErrorIs(t, f, cause)
}

func TestCodeOfThroughWrapping(t *testing.T) {
	f := faults.New(faults.CategoryQueue, faults.CodeQueueDuplicate, "already queued")
	wrapped := fmt.Errorf("enqueue: %w", f)

	assert.Equal(t, faults.CodeQueueDuplicate, faults.CodeOf(wrapped))
	assert.Equal(t, faults.CategoryQueue, faults.CategoryOf(wrapped))
	assert.True(t, faults.Is(wrapped, faults.CodeQueueDuplicate))
	assert.Empty(t, faults.CodeOf(errors.New("plain")))
}

func TestConvert(t *testing.T) {
	plain := errors.New("disk full")
	f := faults.Convert(plain, faults.CategorySystem, faults.CodeSystemFilesystem)
	require.NotNil(t, f)
	assert.Equal(t, faults.CodeSystemFilesystem, f.Code)

	already := faults.New(faults.CategoryMedia, faults.CodeMediaUnavailable, "gone")
	assert.Same(t, already, faults.Convert(already, faults.CategorySystem, faults.CodeSystemFilesystem))
	assert.Nil(t, faults.Convert(nil, faults.CategorySystem, faults.CodeSystemFilesystem))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		retryable bool
		silent    bool
		critical  bool
	}{
		{"request timeout retries", faults.CodeNetworkTimeout, true, false, false},
		{"subprocess create retries", faults.CodeSystemSubprocessCreate, true, false, false},
		{"duplicate is silent", faults.CodeQueueDuplicate, false, true, false},
		{"invalid query is silent", faults.CodeValidationInvalidQuery, false, true, false},
		{"binary missing is critical", faults.CodeMediaBinaryMissing, false, false, true},
		{"duration limit is none of those", faults.CodeMediaDurationLimit, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := faults.New(faults.CategorySystem, tt.code, "x")
			assert.Equal(t, tt.retryable, faults.IsRetryable(err))
			assert.Equal(t, tt.silent, faults.IsSilent(err))
			assert.Equal(t, tt.critical, faults.IsCritical(err))
		})
	}
}

func TestBackoffProgression(t *testing.T) {
	p := faults.DefaultRetryPolicy

	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, time.Duration(0), p.Backoff(0))

	// Large attempts saturate at the cap.
	assert.Equal(t, p.MaxDelay, p.Backoff(30))
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := faults.Retry(context.Background(), faults.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}, func() error {
		calls++
		return faults.New(faults.CategoryMedia, faults.CodeMediaUnavailable, "gone")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesRetryable(t *testing.T) {
	calls := 0
	err := faults.Retry(context.Background(), faults.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}, func() error {
		calls++
		if calls < 3 {
			return faults.New(faults.CategoryNetwork, faults.CodeNetworkTimeout, "slow upstream")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUserMessageDurationLimit(t *testing.T) {
	f := faults.New(faults.CategoryMedia, faults.CodeMediaDurationLimit, "too long").
		WithDetail("duration", 210*time.Second).
		WithDetail("limit", time.Minute)

	msg := faults.UserMessage(f)
	assert.Contains(t, msg, "3m 30s")
	assert.Contains(t, msg, "1m")
}

func TestUserMessageFallbacks(t *testing.T) {
	known := faults.New(faults.CategorySession, faults.CodeSessionNotInVoice, "not in voice")
	assert.Contains(t, faults.UserMessage(known), "voice channel")

	unknownCode := faults.New(faults.CategoryQueue, "QUEUE_SOMETHING_NEW", "x")
	assert.True(t, strings.HasPrefix(faults.UserMessage(unknownCode), "❌"))

	plain := errors.New("boom")
	assert.Equal(t, "❌ Something went wrong.", faults.UserMessage(plain))
}
