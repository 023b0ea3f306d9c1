package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/atividade/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test-open", Settings{FailureThreshold: 3, OpenTimeout: time.Minute})
	calls := 0
	failing := func() error {
		calls++
		return apperr.Unavailable("probe", errors.New("connection refused"))
	}

	for i := 0; i < 3; i++ {
		err := b.Do("probe", failing)
		require.True(t, apperr.Is(err, apperr.KindUpstreamUnavailable))
	}
	assert.Equal(t, "open", b.State())

	err := b.Do("probe", failing)
	assert.True(t, apperr.Is(err, apperr.KindUpstreamUnavailable))
	assert.Equal(t, 3, calls, "open circuit must not call the upstream")
}

func TestBreakerIgnoresRejections(t *testing.T) {
	b := New("test-rejected", Settings{FailureThreshold: 2, OpenTimeout: time.Minute})

	for i := 0; i < 5; i++ {
		err := b.Do("login", func() error { return apperr.Rejected("login", 401, "bad credentials") })
		require.True(t, apperr.Is(err, apperr.KindUpstreamRejected))
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := New("test-recover", Settings{FailureThreshold: 1, OpenTimeout: 20 * time.Millisecond})

	_ = b.Do("probe", func() error { return apperr.Unavailable("probe", errors.New("down")) })
	require.Equal(t, "open", b.State())

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, b.Do("probe", func() error { return nil }))
	assert.Equal(t, "closed", b.State())
}
