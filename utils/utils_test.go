package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 12)
	assert.Regexp(t, "^[0-9A-F]+$", code)

	other, err := GenerateCode(6)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestNewSessionID(t *testing.T) {
	id, err := NewSessionID()
	require.NoError(t, err)
	assert.Len(t, id, 64)

	other, err := NewSessionID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()

	t.Run("passes results through while closed", func(t *testing.T) {
		cb := NewCircuitBreaker("test")

		result, err := cb.Execute(ctx, func() (interface{}, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("propagates request errors", func(t *testing.T) {
		cb := NewCircuitBreaker("test")
		boom := errors.New("gateway down")

		_, err := cb.Execute(ctx, func() (interface{}, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("opens after sustained failures", func(t *testing.T) {
		cb := NewCircuitBreaker("test")
		boom := errors.New("gateway down")

		for i := 0; i < 100; i++ {
			cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		}
		assert.Equal(t, StateOpen, cb.State())

		_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
		assert.EqualError(t, err, "circuit breaker is open")
	})
}
