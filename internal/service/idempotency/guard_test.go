package idempotency

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/memory"
)

func TestGuard_ReplaysStoredResponse(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())

	calls := 0
	handler := func(context.Context) Response {
		calls++
		return Response{Status: http.StatusCreated, Body: []byte(`{"id":"res-1"}`)}
	}

	first, err := guard.Execute(ctx, "user-1", "key-1", []byte(`{"room_id":"r1"}`), handler)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := guard.Execute(ctx, "user-1", "key-1", []byte(`{"room_id":"r1"}`), handler)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, http.StatusCreated, second.Status)
	assert.JSONEq(t, `{"id":"res-1"}`, string(second.Body))
	assert.Equal(t, 1, calls)
}

func TestGuard_DifferentBodyRejected(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())
	ok := func(context.Context) Response { return Response{Status: http.StatusCreated} }

	_, err := guard.Execute(ctx, "user-1", "key-1", []byte(`a`), ok)
	require.NoError(t, err)

	_, err = guard.Execute(ctx, "user-1", "key-1", []byte(`b`), ok)
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestGuard_KeysAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())

	calls := 0
	handler := func(context.Context) Response {
		calls++
		return Response{Status: http.StatusCreated}
	}

	_, err := guard.Execute(ctx, "user-1", "same", []byte(`x`), handler)
	require.NoError(t, err)
	resp, err := guard.Execute(ctx, "user-2", "same", []byte(`x`), handler)
	require.NoError(t, err)
	assert.False(t, resp.Replayed)
	assert.Equal(t, 2, calls)
}

func TestGuard_InProgress(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository())

	_, err := guard.Execute(ctx, "u", "k", []byte(`x`), func(ctx context.Context) Response {
		_, innerErr := guard.Execute(ctx, "u", "k", []byte(`x`), func(context.Context) Response {
			t.Fatal("nested handler must not run")
			return Response{}
		})
		assert.ErrorIs(t, innerErr, domain.ErrIdempotencyInProgress)
		return Response{Status: http.StatusConflict}
	})
	require.NoError(t, err)
}

func TestGuard_EmptyKey(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyRepository())
	_, err := guard.Execute(context.Background(), "u", "  ", nil, func(context.Context) Response { return Response{} })
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyInvalid)
}
