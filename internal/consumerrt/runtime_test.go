package consumerrt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/broker"
)

func TestInvokeWithRetries_SucceedsWithoutRetry(t *testing.T) {
	r := New(nil, nil, nil, nil, nil)

	calls := 0
	err := r.invokeWithRetries(context.Background(), broker.Envelope{EventID: "e1"}, func(context.Context, broker.Envelope) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestInvokeWithRetries_RetriesOnceThenGivesUp(t *testing.T) {
	r := New(nil, nil, nil, nil, nil)

	calls := 0
	boom := errors.New("boom")

	err := r.invokeWithRetries(context.Background(), broker.Envelope{EventID: "e1"}, func(context.Context, broker.Envelope) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, maxRetries+1, calls, "must attempt the initial call plus maxRetries retries")
}

func TestInvokeWithRetries_RecoversOnRetry(t *testing.T) {
	r := New(nil, nil, nil, nil, nil)

	calls := 0
	err := r.invokeWithRetries(context.Background(), broker.Envelope{EventID: "e1"}, func(context.Context, broker.Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
