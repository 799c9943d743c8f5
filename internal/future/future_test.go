package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	f := New[string]()

	assert.False(t, f.Settled())

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.Await(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.NoError(t, f.Resolve("pool1-abc1234"))
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, "pool1-abc1234", r)
	}

	assert.ErrorIs(t, f.Resolve("again"), ErrAlreadySettled)
	assert.ErrorIs(t, f.Reject(errors.New("late")), ErrAlreadySettled)

	assert.True(t, f.Settled())
}

func TestReject(t *testing.T) {
	boom := errors.New("boom")
	f := New[int]()
	require.NoError(t, f.Reject(boom))

	assert.True(t, f.Settled())
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestAwaitHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
