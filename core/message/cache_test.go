package message_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/message"
)

type listerFunc func(ctx context.Context, courseID int) ([]message.Message, error)

func (f listerFunc) List(ctx context.Context, courseID int) ([]message.Message, error) {
	return f(ctx, courseID)
}

func listing(msgs ...message.Message) message.Lister {
	return listerFunc(func(ctx context.Context, courseID int) ([]message.Message, error) {
		return msgs, nil
	})
}

func ids(msgs []message.Message) []int {
	res := make([]int, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, m.ID)
	}
	return res
}

func TestListCache_Load(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		lc := message.NewListCache(1)
		err := lc.Load(context.Background(), listerFunc(func(ctx context.Context, courseID int) ([]message.Message, error) {
			return nil, errors.New("connection refused")
		}))
		assert.True(t, core.IsNetworkError(err))
		assert.False(t, lc.Loaded())

		require.NoError(t, lc.Load(context.Background(), listing(message.Message{ID: 1})))
		assert.Equal(t, []int{1}, ids(lc.Messages()))
	})

	t.Run("loads once", func(t *testing.T) {
		lc := message.NewListCache(1)
		require.NoError(t, lc.Load(context.Background(), listing(message.Message{ID: 2}, message.Message{ID: 1})))
		require.NoError(t, lc.Load(context.Background(), listing(message.Message{ID: 3})))
		assert.True(t, lc.Loaded())
		assert.Equal(t, []int{2, 1}, ids(lc.Messages()))
	})

	t.Run("keeps messages prepended before load", func(t *testing.T) {
		lc := message.NewListCache(1)
		lc.Prepend(message.Message{ID: 3})
		require.NoError(t, lc.Load(context.Background(), listing(message.Message{ID: 3}, message.Message{ID: 2})))
		assert.Equal(t, []int{3, 2}, ids(lc.Messages()))
	})
}

func TestListCache_Reload(t *testing.T) {
	lc := message.NewListCache(1)
	require.NoError(t, lc.Load(context.Background(), listing(message.Message{ID: 1})))

	t.Run("picks up messages created elsewhere", func(t *testing.T) {
		require.NoError(t, lc.Reload(context.Background(), listing(message.Message{ID: 2, ReadBy: []int{7}}, message.Message{ID: 1})))
		assert.Equal(t, []int{2, 1}, ids(lc.Messages()))
		assert.Equal(t, []int{7}, lc.Messages()[0].ReadBy)
	})

	t.Run("failure keeps the list", func(t *testing.T) {
		err := lc.Reload(context.Background(), listerFunc(func(ctx context.Context, courseID int) ([]message.Message, error) {
			return nil, errors.New("connection refused")
		}))
		assert.True(t, core.IsNetworkError(err))
		assert.True(t, lc.Loaded())
		assert.Equal(t, []int{2, 1}, ids(lc.Messages()))
	})

	t.Run("prepending a reloaded message", func(t *testing.T) {
		require.NoError(t, lc.Reload(context.Background(), listing(message.Message{ID: 3}, message.Message{ID: 2}, message.Message{ID: 1})))
		lc.Prepend(message.Message{ID: 3})
		assert.Equal(t, []int{3, 2, 1}, ids(lc.Messages()))
	})
}

func TestListCache_Prepend(t *testing.T) {
	lc := message.NewListCache(1)
	require.NoError(t, lc.Load(context.Background(), listing(message.Message{ID: 1})))

	var (
		mu    sync.Mutex
		calls []int // cache length seen by each notification
	)
	unsubscribe := lc.Subscribe(func() {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, lc.Len())
	})

	lc.Prepend(message.Message{ID: 2})
	lc.Prepend(message.Message{ID: 3})
	assert.Equal(t, []int{3, 2, 1}, ids(lc.Messages()))
	assert.Equal(t, []int{2, 3}, calls, "one notification per prepend, after the mutation")

	unsubscribe()
	unsubscribe()
	lc.Prepend(message.Message{ID: 4})
	assert.Len(t, calls, 2)
	assert.Equal(t, 4, lc.Len())
}

func TestListCache_Messages_isACopy(t *testing.T) {
	lc := message.NewListCache(1)
	lc.Prepend(message.Message{ID: 1, Subject: "a"})

	msgs := lc.Messages()
	msgs[0].Subject = "b"
	assert.Equal(t, "a", lc.Messages()[0].Subject)
}

func TestCaches_Get(t *testing.T) {
	caches := message.NewCaches()
	lc := caches.Get(1)
	assert.Same(t, lc, caches.Get(1))
	assert.NotSame(t, lc, caches.Get(2))
	assert.Equal(t, 2, caches.Get(2).CourseID())
}
