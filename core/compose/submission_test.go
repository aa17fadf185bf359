package compose_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/message"
	"github.com/trezcool/masomo-admin/tests"
)

func newController(d compose.Dispatcher, opts compose.ControllerOptions) (*compose.Controller, *message.ListCache) {
	logger, _ := testutil.NewLogger()
	cache := message.NewListCache(testutil.CourseID)
	return compose.NewController(d, testutil.NewValidator(), cache, logger, opts), cache
}

func validDraft() *message.Draft {
	d := message.NewDraft(testutil.CourseID)
	d.Subject = "Exam"
	d.Body = "<p>Tomorrow at 8</p>"
	d.Recipients.Add(testutil.Alice)
	d.Recipients.Add(testutil.Bob)
	return d
}

func wait(t *testing.T, ctrl *compose.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Wait(ctx))
}

func TestController_Submit_invalid(t *testing.T) {
	d := &testutil.Dispatcher{}
	ctrl, _ := newController(d, compose.ControllerOptions{})

	draft := validDraft()
	draft.Body = "  "
	vr, err := ctrl.Submit(draft, testutil.Professor())
	require.NoError(t, err)
	assert.False(t, vr.Valid())
	assert.Equal(t, compose.Idle, ctrl.State())
	assert.Equal(t, []message.Fault{message.MissingBody}, ctrl.Faults())
	assert.Empty(t, d.Calls(), "nothing is dispatched")
	wait(t, ctrl)
}

func TestController_Submit_success(t *testing.T) {
	d := &testutil.Dispatcher{}
	ctrl, cache := newController(d, compose.ControllerOptions{Tick: time.Millisecond, ProgressMin: 20, ProgressMax: 100})

	var notified []message.Message
	cache.Subscribe(func() { notified = append(notified, cache.Messages()[0]) })
	var succeeded []int
	ctrl.OnSuccess(func(msg message.Message) { succeeded = append(succeeded, msg.ID) })

	vr, err := ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)
	require.True(t, vr.Valid())
	wait(t, ctrl)

	assert.Equal(t, compose.Succeeded, ctrl.State())
	assert.Equal(t, 100, ctrl.Progress())
	assert.Nil(t, ctrl.Failure())

	sent, ok := ctrl.Sent()
	require.True(t, ok)
	assert.Equal(t, []int{sent.ID}, succeeded)
	assert.Equal(t, []int{1, 2}, sent.RecipientIDs())
	require.Len(t, notified, 1)
	assert.Equal(t, sent.ID, notified[0].ID)
	assert.Equal(t, 1, cache.Len())

	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Exam", calls[0].Subject)
	assert.Equal(t, testutil.Professor(), calls[0].Professor)

	ctrl.Touch()
	assert.Equal(t, compose.Idle, ctrl.State())
}

func TestController_Submit_failure(t *testing.T) {
	d := &testutil.Dispatcher{Err: errors.New("connection reset")}
	ctrl, cache := newController(d, compose.ControllerOptions{})

	_, err := ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)
	wait(t, ctrl)

	assert.Equal(t, compose.Failed, ctrl.State())
	failure := ctrl.Failure()
	require.NotNil(t, failure)
	assert.Equal(t, compose.FailureNetwork, failure.Kind)
	assert.True(t, core.IsNetworkError(failure))
	assert.Equal(t, 0, cache.Len(), "a failed dispatch leaves the list untouched")
	_, ok := ctrl.Sent()
	assert.False(t, ok)

	// editing acknowledges the failure, and the draft can be sent again
	ctrl.Touch()
	assert.Equal(t, compose.Idle, ctrl.State())
	assert.Nil(t, ctrl.Failure())

	d.Err = nil
	_, err = ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)
	wait(t, ctrl)
	assert.Equal(t, compose.Succeeded, ctrl.State())
}

func TestController_Submit_listedBeforeSucceeded(t *testing.T) {
	d := &testutil.Dispatcher{}
	ctrl, cache := newController(d, compose.ControllerOptions{})

	var states []compose.State
	cache.Subscribe(func() { states = append(states, ctrl.State()) })

	_, err := ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)
	wait(t, ctrl)

	assert.Equal(t, []compose.State{compose.Settling}, states)
	assert.Equal(t, compose.Succeeded, ctrl.State())
}

func TestController_Submit_invalidAfterFailure(t *testing.T) {
	d := &testutil.Dispatcher{Err: errors.New("connection reset")}
	ctrl, _ := newController(d, compose.ControllerOptions{})

	_, err := ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)
	wait(t, ctrl)
	require.NotNil(t, ctrl.Failure())

	draft := validDraft()
	draft.Subject = ""
	vr, err := ctrl.Submit(draft, testutil.Professor())
	require.NoError(t, err)
	assert.False(t, vr.Valid())
	assert.Equal(t, compose.Idle, ctrl.State())
	assert.Nil(t, ctrl.Failure(), "an idle controller carries no failure")
	assert.Equal(t, []message.Fault{message.MissingSubject}, ctrl.Faults())
}

func TestController_Submit_busy(t *testing.T) {
	d := &testutil.Dispatcher{Release: make(chan struct{})}
	ctrl, cache := newController(d, compose.ControllerOptions{Tick: time.Millisecond, ProgressMin: 20, ProgressMax: 25})

	_, err := ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)
	assert.Equal(t, compose.Sending, ctrl.State())

	_, err = ctrl.Submit(validDraft(), testutil.Professor())
	assert.Equal(t, compose.ErrBusy, err)

	// progress climbs but stays below the maximum while sending
	assert.Eventually(t, func() bool { return ctrl.Progress() == 24 }, time.Second, time.Millisecond)
	assert.Equal(t, compose.Sending, ctrl.State())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, ctrl.Wait(ctx))

	close(d.Release)
	wait(t, ctrl)
	assert.Equal(t, 25, ctrl.Progress())
	assert.Equal(t, 1, cache.Len())
	assert.Len(t, d.Calls(), 1)
}

func TestController_Submit_timeout(t *testing.T) {
	d := &testutil.Dispatcher{Release: make(chan struct{})}
	ctrl, cache := newController(d, compose.ControllerOptions{Timeout: 20 * time.Millisecond})

	_, err := ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)
	wait(t, ctrl)

	assert.Equal(t, compose.Failed, ctrl.State())
	failure := ctrl.Failure()
	require.NotNil(t, failure)
	assert.Equal(t, compose.FailureTimeout, failure.Kind)
	assert.Equal(t, 0, cache.Len())

	// the message was created after all: the list still learns about it
	close(d.Release)
	assert.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, compose.Failed, ctrl.State())
}

func TestController_concurrentReads(t *testing.T) {
	d := &testutil.Dispatcher{Release: make(chan struct{})}
	ctrl, cache := newController(d, compose.ControllerOptions{Tick: time.Millisecond})

	_, err := ctrl.Submit(validDraft(), testutil.Professor())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = ctrl.State()
				_ = ctrl.Progress()
				_ = cache.Messages()
			}
		}()
	}
	close(d.Release)
	wg.Wait()
	wait(t, ctrl)
	assert.Equal(t, compose.Succeeded, ctrl.State())
}
