package compose

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/message"
)

// State of a Controller.
type State int

const (
	Idle State = iota
	Validating
	Sending
	Settling
	Succeeded
	Failed
)

var stateNames = [...]string{"idle", "validating", "sending", "settling", "succeeded", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// FailureKind tells why a dispatch failed.
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureTimeout FailureKind = "timeout"
)

type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s failure: %v", f.Kind, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

var (
	// errors
	ErrBusy = errors.New("a message is already being sent")
)

// Dispatcher sends a message for durable delivery.
type Dispatcher interface {
	Create(ctx context.Context, nm message.NewMessage) (message.Message, error)
}

type ControllerOptions struct {
	Tick        time.Duration // progress estimator interval; 0 disables ticks
	ProgressMin int
	ProgressMax int
	Timeout     time.Duration // dispatch timeout; 0: none
}

// Controller drives the submission of a draft: Idle -> Validating -> Sending -> Settling -> Succeeded|Failed.
// A dispatch is never cancelled by its caller: once Sending, the outcome always settles,
// and the success side effects always apply to the list cache.
type Controller struct {
	dispatcher Dispatcher
	validate   *validator.Validate
	cache      *message.ListCache
	logger     core.Logger
	opts       ControllerOptions
	progress   *Estimator
	onSuccess  func(msg message.Message)

	mu      sync.Mutex
	state   State
	faults  []message.Fault
	failure *Failure
	sent    *message.Message
	done    chan struct{} // closed when the current episode settles
}

func NewController(
	dispatcher Dispatcher,
	validate *validator.Validate,
	cache *message.ListCache,
	logger core.Logger,
	opts ControllerOptions,
) *Controller {
	return &Controller{
		dispatcher: dispatcher,
		validate:   validate,
		cache:      cache,
		logger:     logger,
		opts:       opts,
		progress:   NewEstimator(opts.ProgressMin, opts.ProgressMax),
	}
}

// OnSuccess registers the hook run after a successful dispatch updated the list cache.
func (c *Controller) OnSuccess(fn func(msg message.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSuccess = fn
}

// Submit validates the draft and, when valid, dispatches it in the background.
// An invalid draft sends the controller back to Idle with its faults set; no call is made.
// The draft is only read during Submit.
func (c *Controller) Submit(d *message.Draft, prof message.Professor) (message.ValidationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Validating, Sending, Settling:
		return message.ValidationResult{}, ErrBusy
	}

	c.state = Validating
	vr := message.ValidateDraft(c.validate, d)
	if !vr.Valid() {
		c.state = Idle
		c.faults = vr.Faults
		c.failure = nil
		return vr, nil
	}

	c.state = Sending
	c.faults = nil
	c.failure = nil
	c.sent = nil
	c.done = make(chan struct{})
	c.progress.Begin()

	stop := make(chan struct{})
	go c.tick(stop)
	go c.dispatch(d.NewMessage(prof), stop, c.done)
	return vr, nil
}

func (c *Controller) tick(stop <-chan struct{}) {
	if c.opts.Tick <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.progress.Tick()
		}
	}
}

type dispatchResult struct {
	msg message.Message
	err error
}

func (c *Controller) dispatch(nm message.NewMessage, stop, done chan struct{}) {
	defer close(done)

	// detached from the caller: closing the session must not abandon the send
	ctx := context.Background()
	var timeout <-chan time.Time
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
		timer := time.NewTimer(c.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	results := make(chan dispatchResult, 1)
	go func() {
		msg, err := c.dispatcher.Create(ctx, nm)
		results <- dispatchResult{msg, err}
	}()

	var res dispatchResult
	select {
	case res = <-results:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			res.err = &Failure{Kind: FailureTimeout, Err: res.err}
		}
	case <-timeout:
		res.err = &Failure{Kind: FailureTimeout, Err: context.DeadlineExceeded}
		go c.lateResult(nm, results)
	}

	close(stop)
	c.setState(Settling)
	c.progress.Complete()

	if res.err != nil {
		c.fail(res.err)
		return
	}

	// the list holds the message before anyone can observe Succeeded
	c.cache.Prepend(res.msg)

	c.mu.Lock()
	c.state = Succeeded
	c.sent = &res.msg
	onSuccess := c.onSuccess
	c.mu.Unlock()

	if onSuccess != nil {
		onSuccess(res.msg)
	}
}

// lateResult keeps the list cache in line with a dispatch that completed after its timeout.
func (c *Controller) lateResult(nm message.NewMessage, results <-chan dispatchResult) {
	res := <-results
	if res.err != nil {
		return
	}
	c.logger.Warn(fmt.Sprintf("message %d to course %d was created after its dispatch timed out", res.msg.ID, nm.CourseID))
	c.cache.Prepend(res.msg)
}

func (c *Controller) fail(err error) {
	var failure *Failure
	if !errors.As(err, &failure) {
		failure = &Failure{Kind: FailureNetwork, Err: core.NewNetworkError("dispatching message", err)}
	}
	c.logger.Warn(fmt.Sprintf("sending message: %v", failure), failure)

	c.mu.Lock()
	c.state = Failed
	c.failure = failure
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Touch records an edit of the draft: a settled controller goes back to Idle.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Succeeded || c.state == Failed {
		c.state = Idle
		c.failure = nil
	}
}

// Wait blocks until the current dispatch settles, or `ctx` is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Progress() int { return c.progress.Value() }

func (c *Controller) Faults() []message.Fault {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message.Fault(nil), c.faults...)
}

// Failure returns the failure of the last dispatch, if it failed.
func (c *Controller) Failure() *Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Sent returns the message created by the last successful dispatch.
func (c *Controller) Sent() (message.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		return message.Message{}, false
	}
	return *c.sent, true
}
