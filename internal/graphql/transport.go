package graphql

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// ErrClosed is delivered to requests sent after Close.
var ErrClosed = errors.New("graphql: transport is closed")

// State is the transport's suspension state.
type State int

const (
	// StateRunning dispatches requests immediately.
	StateRunning State = iota
	// StateWaitingForAuth queues requests until the in-flight refresh ends.
	StateWaitingForAuth
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWaitingForAuth:
		return "waiting_for_auth"
	default:
		return "unknown"
	}
}

// Transition describes one mutation of the transport state, including
// self-transitions that only grow the queue.
type Transition struct {
	From      State
	To        State
	Reason    string
	RequestID string
	Operation string
	// QueueLen is the queue length after the mutation.
	QueueLen int
	// Drained is the number of requests captured for replay or failure when
	// leaving StateWaitingForAuth.
	Drained int
	At      time.Time
}

// Transition reasons.
const (
	ReasonAuthExpired       = "auth_expired"
	ReasonQueued            = "queued"
	ReasonQueuedAuthExpired = "queued_auth_expired"
	ReasonRequeued          = "requeued"
	ReasonCancelled         = "cancelled"
	ReasonRefreshed         = "refreshed"
	ReasonRefreshFailed     = "refresh_failed"
)

// TransitionHook observes every state mutation. Hooks run in mutation order
// on a dedicated goroutine, outside the transport lock; Close waits for the
// transitions recorded before it returns.
type TransitionHook func(Transition)

// Metrics receives transport measurements.
type Metrics interface {
	ObserveExchange(operation string, kind OutcomeKind, elapsed time.Duration)
	RefreshStarted()
	RefreshFinished(ok bool, elapsed time.Duration)
	SetQueueDepth(n int)
}

// CredentialSaver persists a refreshed credential.
type CredentialSaver interface {
	Save(ctx context.Context, credential string) error
}

type nopMetrics struct{}

func (nopMetrics) ObserveExchange(string, OutcomeKind, time.Duration) {}
func (nopMetrics) RefreshStarted()                                    {}
func (nopMetrics) RefreshFinished(bool, time.Duration)                {}
func (nopMetrics) SetQueueDepth(int)                                  {}

// Option configures a Transport.
type Option func(*Transport)

// WithCredential sets the initial credential.
func WithCredential(credential string) Option {
	return func(t *Transport) { t.credential = credential }
}

// WithLogger sets the transport logger. A nil logger is ignored.
func WithLogger(logger glog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. A nil sink is ignored.
func WithMetrics(m Metrics) Option {
	return func(t *Transport) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithTransitionHook registers an observer for state mutations.
func WithTransitionHook(hook TransitionHook) Option {
	return func(t *Transport) { t.hook = hook }
}

// WithCredentialSaver persists each refreshed credential.
func WithCredentialSaver(s CredentialSaver) Option {
	return func(t *Transport) { t.saver = s }
}

// WithRefreshOperation replaces the refresh exchange.
func WithRefreshOperation(op Operation) Option {
	return func(t *Transport) { t.refreshOp = op }
}

// WithRefreshTokenField names the member of the refresh response's "data"
// object that carries the new credential when the response header does not.
func WithRefreshTokenField(field string) Option {
	return func(t *Transport) { t.tokenField = field }
}

// Transport sends operations through a Dispatcher and suspends traffic while
// an expired credential is refreshed. At most one refresh exchange is in
// flight per Transport; requests arriving meanwhile are queued and replayed
// in arrival order with the refreshed credential.
type Transport struct {
	dispatcher Dispatcher
	refreshOp  Operation
	tokenField string
	logger     glog.Logger
	metrics    Metrics
	hook       TransitionHook
	saver      CredentialSaver

	baseCtx  context.Context
	stop     context.CancelFunc
	inflight sync.WaitGroup

	mu              sync.Mutex
	state           State
	queue           []*pendingRequest
	credential      string
	refreshes       int
	refreshFailures int
	closed          bool

	// events buffers transitions for the hook goroutine; guarded by mu.
	events    []Transition
	notify    chan struct{}
	hooksStop chan struct{}
	hooksDone chan struct{}
}

// New returns a Transport in StateRunning that dispatches through d.
func New(d Dispatcher, opts ...Option) *Transport {
	ctx, stop := context.WithCancel(context.Background())
	t := &Transport{
		dispatcher: d,
		refreshOp:  RefreshOperation(""),
		logger:     glog.Nop(),
		metrics:    nopMetrics{},
		baseCtx:    ctx,
		stop:       stop,
		state:      StateRunning,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.hook != nil {
		t.notify = make(chan struct{}, 1)
		t.hooksStop = make(chan struct{})
		t.hooksDone = make(chan struct{})
		go t.runHooks()
	}
	return t
}

// runHooks delivers buffered transitions to the hook until Close.
func (t *Transport) runHooks() {
	defer close(t.hooksDone)
	for {
		select {
		case <-t.notify:
			t.flushHooks()
		case <-t.hooksStop:
			t.flushHooks()
			return
		}
	}
}

func (t *Transport) flushHooks() {
	t.mu.Lock()
	events := t.events
	t.events = nil
	t.mu.Unlock()

	for _, tr := range events {
		t.hook(tr)
	}
}

// pendingRequest is one caller request, either in flight or queued.
type pendingRequest struct {
	id     string
	op     Operation
	cb     Callback
	ctx    context.Context
	cancel context.CancelFunc
	t      *Transport

	mu   sync.Mutex
	done bool
}

// Cancel implements Cancellable.
func (r *pendingRequest) Cancel() {
	r.t.cancelRequest(r)
}

// finish delivers the result unless the request already completed or was
// cancelled.
func (r *pendingRequest) finish(resp *Response, err error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	r.mu.Unlock()

	r.cancel()
	r.cb(resp, err)
}

func (r *pendingRequest) isDone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Send submits op and returns immediately. cb runs exactly once on a
// transport goroutine unless the request is cancelled first.
func (t *Transport) Send(ctx context.Context, op Operation, cb Callback) Cancellable {
	if ctx == nil {
		ctx = context.Background()
	}
	if cb == nil {
		cb = func(*Response, error) {}
	}
	reqCtx, cancel := context.WithCancel(ctx)
	req := &pendingRequest{
		id:     uuid.NewString(),
		op:     op,
		cb:     cb,
		ctx:    reqCtx,
		cancel: cancel,
		t:      t,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		go req.finish(nil, ErrClosed)
		return req
	}
	if t.state == StateWaitingForAuth {
		t.queue = append(t.queue, req)
		t.transitionLocked(StateWaitingForAuth, ReasonQueued, req, 0)
		t.mu.Unlock()
		return req
	}
	credential := t.credential
	t.inflight.Add(1)
	t.mu.Unlock()

	go t.dispatch(req, credential)
	return req
}

// ExecuteOperation sends op and blocks until its result is available or ctx
// is done. A done context cancels the request.
func (t *Transport) ExecuteOperation(ctx context.Context, op Operation) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	type result struct {
		resp *Response
		err  error
	}
	ch := make(chan result, 1)
	handle := t.Send(ctx, op, func(resp *Response, err error) {
		ch <- result{resp: resp, err: err}
	})

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		handle.Cancel()
		return nil, &TransportError{Cause: ctx.Err()}
	}
}

// Execute sends query with variables and returns the raw JSON bytes of the
// "data" field on success. GraphQL errors in the response body are returned
// as a *QueryError.
func (t *Transport) Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error) {
	resp, err := t.ExecuteOperation(ctx, Operation{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}
	if errs := resp.Errors(); len(errs) > 0 {
		return nil, &QueryError{Errors: errs}
	}
	return resp.DataJSON()
}

// Snapshot is a point-in-time view of the transport for diagnostics.
type Snapshot struct {
	State           State
	QueueDepth      int
	Refreshes       int
	RefreshFailures int
	HasCredential   bool
}

// Snapshot returns the current diagnostics view.
func (t *Transport) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:           t.state,
		QueueDepth:      len(t.queue),
		Refreshes:       t.refreshes,
		RefreshFailures: t.refreshFailures,
		HasCredential:   t.credential != "",
	}
}

// Credential returns the credential attached to newly dispatched requests.
func (t *Transport) Credential() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.credential
}

// Close aborts any in-flight refresh, waits for outstanding exchanges to
// deliver their callbacks, and rejects later sends with ErrClosed.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.stop()
	t.inflight.Wait()
	if t.hooksStop != nil {
		close(t.hooksStop)
		<-t.hooksDone
	}
}

// dispatch runs one Running-state exchange. The caller has registered it
// with t.inflight.
func (t *Transport) dispatch(req *pendingRequest, credential string) {
	defer t.inflight.Done()

	if req.isDone() {
		return
	}
	out := t.exchange(req.ctx, req.op, credential)
	if out.Kind == OutcomeAuthExpired {
		t.onAuthExpired(req, credential)
		return
	}
	t.deliver(req, out)
}

// onAuthExpired routes a request rejected for an expired credential. The
// first rejection observed while Running starts the refresh; every other
// rejection joins the queue of the refresh already in flight.
func (t *Transport) onAuthExpired(req *pendingRequest, used string) {
	t.mu.Lock()
	if req.isDone() {
		t.mu.Unlock()
		return
	}

	switch t.state {
	case StateRunning:
		if used != t.credential {
			// A refresh finished while this request was on the wire.
			t.mu.Unlock()
			t.logger.Debug("graphql request rejected with superseded credential, replaying",
				"request_id", req.id, "operation", req.op.label())
			t.replay(req)
			return
		}
		t.queue = append(t.queue, req)
		t.refreshes++
		t.transitionLocked(StateWaitingForAuth, ReasonAuthExpired, req, 0)
		t.inflight.Add(1)
		t.mu.Unlock()

		go t.refresh(used)

	case StateWaitingForAuth:
		t.queue = append(t.queue, req)
		t.transitionLocked(StateWaitingForAuth, ReasonQueuedAuthExpired, req, 0)
		t.mu.Unlock()
	}
}

// cancelRequest withdraws req. The queue removal and the done flag are
// updated under t.mu so a drain can never hand a cancelled request to a
// replay that then calls back.
func (t *Transport) cancelRequest(req *pendingRequest) {
	t.mu.Lock()
	removed := false
	if i := slices.Index(t.queue, req); i >= 0 {
		t.queue = slices.Delete(t.queue, i, i+1)
		removed = true
	}

	req.mu.Lock()
	already := req.done
	req.done = true
	req.mu.Unlock()

	if removed {
		t.transitionLocked(t.state, ReasonCancelled, req, 0)
	}
	t.mu.Unlock()

	if !already {
		req.cancel()
		t.logger.Debug("graphql request cancelled", "request_id", req.id, "queued", removed)
	}
}

// transitionLocked moves to state `to` and reports the mutation. The caller
// must hold t.mu.
func (t *Transport) transitionLocked(to State, reason string, req *pendingRequest, drained int) {
	from := t.state
	t.state = to

	tr := Transition{
		From:     from,
		To:       to,
		Reason:   reason,
		QueueLen: len(t.queue),
		Drained:  drained,
		At:       time.Now().UTC(),
	}
	if req != nil {
		tr.RequestID = req.id
		tr.Operation = req.op.label()
	}

	t.metrics.SetQueueDepth(tr.QueueLen)
	t.logger.Info("graphql transport transition",
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
		"queue", tr.QueueLen,
		"drained", drained,
		"request_id", tr.RequestID,
	)
	if t.hook != nil {
		t.events = append(t.events, tr)
		select {
		case t.notify <- struct{}{}:
		default:
		}
	}
}

// exchange performs one timed dispatch.
func (t *Transport) exchange(ctx context.Context, op Operation, credential string) Outcome {
	started := time.Now()
	out := t.dispatcher.Execute(ctx, op, credential)
	t.metrics.ObserveExchange(op.label(), out.Kind, time.Since(started))

	switch out.Kind {
	case OutcomeSuccess:
	case OutcomeTransportFailure:
		t.logger.Warn("graphql exchange failed", "operation", op.label(), "err", out.Err)
	default:
		t.logger.Debug("graphql exchange rejected", "operation", op.label(), "outcome", out.Kind.String(), "status", out.Status)
	}
	return out
}

// deliver hands out to the request's callback.
func (t *Transport) deliver(req *pendingRequest, out Outcome) {
	if out.Kind == OutcomeSuccess {
		req.finish(out.Response(), nil)
		return
	}
	req.finish(nil, out.Error())
}
