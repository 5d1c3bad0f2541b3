// Package subscription implements the subscription flow: a cache of the four
// ledger reads, one tracker per write kind, the predicates derived from the
// reads, and the controller that decides what may be fetched, what the user
// may do next, and what to refetch when a write confirms.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/mrz1836/subpass/internal/ledger"
	"github.com/mrz1836/subpass/internal/session"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// DefaultConfirmationTimeout bounds the wait for a write to be included.
const DefaultConfirmationTimeout = 3 * time.Minute

// Options configures a Controller.
type Options struct {
	Endpoints ledger.EndpointsConfig
	Session   SessionProvider
	Ledger    ledger.Ledger

	// Signer may be nil for a watch-only session; writes are then refused.
	Signer ledger.Signer

	Logger              LogWriter
	Metrics             Recorder
	ConfirmationTimeout time.Duration
}

// Controller orchestrates the subscription flow for one session.
type Controller struct {
	session SessionProvider
	ledger  ledger.Ledger
	signer  ledger.Signer
	logger  LogWriter
	timeout time.Duration

	endpoints ledger.Endpoints
	configErr error

	cache     *ReadCache
	approve   *Tracker
	subscribe *Tracker
	notices   *noticeBoard

	life   context.Context //nolint:containedctx // Lifetime scope cancelled by Close
	cancel context.CancelFunc

	// mu serializes session transitions.
	mu sync.Mutex
}

// NewController validates the endpoints and wires the flow.
// Invalid endpoints do not fail construction; the controller stays in
// PhaseConfigInvalid and never touches the ledger.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	timeout := opts.ConfirmationTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}

	c := &Controller{
		session:   opts.Session,
		ledger:    opts.Ledger,
		signer:    opts.Signer,
		logger:    logger,
		timeout:   timeout,
		approve:   NewTracker(ledger.KindApprove, logger, metrics),
		subscribe: NewTracker(ledger.KindSubscribe, logger, metrics),
		notices:   newNoticeBoard(),
	}
	c.life, c.cancel = context.WithCancel(context.Background())

	endpoints, err := ledger.ParseEndpoints(opts.Endpoints)
	if err != nil {
		c.configErr = err
		logger.Error("invalid contract configuration: %v", err)
		return c
	}
	c.endpoints = endpoints
	c.cache = NewReadCache(opts.Ledger, endpoints, logger, metrics)
	return c
}

// Endpoints returns the validated contract identities.
func (c *Controller) Endpoints() ledger.Endpoints {
	return c.endpoints
}

// ConfigErr returns the endpoint validation error, if any.
func (c *Controller) ConfigErr() error {
	return c.configErr
}

// SessionChanged reconciles the cache with the current session. A new or
// changed subject resets all reads to loading and refreshes them; a dropped
// session clears the cache. An unchanged subject is a no-op.
func (c *Controller) SessionChanged(ctx context.Context) {
	if c.cache == nil {
		return
	}

	c.mu.Lock()
	sess := c.currentSession()
	subject, bound := c.cache.Subject()

	if !sess.HasAddress() {
		if bound {
			c.cache.Unbind()
		}
		c.mu.Unlock()
		return
	}
	if bound && subject == sess.Address {
		c.mu.Unlock()
		return
	}
	c.cache.Bind(sess.Address)
	c.mu.Unlock()

	c.logger.Debug("session is now %s, refreshing reads", sess.Address.Hex())
	ctx, done := c.scope(ctx)
	defer done()
	_ = c.cache.Refresh(ctx)
}

// Reload refetches every read for the current subject.
func (c *Controller) Reload(ctx context.Context) error {
	if c.cache == nil {
		return c.configErr
	}
	if _, bound := c.cache.Subject(); !bound {
		return errNotBound
	}

	ctx, done := c.scope(ctx)
	defer done()
	return c.cache.Refresh(ctx)
}

// View computes the current flow state.
func (c *Controller) View() View {
	v := View{
		Endpoints: c.endpoints,
		Approve:   c.approve.Operation(),
		Subscribe: c.subscribe.Operation(),
		ReadOnly:  c.signer == nil,
		ConfigErr: c.configErr,
		Notices:   c.notices.list(),
	}

	sess := c.currentSession()
	v.Subject = sess.Address

	switch {
	case !sess.Connected:
		v.Phase = PhaseDisconnected
		return v
	case c.configErr != nil:
		v.Phase = PhaseConfigInvalid
		return v
	case !sess.HasAddress():
		v.Phase = PhaseSessionLoading
		return v
	}

	if subject, bound := c.cache.Subject(); !bound || subject != sess.Address {
		v.Phase = PhaseReadLoading
		return v
	}

	v.Snapshots = c.cache.Snapshots()
	v.Derived = Derive(v.Snapshots)

	switch {
	case v.Snapshots.Loading():
		v.Phase = PhaseReadLoading
	case len(v.Snapshots.Failures()) > 0:
		v.Phase = PhaseReadError
		v.ReadFailures = v.Snapshots.Failures()
	case v.Derived.IsEntitled:
		v.Phase = PhaseEntitled
	default:
		v.Phase = PhaseUnentitled
		v.BalanceWarning = !v.Derived.HasSufficientBalance
		v.CanApprove = !v.Derived.HasSufficientAllowance && v.Derived.HasSufficientBalance && !v.Approve.State.InFlight()
		v.CanSubscribe = v.Derived.HasSufficientAllowance && v.Derived.HasSufficientBalance && !v.Subscribe.State.InFlight()
	}
	return v
}

// Approve grants the subscription contract an allowance equal to the fee.
// An error means the write was not initiated; a failed write is reported
// through the returned operation and a notice.
func (c *Controller) Approve(ctx context.Context) (WriteOperation, error) {
	v := c.View()
	if err := c.checkWrite(v, ledger.KindApprove, v.CanApprove); err != nil {
		return c.approve.Operation(), err
	}
	if err := c.approve.Begin(); err != nil {
		return c.approve.Operation(), err
	}

	call := ledger.ApproveCall(c.endpoints, v.Snapshots.Fee.Value)
	return c.drive(ctx, c.approve, call, QueryAllowance), nil
}

// Subscribe consumes the allowance to activate or renew the subscription.
// Errors follow the same rules as Approve.
func (c *Controller) Subscribe(ctx context.Context) (WriteOperation, error) {
	v := c.View()
	if err := c.checkWrite(v, ledger.KindSubscribe, v.CanSubscribe); err != nil {
		return c.subscribe.Operation(), err
	}
	if err := c.subscribe.Begin(); err != nil {
		return c.subscribe.Operation(), err
	}

	return c.drive(ctx, c.subscribe, ledger.SubscribeCall(c.endpoints), QueryEntitlement), nil
}

// Dismiss removes a notice. It reports whether the notice existed.
func (c *Controller) Dismiss(id string) bool {
	return c.notices.dismiss(id)
}

// Close abandons in-flight reads and writes. Their completions are discarded.
func (c *Controller) Close() {
	c.cancel()
}

// drive runs a begun write and, on confirmation, invalidates exactly the
// read that write changes. A write the caller abandoned raises no notice.
func (c *Controller) drive(ctx context.Context, t *Tracker, call ledger.WriteCall, stale Query) WriteOperation {
	ctx, done := c.scope(ctx)
	defer done()

	op := t.Execute(ctx, call, c.signer, c.ledger, c.timeout)
	switch op.State {
	case StateConfirmed:
		c.logger.Debug("%s confirmed in block %d", op.Kind, blockOf(op.Receipt))
		if err := c.cache.Invalidate(ctx, stale); err != nil {
			c.logger.Error("invalidating %s after %s: %v", stale, op.Kind, err)
		}
	case StateFailed:
		n := c.notices.push(op.Kind, op.Err)
		c.logger.Debug("notice %s raised for %s", n.ID, op.Kind)
	case StateSigning, StateConfirming:
		c.logger.Debug("%s abandoned by the caller, no notice raised", op.Kind)
	case StateIdle:
	}
	return op
}

func (c *Controller) checkWrite(v View, kind ledger.WriteKind, enabled bool) error {
	switch {
	case v.Phase == PhaseConfigInvalid:
		return c.configErr
	case v.Phase == PhaseDisconnected || v.Phase == PhaseSessionLoading:
		return suberr.WithDetails(suberr.ErrConnection, map[string]string{
			"action": kind.String(),
			"reason": "wallet not connected",
		})
	case c.signer == nil:
		return suberr.WithDetails(suberr.ErrConnection, map[string]string{
			"action": kind.String(),
			"reason": "no signing key for this session",
		})
	}
	if !enabled {
		return suberr.WithDetails(suberr.ErrActionUnavailable, map[string]string{
			"action": kind.String(),
			"phase":  v.Phase.String(),
		})
	}
	return nil
}

func (c *Controller) currentSession() session.Session {
	if c.session == nil {
		return session.Session{}
	}
	return c.session.Session()
}

// scope derives a context that is also cancelled by Close.
func (c *Controller) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func blockOf(r *ledger.Receipt) uint64 {
	if r == nil {
		return 0
	}
	return r.BlockNumber
}
