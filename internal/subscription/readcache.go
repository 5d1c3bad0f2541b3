package subscription

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// errFeeUnresolved is returned when the allowance is requested before the fee resolved.
var errFeeUnresolved = suberr.WithDetails(suberr.ErrActionUnavailable, map[string]string{
	"reason": "allowance is only read once the fee has resolved",
})

// errNotBound is returned when a read is requested with no subject.
var errNotBound = suberr.WithDetails(suberr.ErrConnection, map[string]string{
	"reason": "no wallet address to read for",
})

// errEmptyResult is the cause recorded when the ledger returns no amount.
var errEmptyResult = errors.New("ledger returned an empty amount")

// slot is the mutable cache entry behind a Snapshot.
// gen increases on every fetch start and every reset; a completion whose
// generation no longer matches is discarded.
type slot struct {
	flag      bool
	amount    *big.Int
	resolved  bool
	loading   bool
	err       error
	updatedAt time.Time
	gen       uint64
}

// ReadCache holds the four ledger reads for one subject.
// It is safe for concurrent use.
type ReadCache struct {
	reader    ledger.Reader
	endpoints ledger.Endpoints
	logger    LogWriter
	metrics   Recorder
	now       func() time.Time

	mu      sync.RWMutex
	subject common.Address
	bound   bool
	slots   [queryCount]slot
}

// NewReadCache creates an unbound cache reading through reader.
func NewReadCache(reader ledger.Reader, endpoints ledger.Endpoints, logger LogWriter, metrics Recorder) *ReadCache {
	if logger == nil {
		logger = nopLogger{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &ReadCache{
		reader:    reader,
		endpoints: endpoints,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Bind points the cache at subject and marks every query loading.
// In-flight fetches for the previous subject are abandoned.
func (c *ReadCache) Bind(subject common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subject = subject
	c.bound = true
	for i := range c.slots {
		c.slots[i] = slot{loading: true, gen: c.slots[i].gen + 1}
	}
	c.logger.Debug("read cache bound to %s", subject.Hex())
}

// Unbind drops the subject and every cached value.
func (c *ReadCache) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subject = common.Address{}
	c.bound = false
	for i := range c.slots {
		c.slots[i] = slot{gen: c.slots[i].gen + 1}
	}
	c.logger.Debug("read cache cleared")
}

// Subject returns the bound subject.
func (c *ReadCache) Subject() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subject, c.bound
}

// Refresh fetches every query for the bound subject. Entitlement, balance and
// fee are read concurrently; the allowance is read once the fee has resolved
// and settles without a value if the fee did not.
func (c *ReadCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.bound {
		c.mu.Unlock()
		return errNotBound
	}
	for i := range c.slots {
		c.slots[i].loading = true
		c.slots[i].err = nil
	}
	allowanceGen := c.slots[QueryAllowance].gen
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.fetch(gctx, QueryEntitlement)
		return nil
	})
	g.Go(func() error {
		c.fetch(gctx, QueryBalance)
		return nil
	})
	g.Go(func() error {
		c.fetch(gctx, QueryFee)
		if _, ok := c.fee(); ok {
			c.fetch(gctx, QueryAllowance)
			return nil
		}
		c.settle(QueryAllowance, allowanceGen)
		return nil
	})
	return g.Wait()
}

// Invalidate marks q stale and refetches it.
// Returns an error only when the fetch could not be started.
func (c *ReadCache) Invalidate(ctx context.Context, q Query) error {
	c.metrics.RecordInvalidation(q.String())
	c.logger.Debug("invalidating %s", q)
	return c.Fetch(ctx, q)
}

// Fetch reads q for the bound subject and records the result.
// Read failures are recorded on the snapshot, not returned.
func (c *ReadCache) Fetch(ctx context.Context, q Query) error {
	gen, subject, err := c.begin(q)
	if err != nil {
		return err
	}
	c.run(ctx, q, gen, subject)
	return nil
}

// Snapshots returns a copy of every query.
func (c *ReadCache) Snapshots() Snapshots {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshots{
		Entitlement: flagSnapshot(c.slots[QueryEntitlement]),
		Balance:     amountSnapshot(c.slots[QueryBalance]),
		Fee:         amountSnapshot(c.slots[QueryFee]),
		Allowance:   amountSnapshot(c.slots[QueryAllowance]),
	}
}

func (c *ReadCache) fetch(ctx context.Context, q Query) {
	gen, subject, err := c.begin(q)
	if err != nil {
		return
	}
	c.run(ctx, q, gen, subject)
}

// begin marks q loading and returns the generation the completion must match.
func (c *ReadCache) begin(q Query) (uint64, common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound {
		return 0, common.Address{}, errNotBound
	}
	if q == QueryAllowance {
		fee := c.slots[QueryFee]
		if !fee.resolved || fee.amount == nil {
			return 0, common.Address{}, errFeeUnresolved
		}
	}

	s := &c.slots[q]
	s.gen++
	s.loading = true
	s.err = nil
	return s.gen, c.subject, nil
}

func (c *ReadCache) run(ctx context.Context, q Query, gen uint64, subject common.Address) {
	var (
		flag   bool
		amount *big.Int
		err    error
	)

	switch q {
	case QueryEntitlement:
		flag, err = c.reader.EntitlementStatus(ctx, c.endpoints.Subscription, subject)
	case QueryBalance:
		amount, err = c.reader.TokenBalance(ctx, c.endpoints.Token, subject)
	case QueryFee:
		amount, err = c.reader.SubscriptionFee(ctx, c.endpoints.Subscription)
	case QueryAllowance:
		amount, err = c.reader.Allowance(ctx, c.endpoints.Token, subject, c.endpoints.Subscription)
	}
	if err == nil && q != QueryEntitlement && amount == nil {
		err = errEmptyResult
	}

	if abandoned(ctx) {
		c.logger.Debug("%s read abandoned", q)
		return
	}

	c.metrics.RecordRead(q.String(), err)
	c.complete(q, gen, flag, amount, err)
}

// complete records a fetch result if it is still current.
func (c *ReadCache) complete(q Query, gen uint64, flag bool, amount *big.Int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.slots[q]
	if s.gen != gen {
		c.logger.Debug("discarding stale %s read", q)
		return
	}

	s.loading = false
	if err != nil {
		s.err = suberr.WithDetails(suberr.WithCause(suberr.ErrRead, err), map[string]string{
			"query": q.String(),
		})
		c.logger.Error("%s read failed: %v", q, err)
		return
	}

	s.flag = flag
	s.amount = amount
	s.resolved = true
	s.err = nil
	s.updatedAt = c.now()
}

// settle clears the loading flag on q without recording a value.
func (c *ReadCache) settle(q Query, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.slots[q]
	if s.gen == gen {
		s.loading = false
	}
}

func (c *ReadCache) fee() (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.slots[QueryFee]
	if !s.resolved || s.amount == nil {
		return nil, false
	}
	return new(big.Int).Set(s.amount), true
}

// abandoned reports whether the caller gave up on the request.
// A deadline is a read failure, not an abandonment.
func abandoned(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func flagSnapshot(s slot) Snapshot[bool] {
	return Snapshot[bool]{
		Value:     s.flag,
		Resolved:  s.resolved,
		Loading:   s.loading,
		Err:       s.err,
		UpdatedAt: s.updatedAt,
	}
}

func amountSnapshot(s slot) Snapshot[*big.Int] {
	var v *big.Int
	if s.amount != nil {
		v = new(big.Int).Set(s.amount)
	}
	return Snapshot[*big.Int]{
		Value:     v,
		Resolved:  s.resolved,
		Loading:   s.loading,
		Err:       s.err,
		UpdatedAt: s.updatedAt,
	}
}
