package subscription

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/ledger"
)

const (
	testToken        = "0x3ec192df723833621108f6769a32b4e0a18ab0a8"
	testSubscription = "0x1e2cb1cebd00485d02461eeb532afb19f50898e0"
)

//nolint:gochecknoglobals // Test fixtures
var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	testEndpoints = ledger.Endpoints{
		Token:        common.HexToAddress(testToken),
		Subscription: common.HexToAddress(testSubscription),
	}
	testEndpointsConfig = ledger.EndpointsConfig{Token: testToken, Subscription: testSubscription}
)

// fakeLedger is an in-memory ledger with per-query failure injection and gates.
type fakeLedger struct {
	mu sync.Mutex

	entitled  map[common.Address]bool
	balance   map[common.Address]*big.Int
	allowance map[common.Address]*big.Int
	fee       *big.Int

	errs  map[Query]error
	calls map[Query]int
	gates map[Query]chan struct{}

	confirmErr   error
	confirmGate  chan struct{}
	confirmCalls int
	onConfirm    func(l *fakeLedger)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		entitled:  make(map[common.Address]bool),
		balance:   make(map[common.Address]*big.Int),
		allowance: make(map[common.Address]*big.Int),
		errs:      make(map[Query]error),
		calls:     make(map[Query]int),
		gates:     make(map[Query]chan struct{}),
	}
}

// seed sets the state for subject in one call.
func (l *fakeLedger) seed(subject common.Address, entitled bool, fee, balance, allowance int64) *fakeLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entitled[subject] = entitled
	l.fee = big.NewInt(fee)
	l.balance[subject] = big.NewInt(balance)
	l.allowance[subject] = big.NewInt(allowance)
	return l
}

func (l *fakeLedger) setErr(q Query, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[q] = err
}

func (l *fakeLedger) gate(q Query) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan struct{})
	l.gates[q] = ch
	return ch
}

func (l *fakeLedger) callCount(q Query) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[q]
}

func (l *fakeLedger) enter(ctx context.Context, q Query) error {
	l.mu.Lock()
	l.calls[q]++
	gate := l.gates[q]
	err := l.errs[q]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (l *fakeLedger) EntitlementStatus(ctx context.Context, _, subject common.Address) (bool, error) {
	if err := l.enter(ctx, QueryEntitlement); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entitled[subject], nil
}

func (l *fakeLedger) TokenBalance(ctx context.Context, _, subject common.Address) (*big.Int, error) {
	if err := l.enter(ctx, QueryBalance); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyAmount(l.balance[subject]), nil
}

func (l *fakeLedger) SubscriptionFee(ctx context.Context, _ common.Address) (*big.Int, error) {
	if err := l.enter(ctx, QueryFee); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyAmount(l.fee), nil
}

func (l *fakeLedger) Allowance(ctx context.Context, _, owner, _ common.Address) (*big.Int, error) {
	if err := l.enter(ctx, QueryAllowance); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyAmount(l.allowance[owner]), nil
}

func (l *fakeLedger) WaitForConfirmation(ctx context.Context, hash common.Hash) (*ledger.Receipt, error) {
	l.mu.Lock()
	l.confirmCalls++
	gate := l.confirmGate
	err := l.confirmErr
	onConfirm := l.onConfirm
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if onConfirm != nil {
		l.mu.Lock()
		onConfirm(l)
		l.mu.Unlock()
	}
	return &ledger.Receipt{Hash: hash, BlockNumber: 42, GasUsed: 21000}, nil
}

// fakeSigner returns a fixed handle or error and records every call.
type fakeSigner struct {
	mu      sync.Mutex
	handle  common.Hash
	err     error
	calls   []ledger.WriteCall
	gate    chan struct{}
	entered chan struct{}
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{
		handle:  common.HexToHash("0xfeed"),
		entered: make(chan struct{}, 8),
	}
}

func (s *fakeSigner) RequestSignature(ctx context.Context, call ledger.WriteCall) (common.Hash, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	gate := s.gate
	err := s.err
	handle := s.handle
	s.mu.Unlock()

	s.entered <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		}
	}
	if err != nil {
		return common.Hash{}, err
	}
	return handle, nil
}

func (s *fakeSigner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// recorder counts metric calls.
type recorder struct {
	mu            sync.Mutex
	reads         map[string]int
	invalidations map[string]int
	transitions   []string
}

func newRecorder() *recorder {
	return &recorder{reads: make(map[string]int), invalidations: make(map[string]int)}
}

func (r *recorder) RecordRead(query string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads[query]++
}

func (r *recorder) RecordInvalidation(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidations[query]++
}

func (r *recorder) RecordWriteTransition(kind, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, kind+":"+state)
}

func (r *recorder) invalidationCount(query string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalidations[query]
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
