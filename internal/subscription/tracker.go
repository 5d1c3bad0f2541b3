package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// Tracker follows one kind of write through signing and confirmation.
// At most one write per tracker is in flight.
type Tracker struct {
	kind    ledger.WriteKind
	logger  LogWriter
	metrics Recorder
	now     func() time.Time

	mu   sync.Mutex
	op   WriteOperation
	prev WriteOperation // replaced by Begin, restored on abandon
}

// NewTracker creates an idle tracker for kind.
func NewTracker(kind ledger.WriteKind, logger LogWriter, metrics Recorder) *Tracker {
	if logger == nil {
		logger = nopLogger{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Tracker{
		kind:    kind,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		op:      WriteOperation{Kind: kind},
	}
}

// Operation returns a copy of the current write.
func (t *Tracker) Operation() WriteOperation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.op
}

// Begin starts a new write. It is refused while another write of the same
// kind is signing or confirming; a terminal write is replaced.
func (t *Tracker) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.op.State.InFlight() {
		return suberr.WithDetails(suberr.ErrActionUnavailable, map[string]string{
			"action": t.kind.String(),
			"reason": t.kind.String() + " already " + t.op.State.String(),
		})
	}

	t.prev = t.op
	t.op = WriteOperation{
		Kind:    t.kind,
		State:   StateSigning,
		Attempt: t.op.Attempt + 1,
	}
	t.touchLocked()
	return nil
}

// Broadcast records the transaction handle and moves to confirming.
func (t *Tracker) Broadcast(handle common.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.op.State != StateSigning {
		return t.invalidLocked(StateConfirming)
	}
	t.op.Handle = handle
	t.op.State = StateConfirming
	t.touchLocked()
	return nil
}

// Confirm records the inclusion receipt.
func (t *Tracker) Confirm(receipt *ledger.Receipt) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.op.State != StateConfirming {
		return t.invalidLocked(StateConfirmed)
	}
	t.op.Receipt = receipt
	t.op.State = StateConfirmed
	t.touchLocked()
	return nil
}

// Fail records err against the in-flight write, classified by the stage it failed in.
func (t *Tracker) Fail(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.op.State {
	case StateSigning:
		t.op.Err = classifySigning(err)
	case StateConfirming:
		t.op.Err = classifyConfirming(err)
	default:
		return t.invalidLocked(StateFailed)
	}
	t.op.State = StateFailed
	t.touchLocked()
	t.logger.Error("%s failed: %v", t.kind, t.op.Err)
	return nil
}

// Execute drives a begun write: request the signature, then wait up to timeout
// for inclusion. When ctx is cancelled first the tracker goes back to the write
// Begin replaced, with no failure recorded, and the returned operation shows
// the stage the write was abandoned in.
func (t *Tracker) Execute(ctx context.Context, call ledger.WriteCall, signer ledger.Signer, confirmer ledger.Confirmer, timeout time.Duration) WriteOperation {
	handle, err := signer.RequestSignature(ctx, call)
	if err != nil {
		if abandoned(ctx) {
			return t.abandon()
		}
		_ = t.Fail(err)
		return t.Operation()
	}
	if err = t.Broadcast(handle); err != nil {
		return t.Operation()
	}
	t.logger.Debug("%s broadcast as %s", t.kind, handle.Hex())

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	receipt, err := confirmer.WaitForConfirmation(waitCtx, handle)
	if err != nil {
		if abandoned(ctx) {
			return t.abandon()
		}
		_ = t.Fail(err)
		return t.Operation()
	}
	_ = t.Confirm(receipt)
	return t.Operation()
}

// abandon restores the write Begin replaced and returns the abandoned one.
func (t *Tracker) abandon() WriteOperation {
	t.mu.Lock()
	defer t.mu.Unlock()

	op := t.op
	if !op.State.InFlight() {
		return op
	}
	t.op = t.prev
	t.logger.Debug("%s abandoned while %s", t.kind, op.State)
	return op
}

func (t *Tracker) touchLocked() {
	t.op.UpdatedAt = t.now()
	t.metrics.RecordWriteTransition(t.kind.String(), t.op.State.String())
}

func (t *Tracker) invalidLocked(to WriteState) error {
	return suberr.WithDetails(suberr.ErrInvalidTransition, map[string]string{
		"kind": t.kind.String(),
		"from": t.op.State.String(),
		"to":   to.String(),
	})
}

// classifySigning maps a signing failure to the taxonomy.
// Anything other than a decline means the transaction never reached the network.
func classifySigning(err error) error {
	if errors.Is(err, suberr.ErrSignatureRejected) || errors.Is(err, suberr.ErrBroadcast) {
		return err
	}
	return suberr.WithCause(suberr.ErrBroadcast, err)
}

// classifyConfirming maps a confirmation failure to the taxonomy.
// A write that was not seen confirmed is never assumed to have succeeded.
func classifyConfirming(err error) error {
	if errors.Is(err, suberr.ErrTransactionReverted) || errors.Is(err, suberr.ErrConfirmationTimeout) {
		return err
	}
	return suberr.WithCause(suberr.ErrConfirmationTimeout, err)
}
