package subscription

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/ledger"
)

// Query identifies one of the four cached ledger reads.
type Query int

// Cached queries.
const (
	QueryEntitlement Query = iota
	QueryBalance
	QueryFee
	QueryAllowance

	queryCount = 4
)

// String returns the query name used in logs, metrics and error details.
func (q Query) String() string {
	switch q {
	case QueryEntitlement:
		return "entitlement"
	case QueryBalance:
		return "balance"
	case QueryFee:
		return "fee"
	case QueryAllowance:
		return "allowance"
	default:
		return "unknown"
	}
}

// AllQueries returns the four queries in display order.
func AllQueries() []Query {
	return []Query{QueryEntitlement, QueryBalance, QueryFee, QueryAllowance}
}

// Snapshot is the cached state of one query.
// Loading and a non-nil Err are never set at the same time.
// Value is only meaningful when Resolved is true; a failed refetch keeps
// the previous Value visible.
type Snapshot[T any] struct {
	Value     T
	Resolved  bool
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// Snapshots is a point-in-time copy of all four cached reads.
type Snapshots struct {
	Entitlement Snapshot[bool]
	Balance     Snapshot[*big.Int]
	Fee         Snapshot[*big.Int]
	Allowance   Snapshot[*big.Int]
}

// Loading reports whether any query is loading.
func (s Snapshots) Loading() bool {
	return s.Entitlement.Loading || s.Balance.Loading || s.Fee.Loading || s.Allowance.Loading
}

// Failures lists the queries that block progression: those carrying an error,
// plus any query that settled without a value.
func (s Snapshots) Failures() []ReadFailure {
	var out []ReadFailure
	add := func(q Query, resolved bool, err error) {
		switch {
		case err != nil:
			out = append(out, ReadFailure{Query: q, Err: err})
		case !resolved:
			out = append(out, ReadFailure{Query: q})
		}
	}
	add(QueryEntitlement, s.Entitlement.Resolved, s.Entitlement.Err)
	add(QueryBalance, s.Balance.Resolved, s.Balance.Err)
	add(QueryFee, s.Fee.Resolved && s.Fee.Value != nil, s.Fee.Err)
	add(QueryAllowance, s.Allowance.Resolved && s.Allowance.Value != nil, s.Allowance.Err)
	return out
}

// ReadFailure names a query that failed or resolved to no value.
// Err is nil when the query settled without ever producing a value.
type ReadFailure struct {
	Query Query
	Err   error
}

// WriteState is the lifecycle state of a write tracker.
type WriteState int

// Write states.
const (
	StateIdle WriteState = iota
	StateSigning
	StateConfirming
	StateConfirmed
	StateFailed
)

// String returns the lowercase state name.
func (s WriteState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSigning:
		return "signing"
	case StateConfirming:
		return "confirming"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight reports whether the write is awaiting a signature or confirmation.
func (s WriteState) InFlight() bool {
	return s == StateSigning || s == StateConfirming
}

// WriteOperation is a copy of a tracker's current write.
type WriteOperation struct {
	Kind      ledger.WriteKind
	State     WriteState
	Handle    common.Hash
	Receipt   *ledger.Receipt
	Err       error
	Attempt   int
	UpdatedAt time.Time
}

// HasHandle reports whether the write reached the network.
func (o WriteOperation) HasHandle() bool {
	return o.Handle != (common.Hash{})
}

// DerivedState is a pure projection of Snapshots.
type DerivedState struct {
	HasSufficientBalance   bool
	HasSufficientAllowance bool
	IsEntitled             bool
}

// Phase is the controller's top-level state. Exactly one applies at a time.
type Phase int

// Phases in precedence order.
const (
	PhaseDisconnected Phase = iota
	PhaseConfigInvalid
	PhaseSessionLoading
	PhaseReadLoading
	PhaseReadError
	PhaseEntitled
	PhaseUnentitled
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConfigInvalid:
		return "config_invalid"
	case PhaseSessionLoading:
		return "session_loading"
	case PhaseReadLoading:
		return "read_loading"
	case PhaseReadError:
		return "read_error"
	case PhaseEntitled:
		return "entitled"
	case PhaseUnentitled:
		return "unentitled"
	default:
		return "unknown"
	}
}

// View is everything a presentation layer needs to render the flow.
type View struct {
	Phase     Phase
	Subject   common.Address
	Endpoints ledger.Endpoints
	Snapshots Snapshots
	Derived   DerivedState

	Approve   WriteOperation
	Subscribe WriteOperation

	CanApprove     bool
	CanSubscribe   bool
	BalanceWarning bool
	ReadOnly       bool

	ReadFailures []ReadFailure
	ConfigErr    error
	Notices      []Notice
}
