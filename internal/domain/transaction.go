package domain

import "math/big"

// TxKind represents a state-changing operation against the lending
// ledger.
type TxKind int

const (
	TxDeposit TxKind = iota
	TxWithdraw
	TxBorrow
	TxRepay
)

// String returns the operation name as the ledger knows it.
func (k TxKind) String() string {
	switch k {
	case TxDeposit:
		return "deposit"
	case TxWithdraw:
		return "withdraw"
	case TxBorrow:
		return "borrow"
	case TxRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// TxKinds lists all operations in a stable order.
func TxKinds() []TxKind {
	return []TxKind{TxDeposit, TxWithdraw, TxBorrow, TxRepay}
}

// TxPhase is the internal lifecycle phase of one submitted request.
// Phases are strictly monotonic per handle.
type TxPhase int

const (
	PhaseIdle TxPhase = iota
	PhaseSubmitted
	PhaseAwaitingSettlement
	PhaseSucceeded
	PhaseFailed
)

// String returns the phase name.
func (p TxPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitted:
		return "submitted"
	case PhaseAwaitingSettlement:
		return "awaiting_settlement"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase is final for its handle.
func (p TxPhase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// TxStatus is the small status set exposed to the presentation layer,
// uniform across all four operations.
type TxStatus string

const (
	StatusIdle    TxStatus = "idle"
	StatusPending TxStatus = "pending"
	StatusSuccess TxStatus = "success"
	StatusError   TxStatus = "error"
)

// Status projects the internal phase onto the external status contract.
func (p TxPhase) Status() TxStatus {
	switch p {
	case PhaseSubmitted, PhaseAwaitingSettlement:
		return StatusPending
	case PhaseSucceeded:
		return StatusSuccess
	case PhaseFailed:
		return StatusError
	default:
		return StatusIdle
	}
}

// TxRequest describes one operation invocation.
type TxRequest struct {
	Kind    TxKind
	Amount  *big.Int
	Account Account
}

// Valid reports whether the request passes the pre-submission guard:
// a positive amount and a present account. Invalid requests are a
// silent no-op, never an external call.
func (r TxRequest) Valid() bool {
	return r.Amount != nil && r.Amount.Sign() > 0 && !r.Account.IsZero()
}
