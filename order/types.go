/*
Package order holds the authoritative lifecycle of a single swap: the order
model, the legal state transitions, the durable sqlite store and the
process-wide registry. Everything else in the coordinator feeds events into
this package; no business state lives outside of it.
*/
package order

import (
	"math/big"
	"time"

	"github.com/1foot-Labs/swapd/commitment"
)

// ChainFamily is a class of ledgers sharing an address/script/confirmation
// model.
type ChainFamily string

const (
	ChainFamilyBtc ChainFamily = "btc" // UTXO family
	ChainFamilyEth ChainFamily = "eth" // account family
)

// Direction of a swap, exactly as the maker-facing client sends it.
type Direction string

const (
	DirectionBtcToEth Direction = "btc_eth"
	DirectionEthToBtc Direction = "eth_btc"
)

// Source returns the chain family the maker locks funds on.
func (d Direction) Source() ChainFamily {
	switch d {
	case DirectionBtcToEth:
		return ChainFamilyBtc
	case DirectionEthToBtc:
		return ChainFamilyEth
	}
	return ""
}

// Destination returns the chain family the maker receives on.
func (d Direction) Destination() ChainFamily {
	switch d {
	case DirectionBtcToEth:
		return ChainFamilyEth
	case DirectionEthToBtc:
		return ChainFamilyBtc
	}
	return ""
}

// Valid reports whether the direction is one of the supported pairings.
func (d Direction) Valid() bool {
	return d == DirectionBtcToEth || d == DirectionEthToBtc
}

// State is the lifecycle position of an order. Transitions are monotonic;
// see machine.go for the legal table.
type State string

const (
	StateCreated         State = "created"
	StateEscrowDerived   State = "escrow_derived"
	StateAwaitingFunding State = "awaiting_funding"
	StateFunded          State = "funded"
	StateClaimable       State = "claimable"
	StateSettled         State = "settled"
	StateExpired         State = "expired"
	StateFailed          State = "failed"
)

// Terminal reports whether the state is final. A terminal order is
// immutable and retained read-only for audit.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateExpired || s == StateFailed
}

// Order is a single swap. Amounts are in the source/destination chain's
// smallest unit (satoshi, wei).
type Order struct {
	ID                 string
	Direction          Direction
	MakerIdentity      string // source-chain account of the maker
	CounterpartyPubKey []byte // key material for the escrow claim branch
	Digests            commitment.DigestSet

	AmountToGive    *big.Int
	AmountToReceive *big.Int

	// SourceEscrowAddress is empty until the locator derives it, then fixed.
	SourceEscrowAddress string

	State      State
	FailReason string

	// Observation snapshot, refreshed while awaiting funding. Not
	// authoritative until confirmations cross the family threshold.
	FundedAmount  *big.Int
	Confirmations int64

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Underfunded reports whether some funds arrived but less than
// AmountToGive. Surfaced distinctly so the boundary can warn the user.
func (o *Order) Underfunded() bool {
	if o.State != StateAwaitingFunding || o.FundedAmount == nil {
		return false
	}
	return o.FundedAmount.Sign() > 0 && o.FundedAmount.Cmp(o.AmountToGive) < 0
}

// Expired reports whether the order's refund window has opened at the given
// instant. Callers must evaluate this before applying funding.
func (o *Order) ExpiredAt(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
