/*
Package chainwatch watches escrow addresses for incoming funds and
confirmation depth. One polling lane runs per monitored order, so a slow
chain query for one order never blocks observation or claim processing for
another.
*/
package chainwatch

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrChainQueryTimeout is transient. The caller leaves the order
	// untouched and retries on the next poll cycle; a single missed query
	// is not evidence of non-funding.
	ErrChainQueryTimeout = errors.New("chain query timed out")

	// ErrChainReorgDetected means the funding transaction is no longer in
	// the confirmed chain; confirmation depth must be re-evaluated.
	ErrChainReorgDetected = errors.New("chain reorganization detected")
)

// FundingStatus is an ephemeral observation of an escrow address. It is
// rebuilt by polling and not authoritative until confirmations cross the
// chain family's safety threshold.
type FundingStatus struct {
	Amount        *big.Int
	Confirmations int64
}

// ChainReader answers funding queries for one chain family. Queries are
// bounded by the supplied context.
type ChainReader interface {
	EscrowStatus(ctx context.Context, address string) (*FundingStatus, error)
}

func wrapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrChainQueryTimeout
	}
	return err
}
