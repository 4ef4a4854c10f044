/*
Package escrow derives the chain-specific escrow addresses that hold the
locked funds of a swap.

Derivation is a pure function of (digest set, maker identity, counterparty
key, expiry): re-deriving for the same order always yields the same
address. The locator never allocates anything on chain and never holds
custody; it only names the account both sides can independently compute.
*/
package escrow

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/order"
)

var (
	ErrUnsupportedChainFamily = errors.New("no lock-script template for this chain pairing")
	ErrBadMakerIdentity       = errors.New("maker identity is not a valid address for the source chain")
	ErrBadCounterpartyKey     = errors.New("counterparty public key is invalid")
)

type Locator struct {
	btcParams *chaincfg.Params
}

func NewLocator(btcParams *chaincfg.Params) *Locator {
	return &Locator{btcParams: btcParams}
}

// Derive computes the source-chain escrow address for an order. Callers
// record the result on the order exactly once; the state machine guards
// against re-recording, since a re-derivation with different inputs would
// orphan funds.
func (l *Locator) Derive(o *order.Order) (string, error) {
	var addr string
	var err error

	switch o.Direction.Source() {
	case order.ChainFamilyBtc:
		addr, err = l.deriveBtc(o)
	case order.ChainFamilyEth:
		addr, err = l.deriveEth(o)
	default:
		return "", ErrUnsupportedChainFamily
	}
	if err != nil {
		return "", err
	}

	logger.WithFields(logger.Fields{
		"orderId": o.ID,
		"family":  o.Direction.Source(),
		"address": addr,
	}).Debug("escrow derived")

	return addr, nil
}

// DestinationSatisfiable checks that the destination side's escrow
// condition can be expressed at all: a lock template exists for the family
// and the key material the template needs is usable. The order only
// becomes claimable once this holds.
func (l *Locator) DestinationSatisfiable(o *order.Order) error {
	if o.Digests.IsZero() {
		return ErrBadCounterpartyKey
	}
	switch o.Direction.Destination() {
	case order.ChainFamilyBtc:
		// the btc-side template spends to the counterparty's key
		if _, err := btcec.ParsePubKey(o.CounterpartyPubKey); err != nil {
			return ErrBadCounterpartyKey
		}
		return nil
	case order.ChainFamilyEth:
		if len(o.CounterpartyPubKey) == 0 {
			return ErrBadCounterpartyKey
		}
		return nil
	}
	return ErrUnsupportedChainFamily
}
