/*
Package settlement verifies revealed secrets and authorizes exactly one
release of escrowed funds per order.

The trigger never moves funds itself: the destination-chain payout is the
job of an injected Signer. This component only performs the guarded
claimable -> settled transition and records the decision.
*/
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/commitment"
	"github.com/1foot-Labs/swapd/order"
)

// ErrOrderNotClaimable is the umbrella error for every claim attempt on an
// order that is not in the claimable state. Match with errors.Is; the
// concrete *NotClaimableError carries the sub-reason for observability.
var ErrOrderNotClaimable = errors.New("order is not claimable")

type NotClaimableReason string

const (
	ReasonNotFunded      NotClaimableReason = "not-funded"
	ReasonAlreadySettled NotClaimableReason = "already-settled"
	ReasonExpired        NotClaimableReason = "expired"
	ReasonFailed         NotClaimableReason = "failed"
)

type NotClaimableError struct {
	Reason NotClaimableReason
}

func (e *NotClaimableError) Error() string {
	return fmt.Sprintf("order is not claimable: %s", e.Reason)
}

func (e *NotClaimableError) Is(target error) bool {
	return target == ErrOrderNotClaimable
}

// Receipt records the settlement decision. Once a receipt exists the
// secret is considered publicly revealed.
type Receipt struct {
	OrderID   string
	Secret    []byte
	SettledAt time.Time
}

// Signer is the injected capability that signs and broadcasts the
// destination-chain payout after settlement is authorized. Implementations
// talk to per-chain wallet services; tests use fakes.
type Signer interface {
	Authorize(ctx context.Context, o *order.Order, secret []byte) error
}

type Trigger struct {
	reg    *order.Registry
	signer Signer
}

func NewTrigger(reg *order.Registry, signer Signer) *Trigger {
	return &Trigger{reg: reg, signer: signer}
}

// Claim validates the revealed secret against the order's digest set and,
// if the order is claimable, performs the settled transition and records a
// receipt. The transition runs under the per-order lock, so of any number
// of concurrent claims exactly one wins; the rest see already-settled.
//
// An invalid secret does not transition the order: repeated invalid
// attempts are tolerated without state corruption, since secret reveal is
// a public racing condition inherent to hash-locked schemes.
func (t *Trigger) Claim(ctx context.Context, orderID string, secret []byte) (*Receipt, error) {
	var receipt *Receipt
	var settled order.Order

	err := t.reg.With(orderID, func(o *order.Order) error {
		switch o.State {
		case order.StateClaimable:
			// proceed
		case order.StateSettled:
			return &NotClaimableError{Reason: ReasonAlreadySettled}
		case order.StateExpired:
			return &NotClaimableError{Reason: ReasonExpired}
		case order.StateFailed:
			return &NotClaimableError{Reason: ReasonFailed}
		default:
			return &NotClaimableError{Reason: ReasonNotFunded}
		}

		if err := commitment.Verify(secret, o.Digests); err != nil {
			logger.WithField("orderId", o.ID).Warn("claim with invalid secret rejected")
			return err
		}

		if err := o.MarkSettled(); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := t.reg.RecordReceipt(o.ID, secret, now); err != nil {
			return err
		}

		receipt = &Receipt{OrderID: o.ID, Secret: secret, SettledAt: now}
		settled = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"orderId":   receipt.OrderID,
		"settledAt": receipt.SettledAt,
	}).Info("Order Settled")

	// Payout authorization happens outside the order lock. The settlement
	// decision is already durable; a signer failure is surfaced to the
	// broadcaster's retry machinery, not unwound here.
	if t.signer != nil {
		if err := t.signer.Authorize(ctx, &settled, secret); err != nil {
			logger.WithField("orderId", receipt.OrderID).Warnf("payout authorization failed: %v", err)
		}
	}

	return receipt, nil
}
