package order

import (
	"fmt"
	"math/big"
	"time"
)

// legal transitions, one-directional. Absence means illegal. Terminal
// states have no outgoing edges at all.
var legalTransitions = map[State][]State{
	StateCreated:         {StateEscrowDerived, StateFailed},
	StateEscrowDerived:   {StateAwaitingFunding, StateFailed},
	StateAwaitingFunding: {StateFunded, StateExpired, StateFailed},
	StateFunded:          {StateClaimable, StateAwaitingFunding, StateExpired, StateFailed},
	StateClaimable:       {StateSettled, StateExpired, StateFailed},
	StateSettled:         {},
	StateExpired:         {},
	StateFailed:          {},
}

// Note: Funded -> AwaitingFunding is the single backward-looking edge and
// exists only for the reorg case, where the funding tx fell out of the
// confirmed chain. Every other transition is strictly forward.

func (o *Order) transitionTo(to State) error {
	if o.State.Terminal() {
		return fmt.Errorf("%w: %s -> %s: %w", ErrIllegalTransition, o.State, to, ErrOrderTerminal)
	}
	for _, allowed := range legalTransitions[o.State] {
		if allowed == to {
			o.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.State, to)
}

// MarkEscrowDerived records the derived address exactly once and advances
// created -> escrow_derived -> awaiting_funding. Re-derivation would change
// the address and orphan funds, hence the one-shot guard.
func (o *Order) MarkEscrowDerived(address string) error {
	if o.SourceEscrowAddress != "" {
		return ErrEscrowAlreadySet
	}
	if err := o.transitionTo(StateEscrowDerived); err != nil {
		return err
	}
	o.SourceEscrowAddress = address
	// escrow_derived is a pass-through state; the order immediately waits
	// for funds.
	return o.transitionTo(StateAwaitingFunding)
}

// ApplyFunding folds a chain observation into the order. Expiry is
// evaluated before funding on every check: funds that confirm after
// expiresAt push the order to expired, never to funded, so the refund path
// wins over late funding. Partial funding keeps the order awaiting and is
// surfaced via Underfunded().
func (o *Order) ApplyFunding(amount *big.Int, confirmations int64, threshold int64, now time.Time) error {
	if o.State != StateAwaitingFunding && o.State != StateFunded {
		return fmt.Errorf("%w: funding observed in state %s", ErrIllegalTransition, o.State)
	}

	if o.ExpiredAt(now) {
		return o.MarkExpired(now)
	}

	o.FundedAmount = amount
	o.Confirmations = confirmations

	if o.State == StateFunded {
		// reorg check: the tx we counted on is no longer buried deep enough
		if amount.Cmp(o.AmountToGive) < 0 || confirmations < threshold {
			return o.transitionTo(StateAwaitingFunding)
		}
		return nil
	}

	if amount.Cmp(o.AmountToGive) >= 0 && confirmations >= threshold {
		return o.transitionTo(StateFunded)
	}
	return nil
}

// ApplyReorg folds a reorg signal into the order: the funding transaction
// fell out of the confirmed chain, so a funded order drops back to
// awaiting_funding no matter what balance the observer reports alongside
// the signal. The observation snapshot is replaced wholesale; depth counted
// for the reorged tx is gone.
func (o *Order) ApplyReorg(amount *big.Int, confirmations int64) error {
	if o.State != StateAwaitingFunding && o.State != StateFunded {
		return fmt.Errorf("%w: reorg observed in state %s", ErrIllegalTransition, o.State)
	}

	o.FundedAmount = amount
	o.Confirmations = confirmations

	if o.State == StateFunded {
		return o.transitionTo(StateAwaitingFunding)
	}
	return nil
}

// MarkClaimable advances funded -> claimable once the destination side's
// escrow condition is satisfiable as well.
func (o *Order) MarkClaimable() error {
	return o.transitionTo(StateClaimable)
}

// MarkSettled is performed by the settlement trigger under the order lock;
// exactly one caller can win it.
func (o *Order) MarkSettled() error {
	return o.transitionTo(StateSettled)
}

// MarkExpired moves the order onto the refund path.
func (o *Order) MarkExpired(now time.Time) error {
	if !o.ExpiredAt(now) {
		return fmt.Errorf("%w: order expires at %s", ErrIllegalTransition, o.ExpiresAt)
	}
	return o.transitionTo(StateExpired)
}

// MarkFailed records an unrecoverable protocol violation. A failed order
// never auto-funds or auto-settles.
func (o *Order) MarkFailed(reason string) error {
	if err := o.transitionTo(StateFailed); err != nil {
		return err
	}
	o.FailReason = reason
	return nil
}
