package order

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1foot-Labs/swapd/commitment"
)

func newTestOrder(t *testing.T, st State) *Order {
	t.Helper()
	_, ds, err := commitment.Generate()
	require.NoError(t, err)

	now := time.Now().UTC()
	o := &Order{
		ID:                 "test-order",
		Direction:          DirectionBtcToEth,
		MakerIdentity:      "mkHV3gGcRd3YBgWDh5BoXrSGBGJyYvoNxg",
		CounterpartyPubKey: make([]byte, 33),
		Digests:            ds,
		AmountToGive:       big.NewInt(100_000_000),
		AmountToReceive:    big.NewInt(15_000_000),
		State:              st,
		CreatedAt:          now,
		ExpiresAt:          now.Add(2 * time.Hour),
	}
	if st != StateCreated && st != StateEscrowDerived {
		o.SourceEscrowAddress = "2N6Zod4GDXmDiyzUbUzJnCBYGc9sZ6f4xqf"
	}
	return o
}

// every transition attempt from every state; only the allowed targets succeed
func TestTransitionTableIsMonotonic(t *testing.T) {
	all := []State{
		StateCreated, StateEscrowDerived, StateAwaitingFunding, StateFunded,
		StateClaimable, StateSettled, StateExpired, StateFailed,
	}

	allowed := map[State]map[State]bool{}
	for from, targets := range legalTransitions {
		allowed[from] = map[State]bool{}
		for _, to := range targets {
			allowed[from][to] = true
		}
	}

	for _, from := range all {
		for _, to := range all {
			o := newTestOrder(t, from)
			err := o.transitionTo(to)
			if allowed[from][to] {
				assert.NoError(t, err, "%s -> %s should be legal", from, to)
				assert.Equal(t, to, o.State)
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s should be illegal", from, to)
				assert.Equal(t, from, o.State, "failed transition must not move the order")
			}
		}
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	for _, st := range []State{StateSettled, StateExpired, StateFailed} {
		o := newTestOrder(t, st)
		assert.ErrorIs(t, o.transitionTo(StateFunded), ErrOrderTerminal)
		assert.ErrorIs(t, o.MarkFailed("nope"), ErrOrderTerminal)
		assert.Equal(t, st, o.State)
	}
}

func TestMarkEscrowDerivedIsOneShot(t *testing.T) {
	o := newTestOrder(t, StateCreated)

	require.NoError(t, o.MarkEscrowDerived("2N6Zod4GDXmDiyzUbUzJnCBYGc9sZ6f4xqf"))
	assert.Equal(t, StateAwaitingFunding, o.State)
	assert.Equal(t, "2N6Zod4GDXmDiyzUbUzJnCBYGc9sZ6f4xqf", o.SourceEscrowAddress)

	err := o.MarkEscrowDerived("some-other-address")
	assert.ErrorIs(t, err, ErrEscrowAlreadySet)
	assert.Equal(t, "2N6Zod4GDXmDiyzUbUzJnCBYGc9sZ6f4xqf", o.SourceEscrowAddress)
}

func TestApplyFundingFull(t *testing.T) {
	o := newTestOrder(t, StateAwaitingFunding)

	err := o.ApplyFunding(big.NewInt(100_000_000), 6, 6, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, StateFunded, o.State)
}

func TestApplyFundingPartialStaysAwaiting(t *testing.T) {
	o := newTestOrder(t, StateAwaitingFunding)

	err := o.ApplyFunding(big.NewInt(40_000_000), 6, 6, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingFunding, o.State)
	assert.True(t, o.Underfunded())
}

func TestApplyFundingUnconfirmedStaysAwaiting(t *testing.T) {
	o := newTestOrder(t, StateAwaitingFunding)

	err := o.ApplyFunding(big.NewInt(100_000_000), 2, 6, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingFunding, o.State)
	assert.False(t, o.Underfunded(), "fully funded but shallow is not underfunded")
}

// expiry is evaluated before funding: funds confirming after expiresAt push
// the order to expired, never funded
func TestExpiryTakesPrecedenceOverLateFunding(t *testing.T) {
	o := newTestOrder(t, StateAwaitingFunding)
	late := o.ExpiresAt.Add(time.Minute)

	err := o.ApplyFunding(big.NewInt(100_000_000), 6, 6, late)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, o.State)
}

func TestReorgRevertsFundedToAwaiting(t *testing.T) {
	o := newTestOrder(t, StateFunded)

	// funding tx fell out of the confirmed chain
	err := o.ApplyFunding(big.NewInt(0), 0, 6, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingFunding, o.State)
}

// the reorg signal reverts on its own authority: even a reported balance
// that would satisfy the funding bar does not keep the order funded, since
// the depth counted for the reorged tx is gone
func TestApplyReorgRevertsDespiteReportedBalance(t *testing.T) {
	o := newTestOrder(t, StateFunded)

	err := o.ApplyReorg(big.NewInt(100_000_000), 6)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingFunding, o.State)
	assert.Zero(t, o.FundedAmount.Cmp(big.NewInt(100_000_000)))
	assert.Equal(t, int64(6), o.Confirmations)
}

func TestApplyReorgWhileAwaitingUpdatesSnapshotOnly(t *testing.T) {
	o := newTestOrder(t, StateAwaitingFunding)

	err := o.ApplyReorg(big.NewInt(0), 0)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingFunding, o.State)
	assert.Zero(t, o.FundedAmount.Sign())
}

func TestApplyReorgRejectedInOtherStates(t *testing.T) {
	for _, st := range []State{StateCreated, StateClaimable, StateSettled} {
		o := newTestOrder(t, st)
		assert.ErrorIs(t, o.ApplyReorg(big.NewInt(0), 0), ErrIllegalTransition)
		assert.Equal(t, st, o.State)
	}
}

func TestMarkExpiredBeforeDeadlineFails(t *testing.T) {
	o := newTestOrder(t, StateAwaitingFunding)
	err := o.MarkExpired(o.ExpiresAt.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateAwaitingFunding, o.State)
}

func TestMarkFailedRecordsReason(t *testing.T) {
	o := newTestOrder(t, StateAwaitingFunding)
	require.NoError(t, o.MarkFailed("escrow derivation mismatch"))
	assert.Equal(t, StateFailed, o.State)
	assert.Equal(t, "escrow derivation mismatch", o.FailReason)
}
