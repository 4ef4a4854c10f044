package settlement

import (
	"context"
	"database/sql"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1foot-Labs/swapd/commitment"
	"github.com/1foot-Labs/swapd/order"
)

type fakeSigner struct {
	authorized atomic.Int64
}

func (f *fakeSigner) Authorize(ctx context.Context, o *order.Order, secret []byte) error {
	f.authorized.Add(1)
	return nil
}

func newClaimableOrder(t *testing.T) (*order.Registry, string, []byte) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// one connection, or every pooled conn gets its own empty memory db
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	odb, err := order.NewOrderDB(db)
	require.NoError(t, err)
	t.Cleanup(odb.Close)

	reg := order.NewRegistry(odb)

	secret, ds, err := commitment.Generate()
	require.NoError(t, err)

	o, err := reg.Create(order.CreateSpec{
		Direction:          order.DirectionBtcToEth,
		MakerIdentity:      "mkHV3gGcRd3YBgWDh5BoXrSGBGJyYvoNxg",
		CounterpartyPubKey: make([]byte, 33),
		Digests:            ds,
		AmountToGive:       big.NewInt(100_000_000),
		AmountToReceive:    big.NewInt(15_000_000),
		TTL:                2 * time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, reg.With(o.ID, func(o *order.Order) error {
		if err := o.MarkEscrowDerived("2N6Zod4GDXmDiyzUbUzJnCBYGc9sZ6f4xqf"); err != nil {
			return err
		}
		if err := o.ApplyFunding(big.NewInt(100_000_000), 6, 6, time.Now().UTC()); err != nil {
			return err
		}
		return o.MarkClaimable()
	}))

	return reg, o.ID, secret
}

func TestClaimHappyPath(t *testing.T) {
	reg, id, secret := newClaimableOrder(t)
	signer := &fakeSigner{}
	trigger := NewTrigger(reg, signer)

	receipt, err := trigger.Claim(context.Background(), id, secret)
	require.NoError(t, err)
	assert.Equal(t, id, receipt.OrderID)
	assert.Equal(t, secret, receipt.Secret)
	assert.Equal(t, int64(1), signer.authorized.Load())

	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, order.StateSettled, got.State)

	// the receipt is durable
	stored, _, ok, err := reg.Receipt(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, secret, stored)
}

func TestClaimAgainAfterSettlement(t *testing.T) {
	reg, id, secret := newClaimableOrder(t)
	trigger := NewTrigger(reg, nil)

	_, err := trigger.Claim(context.Background(), id, secret)
	require.NoError(t, err)

	_, err = trigger.Claim(context.Background(), id, secret)
	assert.ErrorIs(t, err, ErrOrderNotClaimable)

	var notClaimable *NotClaimableError
	require.ErrorAs(t, err, &notClaimable)
	assert.Equal(t, ReasonAlreadySettled, notClaimable.Reason)
}

func TestClaimInvalidSecretDoesNotTransition(t *testing.T) {
	reg, id, secret := newClaimableOrder(t)
	trigger := NewTrigger(reg, nil)

	wrong := make([]byte, len(secret))
	copy(wrong, secret)
	wrong[0] ^= 0x01

	// repeated invalid attempts, no lockout, no state change
	for i := 0; i < 5; i++ {
		_, err := trigger.Claim(context.Background(), id, wrong)
		assert.ErrorIs(t, err, commitment.ErrInvalidSecret)
	}

	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, order.StateClaimable, got.State)

	// the correct secret still works afterwards
	_, err = trigger.Claim(context.Background(), id, secret)
	assert.NoError(t, err)
}

func TestClaimBeforeFunding(t *testing.T) {
	reg, id, secret := newClaimableOrder(t)
	trigger := NewTrigger(reg, nil)

	// a second order still awaiting funding
	_, ds, err := commitment.Generate()
	require.NoError(t, err)
	pending, err := reg.Create(order.CreateSpec{
		Direction:          order.DirectionBtcToEth,
		MakerIdentity:      "mkHV3gGcRd3YBgWDh5BoXrSGBGJyYvoNxg",
		CounterpartyPubKey: make([]byte, 33),
		Digests:            ds,
		AmountToGive:       big.NewInt(1),
		AmountToReceive:    big.NewInt(1),
		TTL:                time.Hour,
	})
	require.NoError(t, err)

	_, err = trigger.Claim(context.Background(), pending.ID, secret)
	var notClaimable *NotClaimableError
	require.ErrorAs(t, err, &notClaimable)
	assert.Equal(t, ReasonNotFunded, notClaimable.Reason)

	_ = id // claimable order untouched by the failed claim above
}

func TestClaimUnknownOrder(t *testing.T) {
	reg, _, secret := newClaimableOrder(t)
	trigger := NewTrigger(reg, nil)

	_, err := trigger.Claim(context.Background(), "no-such-order", secret)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

// 100 parallel claims with the correct secret: exactly one settles, the
// other 99 observe already-settled
func TestConcurrentClaimsSettleExactlyOnce(t *testing.T) {
	reg, id, secret := newClaimableOrder(t)
	signer := &fakeSigner{}
	trigger := NewTrigger(reg, signer)

	const attempts = 100
	var wg sync.WaitGroup
	var settledCount, alreadySettled atomic.Int64

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := trigger.Claim(context.Background(), id, secret)
			switch {
			case err == nil && receipt != nil:
				settledCount.Add(1)
			case err != nil:
				var notClaimable *NotClaimableError
				if assert.ErrorAs(t, err, &notClaimable) {
					assert.Equal(t, ReasonAlreadySettled, notClaimable.Reason)
					alreadySettled.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), settledCount.Load())
	assert.Equal(t, int64(attempts-1), alreadySettled.Load())
	assert.Equal(t, int64(1), signer.authorized.Load())

	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, order.StateSettled, got.State)
}
