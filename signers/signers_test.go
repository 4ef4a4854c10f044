package signers

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1foot-Labs/swapd/commitment"
	"github.com/1foot-Labs/swapd/order"
)

func settledOrder(t *testing.T) (*order.Order, []byte) {
	t.Helper()
	secret, ds, err := commitment.Generate()
	require.NoError(t, err)
	return &order.Order{
		ID:              "ord-1",
		Direction:       order.DirectionBtcToEth,
		Digests:         ds,
		AmountToGive:    big.NewInt(1),
		AmountToReceive: big.NewInt(1),
		State:           order.StateSettled,
		CreatedAt:       time.Now().UTC(),
		ExpiresAt:       time.Now().UTC().Add(time.Hour),
	}, secret
}

func TestLocalPayoutSignerAuthorizes(t *testing.T) {
	s, err := NewRandomLocalPayoutSigner()
	require.NoError(t, err)
	require.NotEmpty(t, s.PublicKeyHex())

	o, secret := settledOrder(t)
	assert.NoError(t, s.Authorize(context.Background(), o, secret))
}

func TestLocalPayoutSignerHonorsCancelledContext(t *testing.T) {
	s, err := NewRandomLocalPayoutSigner()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o, secret := settledOrder(t)
	assert.Error(t, s.Authorize(ctx, o, secret))
}

func TestLocalPayoutSignerRejectsBadKeyHex(t *testing.T) {
	_, err := NewLocalPayoutSigner("not-a-key")
	assert.Error(t, err)
}

func TestNopPayoutSigner(t *testing.T) {
	o, secret := settledOrder(t)
	assert.NoError(t, NopPayoutSigner{}.Authorize(context.Background(), o, secret))
}
