package escrow

import (
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1foot-Labs/swapd/commitment"
	"github.com/1foot-Labs/swapd/order"
)

func freshPubKey(t *testing.T) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey().SerializeCompressed()
}

func btcAddress(t *testing.T) string {
	t.Helper()
	pub := freshPubKey(t)
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func btcSourceOrder(t *testing.T) *order.Order {
	t.Helper()
	_, ds, err := commitment.Generate()
	require.NoError(t, err)

	now := time.Now().UTC()
	return &order.Order{
		ID:                 "order-btc-src",
		Direction:          order.DirectionBtcToEth,
		MakerIdentity:      btcAddress(t),
		CounterpartyPubKey: freshPubKey(t),
		Digests:            ds,
		AmountToGive:       big.NewInt(100_000_000),
		AmountToReceive:    big.NewInt(15_000_000),
		State:              order.StateCreated,
		CreatedAt:          now,
		ExpiresAt:          now.Add(2 * time.Hour),
	}
}

func ethSourceOrder(t *testing.T) *order.Order {
	o := btcSourceOrder(t)
	o.Direction = order.DirectionEthToBtc
	o.MakerIdentity = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	return o
}

func TestDeriveIsPure(t *testing.T) {
	loc := NewLocator(&chaincfg.RegressionNetParams)

	for _, o := range []*order.Order{btcSourceOrder(t), ethSourceOrder(t)} {
		a1, err := loc.Derive(o)
		require.NoError(t, err)
		a2, err := loc.Derive(o)
		require.NoError(t, err)
		assert.Equal(t, a1, a2, "re-derivation must be stable for %s", o.Direction)
		assert.NotEmpty(t, a1)
	}
}

func TestDeriveIsSensitiveToEveryInput(t *testing.T) {
	loc := NewLocator(&chaincfg.RegressionNetParams)

	for _, base := range []*order.Order{btcSourceOrder(t), ethSourceOrder(t)} {
		orig, err := loc.Derive(base)
		require.NoError(t, err)

		// digest set
		mutated := *base
		_, ds, err := commitment.Generate()
		require.NoError(t, err)
		mutated.Digests = ds
		got, err := loc.Derive(&mutated)
		require.NoError(t, err)
		assert.NotEqual(t, orig, got, "digest change must move the address")

		// expiry
		mutated = *base
		mutated.ExpiresAt = base.ExpiresAt.Add(time.Hour)
		got, err = loc.Derive(&mutated)
		require.NoError(t, err)
		assert.NotEqual(t, orig, got, "expiry change must move the address")

		// counterparty key
		mutated = *base
		mutated.CounterpartyPubKey = freshPubKey(t)
		got, err = loc.Derive(&mutated)
		require.NoError(t, err)
		assert.NotEqual(t, orig, got, "counterparty change must move the address")
	}
}

func TestDeriveMakerSensitivity(t *testing.T) {
	loc := NewLocator(&chaincfg.RegressionNetParams)

	o := btcSourceOrder(t)
	orig, err := loc.Derive(o)
	require.NoError(t, err)

	o.MakerIdentity = btcAddress(t)
	got, err := loc.Derive(o)
	require.NoError(t, err)
	assert.NotEqual(t, orig, got)
}

func TestDeriveUnsupportedFamily(t *testing.T) {
	loc := NewLocator(&chaincfg.RegressionNetParams)

	o := btcSourceOrder(t)
	o.Direction = "doge_eth"
	_, err := loc.Derive(o)
	assert.ErrorIs(t, err, ErrUnsupportedChainFamily)
}

func TestDeriveRejectsBadInputs(t *testing.T) {
	loc := NewLocator(&chaincfg.RegressionNetParams)

	o := btcSourceOrder(t)
	o.MakerIdentity = "not-a-btc-address"
	_, err := loc.Derive(o)
	assert.ErrorIs(t, err, ErrBadMakerIdentity)

	o = btcSourceOrder(t)
	o.CounterpartyPubKey = []byte{0x01, 0x02}
	_, err = loc.Derive(o)
	assert.ErrorIs(t, err, ErrBadCounterpartyKey)

	o = ethSourceOrder(t)
	o.MakerIdentity = "0x123"
	_, err = loc.Derive(o)
	assert.ErrorIs(t, err, ErrBadMakerIdentity)
}

func TestDestinationSatisfiable(t *testing.T) {
	loc := NewLocator(&chaincfg.RegressionNetParams)

	assert.NoError(t, loc.DestinationSatisfiable(btcSourceOrder(t)))
	assert.NoError(t, loc.DestinationSatisfiable(ethSourceOrder(t)))

	o := ethSourceOrder(t) // btc destination requires a parseable key
	o.CounterpartyPubKey = []byte{0xff}
	assert.ErrorIs(t, loc.DestinationSatisfiable(o), ErrBadCounterpartyKey)

	o = btcSourceOrder(t)
	o.Direction = "btc_doge"
	assert.ErrorIs(t, loc.DestinationSatisfiable(o), ErrUnsupportedChainFamily)
}
