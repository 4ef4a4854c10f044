package escrow

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/1foot-Labs/swapd/order"
)

// deriveBtc builds the hash-locked redeem script and wraps it in a P2SH
// address. The script releases to the counterparty upon a secret reveal
// whose HASH160 matches the committed digest, or back to the maker after
// the expiry via CHECKLOCKTIMEVERIFY.
func (l *Locator) deriveBtc(o *order.Order) (string, error) {
	script, err := l.btcLockScript(o)
	if err != nil {
		return "", err
	}

	p2sh, err := btcutil.NewAddressScriptHash(script, l.btcParams)
	if err != nil {
		return "", err
	}
	return p2sh.EncodeAddress(), nil
}

func (l *Locator) btcLockScript(o *order.Order) ([]byte, error) {
	claimant, err := btcec.ParsePubKey(o.CounterpartyPubKey)
	if err != nil {
		return nil, ErrBadCounterpartyKey
	}
	claimantHash := btcutil.Hash160(claimant.SerializeCompressed())

	makerAddr, err := btcutil.DecodeAddress(o.MakerIdentity, l.btcParams)
	if err != nil {
		return nil, ErrBadMakerIdentity
	}
	makerHash, err := pubKeyHashOf(makerAddr)
	if err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	{
		// claim branch: reveal the secret, prove the claimant key
		b.AddOp(txscript.OP_SIZE)
		b.AddInt64(32)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(o.Digests.Hash160[:])
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(claimantHash)
	}
	b.AddOp(txscript.OP_ELSE)
	{
		// refund branch: maker takes the funds back after expiry
		b.AddInt64(o.ExpiresAt.Unix())
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		b.AddOp(txscript.OP_DROP)
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(makerHash)
	}
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)

	return b.Script()
}

func pubKeyHashOf(addr btcutil.Address) ([]byte, error) {
	switch a := addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return a.Hash160()[:], nil
	case *btcutil.AddressWitnessPubKeyHash:
		return a.Hash160()[:], nil
	}
	return nil, ErrBadMakerIdentity
}
