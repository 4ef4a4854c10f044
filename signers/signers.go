// This file contains
// LocalPayoutSigner (in-process key) that implements the settlement.Signer interface
// NopPayoutSigner (log only) for setups where payout is handled out of band
package signers

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/order"
)

// LocalPayoutSigner authorizes destination payouts with a single in-process
// ecdsa key. It signs a binding over the order id, the revealed secret and
// the committed digest; the destination chain's wallet service verifies
// that signature before it releases funds.
type LocalPayoutSigner struct {
	priv *ecdsa.PrivateKey
}

func NewLocalPayoutSigner(privHex string) (*LocalPayoutSigner, error) {
	priv, err := ethcrypto.HexToECDSA(privHex)
	if err != nil {
		return nil, err
	}
	return &LocalPayoutSigner{priv: priv}, nil
}

// Create a signer with a freshly generated key. Test environments only.
func NewRandomLocalPayoutSigner() (*LocalPayoutSigner, error) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &LocalPayoutSigner{priv: priv}, nil
}

func (s *LocalPayoutSigner) PublicKeyHex() string {
	return hex.EncodeToString(ethcrypto.FromECDSAPub(&s.priv.PublicKey))
}

func (s *LocalPayoutSigner) Authorize(ctx context.Context, o *order.Order, secret []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sha := o.Digests.Sha256
	digest := ethcrypto.Keccak256([]byte(o.ID), secret, sha[:])
	sig, err := ethcrypto.Sign(digest, s.priv)
	if err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"orderId":     o.ID,
		"destination": o.Direction.Destination(),
		"signature":   hex.EncodeToString(sig),
	}).Info("payout authorized")
	return nil
}

// NopPayoutSigner records the authorization and does nothing else.
type NopPayoutSigner struct{}

func (NopPayoutSigner) Authorize(ctx context.Context, o *order.Order, secret []byte) error {
	logger.WithFields(logger.Fields{
		"orderId":     o.ID,
		"destination": o.Direction.Destination(),
	}).Info("payout authorization skipped, no signer configured")
	return nil
}
