package escrow

import (
	"encoding/binary"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/1foot-Labs/swapd/order"
)

// vaultSalt namespaces the derivation so unrelated keccak preimages in the
// wild cannot collide with a vault address.
var vaultSalt = []byte("swapd/eth-escrow/v1")

// deriveEth computes the deterministic account-chain vault address, in the
// CREATE2 spirit: keccak over a fixed salt and every field that pins the
// lock condition, truncated to the 20-byte address tail. Any party holding
// the same order fields derives the same vault.
func (l *Locator) deriveEth(o *order.Order) (string, error) {
	if !ethcommon.IsHexAddress(o.MakerIdentity) {
		return "", ErrBadMakerIdentity
	}
	if len(o.CounterpartyPubKey) == 0 {
		return "", ErrBadCounterpartyKey
	}

	maker := ethcommon.HexToAddress(o.MakerIdentity)

	var expiry [8]byte
	binary.BigEndian.PutUint64(expiry[:], uint64(o.ExpiresAt.Unix()))

	digest := crypto.Keccak256(
		vaultSalt,
		maker.Bytes(),
		o.CounterpartyPubKey,
		o.Digests.Sha256[:],
		expiry[:],
	)

	return ethcommon.BytesToAddress(digest[12:]).Hex(), nil
}
