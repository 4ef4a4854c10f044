package order

import (
	"database/sql"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/1foot-Labs/swapd/commitment"
)

// sqlOrder mirrors the swap_order table. Big integers travel as decimal
// strings, times as unix milliseconds, digests as unprefixed hex.
type sqlOrder struct {
	ID                 string
	Direction          string
	Maker              string
	CounterpartyPubKey []byte
	Sha256Digest       string
	Hash160Digest      string
	AmountToGive       string
	AmountToReceive    string
	EscrowAddress      sql.NullString
	State              string
	FailReason         sql.NullString
	FundedAmount       sql.NullString
	Confirmations      int64
	CreatedAt          int64
	ExpiresAt          int64
}

func (s *sqlOrder) encode(o *Order) *sqlOrder {
	s.ID = o.ID
	s.Direction = string(o.Direction)
	s.Maker = o.MakerIdentity
	s.CounterpartyPubKey = o.CounterpartyPubKey
	s.Sha256Digest = o.Digests.Sha256Hex()
	s.Hash160Digest = o.Digests.Hash160Hex()
	s.AmountToGive = o.AmountToGive.String()
	s.AmountToReceive = o.AmountToReceive.String()
	if o.SourceEscrowAddress != "" {
		s.EscrowAddress = sql.NullString{String: o.SourceEscrowAddress, Valid: true}
	}
	s.State = string(o.State)
	if o.FailReason != "" {
		s.FailReason = sql.NullString{String: o.FailReason, Valid: true}
	}
	if o.FundedAmount != nil {
		s.FundedAmount = sql.NullString{String: o.FundedAmount.String(), Valid: true}
	}
	s.Confirmations = o.Confirmations
	s.CreatedAt = o.CreatedAt.UnixMilli()
	s.ExpiresAt = o.ExpiresAt.UnixMilli()
	return s
}

func (s *sqlOrder) decode() (*Order, error) {
	digests, err := commitment.ParseDigestSet(s.Sha256Digest, s.Hash160Digest)
	if err != nil {
		return nil, err
	}

	give, ok := new(big.Int).SetString(s.AmountToGive, 10)
	if !ok {
		return nil, ErrGetOrder
	}
	receive, ok := new(big.Int).SetString(s.AmountToReceive, 10)
	if !ok {
		return nil, ErrGetOrder
	}

	o := &Order{
		ID:                 s.ID,
		Direction:          Direction(s.Direction),
		MakerIdentity:      s.Maker,
		CounterpartyPubKey: s.CounterpartyPubKey,
		Digests:            digests,
		AmountToGive:       give,
		AmountToReceive:    receive,
		State:              State(s.State),
		Confirmations:      s.Confirmations,
		CreatedAt:          time.UnixMilli(s.CreatedAt).UTC(),
		ExpiresAt:          time.UnixMilli(s.ExpiresAt).UTC(),
	}
	if s.EscrowAddress.Valid {
		o.SourceEscrowAddress = s.EscrowAddress.String
	}
	if s.FailReason.Valid {
		o.FailReason = s.FailReason.String
	}
	if s.FundedAmount.Valid {
		funded, ok := new(big.Int).SetString(s.FundedAmount.String, 10)
		if !ok {
			return nil, ErrGetOrder
		}
		o.FundedAmount = funded
	}
	return o, nil
}

// sqlReceipt mirrors the settlement_receipt table.
type sqlReceipt struct {
	OrderID   string
	Secret    string
	SettledAt int64
}

func (s *sqlReceipt) encode(orderID string, secret []byte, settledAt time.Time) *sqlReceipt {
	s.OrderID = orderID
	s.Secret = hex.EncodeToString(secret)
	s.SettledAt = settledAt.UnixMilli()
	return s
}
