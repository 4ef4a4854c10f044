package api

import (
	"github.com/shopspring/decimal"

	"github.com/1foot-Labs/swapd/order"
)

// decimalPlaces maps a chain family to the shift between the human amount
// the client sends ("1.0") and the base unit the coordinator accounts in
// (satoshi, wei).
var decimalPlaces = map[order.ChainFamily]int32{
	order.ChainFamilyBtc: 8,
	order.ChainFamilyEth: 18,
}

// CreateOrderRequest is the strongly-typed boundary schema. Validation
// runs before any component is invoked; malformed bodies never reach the
// state machine.
type CreateOrderRequest struct {
	Type                  string `json:"type" binding:"required"`
	MakerAddress          string `json:"makerAddress" binding:"required"`
	CounterpartyPublicKey string `json:"counterpartyPublicKey" binding:"required"`
	Sha256                string `json:"sha256" binding:"required"`
	Hash160               string `json:"hash160" binding:"required"`
	AmountToGive          string `json:"amountToGive" binding:"required"`
	AmountToReceive       string `json:"amountToReceive" binding:"required"`
}

type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
}

type EscrowResponse struct {
	Pending             bool   `json:"pending,omitempty"`
	SourceEscrowAddress string `json:"sourceEscrowAddress,omitempty"`
	Amount              string `json:"amount,omitempty"`
}

type StatusResponse struct {
	State         string `json:"state"`
	Confirmations int64  `json:"confirmations"`
	Underfunded   bool   `json:"underfunded,omitempty"`
	FailReason    string `json:"failReason,omitempty"`
}

type ClaimRequest struct {
	Secret string `json:"secret" binding:"required"` // hex
}

type ClaimResponse struct {
	Settled bool           `json:"settled"`
	Receipt ReceiptPayload `json:"receipt"`
}

type ReceiptPayload struct {
	OrderID   string `json:"orderId"`
	SettledAt int64  `json:"settledAt"`
}

type CommitmentResponse struct {
	Secret  string `json:"secret"`
	Sha256  string `json:"sha256"`
	Hash160 string `json:"hash160"`
}

type QuoteResponse struct {
	Type            string `json:"type"`
	AmountToGive    string `json:"amountToGive"`
	AmountToReceive string `json:"amountToReceive"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// toBaseUnits converts a human decimal amount to the family's smallest
// unit, rejecting non-positive or fractional-dust values.
func toBaseUnits(human string, family order.ChainFamily) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(human)
	if err != nil || d.Sign() <= 0 {
		return decimal.Zero, false
	}
	shifted := d.Shift(decimalPlaces[family])
	if !shifted.IsInteger() {
		return decimal.Zero, false
	}
	return shifted, true
}

// fromBaseUnits renders a base-unit amount back to the human decimal the
// client displays.
func fromBaseUnits(base string, family order.ChainFamily) string {
	d, err := decimal.NewFromString(base)
	if err != nil {
		return "0"
	}
	return d.Shift(-decimalPlaces[family]).String()
}
