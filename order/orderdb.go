package order

import (
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/1foot-Labs/swapd/database"
)

// OrderDB is the durable backing of the swap registry. Orders and their
// state survive a coordinator restart; terminal orders are retained
// read-only for audit.
type OrderDB struct {
	stmtCache *database.StmtCache
}

func NewOrderDB(db *sql.DB) (*OrderDB, error) {
	if _, err := db.Exec(orderTable + receiptTable); err != nil {
		return nil, err
	}
	return &OrderDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (odb *OrderDB) Close() {
	odb.stmtCache.Clear()
}

func (odb *OrderDB) InsertOrder(o *Order) error {
	query := `INSERT INTO swap_order (` + orderParamList + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := odb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	s := new(sqlOrder).encode(o)
	if _, err := stmt.Exec(
		s.ID, s.Direction, s.Maker, s.CounterpartyPubKey, s.Sha256Digest,
		s.Hash160Digest, s.AmountToGive, s.AmountToReceive, s.EscrowAddress,
		s.State, s.FailReason, s.FundedAmount, s.Confirmations, s.CreatedAt,
		s.ExpiresAt,
	); err != nil {
		return err
	}
	return nil
}

// UpdateOrder persists the mutable tail of an order. Identity fields
// (direction, maker, digests, amounts, creation time) never change after
// insert and are deliberately not part of the statement.
func (odb *OrderDB) UpdateOrder(o *Order) error {
	query := `UPDATE swap_order SET
		escrowAddress = ?, state = ?, failReason = ?, fundedAmount = ?,
		confirmations = ? WHERE id = ?`
	stmt, err := odb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	s := new(sqlOrder).encode(o)
	res, err := stmt.Exec(
		s.EscrowAddress, s.State, s.FailReason, s.FundedAmount,
		s.Confirmations, s.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (odb *OrderDB) GetOrder(id string) (*Order, bool, error) {
	query := `SELECT ` + orderParamList + ` FROM swap_order WHERE id = ?`
	stmt, err := odb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var s sqlOrder
	err = stmt.QueryRow(id).Scan(
		&s.ID, &s.Direction, &s.Maker, &s.CounterpartyPubKey, &s.Sha256Digest,
		&s.Hash160Digest, &s.AmountToGive, &s.AmountToReceive, &s.EscrowAddress,
		&s.State, &s.FailReason, &s.FundedAmount, &s.Confirmations, &s.CreatedAt,
		&s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	o, err := s.decode()
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// ListByStates returns all orders currently in any of the given states,
// oldest first. An empty state list returns every order.
func (odb *OrderDB) ListByStates(states ...State) ([]*Order, error) {
	query := `SELECT ` + orderParamList + ` FROM swap_order`
	args := make([]interface{}, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (?` + repeatPlaceholder(len(states)-1) + `)`
		for _, st := range states {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY createdAt ASC`

	stmt, err := odb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var s sqlOrder
		if err := rows.Scan(
			&s.ID, &s.Direction, &s.Maker, &s.CounterpartyPubKey, &s.Sha256Digest,
			&s.Hash160Digest, &s.AmountToGive, &s.AmountToReceive, &s.EscrowAddress,
			&s.State, &s.FailReason, &s.FundedAmount, &s.Confirmations, &s.CreatedAt,
			&s.ExpiresAt,
		); err != nil {
			return nil, err
		}
		o, err := s.decode()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// InsertReceipt persists the settlement decision. Keyed on the order id and
// deliberately idempotent: the receipt commits before the order row update,
// so a claim retried after a transient update failure must be able to run
// the whole settled transition again without tripping on its own receipt.
func (odb *OrderDB) InsertReceipt(orderID string, secret []byte, settledAt time.Time) error {
	query := `INSERT OR IGNORE INTO settlement_receipt (orderId, secret, settledAt) VALUES (?, ?, ?)`
	stmt, err := odb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	s := new(sqlReceipt).encode(orderID, secret, settledAt)
	if _, err := stmt.Exec(s.OrderID, s.Secret, s.SettledAt); err != nil {
		return err
	}
	return nil
}

func (odb *OrderDB) GetReceipt(orderID string) (secret []byte, settledAt time.Time, ok bool, err error) {
	query := `SELECT secret, settledAt FROM settlement_receipt WHERE orderId = ?`
	stmt, err := odb.stmtCache.Prepare(query)
	if err != nil {
		return nil, time.Time{}, false, err
	}

	var s sqlReceipt
	if err := stmt.QueryRow(orderID).Scan(&s.Secret, &s.SettledAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}

	raw, err := hex.DecodeString(s.Secret)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return raw, time.UnixMilli(s.SettledAt).UTC(), true, nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
