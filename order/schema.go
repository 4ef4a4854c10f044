package order

var (
	// table that stores the life cycle of a swap order
	orderTable = `CREATE TABLE IF NOT EXISTS swap_order (
		id CHAR(36) PRIMARY KEY NOT NULL,
		direction VARCHAR(10) NOT NULL,
		maker VARCHAR(64) NOT NULL,
		counterpartyPubKey BLOB NOT NULL,
		sha256Digest CHAR(64) NOT NULL,
		hash160Digest CHAR(40) NOT NULL,
		amountToGive VARCHAR(40) NOT NULL,
		amountToReceive VARCHAR(40) NOT NULL,
		escrowAddress VARCHAR(80),
		state VARCHAR(20) NOT NULL,
		failReason TEXT,
		fundedAmount VARCHAR(40),
		confirmations BIGINT NOT NULL DEFAULT 0,
		createdAt BIGINT NOT NULL,
		expiresAt BIGINT NOT NULL,
		CONSTRAINT chk_direction CHECK (direction IN ('btc_eth', 'eth_btc')),
		CONSTRAINT chk_state CHECK (state IN (
			'created', 'escrow_derived', 'awaiting_funding', 'funded',
			'claimable', 'settled', 'expired', 'failed')),
		CONSTRAINT chk_expiry CHECK (expiresAt > createdAt)
	);`

	// table that stores one settlement receipt per settled order
	receiptTable = `CREATE TABLE IF NOT EXISTS settlement_receipt (
		orderId CHAR(36) PRIMARY KEY NOT NULL,
		secret CHAR(128) NOT NULL,
		settledAt BIGINT NOT NULL,
		FOREIGN KEY (orderId) REFERENCES swap_order(id)
	);`

	orderParamList = ` id, direction, maker, counterpartyPubKey, sha256Digest,
		hash160Digest, amountToGive, amountToReceive, escrowAddress, state,
		failReason, fundedAmount, confirmations, createdAt, expiresAt `
)
