package chainwatch

import (
	"context"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthReader observes escrow funding on the account chain. The vault is a
// plain balance check: confirmations are counted from the block at which
// the expected balance was first seen. A balance that later shrinks below
// what was recorded means the funding transaction was reorged out.
type EthReader struct {
	client *ethclient.Client

	mu      sync.Mutex
	cursors map[string]*ethCursor
}

type ethCursor struct {
	seenBlock   uint64
	seenBalance *big.Int
}

func NewEthReader(rpcURL string) (*EthReader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthReader{
		client:  client,
		cursors: make(map[string]*ethCursor),
	}, nil
}

func (r *EthReader) Close() {
	r.client.Close()
}

func (r *EthReader) EscrowStatus(ctx context.Context, address string) (*FundingStatus, error) {
	vault := ethcommon.HexToAddress(address)

	balance, err := r.client.BalanceAt(ctx, vault, nil)
	if err != nil {
		return nil, wrapCtxErr(err)
	}
	tip, err := r.client.BlockNumber(ctx)
	if err != nil {
		return nil, wrapCtxErr(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cursor, ok := r.cursors[address]
	if !ok {
		cursor = &ethCursor{}
		r.cursors[address] = cursor
	}

	if cursor.seenBalance != nil && balance.Cmp(cursor.seenBalance) < 0 {
		cursor.seenBlock = 0
		cursor.seenBalance = nil
		return nil, ErrChainReorgDetected
	}

	if balance.Sign() > 0 {
		if cursor.seenBalance == nil || balance.Cmp(cursor.seenBalance) > 0 {
			// new funds: depth restarts from the block we first saw them
			cursor.seenBlock = tip
		}
		cursor.seenBalance = new(big.Int).Set(balance)
	}

	status := &FundingStatus{Amount: new(big.Int).Set(balance)}
	if cursor.seenBlock > 0 && tip >= cursor.seenBlock {
		status.Confirmations = int64(tip-cursor.seenBlock) + 1
	}
	return status, nil
}
