package chainwatch

import (
	"bytes"
	"context"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
)

type BtcReaderConfig struct {
	ServerAddr string
	Port       string
	Username   string
	Pwd        string
}

// BtcReader observes escrow funding on the UTXO chain by scanning blocks
// for outputs paying the escrow script, keeping a per-address cursor so
// each poll only visits new blocks. Confirmation depth is re-derived from
// the tip on every call.
type BtcReader struct {
	client *rpcclient.Client
	params *chaincfg.Params

	// where a fresh cursor begins scanning; -1 means the tip at first query
	startBlock int64

	mu      sync.Mutex
	cursors map[string]*btcCursor
}

// btcCursor is the per-address scan state.
type btcCursor struct {
	lastScanned int64
	funded      *big.Int
	// first funding block, used for depth and reorg detection
	fundedHeight int64
	fundedHash   chainhash.Hash
}

func NewBtcReader(cfg *BtcReaderConfig, params *chaincfg.Params, startBlock int64) (*BtcReader, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.ServerAddr + ":" + cfg.Port,
		User:         cfg.Username,
		Pass:         cfg.Pwd,
		HTTPPostMode: true, // original bitcoin only supports HTTP POST mode
		DisableTLS:   true, // original bitcoin does not support TLS
	}, nil)
	if err != nil {
		return nil, err
	}

	return &BtcReader{
		client:     client,
		params:     params,
		startBlock: startBlock,
		cursors:    make(map[string]*btcCursor),
	}, nil
}

func (r *BtcReader) Close() {
	r.client.Shutdown()
}

func (r *BtcReader) EscrowStatus(ctx context.Context, address string) (*FundingStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapCtxErr(err)
	}

	escrowAddr, err := btcutil.DecodeAddress(address, r.params)
	if err != nil {
		return nil, err
	}
	escrowScript, err := txscript.PayToAddrScript(escrowAddr)
	if err != nil {
		return nil, err
	}

	tip, err := r.client.GetBlockCount()
	if err != nil {
		return nil, err
	}

	// every cursor access below holds r.mu; rpc calls never do
	r.mu.Lock()
	cursor, ok := r.cursors[address]
	if !ok {
		start := r.startBlock
		if start < 0 || start > tip {
			start = tip
		}
		cursor = &btcCursor{lastScanned: start - 1, funded: big.NewInt(0)}
		r.cursors[address] = cursor
	}
	fundedHeight := cursor.fundedHeight
	fundedHash := cursor.fundedHash
	r.mu.Unlock()

	// reorg check first: the block we counted funding in must still be at
	// the height we saw it
	if fundedHeight > 0 && fundedHeight <= tip {
		hash, err := r.client.GetBlockHash(fundedHeight)
		if err != nil {
			return nil, err
		}
		if !hash.IsEqual(&fundedHash) {
			r.mu.Lock()
			cursor.funded = big.NewInt(0)
			cursor.fundedHeight = 0
			cursor.fundedHash = chainhash.Hash{}
			start := r.startBlock
			if start < 0 {
				// tip-started cursor: rescan the replaced segment
				start = fundedHeight
			}
			cursor.lastScanned = start - 1
			r.mu.Unlock()
			return nil, ErrChainReorgDetected
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, wrapCtxErr(err)
		}

		r.mu.Lock()
		height := cursor.lastScanned + 1
		r.mu.Unlock()
		if height > tip {
			break
		}

		hash, err := r.client.GetBlockHash(height)
		if err != nil {
			return nil, err
		}
		block, err := r.client.GetBlock(hash)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		for _, tx := range block.Transactions {
			for _, out := range tx.TxOut {
				if !bytes.Equal(out.PkScript, escrowScript) {
					continue
				}
				cursor.funded = new(big.Int).Add(cursor.funded, big.NewInt(out.Value))
				if cursor.fundedHeight == 0 {
					cursor.fundedHeight = height
					cursor.fundedHash = *hash
				}
			}
		}
		cursor.lastScanned = height
		r.mu.Unlock()
	}

	r.mu.Lock()
	status := &FundingStatus{Amount: new(big.Int).Set(cursor.funded)}
	if cursor.fundedHeight > 0 {
		status.Confirmations = tip - cursor.fundedHeight + 1
	}
	r.mu.Unlock()
	return status, nil
}
