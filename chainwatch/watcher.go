package chainwatch

import (
	"context"
	"errors"
	"math/big"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/order"
)

const MinPollInterval = 100 * time.Millisecond

// FundingEvent is what a watch lane reports back to the coordinator.
// Reorged carries the reorg signal so the state machine can drop the order
// back to awaiting_funding.
type FundingEvent struct {
	OrderID       string
	Family        order.ChainFamily
	Amount        *big.Int
	Confirmations int64
	Reorged       bool
}

type WatcherConfig struct {
	PollInterval time.Duration
	QueryTimeout time.Duration
}

// Watcher runs the polling lanes of one chain family and publishes funding
// events to a shared channel (the coordinator is the single consumer).
type Watcher struct {
	family order.ChainFamily
	reader ChainReader
	cfg    *WatcherConfig
	events chan<- FundingEvent
}

func NewWatcher(family order.ChainFamily, reader ChainReader, cfg *WatcherConfig, events chan<- FundingEvent) *Watcher {
	if cfg.PollInterval < MinPollInterval {
		cfg.PollInterval = MinPollInterval
	}
	return &Watcher{
		family: family,
		reader: reader,
		cfg:    cfg,
		events: events,
	}
}

// Watch polls one escrow address until the context is cancelled. It is run
// as its own goroutine, one lane per order.
func (w *Watcher) Watch(ctx context.Context, orderID, address string) {
	lane := logger.WithFields(logger.Fields{
		"orderId": orderID,
		"family":  w.family,
		"address": address,
	})
	lane.Debug("watch lane started")
	defer lane.Debug("watch lane stopped")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var last *FundingStatus

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qctx, cancel := context.WithTimeout(ctx, w.cfg.QueryTimeout)
			status, err := w.reader.EscrowStatus(qctx, address)
			cancel()

			if errors.Is(err, ErrChainReorgDetected) {
				lane.Warn("funding transaction reorged out")
				last = nil
				w.publish(ctx, FundingEvent{
					OrderID: orderID,
					Family:  w.family,
					Amount:  big.NewInt(0),
					Reorged: true,
				})
				continue
			}
			if err != nil {
				// transient; state is left unchanged and the next cycle retries
				lane.Warnf("escrow query failed: %v", err)
				continue
			}

			if status == nil || status.Amount == nil || status.Amount.Sign() == 0 {
				continue
			}
			if last != nil && last.Amount.Cmp(status.Amount) == 0 &&
				last.Confirmations == status.Confirmations {
				continue
			}
			last = status

			w.publish(ctx, FundingEvent{
				OrderID:       orderID,
				Family:        w.family,
				Amount:        new(big.Int).Set(status.Amount),
				Confirmations: status.Confirmations,
			})
		}
	}
}

func (w *Watcher) publish(ctx context.Context, ev FundingEvent) {
	select {
	case <-ctx.Done():
	case w.events <- ev:
	}
}
