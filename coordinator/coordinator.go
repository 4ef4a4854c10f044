/*
Package coordinator drives the swap lifecycle end to end: it creates
orders, derives their escrows, runs one watch lane per awaiting order,
folds funding events into the state machine and sweeps expired orders.

It is the single consumer of the funding event channel, so every state
transition funnels through the registry's per-order locking in one place.
*/
package coordinator

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/chainwatch"
	"github.com/1foot-Labs/swapd/escrow"
	"github.com/1foot-Labs/swapd/order"
	"github.com/1foot-Labs/swapd/settlement"
)

type Config struct {
	PollInterval  time.Duration
	QueryTimeout  time.Duration
	SweepInterval time.Duration
	OrderTTL      time.Duration
	ChannelSize   int

	// chain-specific safety depth before funding counts
	ConfirmationThresholds map[order.ChainFamily]int64
}

type Coordinator struct {
	cfg     *Config
	reg     *order.Registry
	locator *escrow.Locator
	trigger *settlement.Trigger

	events   chan chainwatch.FundingEvent
	watchers map[order.ChainFamily]*chainwatch.Watcher

	mu      sync.Mutex
	baseCtx context.Context
	lanes   map[string]context.CancelFunc
}

func New(
	cfg *Config,
	reg *order.Registry,
	locator *escrow.Locator,
	signer settlement.Signer,
	readers map[order.ChainFamily]chainwatch.ChainReader,
) *Coordinator {
	events := make(chan chainwatch.FundingEvent, cfg.ChannelSize)

	watchers := make(map[order.ChainFamily]*chainwatch.Watcher, len(readers))
	for family, reader := range readers {
		watchers[family] = chainwatch.NewWatcher(family, reader, &chainwatch.WatcherConfig{
			PollInterval: cfg.PollInterval,
			QueryTimeout: cfg.QueryTimeout,
		}, events)
	}

	return &Coordinator{
		cfg:      cfg,
		reg:      reg,
		locator:  locator,
		trigger:  settlement.NewTrigger(reg, signer),
		events:   events,
		watchers: watchers,
		lanes:    make(map[string]context.CancelFunc),
	}
}

// Start runs the coordinator loop until the context is cancelled. Watch
// lanes for orders that were awaiting funding before a restart are resumed
// first; their state came back from the orderdb.
func (c *Coordinator) Start(ctx context.Context) error {
	logger.Info("starting swap coordinator")
	defer logger.Info("stopping swap coordinator")

	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	if err := c.resumeLanes(); err != nil {
		return err
	}

	sweep := time.NewTicker(c.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handleFunding(ev)
		case <-sweep.C:
			c.sweepExpired(time.Now().UTC())
		}
	}
}

// CreateOrder persists the order, derives its escrow address immediately
// and opens a watch lane on the source chain. A derivation failure is an
// unrecoverable protocol violation: the order is moved to failed with a
// diagnostic reason and the cause is surfaced to the boundary.
func (c *Coordinator) CreateOrder(spec order.CreateSpec) (*order.Order, error) {
	if spec.TTL <= 0 {
		spec.TTL = c.cfg.OrderTTL
	}

	o, err := c.reg.Create(spec)
	if err != nil {
		return nil, err
	}

	var deriveErr error
	err = c.reg.With(o.ID, func(o *order.Order) error {
		addr, derr := c.locator.Derive(o)
		if derr != nil {
			deriveErr = derr
			return o.MarkFailed("escrow derivation: " + derr.Error())
		}
		if derr := c.locator.DestinationSatisfiable(o); derr != nil {
			deriveErr = derr
			return o.MarkFailed("destination lock unsatisfiable: " + derr.Error())
		}
		return o.MarkEscrowDerived(addr)
	})
	if err != nil {
		return nil, err
	}
	if deriveErr != nil {
		return nil, deriveErr
	}

	refreshed, err := c.reg.Get(o.ID)
	if err != nil {
		return nil, err
	}

	c.startLane(refreshed)
	return refreshed, nil
}

// GetOrder returns a snapshot for the boundary layer.
func (c *Coordinator) GetOrder(id string) (*order.Order, error) {
	return c.reg.Get(id)
}

// ListOrders enumerates orders, optionally filtered by state.
func (c *Coordinator) ListOrders(states ...order.State) ([]*order.Order, error) {
	return c.reg.List(states...)
}

// Claim delegates to the settlement trigger and closes the watch lane once
// the order settled.
func (c *Coordinator) Claim(ctx context.Context, orderID string, secret []byte) (*settlement.Receipt, error) {
	receipt, err := c.trigger.Claim(ctx, orderID, secret)
	if err != nil {
		return nil, err
	}
	c.stopLane(orderID)
	return receipt, nil
}

func (c *Coordinator) resumeLanes() error {
	open, err := c.reg.List(order.StateAwaitingFunding, order.StateFunded)
	if err != nil {
		return err
	}
	for _, o := range open {
		c.startLane(o)
	}
	if len(open) > 0 {
		logger.WithField("count", len(open)).Info("resumed watch lanes after restart")
	}
	return nil
}

// startLane opens the polling lane for an order's source escrow. Nothing
// happens when the coordinator loop isn't running yet; resumeLanes picks
// the order up at Start.
func (c *Coordinator) startLane(o *order.Order) {
	w, ok := c.watchers[o.Direction.Source()]
	if !ok || o.SourceEscrowAddress == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseCtx == nil {
		return
	}
	if _, running := c.lanes[o.ID]; running {
		return
	}

	laneCtx, cancel := context.WithCancel(c.baseCtx)
	c.lanes[o.ID] = cancel
	go w.Watch(laneCtx, o.ID, o.SourceEscrowAddress)
}

func (c *Coordinator) stopLane(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.lanes[orderID]; ok {
		cancel()
		delete(c.lanes, orderID)
	}
}

func (c *Coordinator) handleFunding(ev chainwatch.FundingEvent) {
	threshold := c.cfg.ConfirmationThresholds[ev.Family]
	now := time.Now().UTC()

	var laneDone bool
	err := c.reg.With(ev.OrderID, func(o *order.Order) error {
		// late events for an order that already progressed are dropped
		if o.State != order.StateAwaitingFunding && o.State != order.StateFunded {
			return nil
		}

		if ev.Reorged {
			// the reorg signal reverts on its own authority; any balance the
			// observer reports alongside it no longer carries its old depth
			logger.WithField("orderId", o.ID).Warn("funding reorged out, order back to awaiting")
			return o.ApplyReorg(ev.Amount, ev.Confirmations)
		}

		if err := o.ApplyFunding(ev.Amount, ev.Confirmations, threshold, now); err != nil {
			return err
		}

		if o.Underfunded() {
			logger.WithFields(logger.Fields{
				"orderId":  o.ID,
				"funded":   o.FundedAmount,
				"expected": o.AmountToGive,
			}).Warn("escrow is underfunded")
		}

		if o.State == order.StateFunded {
			if err := c.locator.DestinationSatisfiable(o); err != nil {
				// digest/key material that cannot lock the destination is
				// unrecoverable
				return o.MarkFailed("destination lock unsatisfiable: " + err.Error())
			}
			if err := o.MarkClaimable(); err != nil {
				return err
			}
			logger.WithField("orderId", o.ID).Info("Order Claimable")
		}

		laneDone = o.State.Terminal() || o.State == order.StateClaimable
		return nil
	})
	if err != nil {
		logger.WithField("orderId", ev.OrderID).Errorf("failed to apply funding event: %v", err)
		return
	}
	if laneDone {
		c.stopLane(ev.OrderID)
	}
}

// sweepExpired is the cancellation mechanism: there is no user-initiated
// cancel before expiry, since that could race a legitimate in-flight
// claim.
func (c *Coordinator) sweepExpired(now time.Time) {
	open, err := c.reg.List(order.StateAwaitingFunding, order.StateFunded, order.StateClaimable)
	if err != nil {
		logger.Errorf("expiry sweep failed to list orders: %v", err)
		return
	}

	for _, o := range open {
		if !o.ExpiredAt(now) {
			continue
		}
		err := c.reg.With(o.ID, func(o *order.Order) error {
			if o.State.Terminal() {
				return nil // settled in the meantime
			}
			return o.MarkExpired(now)
		})
		if err != nil {
			logger.WithField("orderId", o.ID).Errorf("failed to expire order: %v", err)
			continue
		}
		logger.WithField("orderId", o.ID).Info("Order Expired")
		c.stopLane(o.ID)
	}
}
