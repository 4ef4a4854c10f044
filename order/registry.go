package order

import (
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/commitment"
)

// CreateSpec carries the validated boundary input for a new order.
type CreateSpec struct {
	Direction          Direction
	MakerIdentity      string
	CounterpartyPubKey []byte
	Digests            commitment.DigestSet
	AmountToGive       *big.Int
	AmountToReceive    *big.Int
	TTL                time.Duration
}

// Registry is the process-wide collection of in-flight and completed
// orders, shared between the observer lanes and the boundary API. Reads go
// straight to the db and may proceed concurrently; every mutation of a
// given order runs under that order's own lock, so funding events and claim
// attempts for the same order can never interleave, while unrelated orders
// stay fully parallel.
type Registry struct {
	db *OrderDB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry(db *OrderDB) *Registry {
	return &Registry{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// Create validates the spec, assigns a collision-resistant id and persists
// the order in state created. The id is never reassigned or reused.
func (r *Registry) Create(spec CreateSpec) (*Order, error) {
	if !spec.Direction.Valid() {
		return nil, ErrBadDirection
	}
	if spec.MakerIdentity == "" {
		return nil, ErrNoMaker
	}
	if spec.Digests.IsZero() {
		return nil, ErrNoDigests
	}
	if spec.AmountToGive == nil || spec.AmountToGive.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if spec.AmountToReceive == nil || spec.AmountToReceive.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if spec.TTL <= 0 {
		return nil, ErrInvalidExpiry
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	o := &Order{
		ID:                 uuid.NewString(),
		Direction:          spec.Direction,
		MakerIdentity:      spec.MakerIdentity,
		CounterpartyPubKey: spec.CounterpartyPubKey,
		Digests:            spec.Digests,
		AmountToGive:       new(big.Int).Set(spec.AmountToGive),
		AmountToReceive:    new(big.Int).Set(spec.AmountToReceive),
		State:              StateCreated,
		CreatedAt:          now,
		ExpiresAt:          now.Add(spec.TTL),
	}

	if err := r.db.InsertOrder(o); err != nil {
		logger.WithField("orderId", o.ID).Errorf("failed to insert order: %v", err)
		return nil, ErrInsertOrder
	}

	logger.WithFields(logger.Fields{
		"orderId":   o.ID,
		"direction": o.Direction,
		"give":      o.AmountToGive,
		"receive":   o.AmountToReceive,
	}).Info("Order Created")

	return o, nil
}

// Get returns a snapshot of the order, or ErrNotFound. NotFound is an
// expected, non-fatal condition (e.g. a client polling before propagation).
func (r *Registry) Get(id string) (*Order, error) {
	o, ok, err := r.db.GetOrder(id)
	if err != nil {
		return nil, ErrGetOrder
	}
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// List enumerates orders, optionally filtered by state.
func (r *Registry) List(states ...State) ([]*Order, error) {
	return r.db.ListByStates(states...)
}

// With runs fn on the order under the per-order lock and persists the
// result when fn succeeds. This is the single shared-mutation point; every
// state transition in the system goes through here.
func (r *Registry) With(id string, fn func(o *Order) error) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	o, ok, err := r.db.GetOrder(id)
	if err != nil {
		return ErrGetOrder
	}
	if !ok {
		return ErrNotFound
	}

	if err := fn(o); err != nil {
		return err
	}

	if err := r.db.UpdateOrder(o); err != nil {
		logger.WithField("orderId", id).Errorf("failed to update order: %v", err)
		return ErrUpdateOrder
	}

	// a terminal order is immutable, so its lock has no further use; drop
	// the map entry or the registry grows one mutex per order forever
	if o.State.Terminal() {
		r.dropLock(id)
	}
	return nil
}

// RecordReceipt persists the settlement receipt. Called by the settlement
// trigger while it still holds the order lock via With.
func (r *Registry) RecordReceipt(orderID string, secret []byte, settledAt time.Time) error {
	return r.db.InsertReceipt(orderID, secret, settledAt)
}

// Receipt fetches a recorded settlement receipt, if any.
func (r *Registry) Receipt(orderID string) ([]byte, time.Time, bool, error) {
	return r.db.GetReceipt(orderID)
}

func (r *Registry) dropLock(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, id)
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}
