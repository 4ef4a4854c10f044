package chainwatch

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1foot-Labs/swapd/order"
)

// fakeReader scripts a sequence of answers, one per poll.
type fakeReader struct {
	mu      sync.Mutex
	answers []fakeAnswer
	calls   int
}

type fakeAnswer struct {
	status *FundingStatus
	err    error
}

func (f *fakeReader) EscrowStatus(ctx context.Context, address string) (*FundingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.answers) {
		i = len(f.answers) - 1
	}
	a := f.answers[i]
	return a.status, a.err
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func collect(t *testing.T, events <-chan FundingEvent, n int, timeout time.Duration) []FundingEvent {
	t.Helper()
	var got []FundingEvent
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(got))
		}
	}
	return got
}

func newTestWatcher(reader ChainReader, events chan FundingEvent) *Watcher {
	return NewWatcher(order.ChainFamilyBtc, reader, &WatcherConfig{
		PollInterval: MinPollInterval,
		QueryTimeout: time.Second,
	}, events)
}

func TestWatcherReportsFunding(t *testing.T) {
	reader := &fakeReader{answers: []fakeAnswer{
		{status: &FundingStatus{Amount: big.NewInt(0)}},
		{status: &FundingStatus{Amount: big.NewInt(100), Confirmations: 1}},
		{status: &FundingStatus{Amount: big.NewInt(100), Confirmations: 6}},
	}}
	events := make(chan FundingEvent, 10)
	w := newTestWatcher(reader, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx, "order-1", "addr-1")

	got := collect(t, events, 2, 5*time.Second)
	assert.Equal(t, "order-1", got[0].OrderID)
	assert.Zero(t, got[0].Amount.Cmp(big.NewInt(100)))
	assert.Equal(t, int64(1), got[0].Confirmations)
	assert.Equal(t, int64(6), got[1].Confirmations)
	assert.False(t, got[0].Reorged)
}

func TestWatcherDedupsUnchangedStatus(t *testing.T) {
	reader := &fakeReader{answers: []fakeAnswer{
		{status: &FundingStatus{Amount: big.NewInt(100), Confirmations: 6}},
	}}
	events := make(chan FundingEvent, 10)
	w := newTestWatcher(reader, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx, "order-1", "addr-1")

	collect(t, events, 1, 5*time.Second)

	// identical answers keep coming; no further events should arrive
	select {
	case ev := <-events:
		t.Fatalf("unexpected duplicate event: %+v", ev)
	case <-time.After(5 * MinPollInterval):
	}
}

// a timeout is transient: nothing is emitted, the lane keeps polling
func TestWatcherRetriesAfterTimeout(t *testing.T) {
	reader := &fakeReader{answers: []fakeAnswer{
		{err: ErrChainQueryTimeout},
		{err: ErrChainQueryTimeout},
		{status: &FundingStatus{Amount: big.NewInt(42), Confirmations: 3}},
	}}
	events := make(chan FundingEvent, 10)
	w := newTestWatcher(reader, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx, "order-1", "addr-1")

	got := collect(t, events, 1, 5*time.Second)
	assert.Zero(t, got[0].Amount.Cmp(big.NewInt(42)))
	require.GreaterOrEqual(t, reader.callCount(), 3)
}

func TestWatcherSignalsReorg(t *testing.T) {
	reader := &fakeReader{answers: []fakeAnswer{
		{status: &FundingStatus{Amount: big.NewInt(100), Confirmations: 6}},
		{err: ErrChainReorgDetected},
	}}
	events := make(chan FundingEvent, 10)
	w := newTestWatcher(reader, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx, "order-1", "addr-1")

	got := collect(t, events, 2, 5*time.Second)
	assert.False(t, got[0].Reorged)
	assert.True(t, got[1].Reorged)
	assert.Zero(t, got[1].Amount.Sign())
}

func TestWatcherStopsOnCancel(t *testing.T) {
	reader := &fakeReader{answers: []fakeAnswer{
		{status: &FundingStatus{Amount: big.NewInt(0)}},
	}}
	events := make(chan FundingEvent) // unbuffered, nobody reads
	w := newTestWatcher(reader, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Watch(ctx, "order-1", "addr-1")
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch lane did not stop on cancel")
	}
}
