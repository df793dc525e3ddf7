package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forkline/reconciliation/internal/domain/event"
)

func testEvent(t event.Type) *event.Event {
	return event.New(t, "rec-1", "ord-1", map[string]interface{}{"confidence": 0.95})
}

func TestDispatcher_Dispatch(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	var received []*event.Event
	d.Subscribe(event.TypeReconciliationCompleted, func(ctx context.Context, evt *event.Event) error {
		received = append(received, evt)
		return nil
	})

	evt := testEvent(event.TypeReconciliationCompleted)
	err := d.Dispatch(context.Background(), evt)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, evt.ID, received[0].ID)
}

func TestDispatcher_DispatchOnlyMatchingType(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	calls := 0
	d.Subscribe(event.TypeReconciliationDisputed, func(ctx context.Context, evt *event.Event) error {
		calls++
		return nil
	})

	err := d.Dispatch(context.Background(), testEvent(event.TypeReconciliationCompleted))
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestDispatcher_HandlerErrorStopsChain(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	secondCalled := false
	d.SubscribeNamed(event.TypeReconciliationCompleted, "failing", func(ctx context.Context, evt *event.Event) error {
		return fmt.Errorf("ledger write failed")
	})
	d.SubscribeNamed(event.TypeReconciliationCompleted, "after", func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), testEvent(event.TypeReconciliationCompleted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.False(t, secondCalled)
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	d.SubscribeNamed(event.TypeReconciliationCompleted, "panicky", func(ctx context.Context, evt *event.Event) error {
		panic("sink blew up")
	})

	err := d.Dispatch(context.Background(), testEvent(event.TypeReconciliationCompleted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	calls := 0
	d.SubscribeNamed(event.TypeReconciliationCompleted, "sink", func(ctx context.Context, evt *event.Event) error {
		calls++
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), testEvent(event.TypeReconciliationCompleted)))
	d.Unsubscribe(event.TypeReconciliationCompleted, "sink")
	require.NoError(t, d.Dispatch(context.Background(), testEvent(event.TypeReconciliationCompleted)))

	assert.Equal(t, 1, calls)
}

func TestDispatcher_DispatchAsyncWaitsOnClose(t *testing.T) {
	d := New(zap.NewNop())

	var mu sync.Mutex
	calls := 0
	d.Subscribe(event.TypeReconciliationCompleted, func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})

	for i := 0; i < 10; i++ {
		d.DispatchAsync(context.Background(), testEvent(event.TypeReconciliationCompleted))
	}

	require.NoError(t, d.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, calls)
}

func TestDispatcher_ClosedRejectsDispatch(t *testing.T) {
	d := New(zap.NewNop())
	require.NoError(t, d.Close())

	err := d.Dispatch(context.Background(), testEvent(event.TypeReconciliationCompleted))
	assert.Error(t, err)
}
