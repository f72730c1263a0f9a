package alert

import (
	"context"
	"fmt"
	"testing"
	"time"

	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/model"

	"github.com/stretchr/testify/require"
)

func testAlert(target string) model.Alert {
	return model.Alert{
		ID:       target,
		Type:     model.AlertCentralityShift,
		TargetID: target,
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster(8, metrics.New(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s1 := b.Subscribe(ctx)
	s2 := b.Subscribe(ctx)
	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(testAlert("10.0.0.1"))

	for _, sub := range []*Subscriber{s1, s2} {
		select {
		case alert := <-sub.Alerts():
			require.Equal(t, "10.0.0.1", alert.TargetID)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s never received the alert", sub.ID())
		}
	}
}

func TestBroadcastDropsOldestWhenSubscriberLags(t *testing.T) {
	b := NewBroadcaster(2, metrics.New(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.Subscribe(ctx)

	// Nobody reads: the buffer holds 2, so the first of three publishes
	// is evicted to make room for the last.
	for i := 0; i < 3; i++ {
		b.Publish(testAlert(fmt.Sprintf("10.0.0.%d", i)))
	}

	first := <-sub.Alerts()
	second := <-sub.Alerts()
	require.Equal(t, "10.0.0.1", first.TargetID)
	require.Equal(t, "10.0.0.2", second.TargetID)
}

func TestUnsubscribeClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewBroadcaster(8, metrics.New(), testLogger())
	sub := b.Subscribe(context.Background())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Alerts()
	require.False(t, open)

	// Publishing after the last subscriber left must not panic.
	b.Publish(testAlert("10.0.0.1"))
}

func TestContextCancelRemovesSubscriber(t *testing.T) {
	b := NewBroadcaster(8, metrics.New(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}
