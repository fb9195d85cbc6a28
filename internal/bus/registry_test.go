package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/courier/internal/topics"
)

func waitDone(t *testing.T, done <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestRegistryPublishOrder(t *testing.T) {
	reg := NewRegistry(nil)

	sub, err := reg.Subscribe(topics.FromTask, "s1")
	require.NoError(t, err)

	require.NoError(t, reg.Publish(topics.FromTask, MustNew("kindA", nil)))
	require.NoError(t, reg.Publish(topics.FromTask, MustNew("kindB", nil)))

	e, ok := sub.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "kindA", e.Kind)

	e, ok = sub.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "kindB", e.Kind)
}

func TestRegistryFanOutReachesEverySubscriber(t *testing.T) {
	reg := NewRegistry(nil)

	const subscribers = 4
	subs := make([]*Subscription, subscribers)
	for i, name := range []string{"s1", "s2", "s3", "s4"} {
		sub, err := reg.Subscribe(topics.FromUI, name)
		require.NoError(t, err)
		subs[i] = sub
	}

	published := []string{"one", "two", "three"}
	for _, kind := range published {
		require.NoError(t, reg.Publish(topics.FromUI, MustNew(kind, nil)))
	}

	// Every subscriber sees every envelope in publish order.
	for _, sub := range subs {
		for _, kind := range published {
			e, ok := sub.Next(time.Second)
			require.True(t, ok)
			assert.Equal(t, kind, e.Kind)
		}
	}
}

func TestRegistryPublishUnknownTopicIsNoOp(t *testing.T) {
	reg := NewRegistry(nil)
	assert.NoError(t, reg.Publish(topics.Topic{}, MustNew("data_update", nil)))
}

func TestRegistrySubscribeValidation(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.Subscribe(topics.Topic{}, "s1")
	assert.ErrorIs(t, err, ErrUnknownTopic)

	_, err = reg.Subscribe(topics.FromUI, "")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRegistryUnsubscribeTerminatesBlockedWorker(t *testing.T) {
	reg := NewRegistry(nil)

	// The handler never runs: the worker sits blocked on an empty mailbox.
	sub, err := reg.Subscribe(topics.FromTask, "s1",
		WithHandler(func(Envelope) error { return nil }),
	)
	require.NoError(t, err)
	require.Equal(t, StateActive, sub.WorkerState())

	reg.Unsubscribe(topics.FromTask, "s1")
	waitDone(t, sub.Done(), "worker did not terminate after unsubscribe")
	assert.Equal(t, StateTerminated, sub.WorkerState())
	assert.Equal(t, 0, reg.SubscriberCount(topics.FromTask))
}

func TestRegistryResubscribeRetiresOldMailbox(t *testing.T) {
	reg := NewRegistry(nil)

	var mu sync.Mutex
	var firstSaw []string
	first, err := reg.Subscribe(topics.FromUI, "dup",
		WithHandler(func(e Envelope) error {
			mu.Lock()
			firstSaw = append(firstSaw, e.Kind)
			mu.Unlock()
			return nil
		}),
	)
	require.NoError(t, err)

	require.NoError(t, reg.Publish(topics.FromUI, MustNew("before", nil)))

	second, err := reg.Subscribe(topics.FromUI, "dup")
	require.NoError(t, err)

	// The first worker observes the sentinel and exits before the second
	// mailbox is in use.
	waitDone(t, first.Done(), "first worker did not terminate on replacement")
	assert.Equal(t, 1, reg.SubscriberCount(topics.FromUI))

	require.NoError(t, reg.Publish(topics.FromUI, MustNew("after", nil)))

	e, ok := second.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "after", e.Kind)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, firstSaw, "after", "messages published after replacement must not reach the old mailbox")
}

func TestRegistryPublishSurfacesRejectedKinds(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.Subscribe(topics.FromTask, "picky", WithKinds("task_started"))
	require.NoError(t, err)

	err = reg.Publish(topics.FromTask, MustNew("window_status", nil))
	var rejected *RejectedKindError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "picky", rejected.Mailbox)
}

func TestRegistryBackpressureIsPerMailbox(t *testing.T) {
	reg := NewRegistry(nil, WithPutTimeout(50*time.Millisecond))

	slow, err := reg.Subscribe(topics.FromTask, "slow", WithCapacity(1))
	require.NoError(t, err)
	fast, err := reg.Subscribe(topics.FromTask, "fast", WithCapacity(16))
	require.NoError(t, err)

	// Fill the slow subscriber, then keep publishing.
	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Publish(topics.FromTask, MustNew("data_update", nil)))
	}

	// The fast subscriber got everything despite its slow neighbor.
	for i := 0; i < 3; i++ {
		_, ok := fast.Next(time.Second)
		require.True(t, ok)
	}

	// The slow subscriber kept its first envelope and accounted the rest.
	_, ok := slow.Next(10 * time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, int64(2), slow.Mailbox().Dropped())
}

func TestRegistryStats(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.Subscribe(topics.FromUI, "s1")
	require.NoError(t, err)
	require.NoError(t, reg.Publish(topics.FromUI, MustNew("data_update", nil)))

	stats := reg.Stats()
	assert.Equal(t, 1, stats[topics.FromUI.Name()].Subscribers)
	assert.Equal(t, 1, stats[topics.FromUI.Name()].Buffered)
	assert.Equal(t, 0, stats[topics.FromTask.Name()].Subscribers)
}

func TestRegistryConcurrentPublishAndSubscribe(t *testing.T) {
	reg := NewRegistry(nil, WithPutTimeout(50*time.Millisecond))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = reg.Publish(topics.FromTask, MustNew("data_update", nil))
			}
		}
	}()

	// Churn subscriptions under the publisher.
	for i := 0; i < 50; i++ {
		sub, err := reg.Subscribe(topics.FromTask, "churn",
			WithHandler(func(Envelope) error { return nil }),
		)
		require.NoError(t, err)
		reg.Unsubscribe(topics.FromTask, "churn")
		waitDone(t, sub.Done(), "churned worker did not terminate")
	}

	close(stop)
	wg.Wait()
	assert.Equal(t, 0, reg.SubscriberCount(topics.FromTask))
}
