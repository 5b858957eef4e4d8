package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/service-mirror/pkg/connection"
)

type recordingTransport struct {
	mu     sync.Mutex
	sent   []Message
	err    error
	closed bool
}

func (t *recordingTransport) Publish(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *recordingTransport) messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}

func TestSubscribe_IdempotentSingleDispatch(t *testing.T) {
	b := NewBus(NewBusParams{})
	calls := 0
	h := func(Message) error { calls++; return nil }

	require.True(t, b.Subscribe("mixer", "servo1", "onServoEvent", h))
	require.False(t, b.Subscribe("mixer", "servo1", "onServoEvent", h))
	assert.Equal(t, 1, b.Count())

	n := b.Dispatch(NewMessage("servo1", "onServoEvent", map[string]any{"pos": 10.0}))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestSubscribe_SecondHandlerIgnored(t *testing.T) {
	b := NewBus(NewBusParams{})
	var got []string
	b.Subscribe("a", "runtime", "onX", func(Message) error { got = append(got, "first"); return nil })
	b.Subscribe("a", "runtime", "onX", func(Message) error { got = append(got, "second"); return nil })

	b.Dispatch(NewMessage("runtime", "onX"))
	assert.Equal(t, []string{"first"}, got)
}

func TestSubscribe_NilHandlerRejected(t *testing.T) {
	b := NewBus(NewBusParams{})
	assert.False(t, b.Subscribe("a", "runtime", "onX", nil))
	assert.Equal(t, 0, b.Count())
}

func TestUnsubscribe_AbsentIsNoop(t *testing.T) {
	b := NewBus(NewBusParams{})
	b.Subscribe("a", "runtime", "onX", func(Message) error { return nil })
	before := b.Subscriptions()

	assert.False(t, b.Unsubscribe("b", "runtime", "onX"))
	assert.False(t, b.Unsubscribe("a", "runtime", "onY"))
	assert.False(t, b.Unsubscribe("a", "servo", "onX"))

	assert.Equal(t, before, b.Subscriptions())
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := NewBus(NewBusParams{})
	calls := 0
	b.Subscribe("a", "runtime", "onX", func(Message) error { calls++; return nil })

	require.True(t, b.Unsubscribe("a", "runtime", "onX"))
	assert.Equal(t, 0, b.Dispatch(NewMessage("runtime", "onX")))
	assert.Equal(t, 0, calls)
	assert.Empty(t, b.Subscriptions())
}

func TestUnsubscribeAll(t *testing.T) {
	b := NewBus(NewBusParams{})
	noop := func(Message) error { return nil }
	b.Subscribe("mirror-1", "servo1", "onState", noop)
	b.Subscribe("mirror-1", "servo1", "onServoEvent", noop)
	b.Subscribe("other", "servo1", "onState", noop)

	assert.Equal(t, 2, b.UnsubscribeAll("mirror-1"))
	assert.Equal(t, 0, b.UnsubscribeAll("mirror-1"))
	assert.Equal(t, []Subscription{{SubscriberID: "other", Target: "servo1", Method: "onState"}}, b.Subscriptions())
}

func TestDispatch_NoSubscribersIsSilent(t *testing.T) {
	b := NewBus(NewBusParams{})
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, b.Dispatch(NewMessage("nobody", "onNothing", 1, 2, 3)))
	})
}

func TestDispatch_AllMatchingHandlersOnce(t *testing.T) {
	b := NewBus(NewBusParams{})
	counts := map[string]int{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		b.Subscribe(id, "runtime", "onListAllServos", func(Message) error { counts[id]++; return nil })
	}
	b.Subscribe("d", "runtime", "onOther", func(Message) error { counts["d"]++; return nil })

	assert.Equal(t, 3, b.Dispatch(NewMessage("runtime", "onListAllServos", []any{"servo1"})))
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, counts)
}

func TestDispatch_HandlerErrorIsolated(t *testing.T) {
	b := NewBus(NewBusParams{})
	delivered := 0
	b.Subscribe("bad", "runtime", "onX", func(Message) error { return errors.New("render failed") })
	b.Subscribe("panicky", "runtime", "onX", func(Message) error { panic("boom") })
	b.Subscribe("good", "runtime", "onX", func(Message) error { delivered++; return nil })

	assert.Equal(t, 3, b.Dispatch(NewMessage("runtime", "onX")))
	assert.Equal(t, 1, delivered)

	dispatched, failed := b.Stats()
	assert.Equal(t, uint64(1), dispatched)
	assert.Equal(t, uint64(2), failed)
}

func TestDispatch_UnsubscribeDuringDispatchSkips(t *testing.T) {
	b := NewBus(NewBusParams{})
	calls := map[string]int{}
	// Whichever handler runs first removes the other; exactly one runs.
	b.Subscribe("a", "runtime", "onX", func(Message) error {
		calls["a"]++
		b.Unsubscribe("b", "runtime", "onX")
		return nil
	})
	b.Subscribe("b", "runtime", "onX", func(Message) error {
		calls["b"]++
		b.Unsubscribe("a", "runtime", "onX")
		return nil
	})

	assert.Equal(t, 1, b.Dispatch(NewMessage("runtime", "onX")))
	assert.Equal(t, 1, calls["a"]+calls["b"])
}

func TestDispatch_HandlersGetPrivateArgs(t *testing.T) {
	b := NewBus(NewBusParams{})
	b.Subscribe("a", "runtime", "onX", func(m Message) error { m.Data[0] = "mutated"; return nil })
	var seen any
	b.Subscribe("b", "runtime", "onX", func(m Message) error { seen = m.Data[0]; return nil })

	msg := NewMessage("runtime", "onX", "original")
	b.Dispatch(msg)
	assert.Equal(t, "original", msg.Data[0])
	assert.Equal(t, "original", seen)
}

func TestRun_FIFOOrder(t *testing.T) {
	b := NewBus(NewBusParams{QueueSize: 16})
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	b.Subscribe("a", "servo1", "onServoEvent", func(m Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m.Data[0].(int))
		if len(got) == 5 {
			close(done)
		}
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Enqueue(NewMessage("servo1", "onServoEvent", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for dispatch")
	}
	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	mu.Unlock()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEnqueue_QueueFull(t *testing.T) {
	b := NewBus(NewBusParams{QueueSize: 1})
	require.NoError(t, b.Enqueue(NewMessage("runtime", "onX")))
	err := b.Enqueue(NewMessage("runtime", "onX"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestSend_UsesTransport(t *testing.T) {
	tr := &recordingTransport{}
	b := NewBus(NewBusParams{Transport: tr, Sender: "webgui"})

	require.NoError(t, b.Send(context.Background(), "runtime", "listAllServos"))
	require.NoError(t, b.Send(context.Background(), "servo1", "moveTo", 90.0))

	sent := tr.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "runtime", sent[0].Name)
	assert.Equal(t, "listAllServos", sent[0].Method)
	assert.Equal(t, "webgui", sent[0].Sender)
	assert.NotEmpty(t, sent[0].MsgID)
	assert.Equal(t, []any{90.0}, sent[1].Data)
}

func TestSend_GatedByLiveness(t *testing.T) {
	tr := &recordingTransport{}
	mon := connection.NewMonitor(false)
	b := NewBus(NewBusParams{Transport: tr, Liveness: mon})

	err := b.Send(context.Background(), "runtime", "listAllServos")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, connection.ErrTransport)
	assert.Empty(t, tr.messages())

	mon.SetConnected(true)
	require.NoError(t, b.Send(context.Background(), "runtime", "listAllServos"))
	assert.Len(t, tr.messages(), 1)
}

func TestSend_UnknownTargetIsNotAnError(t *testing.T) {
	tr := &recordingTransport{}
	b := NewBus(NewBusParams{Transport: tr})
	assert.NoError(t, b.Send(context.Background(), "no-such-service", "doThing"))
}

func TestSend_NoTransport(t *testing.T) {
	b := NewBus(NewBusParams{})
	assert.ErrorIs(t, b.Send(context.Background(), "runtime", "x"), ErrNoTransport)
}

func TestSend_TransportFailureWrapped(t *testing.T) {
	cause := errors.New("write: broken pipe")
	b := NewBus(NewBusParams{Transport: &recordingTransport{err: cause}})
	assert.ErrorIs(t, b.Send(context.Background(), "runtime", "x"), cause)
}

func TestClose_ReleasesEverything(t *testing.T) {
	tr := &recordingTransport{}
	b := NewBus(NewBusParams{Transport: tr})
	calls := 0
	b.Subscribe("a", "runtime", "onX", func(Message) error { calls++; return nil })

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.True(t, tr.closed)
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, 0, b.Dispatch(NewMessage("runtime", "onX")))
	assert.Equal(t, 0, calls)
	assert.False(t, b.Subscribe("a", "runtime", "onX", func(Message) error { return nil }))
	assert.ErrorIs(t, b.Enqueue(NewMessage("runtime", "onX")), ErrClosed)
	assert.ErrorIs(t, b.Send(context.Background(), "runtime", "x"), ErrClosed)
	assert.NoError(t, b.Run(context.Background()))
}

func TestConcurrentSendAndDispatch(t *testing.T) {
	tr := &recordingTransport{}
	b := NewBus(NewBusParams{Transport: tr})
	noop := func(Message) error { return nil }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		id := NewSubscriberID("w")
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Send(context.Background(), "runtime", "ping", j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Subscribe(id, "runtime", "onPing", noop)
				b.Unsubscribe(id, "runtime", "onPing")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Dispatch(NewMessage("runtime", "onPing", j))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, tr.messages(), 800)
	assert.Equal(t, 0, b.Count())
}

func TestNewSubscriberID(t *testing.T) {
	a := NewSubscriberID("mirror")
	c := NewSubscriberID("mirror")
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "mirror-")
	assert.NotEmpty(t, NewSubscriberID(""))
}
