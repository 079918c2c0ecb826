package hsms

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fabwire/go-secs/logger"
	"github.com/stretchr/testify/require"
)

func TestEventDispatcher_Order(t *testing.T) {
	require := require.New(t)

	d := NewEventDispatcher(logger.GetLogger())
	go d.Run()
	defer d.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	d.AddHandler(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()

		switch e := ev.(type) {
		case ConnectedEvent:
			got = append(got, "connected:"+e.RemoteAddr)
		case SelectedEvent:
			got = append(got, "selected")
		case DeselectedEvent:
			got = append(got, "deselected")
		case DisconnectedEvent:
			got = append(got, "disconnected")
			close(done)
		}
	})

	d.Emit(ConnectedEvent{RemoteAddr: "127.0.0.1:5000"})
	d.Emit(SelectedEvent{})
	d.Emit(DeselectedEvent{})
	d.Emit(DisconnectedEvent{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal([]string{"connected:127.0.0.1:5000", "selected", "deselected", "disconnected"}, got)
}

func TestEventDispatcher_HandlerChain(t *testing.T) {
	require := require.New(t)

	d := NewEventDispatcher(logger.GetLogger())
	go d.Run()
	defer d.Close()

	var calls []int
	var mu sync.Mutex
	done := make(chan struct{})

	d.AddHandler(
		func(Event) {
			mu.Lock()
			calls = append(calls, 1)
			mu.Unlock()
			panic("boom")
		},
		func(Event) {
			mu.Lock()
			calls = append(calls, 2)
			mu.Unlock()
			close(done)
		},
	)

	d.Emit(ErrorEvent{Err: errors.New("test")})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second handler not called")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal([]int{1, 2}, calls)
}

func TestEventDispatcher_Close(t *testing.T) {
	require := require.New(t)

	d := NewEventDispatcher(logger.GetLogger())
	go d.Run()

	var count atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	d.AddHandler(func(Event) {
		if count.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	for range 10 {
		d.Emit(SelectedEvent{})
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a handler was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	d.Emit(SelectedEvent{})
	d.Close()
	require.Equal(int32(1), count.Load())
}

func TestEventDispatcher_CloseFromHandlerGoroutine(t *testing.T) {
	d := NewEventDispatcher(logger.GetLogger())
	go d.Run()

	var count atomic.Int32
	d.AddHandler(func(Event) {
		if count.Add(1) == 1 {
			go d.Close()
		}
	})

	for range 10 {
		d.Emit(SelectedEvent{})
	}

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	n := count.Load()
	d.Emit(SelectedEvent{})
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, n, count.Load())
}
