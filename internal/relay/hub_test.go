package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func detachedClient(hub *Hub, buffer int) *Client {
	return &Client{hub: hub, send: make(chan []byte, buffer)}
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)
	a, b := detachedClient(hub, 4), detachedClient(hub, 4)
	hub.Register(a)
	hub.Register(b)

	req.NoError(hub.Broadcast(context.Background(), []byte("hello")))

	req.Equal("hello", string(receive(t, a)))
	req.Equal("hello", string(receive(t, b)))
	req.Equal(2, hub.Count())
}

func TestHub_ReplyReachesOnlyItsClient(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)
	a, b := detachedClient(hub, 4), detachedClient(hub, 4)
	hub.Register(a)
	hub.Register(b)

	req.True(a.Reply([]byte("just you")))
	req.Equal("just you", string(receive(t, a)))

	req.NoError(hub.Broadcast(context.Background(), []byte("all")))
	req.Equal("all", string(receive(t, b)), "b saw no reply before the broadcast")
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)
	a := detachedClient(hub, 4)
	hub.Register(a)
	hub.Unregister(a)

	req.Eventually(func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
	_, ok := <-a.send
	req.False(ok)

	// A second unregister must not close the channel twice.
	req.NotPanics(func() { hub.Unregister(a) })
}

func TestHub_DropsSlowClient(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)
	slow, fast := detachedClient(hub, 1), detachedClient(hub, 8)
	hub.Register(slow)
	hub.Register(fast)

	for range 3 {
		req.NoError(hub.Broadcast(context.Background(), []byte("tick")))
	}
	for range 3 {
		req.Equal("tick", string(receive(t, fast)))
	}

	req.Eventually(func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	req.Equal("tick", string(receive(t, slow)))
	_, ok := <-slow.send
	req.False(ok, "slow client was disconnected")
}

func TestHub_ClosedHubRefusesWork(t *testing.T) {
	req := require.New(t)
	hub, cancel := startHub(t)
	a := detachedClient(hub, 4)
	hub.Register(a)

	cancel()
	<-hub.done

	_, ok := <-a.send
	req.False(ok, "shutdown closes every client")
	req.Zero(hub.Count())
	req.ErrorIs(hub.Broadcast(context.Background(), []byte("late")), ErrHubClosed)
	req.False(a.Reply([]byte("late")))

	late := detachedClient(hub, 1)
	hub.Register(late)
	_, ok = <-late.send
	req.False(ok)
}

func TestHub_ReplyIsNotOvertakenByLaterBroadcast(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)
	const rounds, noise = 500, 500
	target := detachedClient(hub, 2*rounds+noise)
	hub.Register(target)

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range noise {
			_ = hub.Broadcast(ctx, []byte("noise"))
		}
	}()
	for i := range rounds {
		req.True(target.Reply(fmt.Appendf(nil, "R%d", i)))
		req.NoError(hub.Broadcast(ctx, fmt.Appendf(nil, "B%d", i)))
	}
	wg.Wait()

	seen := make(map[string]int)
	for n := range 2*rounds + noise {
		seen[string(receive(t, target))] = n
	}
	for i := range rounds {
		r, b := seen[fmt.Sprintf("R%d", i)], seen[fmt.Sprintf("B%d", i)]
		req.Less(r, b, "round %d: reply arrived after the broadcast queued behind it", i)
	}
}
