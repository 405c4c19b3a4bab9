package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
)

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	updates  atomic.Int64
}

type report struct {
	Elapsed         time.Duration
	Sent            int64
	Received        int64
	Updates         int64
	ExpectedUpdates int64
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay websocket endpoint")
	users := flag.Int("users", 200, "concurrent connections")
	msgs := flag.Int("msgs", 20, "chat messages per user")
	room := flag.String("room", "general", "room to load")
	settle := flag.Duration("settle", 3*time.Second, "how long to keep reading after the last send")
	flag.Parse()

	log := logs.GetLoggerFromString("INFO")
	res, err := run(log, *url, *room, *users, *msgs, *settle)
	if err != nil {
		log.Error("Load test failed", "error", err)
		os.Exit(1)
	}
	log.Info("Load test complete",
		"elapsed", res.Elapsed,
		"frames_sent", res.Sent,
		"frames_received", res.Received,
		"poll_updates", res.Updates,
		"poll_updates_expected", res.ExpectedUpdates,
	)
	if res.Updates != res.ExpectedUpdates {
		log.Warn("Poll updates missing, slow connections were dropped or votes failed", "missing", res.ExpectedUpdates-res.Updates)
	}
}

const createTimeout = 10 * time.Second

// run opens users connections, creates one poll, then has every user vote
// once and send msgs chat messages. Each connection should see one
// poll_updated per vote.
func run(log *slog.Logger, url, room string, users, msgs int, settle time.Duration) (report, error) {
	log.Info("Starting load test", "users", users, "msgs_per_user", msgs, "room", room)

	conns := make([]*websocket.Conn, users)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return report{}, fmt.Errorf("dial user %d: %w", i, err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	pollID := uuid.NewString()
	pollCreated := make(chan struct{})
	var createdOnce sync.Once

	var st stats
	var readers errgroup.Group
	for _, conn := range conns {
		readers.Go(func() error {
			for {
				var f frame
				if err := conn.ReadJSON(&f); err != nil {
					return nil
				}
				st.received.Add(1)
				switch f.Event {
				case "poll_updated":
					st.updates.Add(1)
				case "new_poll":
					if data, ok := f.Data.(map[string]any); ok && data["id"] == pollID {
						createdOnce.Do(func() { close(pollCreated) })
					}
				}
			}
		})
	}

	if err := conns[0].WriteJSON(frame{Event: "create_poll", Data: map[string]any{
		"id":       pollID,
		"roomId":   room,
		"creator":  "loadtest",
		"question": "Which option wins under load?",
		"options":  []string{"A", "B", "C"},
	}}); err != nil {
		return report{}, fmt.Errorf("create poll: %w", err)
	}
	// Votes sent before the poll is stored would all be ignored.
	select {
	case <-pollCreated:
	case <-time.After(createTimeout):
		return report{}, fmt.Errorf("poll %s was not broadcast within %s", pollID, createTimeout)
	}

	start := time.Now()
	var writers errgroup.Group
	for i, conn := range conns {
		writers.Go(func() error {
			user := fmt.Sprintf("u_%d", i)
			if err := conn.WriteJSON(frame{Event: "vote_on_poll", Data: map[string]any{
				"pollId": pollID, "optionIndex": i % 3, "voter": user,
			}}); err != nil {
				return fmt.Errorf("%s vote: %w", user, err)
			}
			st.sent.Add(1)
			for n := range msgs {
				if err := conn.WriteJSON(frame{Event: "send_message", Data: map[string]any{
					"roomId": room, "sender": user, "content": fmt.Sprintf("load %d from %s", n, user),
				}}); err != nil {
					return fmt.Errorf("%s send: %w", user, err)
				}
				st.sent.Add(1)
				// Simulate real network pacing instead of a localhost burst.
				time.Sleep(10 * time.Millisecond)
			}
			return nil
		})
	}
	if err := writers.Wait(); err != nil {
		return report{}, err
	}
	elapsed := time.Since(start)

	time.Sleep(settle)
	for _, conn := range conns {
		_ = conn.Close()
	}
	_ = readers.Wait()

	return report{
		Elapsed:         elapsed,
		Sent:            st.sent.Load(),
		Received:        st.received.Load(),
		Updates:         st.updates.Load(),
		ExpectedUpdates: int64(users) * int64(users),
	}, nil
}
