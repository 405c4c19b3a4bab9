package main

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"go-roomrelay/internal/chat"
	"go-roomrelay/internal/db"
	"go-roomrelay/internal/poll"
	"go-roomrelay/internal/relay"
)

// slowStore stores polls only after a delay, like a loaded database.
type slowStore struct {
	*poll.Repository
	delay time.Duration
}

func (s slowStore) Insert(ctx context.Context, p poll.Poll) error {
	time.Sleep(s.delay)
	return s.Repository.Insert(ctx, p)
}

func startRelay(t *testing.T, insertDelay time.Duration) string {
	t.Helper()

	database, err := db.NewDatabase(db.DriverSQLite, filepath.Join(t.TempDir(), "load.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.AutoMigrate())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := relay.NewHub(log, nil, "")
	go hub.Run(ctx)

	polls := poll.NewCoordinator(slowStore{Repository: poll.NewRepository(database), delay: insertDelay}, log, 3)
	rooms := relay.New(log, chat.NewLog(chat.NewRepository(database), 0), polls, hub, "general", 5*time.Second)
	h := relay.NewHandler(ctx, log, hub, rooms, relay.HandlerOptions{})

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestRun_VotesWaitForSlowPollCreation(t *testing.T) {
	req := require.New(t)
	url := startRelay(t, 500*time.Millisecond)

	const users = 4
	res, err := run(logs.GetLoggerFromLevel(slog.LevelDebug), url, "general", users, 1, time.Second)
	req.NoError(err)
	req.Equal(int64(users*users), res.ExpectedUpdates)
	req.Equal(res.ExpectedUpdates, res.Updates, "every connection saw every vote")
	req.Equal(int64(users*2), res.Sent)
}
