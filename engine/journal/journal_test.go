package journal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func fixedClock() func() time.Time {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var n int
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func openTemp(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(Config{Path: path, Now: fixedClock()})
	require.NoError(t, err)
	return j, path
}

func TestOpenRunsMigrations(t *testing.T) {
	j, path := openTemp(t)
	version, dirty, err := j.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
	require.NoError(t, j.Close())

	// Reopening an up-to-date database is fine.
	j, err = Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestRecordAndQuery(t *testing.T) {
	j, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, j.BeginSession(ctx, "run-1", "demo"))

	assert.True(t, j.Record(Entry{Kind: KindStatus, Level: "info", Message: "Scanning..."}))
	assert.True(t, j.Record(Entry{
		Kind:     KindAnchorCreated,
		Target:   "scanned_image",
		AnchorID: "a-1",
		Position: math.NewVec3(1, 2, 3),
	}))
	require.NoError(t, j.Close())
	assert.Equal(t, uint64(2), j.Written())

	j, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Entries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindStatus, entries[0].Kind)
	assert.Equal(t, "Scanning...", entries[0].Message)
	assert.Equal(t, KindAnchorCreated, entries[1].Kind)
	assert.Equal(t, "a-1", entries[1].AnchorID)
	assert.Equal(t, math.NewVec3(1, 2, 3), entries[1].Position)
	assert.True(t, entries[0].At.Before(entries[1].At))

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-1", sessions[0].ID)
	assert.Equal(t, "demo", sessions[0].Label)
	assert.Equal(t, 2, sessions[0].Entries)
}

func TestSubscribeRecordsEngineEvents(t *testing.T) {
	j, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, j.BeginSession(ctx, "run-2", ""))

	events := core.NewEventSystem()
	j.Subscribe(events)

	board := core.NewStatusBoard(4, events)
	board.Info("scanned_image", "Image detected and tracking!")
	events.Fire(core.EventContext{Type: core.EVENT_CODE_ANCHOR_CREATED, Data: tracking.AnchorEvent{
		Target:   "scanned_image",
		AnchorID: "a-7",
		Pose:     math.Pose{Position: math.NewVec3(0, 0.05, 0), Rotation: math.NewQuatIdentity()},
		Empty:    true,
	}})
	events.Fire(core.EventContext{Type: core.EVENT_CODE_ANCHOR_FAILED, Data: tracking.AnchorEvent{
		Target: "scanned_image",
		Err:    errors.New("boom"),
	}})
	events.Fire(core.EventContext{Type: core.EVENT_CODE_SESSION_PAUSED})
	events.Fire(core.EventContext{Type: core.EVENT_CODE_SCAN_FAILED, Data: errors.New("scan of missing.png: no such file")})
	require.NoError(t, j.Close())

	// Events after close are not recorded and do not panic.
	board.Info("scanned_image", "late")

	j, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	kinds := make([]Kind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
		assert.Equal(t, "run-2", e.SessionID)
	}
	assert.Equal(t, []Kind{KindStatus, KindAnchorCreated, KindAnchorFailed, KindSessionPaused, KindScanFailed}, kinds)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "empty", entries[1].Message)
	assert.InDelta(t, 0.05, entries[1].Position.Y, 1e-6)
	assert.Equal(t, "error", entries[2].Level)
	assert.Equal(t, "boom", entries[2].Message)
	assert.Equal(t, "error", entries[4].Level)
	assert.Equal(t, "scan of missing.png: no such file", entries[4].Message)
}

func TestRecordDropsWhenFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(Config{Path: path, Buffer: 1})
	require.NoError(t, err)

	// Hold the only connection so the writer stalls on its first insert.
	conn, err := j.db.Conn(context.Background())
	require.NoError(t, err)

	accepted := 0
	for i := 0; i < 10; i++ {
		if j.Record(Entry{Kind: KindStatus, Message: "x"}) {
			accepted++
		}
	}
	assert.LessOrEqual(t, accepted, 2)
	assert.Equal(t, uint64(10-accepted), j.Dropped())

	require.NoError(t, conn.Close())
	require.NoError(t, j.Close())
	assert.False(t, j.Record(Entry{Kind: KindStatus}))
}

func TestBeginSessionAfterClose(t *testing.T) {
	j, _ := openTemp(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.BeginSession(context.Background(), "x", ""), ErrJournalClosed)
}
