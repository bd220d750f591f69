package notice

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvidia/onebot-core-bridge/internal/banstore"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func openStore(t *testing.T) *banstore.Store {
	t.Helper()
	s, err := banstore.Open(filepath.Join(t.TempDir(), "bans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type recordingSender struct {
	mu  sync.Mutex
	got []seg.MessageBase
}

func (r *recordingSender) Send(msg seg.MessageBase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg)
	return true
}

func (r *recordingSender) all() []seg.MessageBase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]seg.MessageBase, len(r.got))
	copy(out, r.got)
	return out
}

func TestBanUpsertsStoreRecord(t *testing.T) {
	store := openStore(t)
	e := New(discardLogger(), store, &recordingSender{})

	require.NoError(t, e.Ban(context.Background(), 100, 200, 60))

	records, err := store.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(100), records[0].GroupID)
	require.Equal(t, int64(200), records[0].UserID)
}

func TestExplicitLiftRemovesRecordAndEnqueues(t *testing.T) {
	store := openStore(t)
	sender := &recordingSender{}
	e := New(discardLogger(), store, sender)

	require.NoError(t, e.Ban(context.Background(), 100, 200, 60))
	require.NoError(t, e.LiftBan(100, 200, nil))

	records, err := store.ReadAll()
	require.NoError(t, err)
	require.Empty(t, records)

	select {
	case msg := <-e.primary:
		require.Equal(t, "notice", msg.MessageInfo.MessageID)
	default:
		t.Fatal("expected a lift notice to be enqueued")
	}
	_ = sender
}

// TestNaturalLift is the literal scenario from spec §8.4: a ban with
// duration=1 at t=0 must produce a synthesized lift_ban notice with
// operator=nil within >=1s of the natural-lift watcher running.
func TestNaturalLift(t *testing.T) {
	store := openStore(t)
	e := New(discardLogger(), store, &recordingSender{})

	require.NoError(t, e.Ban(context.Background(), 100, 200, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 7*time.Second)
	defer cancel()

	// Drive the sweep directly rather than waiting a full 5s tick, since
	// the watcher's only externally-observable behavior is what
	// sweepExpiredBans does once the lift_time has passed.
	time.Sleep(1100 * time.Millisecond)
	e.sweepExpiredBans()

	records, err := store.ReadAll()
	require.NoError(t, err)
	require.Empty(t, records)

	select {
	case msg := <-e.primary:
		require.Equal(t, "notice", msg.MessageInfo.MessageID)
		additional := msg.MessageInfo.AdditionalConfig
		lifted, _ := additional["lifted_user_info"].(map[string]any)
		require.Equal(t, int64(200), lifted["user_id"])
		require.Nil(t, additional["operator"])
	default:
		t.Fatal("expected a natural-lift notice to be enqueued")
	}
	_ = ctx
}

func TestWholeGroupBanNeverNaturallyLifted(t *testing.T) {
	store := openStore(t)
	e := New(discardLogger(), store, &recordingSender{})

	require.NoError(t, e.Ban(context.Background(), 100, 0, 60)) // user_id=0, lift=-1
	e.sweepExpiredBans()

	records, err := store.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1) // untouched: whole-group bans are never naturally lifted
}

func TestDispatcherDrainsRetryQueueBeforePrimary(t *testing.T) {
	store := openStore(t)
	sender := &recordingSender{}
	e := New(discardLogger(), store, sender)

	retryMsg := seg.MessageBase{MessageInfo: seg.MessageInfo{MessageID: "retry-msg"}}
	primaryMsg := seg.MessageBase{MessageInfo: seg.MessageInfo{MessageID: "primary-msg"}}
	e.retry <- retryMsg
	e.primary <- primaryMsg

	ctx, cancel := context.WithCancel(context.Background())
	go e.RunDispatcher(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	e.Close()

	got := sender.all()
	require.GreaterOrEqual(t, len(got), 1)
	require.Equal(t, "retry-msg", got[0].MessageInfo.MessageID)
}
