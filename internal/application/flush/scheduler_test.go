package flush

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/application/clock"
	appoutbox "github.com/jbctechsolutions/focusvault/internal/application/outbox"
	"github.com/jbctechsolutions/focusvault/internal/application/snapshot"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/testutil"
)

var t0 = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	sched  *Scheduler
	engine *clock.Engine
	store  *snapshot.Store
	remote *testutil.FakeRemote
	queue  *appoutbox.Queue
	clock  *testutil.FakeClock
	sess   *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := testutil.NewFakeClock(t0)
	remote := testutil.NewFakeRemote()
	queue := appoutbox.NewQueue(testutil.NewMemoryQueue(), clk, appoutbox.DefaultQueueConfig(), logging.NewNop())
	client := appoutbox.NewDurableClient(remote, queue, nil, logging.NewNop())
	store := snapshot.NewStore(testutil.NewMemoryKV(), clk, nil)

	engine := clock.NewEngine(
		clock.NewChannelScheduler("frame", make(chan time.Time)),
		clock.NewChannelScheduler("interval", make(chan time.Time)),
	)

	sess, err := remote.StartSession(ctx, session.StartRequest{Subject: "Math", TargetTime: 1500})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	cp, _ := session.NewCheckpoint(sess.ID, clk.Now(), 0)
	engine.SetCheckpoint(cp)

	sched := NewScheduler(client, engine, store, clk, 30*time.Second, nil, logging.NewNop())
	sched.SetSession(sess.ID)

	return &fixture{sched: sched, engine: engine, store: store, remote: remote, queue: queue, clock: clk, sess: sess}
}

func TestScheduler_AtMostOneWritePerWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	flushes := 0
	for i := 1; i <= 95; i++ {
		f.clock.Advance(time.Second)
		now := f.clock.Now()
		f.sched.ScheduleDebounced(now)
		if f.sched.Due(now) {
			if _, err := f.sched.FlushDebounced(ctx); err != nil {
				t.Fatalf("FlushDebounced() error = %v", err)
			}
			flushes++
		}
	}

	// Armed at 1s, fires at 31s; re-armed at 32s, fires at 62s; then 93s.
	if flushes != 3 {
		t.Errorf("flushes = %d, want 3", flushes)
	}
	if got := len(f.remote.Attempts()); got != 3 {
		t.Errorf("remote writes = %d, want 3", got)
	}
	if got := f.remote.Session(f.sess.ID).ElapsedTime; got != 93 {
		t.Errorf("remote elapsed = %d, want 93", got)
	}
}

func TestScheduler_FlushNowCancelsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.sched.ScheduleDebounced(f.clock.Now())
	if !f.sched.Pending() {
		t.Fatal("expected pending debounced flush")
	}

	f.clock.Advance(10 * time.Second)
	elapsed := f.engine.Pause(f.clock.Now())
	res, err := f.sched.FlushNow(ctx, ReasonPause, session.Patch{
		Status:      session.StatusPtr(session.StatusPaused),
		ElapsedTime: session.IntPtr(elapsed),
	})
	if err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}
	if f.sched.Pending() {
		t.Error("FlushNow must cancel the pending debounced flush")
	}
	if f.sched.Due(f.clock.Now().Add(time.Hour)) {
		t.Error("cancelled flush must never become due")
	}
	if res.Session == nil || res.Session.Status != session.StatusPaused {
		t.Errorf("result session = %+v, want paused", res.Session)
	}
}

func TestScheduler_ReanchorsAndSavesCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.clock.Advance(42*time.Second + 300*time.Millisecond)
	res, err := f.sched.FlushNow(ctx, ReasonUnload, session.Patch{})
	if err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}
	if res.Elapsed != 42 || res.Queued {
		t.Errorf("result = %+v", res)
	}

	cp, err := f.store.Load(ctx, f.sess.ID)
	if err != nil || cp == nil {
		t.Fatalf("Load() = %v, %v", cp, err)
	}
	if cp.BaseElapsedSeconds != 42 {
		t.Errorf("saved base = %d, want 42", cp.BaseElapsedSeconds)
	}

	f.clock.Advance(700 * time.Millisecond)
	if got := cp.Elapsed(f.clock.Now()); got != 43 {
		t.Errorf("elapsed after re-anchor = %d, want 43 (sub-second remainder kept)", got)
	}
}

func TestScheduler_QueuedWriteStillReanchors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.remote.SetOffline(true)

	f.clock.Advance(65 * time.Second)
	res, err := f.sched.FlushNow(ctx, ReasonUnload, session.Patch{})
	if err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}
	if !res.Queued {
		t.Fatal("expected queued result while offline")
	}
	if n, _ := f.queue.Pending(ctx); n != 1 {
		t.Errorf("Pending() = %d, want 1", n)
	}
	cp, _ := f.store.Load(ctx, f.sess.ID)
	if cp == nil || cp.BaseElapsedSeconds != 65 {
		t.Errorf("saved checkpoint = %+v, want base 65", cp)
	}
}

func TestScheduler_RejectedWriteDoesNotReanchor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sched.SetSession("unknown")

	f.clock.Advance(5 * time.Second)
	_, err := f.sched.FlushNow(ctx, ReasonNotes, session.Patch{Notes: session.StringPtr("x")})
	if !domainErrors.IsRejected(err) {
		t.Fatalf("FlushNow() error = %v, want rejected", err)
	}
	if cp, _ := f.store.Load(ctx, ""); cp != nil {
		t.Errorf("checkpoint saved after rejection: %+v", cp)
	}
}

func TestScheduler_NoSession(t *testing.T) {
	f := newFixture(t)
	f.sched.SetSession("")

	f.sched.ScheduleDebounced(f.clock.Now())
	if f.sched.Pending() {
		t.Error("no flush should be scheduled without a session")
	}
	if _, err := f.sched.FlushNow(context.Background(), ReasonPause, session.Patch{}); !errors.Is(err, domainErrors.ErrNoActiveSession) {
		t.Errorf("FlushNow() error = %v, want ErrNoActiveSession", err)
	}
}
