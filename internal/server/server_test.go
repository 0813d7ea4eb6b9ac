package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"orefield/internal/config"
	"orefield/internal/network"
	"orefield/internal/session"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, chan time.Time) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPAddress = ""
	cfg.Network.ListenUDP = ""
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ticks := make(chan time.Time)
	first := true
	srv.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		if first {
			first = false
			return ticks, func() {}
		}
		return nil, func() {}
	}
	return srv, ticks
}

// smallLevel shrinks a level to three ore attempts and one hazard.
func smallLevel(cfg *config.Config) {
	cfg.Stage.BaseOresPerCategory = 1
	cfg.Stage.MinOresPerCategory = 1
	cfg.Stage.MaxOresPerLevel = 3
	cfg.Stage.MinHazardsPerLevel = 1
	cfg.Stage.MaxHazardsPerLevel = 1
}

func startLoop(t *testing.T, srv *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.loop(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-srv.running:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not start")
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func sendTicks(t *testing.T, ticks chan<- time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case ticks <- time.Now():
		case <-time.After(2 * time.Second):
			t.Fatalf("loop did not accept tick %d", i)
		}
	}
}

func waitForStatus(t *testing.T, srv *Server, desc string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := srv.Status()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last status %+v", desc, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	cfg := config.Default()
	cfg.Server.ID = ""
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoopPerformsOneAttemptPerTick(t *testing.T) {
	srv, ticks := newTestServer(t, nil)
	startLoop(t, srv)

	snap := waitForStatus(t, srv, "auto start", func(s Snapshot) bool {
		return s.State == session.StateRunning
	})
	if snap.Level != 1 || snap.Attempted != 0 || snap.Quotas == nil {
		t.Fatalf("unexpected initial status: %+v", snap)
	}

	sendTicks(t, ticks, 5)
	snap = waitForStatus(t, srv, "five attempts", func(s Snapshot) bool { return s.Attempted == 5 })
	if snap.Objects != snap.Stats.Placed {
		t.Fatalf("expected %d live objects, got %d", snap.Stats.Placed, snap.Objects)
	}
}

func TestAdvanceRegeneratesOnNextTick(t *testing.T) {
	srv, ticks := newTestServer(t, nil)
	startLoop(t, srv)
	waitForStatus(t, srv, "auto start", func(s Snapshot) bool { return s.State == session.StateRunning })
	sendTicks(t, ticks, 3)
	waitForStatus(t, srv, "three attempts", func(s Snapshot) bool { return s.Attempted == 3 })

	lvl, err := srv.AdvanceLevel(context.Background())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if lvl != 2 {
		t.Fatalf("expected level 2, got %d", lvl)
	}
	snap := srv.Status()
	if !snap.Transitioning || snap.State != session.StateCancelled {
		t.Fatalf("expected cancelled session pending transition, got %+v", snap)
	}

	sendTicks(t, ticks, 1)
	snap = waitForStatus(t, srv, "level 2 session", func(s Snapshot) bool {
		return !s.Transitioning && s.State == session.StateRunning
	})
	if snap.Level != 2 || snap.Attempted != 1 {
		t.Fatalf("expected first attempt of level 2, got %+v", snap)
	}
	for _, obj := range srv.Objects() {
		if obj.Level != 2 {
			t.Fatalf("level 1 object survived regeneration: %+v", obj)
		}
	}

	lvl, err = srv.ResetLevel(context.Background())
	if err != nil || lvl != 1 {
		t.Fatalf("expected reset to level 1, got %d (%v)", lvl, err)
	}
}

func TestLevelCompletionNotifiesHook(t *testing.T) {
	srv, ticks := newTestServer(t, smallLevel)
	completed := make(chan Snapshot, 1)
	srv.OnLevelCompleted = func(snap Snapshot) { completed <- snap }
	startLoop(t, srv)
	waitForStatus(t, srv, "auto start", func(s Snapshot) bool { return s.State == session.StateRunning })

	sendTicks(t, ticks, 4)
	select {
	case snap := <-completed:
		if snap.State != session.StateCompleted || snap.Attempted != 4 || snap.Total != 4 {
			t.Fatalf("unexpected completion status: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion hook was not called")
	}

	sendTicks(t, ticks, 2)
	if snap := srv.Status(); snap.Attempted != 4 {
		t.Fatalf("expected completed level to stay at 4 attempts, got %d", snap.Attempted)
	}
}

func TestCommandsRequireRunningLoop(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	if _, err := srv.AdvanceLevel(cancelledContext()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if _, err := srv.Preview(cancelledContext(), 1); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestCommandsWaitForLoopStart(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	type result struct {
		level int
		err   error
	}
	results := make(chan result, 1)
	go func() {
		lvl, err := srv.AdvanceLevel(context.Background())
		results <- result{lvl, err}
	}()

	time.Sleep(20 * time.Millisecond)
	startLoop(t, srv)

	select {
	case res := <-results:
		if res.err != nil || res.level != 2 {
			t.Fatalf("expected level 2 once the loop started, got %d (%v)", res.level, res.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("command was not answered after the loop started")
	}
}

func TestRunAnswersUDPCommands(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Network.ListenUDP = "127.0.0.1:0"
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("run did not stop")
		}
	}()
	waitForStatus(t, srv, "auto start", func(s Snapshot) bool { return s.State == session.StateRunning })

	client, err := network.Listen("127.0.0.1:0", nil, 0)
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer client.Close()
	replies := make(chan network.Status, 4)
	client.Register(network.MessageStatus, func(_ context.Context, _ *net.UDPAddr, env network.Envelope) {
		var st network.Status
		if err := network.DecodePayload(env, &st); err == nil {
			replies <- st
		}
	})
	go client.Serve(ctx)

	target := srv.net.LocalAddr().String()
	await := func() network.Status {
		t.Helper()
		select {
		case st := <-replies:
			return st
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for status reply")
		}
		return network.Status{}
	}

	if err := client.Send(target, network.MessageStatusQuery, network.StatusQuery{RequestedBy: "test"}); err != nil {
		t.Fatalf("send status query: %v", err)
	}
	if st := await(); st.Level != 1 || st.ServerID != "orefield-0" || st.State != string(session.StateRunning) {
		t.Fatalf("unexpected status reply: %+v", st)
	}

	if err := client.Send(target, network.MessageLevelAdvance, network.LevelCommand{RequestedBy: "ops"}); err != nil {
		t.Fatalf("send advance: %v", err)
	}
	if st := await(); st.Level != 2 || !st.Transitioning {
		t.Fatalf("expected pending level 2, got %+v", st)
	}

	if err := client.Send(target, network.MessageLevelReset, nil); err != nil {
		t.Fatalf("send reset: %v", err)
	}
	if st := await(); st.Level != 1 || !st.Transitioning {
		t.Fatalf("expected pending reset to level 1, got %+v", st)
	}
}
