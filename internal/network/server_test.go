package network

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func listenLocal(t *testing.T, maxSize int) *Server {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", nil, maxSize)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestServerDispatchesRegisteredHandlers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := listenLocal(t, 0)
	client := listenLocal(t, 0)

	type received struct {
		env  Envelope
		from *net.UDPAddr
	}
	got := make(chan received, 1)
	host.Register(MessageLevelAdvance, func(_ context.Context, addr *net.UDPAddr, env Envelope) {
		got <- received{env: env, from: addr}
	})
	go host.Serve(ctx)

	if err := client.Send(host.LocalAddr().String(), MessageLevelAdvance, LevelCommand{RequestedBy: "ops"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case r := <-got:
		if r.env.Type != MessageLevelAdvance || r.env.Seq != 1 {
			t.Fatalf("unexpected envelope: %+v", r.env)
		}
		var cmd LevelCommand
		if err := DecodePayload(r.env, &cmd); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if cmd.RequestedBy != "ops" {
			t.Fatalf("expected requestedBy ops, got %q", cmd.RequestedBy)
		}
		if r.from.Port != client.LocalAddr().Port {
			t.Fatalf("expected sender port %d, got %d", client.LocalAddr().Port, r.from.Port)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
}

func TestServeStopsWhenContextIsCancelled(t *testing.T) {
	host := listenLocal(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestSendRejectsOversizedDatagrams(t *testing.T) {
	host := listenLocal(t, 128)
	err := host.SendTo(host.LocalAddr(), MessageLevelEvents, LevelEvents{
		ServerID: strings.Repeat("x", 256),
	})
	if err == nil || !strings.Contains(err.Error(), "exceeds datagram limit") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestDecodePayloadToleratesNull(t *testing.T) {
	data, err := Encode(Envelope{Type: MessageStatusQuery, Payload: []byte("null")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	q := StatusQuery{RequestedBy: "unchanged"}
	if err := DecodePayload(env, &q); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if q.RequestedBy != "unchanged" {
		t.Fatalf("expected null payload to leave target untouched, got %q", q.RequestedBy)
	}
	if _, err := Decode([]byte("{")); err == nil {
		t.Fatalf("expected malformed envelope to fail")
	}
}

func TestServeSkipsGarbageAndFansOutHandlers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := listenLocal(t, 0)
	client := listenLocal(t, 0)

	got := make(chan int, 2)
	for i := 1; i <= 2; i++ {
		id := i
		host.Register(MessageStatusQuery, func(context.Context, *net.UDPAddr, Envelope) { got <- id })
	}
	go host.Serve(ctx)

	if _, err := client.conn.WriteToUDP([]byte("not json"), host.LocalAddr()); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := client.Send(host.LocalAddr().String(), MessageStatusQuery, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	seen := map[int]bool{}
	for len(seen) < 2 {
		select {
		case id := <-got:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("expected both handlers to run, saw %v", seen)
		}
	}
}
