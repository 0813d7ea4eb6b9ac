package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxDatagramSize applies when Listen is given a non-positive limit.
	DefaultMaxDatagramSize = 64 << 10
	readPoll               = 500 * time.Millisecond
)

// Handler receives one decoded envelope. Handlers run on their own goroutine.
type Handler func(ctx context.Context, addr *net.UDPAddr, env Envelope)

// Server is a datagram endpoint exchanging JSON envelopes.
type Server struct {
	conn    *net.UDPConn
	logger  *log.Logger
	maxSize int
	seq     atomic.Uint64

	mu     sync.RWMutex
	routes map[MessageType][]Handler
}

// Listen binds a UDP socket on listenAddr. Envelopes larger than maxSize are
// neither read in full nor sent.
func Listen(listenAddr string, logger *log.Logger, maxSize int) (*Server, error) {
	conn, err := bindUDP(listenAddr)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		conn:    conn,
		logger:  logger,
		maxSize: maxSize,
		routes:  make(map[MessageType][]Handler),
	}
	if srv.maxSize <= 0 {
		srv.maxSize = DefaultMaxDatagramSize
	}
	if srv.logger == nil {
		srv.logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	return srv, nil
}

func bindUDP(listenAddr string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr %q: %w", listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return conn, nil
}

func (s *Server) Close() error {
	return s.conn.Close()
}

func (s *Server) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Register adds handler for msgType. Several handlers may share a type.
func (s *Server) Register(msgType MessageType, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[msgType] = append(s.routes[msgType], handler)
}

func (s *Server) route(msgType MessageType) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.routes[msgType])
}

// Serve reads datagrams until ctx is done or the connection is closed.
func (s *Server) Serve(ctx context.Context) error {
	buf := make([]byte, s.maxSize)
	for ctx.Err() == nil {
		_ = s.conn.SetReadDeadline(time.Now().Add(readPoll))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			return err
		}
		s.dispatch(ctx, addr, slices.Clone(buf[:n]))
	}
	return ctx.Err()
}

func (s *Server) dispatch(ctx context.Context, addr *net.UDPAddr, data []byte) {
	env, err := Decode(data)
	if err != nil {
		s.logger.Printf("drop datagram from %s: %v", addr, err)
		return
	}
	for _, h := range s.route(env.Type) {
		go h(ctx, addr, env)
	}
}

// Send resolves addr and writes one envelope to it.
func (s *Server) Send(addr string, msg MessageType, payload any) error {
	target, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	return s.SendTo(target, msg, payload)
}

// SendTo writes one envelope to target.
func (s *Server) SendTo(target *net.UDPAddr, msg MessageType, payload any) error {
	data, err := s.frame(msg, payload)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(data, target)
	return err
}

// frame wraps payload in the next envelope of this endpoint's sequence and
// enforces the datagram limit.
func (s *Server) frame(msg MessageType, payload any) ([]byte, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
		raw = json.RawMessage("null")
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msg, err)
		}
		raw = b
	}
	data, err := Encode(Envelope{
		Type:      msg,
		Timestamp: time.Now().UTC(),
		Seq:       s.seq.Add(1),
		Payload:   raw,
	})
	if err != nil {
		return nil, err
	}
	if len(data) > s.maxSize {
		return nil, fmt.Errorf("%s message of %d bytes exceeds datagram limit %d", msg, len(data), s.maxSize)
	}
	return data, nil
}
