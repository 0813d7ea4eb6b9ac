// Package server hosts the level coordinator behind a single tick loop and
// exposes it over HTTP, websockets and UDP.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"orefield/internal/config"
	"orefield/internal/entities"
	"orefield/internal/events"
	"orefield/internal/level"
	"orefield/internal/network"
)

const (
	commandTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

var ErrNotRunning = errors.New("server loop is not running")

type commandKind int

const (
	commandAdvance commandKind = iota
	commandReset
	commandPreview
)

type command struct {
	kind  commandKind
	scale float64
	reply chan commandResult
}

type commandResult struct {
	level int
	image *image.NRGBA
	err   error
}

// Snapshot is the status published to HTTP, websocket and UDP peers.
type Snapshot struct {
	ServerID string `json:"serverId"`
	level.Status
	Objects       int       `json:"objects"`
	Subscribers   int       `json:"subscribers"`
	DroppedEvents uint64    `json:"droppedEvents"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Server owns the coordinator. Every coordinator call happens on the loop
// goroutine; other goroutines reach it through commands.
type Server struct {
	cfg     *config.Config
	coord   *level.Coordinator
	objects *entities.Manager
	queue   *events.Queue
	net     *network.Server
	hub     *hub
	httpSrv *http.Server
	logger  *log.Logger

	commands  chan command
	running   chan struct{}
	newTicker tickerFactory
	streamSeq atomic.Uint64

	// OnLevelCompleted, when set, is called from the loop after a level
	// finishes generating.
	OnLevelCompleted func(Snapshot)

	statusMu sync.RWMutex
	snapshot Snapshot
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.Writer(), "orefield ", log.LstdFlags|log.Lmicroseconds)

	queue := events.NewQueue(4 * cfg.Network.MaxEventsPerTick)
	objects := entities.NewManager(entities.TemplatesFromCatalog(cfg.Catalog), queue)
	coord, err := level.New(level.Options{
		Config:  cfg,
		Spawner: objects,
		Events:  queue,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var netSrv *network.Server
	if cfg.Network.ListenUDP != "" {
		netSrv, err = network.Listen(cfg.Network.ListenUDP, logger, cfg.Network.MaxDatagramSizeBytes)
		if err != nil {
			return nil, err
		}
	}

	srv := &Server{
		cfg:       cfg,
		coord:     coord,
		objects:   objects,
		queue:     queue,
		net:       netSrv,
		hub:       newHub(logger),
		logger:    logger,
		commands:  make(chan command),
		running:   make(chan struct{}),
		newTicker: defaultTickerFactory(),
	}
	srv.refreshStatus()
	if srv.net != nil {
		srv.registerHandlers()
	}
	return srv, nil
}

func (s *Server) registerHandlers() {
	s.net.Register(network.MessageLevelAdvance, s.onLevelAdvance)
	s.net.Register(network.MessageLevelReset, s.onLevelReset)
	s.net.Register(network.MessageStatusQuery, s.onStatusQuery)
}

// Run serves until ctx is cancelled or the HTTP listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s.net != nil {
		defer s.net.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.net != nil {
		go func() {
			if err := s.net.Serve(ctx); err != nil && ctx.Err() == nil {
				s.logger.Printf("network server stopped: %v", err)
				cancel()
			}
		}()
		s.announce()
	}

	errCh := make(chan error, 1)
	if addr := s.cfg.Server.HTTPAddress; addr != "" {
		s.httpSrv = &http.Server{
			Addr:    addr,
			Handler: s.Handler(),
		}
		go func() {
			s.logger.Printf("HTTP server listening on %s", addr)
			if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				cancel()
			}
		}()
	}

	_ = s.loop(ctx)

	if s.httpSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}
	s.hub.close()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (s *Server) loop(ctx context.Context) error {
	close(s.running)

	if s.cfg.Server.AutoStart {
		s.startLevel()
		s.flush()
	}

	tickC, stopTick := s.newTicker(s.cfg.Server.TickRate.Duration())
	defer stopTick()

	var statusC, keepAliveC <-chan time.Time
	if s.net != nil && len(s.cfg.Network.StreamEndpoints) > 0 {
		var stop func()
		statusC, stop = optionalTicker(s.newTicker, s.cfg.Server.StatusInterval.Duration())
		defer stop()
		keepAliveC, stop = optionalTicker(s.newTicker, s.cfg.Network.KeepAliveInterval.Duration())
		defer stop()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.commands:
			res := s.apply(cmd)
			s.flush()
			cmd.reply <- res
		case <-tickC:
			s.tick()
		case <-statusC:
			s.broadcastStatus()
		case <-keepAliveC:
			s.sendKeepAlive()
		}
	}
}

// tick regenerates the level after a transition and otherwise performs one
// placement attempt.
func (s *Server) tick() {
	if s.coord.Transitioning() {
		s.startLevel()
	}
	if _, err := s.coord.Tick(); err != nil {
		s.logger.Printf("level %d tick: %v", s.coord.CurrentLevel(), err)
	}
	s.flush()
}

func (s *Server) startLevel() {
	if err := s.coord.StartLevel(); err != nil {
		s.logger.Printf("start level %d: %v", s.coord.CurrentLevel(), err)
	}
}

func (s *Server) apply(cmd command) commandResult {
	switch cmd.kind {
	case commandAdvance:
		return commandResult{level: s.coord.AdvanceLevel()}
	case commandReset:
		s.coord.ResetLevel()
		return commandResult{level: s.coord.CurrentLevel()}
	case commandPreview:
		img, err := s.coord.Preview(cmd.scale)
		return commandResult{level: s.coord.CurrentLevel(), image: img, err: err}
	}
	return commandResult{err: fmt.Errorf("unknown command %d", cmd.kind)}
}

// submit hands cmd to the loop and waits for its result. A loop that has not
// started yet is waited for until ctx is done.
func (s *Server) submit(ctx context.Context, cmd command) (commandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	select {
	case <-s.running:
	case <-ctx.Done():
		return commandResult{}, ErrNotRunning
	}

	cmd.reply = make(chan commandResult, 1)
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

// flush forwards pending events and refreshes the published status.
func (s *Server) flush() {
	evs := s.queue.Drain(s.cfg.Network.MaxEventsPerTick)
	completed := false
	for _, ev := range evs {
		if ev.Type == events.TypeLevelCompleted {
			completed = true
		}
	}
	s.refreshStatus()
	if len(evs) > 0 {
		s.streamEvents(evs)
	}
	if completed && s.OnLevelCompleted != nil {
		s.OnLevelCompleted(s.Status())
	}
}

func (s *Server) refreshStatus() {
	snap := Snapshot{
		ServerID:      s.cfg.Server.ID,
		Status:        s.coord.Status(),
		Objects:       s.objects.Len(),
		Subscribers:   s.hub.len(),
		DroppedEvents: s.queue.Dropped(),
		UpdatedAt:     time.Now().UTC(),
	}
	s.statusMu.Lock()
	s.snapshot = snap
	s.statusMu.Unlock()
}

// Status returns the most recent snapshot. It is safe to call from any
// goroutine.
func (s *Server) Status() Snapshot {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.snapshot
}

func (s *Server) Objects() []entities.Object {
	return s.objects.Objects()
}

// AdvanceLevel asks the loop to move to the next level.
func (s *Server) AdvanceLevel(ctx context.Context) (int, error) {
	res, err := s.submit(ctx, command{kind: commandAdvance})
	return res.level, err
}

// ResetLevel asks the loop to return to level 1.
func (s *Server) ResetLevel(ctx context.Context) (int, error) {
	res, err := s.submit(ctx, command{kind: commandReset})
	return res.level, err
}

// Preview renders the current level on the loop goroutine.
func (s *Server) Preview(ctx context.Context, pixelsPerUnit float64) (*image.NRGBA, error) {
	res, err := s.submit(ctx, command{kind: commandPreview, scale: pixelsPerUnit})
	return res.image, err
}
