package server

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"orefield/internal/events"
	"orefield/internal/network"
)

func encodeEventState(ev events.Event) network.EventState {
	state := network.EventState{
		Seq:      ev.Seq,
		Type:     string(ev.Type),
		Level:    ev.Level,
		Object:   string(ev.Object),
		Template: ev.Template,
		Message:  ev.Message,
	}
	if ev.Position != nil {
		state.Position = []float64{ev.Position.X, ev.Position.Y, ev.Position.Z}
	}
	return state
}

func (s *Server) wireStatus(snap Snapshot) network.Status {
	return network.Status{
		ServerID:      snap.ServerID,
		Level:         snap.Level,
		Stage:         snap.Stage,
		State:         string(snap.State),
		Phase:         string(snap.Phase),
		Transitioning: snap.Transitioning,
		Attempted:     snap.Attempted,
		Total:         snap.Total,
		Placed:        snap.Stats.Placed,
		Skipped:       snap.Stats.Skipped,
		Objects:       snap.Objects,
		Timestamp:     snap.UpdatedAt,
	}
}

// envelope encodes a message for websocket subscribers using the same framing
// as the UDP protocol.
func (s *Server) envelope(msgType network.MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return network.Encode(network.Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       s.streamSeq.Add(1),
		Payload:   raw,
	})
}

func (s *Server) streamEvents(evs []events.Event) {
	batch := network.LevelEvents{
		ServerID: s.cfg.Server.ID,
		Events:   make([]network.EventState, 0, len(evs)),
	}
	for _, ev := range evs {
		batch.Events = append(batch.Events, encodeEventState(ev))
	}

	if s.hub.len() > 0 {
		data, err := s.envelope(network.MessageLevelEvents, batch)
		if err != nil {
			s.logger.Printf("marshal level events: %v", err)
		} else {
			s.hub.broadcast(data)
		}
	}

	if s.net == nil {
		return
	}
	for _, endpoint := range s.cfg.Network.StreamEndpoints {
		if err := s.net.Send(endpoint, network.MessageLevelEvents, batch); err != nil {
			s.logger.Printf("level events send to %s: %v", endpoint, err)
		}
	}
}

func (s *Server) broadcastStatus() {
	status := s.wireStatus(s.Status())
	for _, endpoint := range s.cfg.Network.StreamEndpoints {
		if err := s.net.Send(endpoint, network.MessageStatus, status); err != nil {
			s.logger.Printf("send status to %s: %v", endpoint, err)
		}
	}
}

func (s *Server) sendKeepAlive() {
	msg := network.KeepAlive{ServerID: s.cfg.Server.ID, Time: time.Now().UTC()}
	for _, endpoint := range s.cfg.Network.StreamEndpoints {
		if err := s.net.Send(endpoint, network.MessageKeepAlive, msg); err != nil {
			s.logger.Printf("send keepalive to %s: %v", endpoint, err)
		}
	}
}

func (s *Server) announce() {
	hello := network.Hello{
		ServerID: s.cfg.Server.ID,
		HTTP:     s.cfg.Server.HTTPAddress,
		Level:    s.Status().Level,
	}
	for _, endpoint := range s.cfg.Network.StreamEndpoints {
		if err := s.net.Send(endpoint, network.MessageHello, hello); err != nil {
			s.logger.Printf("announce to %s: %v", endpoint, err)
		}
	}
}

func (s *Server) onLevelAdvance(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var msg network.LevelCommand
	if err := network.DecodePayload(env, &msg); err != nil {
		s.logger.Printf("level advance decode: %v", err)
		return
	}
	lvl, err := s.AdvanceLevel(ctx)
	if err != nil {
		s.logger.Printf("level advance from %s: %v", addr, err)
		return
	}
	s.logger.Printf("level advance to %d requested by %s", lvl, requester(msg.RequestedBy, addr))
	s.replyStatus(addr)
}

func (s *Server) onLevelReset(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var msg network.LevelCommand
	if err := network.DecodePayload(env, &msg); err != nil {
		s.logger.Printf("level reset decode: %v", err)
		return
	}
	if _, err := s.ResetLevel(ctx); err != nil {
		s.logger.Printf("level reset from %s: %v", addr, err)
		return
	}
	s.logger.Printf("level reset requested by %s", requester(msg.RequestedBy, addr))
	s.replyStatus(addr)
}

func (s *Server) onStatusQuery(ctx context.Context, addr *net.UDPAddr, env network.Envelope) {
	var msg network.StatusQuery
	if err := network.DecodePayload(env, &msg); err != nil {
		s.logger.Printf("status query decode: %v", err)
		return
	}
	s.replyStatus(addr)
}

func (s *Server) replyStatus(addr *net.UDPAddr) {
	if err := s.net.SendTo(addr, network.MessageStatus, s.wireStatus(s.Status())); err != nil {
		s.logger.Printf("status reply to %s: %v", addr, err)
	}
}

func requester(name string, addr *net.UDPAddr) string {
	if name != "" {
		return name
	}
	return addr.String()
}
