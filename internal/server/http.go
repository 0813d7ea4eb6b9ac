package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"orefield/internal/entities"
	"orefield/internal/network"
	"orefield/internal/world"
)

const defaultPreviewScale = 4

type levelChange struct {
	Level int `json:"level"`
}

// Handler returns the HTTP surface of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/level", s.handleLevel)
	mux.HandleFunc("/level/advance", s.handleAdvance)
	mux.HandleFunc("/level/reset", s.handleReset)
	mux.HandleFunc("/objects", s.handleObjects)
	mux.HandleFunc("/preview.png", s.handlePreview)
	mux.HandleFunc("/ws", s.handleSubscribe)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Status())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.handleLevelChange(w, r, s.AdvanceLevel)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.handleLevelChange(w, r, s.ResetLevel)
}

func (s *Server) handleLevelChange(w http.ResponseWriter, r *http.Request, change func(context.Context) (int, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lvl, err := change(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, levelChange{Level: lvl})
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	objs := s.Objects()
	if tpl := r.URL.Query().Get("template"); tpl != "" {
		filtered := make([]entities.Object, 0, len(objs))
		for _, obj := range objs {
			if obj.Template == tpl {
				filtered = append(filtered, obj)
			}
		}
		objs = filtered
	}
	writeJSON(w, objs)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scale := float64(defaultPreviewScale)
	if raw := r.URL.Query().Get("scale"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 32 {
			http.Error(w, "invalid scale parameter", http.StatusBadRequest)
			return
		}
		scale = v
	}

	img, err := s.Preview(r.Context(), scale)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := world.EncodePreview(&buf, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, func() ([]byte, error) {
		return s.envelope(network.MessageStatus, s.wireStatus(s.Status()))
	})
}

func writeCommandError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrNotRunning) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
