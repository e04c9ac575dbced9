package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/KozyOps/ble-tui/cp26"
)

// Server exposes the configured module instance over HTTP. It is a thin
// exercise surface for the driver, not a UI: every handler maps onto one
// driver operation.
type Server struct {
	Logger *slog.Logger
	Module *cp26.Module
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /settings/{name}", s.handleGetSetting)
	mux.HandleFunc("PUT /settings/{name}", s.handleSetSetting)
	mux.HandleFunc("POST /mode/command", s.handleEnterCommand)
	mux.HandleFunc("POST /mode/passthrough", s.handleEnterPassthrough)
	mux.HandleFunc("POST /probe", s.handleProbe)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// errStatus maps driver errors onto HTTP status codes. A timeout is the
// device staying silent, not a malformed request.
func errStatus(err error) int {
	var verr *cp26.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, cp26.ErrModeMismatch):
		return http.StatusConflict
	case errors.Is(err, cp26.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state := s.Module.State()
	s.sendJSON(w, map[string]any{
		"mode":            state.Mode.String(),
		"link":            state.Link.String(),
		"peer_addr":       state.PeerAddr,
		"pending_restart": state.PendingRestart,
		"low_power":       state.LowPower,
	})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, ok := cp26.SettingByName(r.PathValue("name"))
	if !ok {
		s.sendError(w, "unknown setting", http.StatusNotFound)
		return
	}

	value, err := s.Module.Get(r.Context(), setting)
	if err != nil {
		s.Logger.Error("Failed to get setting", "setting", setting.String(), "error", err)
		s.sendError(w, err.Error(), errStatus(err))
		return
	}
	s.sendJSON(w, map[string]string{"value": value})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	setting, ok := cp26.SettingByName(r.PathValue("name"))
	if !ok {
		s.sendError(w, "unknown setting", http.StatusNotFound)
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Module.Set(r.Context(), setting, req.Value); err != nil {
		s.Logger.Error("Failed to set setting", "setting", setting.String(), "error", err)
		s.sendError(w, err.Error(), errStatus(err))
		return
	}
	s.sendJSON(w, map[string]any{
		"value":           req.Value,
		"pending_restart": s.Module.State().PendingRestart,
	})
}

func (s *Server) handleEnterCommand(w http.ResponseWriter, r *http.Request) {
	if err := s.Module.EnterCommandMode(r.Context()); err != nil {
		s.sendError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleEnterPassthrough(w http.ResponseWriter, r *http.Request) {
	if err := s.Module.EnterPassthrough(r.Context()); err != nil {
		s.sendError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if err := s.Module.Probe(r.Context()); err != nil {
		s.sendError(w, err.Error(), errStatus(err))
		return
	}
	s.sendJSON(w, map[string]string{"mode": s.Module.Mode().String()})
}

// handleReset runs the guarded reset composite. A plain reset would leave
// the interpreter flag enabled across the restart; the composite restores
// passthrough as part of the same operation.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Module.ResetAndRestorePassthrough(r.Context()); err != nil {
		if errors.Is(err, cp26.ErrInterpreterStuck) {
			// The device flag needs external recovery; surface loudly.
			s.Logger.Error("Module left with interpreter possibly enabled", "error", err)
		}
		s.sendError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		s.sendError(w, "empty payload", http.StatusBadRequest)
		return
	}

	if err := s.Module.Send(r.Context(), data); err != nil {
		s.Logger.Error("Failed to send payload", "error", err, "bytes", len(data))
		s.sendError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
