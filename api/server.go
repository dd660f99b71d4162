// Package api exposes the session over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/session"
)

// Controller is the part of the session the API drives.
type Controller interface {
	Status() session.Status
	Execute(ctx context.Context, line string) error
}

// Server holds the handler dependencies.
type Server struct {
	Controller Controller
	Gatherer   prometheus.Gatherer
	Log        *slog.Logger
}

// NewHandler creates the HTTP handler. A nil gatherer disables /metrics.
func NewHandler(c Controller, g prometheus.Gatherer, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{Controller: c, Gatherer: g, Log: log}

	r := chi.NewRouter()
	r.Get("/healthz", s.Healthz)
	r.Get("/status", s.GetStatus)
	r.Post("/commands", s.PostCommand)
	r.Post("/connect", s.PostConnect)
	r.Post("/disconnect", s.PostDisconnect)
	if g != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return r
}

// StatusResponse is the JSON form of session.Status.
type StatusResponse struct {
	State     string          `json:"state"`
	Peer      string          `json:"peer,omitempty"`
	Device    string          `json:"device,omitempty"`
	Telemetry TelemetryFields `json:"telemetry"`
}

// TelemetryFields mirrors protocol.Telemetry.
type TelemetryFields struct {
	Engine      bool       `json:"engine"`
	BoostHigh   bool       `json:"boost_high"`
	Accessories bool       `json:"accessories"`
	Ignition    bool       `json:"ignition"`
	Starter     bool       `json:"starter"`
	Battery     string     `json:"battery,omitempty"`
	Updated     *time.Time `json:"updated,omitempty"`
}

// CommandRequest is the body of POST /commands.
type CommandRequest struct {
	Command string `json:"command"`
}

// ConnectRequest is the body of POST /connect. An empty peer uses the default.
type ConnectRequest struct {
	Peer string `json:"peer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func mapStatus(st session.Status) StatusResponse {
	resp := StatusResponse{
		State:  st.State.String(),
		Peer:   st.Peer,
		Device: st.Device,
		Telemetry: TelemetryFields{
			Engine:      st.Telemetry.Engine,
			BoostHigh:   st.Telemetry.BoostHigh,
			Accessories: st.Telemetry.Accessories,
			Ignition:    st.Telemetry.Ignition,
			Starter:     st.Telemetry.Starter,
			Battery:     st.Telemetry.Battery,
		},
	}
	if !st.Telemetry.Updated.IsZero() {
		updated := st.Telemetry.Updated
		resp.Telemetry.Updated = &updated
	}
	return resp
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, mapStatus(s.Controller.Status()))
}

// PostCommand handles POST /commands.
func (s *Server) PostCommand(w http.ResponseWriter, r *http.Request) {
	var body CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.Log.Warn("commands: invalid request body", "err", err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	phrase := strings.TrimSpace(body.Command)
	if phrase == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "command is required"})
		return
	}
	// Only device commands; console verbs such as quit or lua are refused.
	// The session parses again with its own starter default.
	if _, err := protocol.ParseCommand(phrase, protocol.DefaultStarterSeconds); err != nil {
		s.writeError(w, err)
		return
	}
	s.execute(w, r, phrase)
}

// PostConnect handles POST /connect.
func (s *Server) PostConnect(w http.ResponseWriter, r *http.Request) {
	var body ConnectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.Log.Warn("connect: invalid request body", "err", err)
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}
	peer := strings.TrimSpace(body.Peer)
	if strings.ContainsAny(peer, " \t\r\n") {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid peer"})
		return
	}
	s.execute(w, r, strings.TrimSpace("connect "+peer))
}

// PostDisconnect handles POST /disconnect.
func (s *Server) PostDisconnect(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, "disconnect")
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, line string) {
	if err := s.Controller.Execute(r.Context(), line); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, mapStatus(s.Controller.Status()))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, protocol.ErrUnknownCommand), errors.Is(err, protocol.ErrStarterDuration):
		code = http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrNoPeer):
		code = http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusInternalServerError {
		s.Log.Error("request failed", "err", err)
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("response encode failed", "err", err)
	}
}
