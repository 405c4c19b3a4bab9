package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HandlerOptions struct {
	MaxMessageBytes int64
	SendBuffer      int
	Checks          map[string]HealthCheck
}

type Handler struct {
	// ctx bounds event processing to the server lifetime rather than a request.
	ctx      context.Context
	log      *slog.Logger
	hub      *Hub
	relay    *Relay
	opts     HandlerOptions
	upgrader websocket.Upgrader
}

func NewHandler(ctx context.Context, log *slog.Logger, hub *Hub, relay *Relay, opts HandlerOptions) *Handler {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 8192
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Handler{
		ctx:   ctx,
		log:   log,
		hub:   hub,
		relay: relay,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Usernames are unauthenticated and clients are served from anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes wires the websocket endpoint, the read-only history API and the health probe.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.ServeWs)
	r.Get("/healthz", h.Health)
	r.Route("/api/rooms/{roomID}", func(r chi.Router) {
		r.Get("/messages", h.GetMessages)
		r.Get("/polls", h.GetPolls)
	})
	return r
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, h.opts.SendBuffer, h.log)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.ctx, h.relay, h.opts.MaxMessageBytes)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.relay.RecentMessages(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.log.Error("Load message history failed", "error", err)
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) GetPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := h.relay.ListPolls(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.log.Error("Load polls failed", "error", err)
		http.Error(w, "could not load polls", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, polls)
}

type healthResponse struct {
	Status  string            `json:"status"`
	Clients int               `json:"clients"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Clients: h.hub.Count(), Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range h.opts.Checks {
		if err := check(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
