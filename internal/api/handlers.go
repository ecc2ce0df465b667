// Package api provides the HTTP command and status surface over the
// equipment supervisor.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tankwanghow/pou-con-sub002/internal/controller"
	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// Handler serves the /api/equipment routes.
type Handler struct {
	supervisor *controller.Supervisor
	logger     zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(supervisor *controller.Supervisor, logger zerolog.Logger) *Handler {
	return &Handler{
		supervisor: supervisor,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes attaches the API routes to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/equipment", h.EquipmentCollectionHandler)
	mux.HandleFunc("/api/equipment/", h.EquipmentHandler)
}

// StatusListResponse is the GET /api/equipment payload.
type StatusListResponse struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Equipment   []domain.State `json:"equipment"`
}

// EquipmentCollectionHandler handles GET /api/equipment.
func (h *Handler) EquipmentCollectionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, StatusListResponse{
		GeneratedAt: time.Now(),
		Equipment:   h.supervisor.StatusAll(),
	})
}

// EquipmentHandler routes /api/equipment/{name} and its command
// sub-resources /on, /off and /mode.
func (h *Handler) EquipmentHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/equipment/")
	name, action, _ := strings.Cut(rest, "/")
	if name == "" {
		http.Error(w, "equipment name required", http.StatusBadRequest)
		return
	}

	switch action {
	case "":
		h.statusHandler(w, r, name)
	case "on":
		h.commandHandler(w, r, name, h.supervisor.TurnOn)
	case "off":
		h.commandHandler(w, r, name, h.supervisor.TurnOff)
	case "mode":
		h.modeHandler(w, r, name)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) statusHandler(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := h.supervisor.Status(name)
	if err != nil {
		h.writeError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// commandHandler handles the POST /on and /off sub-resources. Commands are
// fire-and-forget at the controller level, so the response carries the
// post-command snapshot rather than a confirmation the device obeyed.
func (h *Handler) commandHandler(w http.ResponseWriter, r *http.Request, name string, cmd func(context.Context, string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := cmd(r.Context(), name); err != nil {
		h.writeError(w, name, err)
		return
	}

	st, err := h.supervisor.Status(name)
	if err != nil {
		h.writeError(w, name, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (h *Handler) modeHandler(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mode := domain.Mode(body.Mode)
	if mode != domain.ModeAuto && mode != domain.ModeManual {
		http.Error(w, "mode must be auto or manual", http.StatusBadRequest)
		return
	}

	if err := h.supervisor.SetMode(r.Context(), name, mode); err != nil {
		h.writeError(w, name, err)
		return
	}

	st, err := h.supervisor.Status(name)
	if err != nil {
		h.writeError(w, name, err)
		return
	}
	h.logger.Info().Str("equipment", name).Str("mode", body.Mode).Msg("Mode change accepted")
	writeJSON(w, http.StatusAccepted, st)
}

func (h *Handler) writeError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, domain.ErrEquipmentNotFound) {
		http.Error(w, "equipment not found: "+name, http.StatusNotFound)
		return
	}
	h.logger.Error().Err(err).Str("equipment", name).Msg("API request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
