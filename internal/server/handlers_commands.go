package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgekit/device-manager/internal/api"
)

// SubmitCommand handles POST /api/commands.
func (h *Handler) SubmitCommand(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.commands.Submit(req, "api")
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	h.WriteJSON(w, resp, http.StatusAccepted)
}

// ListCommands handles GET /api/commands, returning the command history
// newest first.
func (h *Handler) ListCommands(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, api.ListCommandsResponse{Commands: h.commands.List()}, http.StatusOK)
}

// GetCommand handles GET /api/commands/{id}.
func (h *Handler) GetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.commands.Get(id)
	if err != nil {
		h.WriteError(w, err.Error(), http.StatusNotFound)
		return
	}

	h.WriteJSON(w, rec, http.StatusOK)
}
