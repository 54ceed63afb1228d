package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/go-chi/chi/v5"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/command"
	"github.com/edgekit/device-manager/internal/logger"
)

// ListContainers handles GET /api/containers. Unlike the device snapshot,
// this queries Docker directly so clients can see the live state.
func (h *Handler) ListContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := h.containers.List(r.Context())
	if err != nil {
		logger.Error("Failed to list containers: %v", err)
		h.WriteError(w, "failed to list containers", http.StatusInternalServerError)
		return
	}

	h.WriteJSON(w, api.ListContainersResponse{Containers: containers}, http.StatusOK)
}

// GetContainer handles GET /api/containers/{id}.
func (h *Handler) GetContainer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.containers.Inspect(r.Context(), id)
	if err != nil {
		h.WriteError(w, fmt.Sprintf("container not found: %s", id), http.StatusNotFound)
		return
	}

	h.WriteJSON(w, c, http.StatusOK)
}

// ContainerAction returns a handler that enqueues the given lifecycle
// command for the container in the URL. Used for the start, stop, restart,
// and remove routes.
//
// The work happens asynchronously on the command pool; the response is
// 202 Accepted with the command ID for status polling.
func (h *Handler) ContainerAction(cmdType api.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		resp, err := h.commands.Submit(api.SubmitCommandRequest{
			Type:        cmdType,
			ContainerID: id,
		}, "api")
		if err != nil {
			h.writeSubmitError(w, err)
			return
		}

		h.WriteJSON(w, resp, http.StatusAccepted)
	}
}

// ContainerLogs handles GET /api/containers/{id}/logs?follow=&tail=.
//
// Logs stream as plain text. Docker multiplexes stdout and stderr into one
// stream with 8-byte frame headers; stdcopy demultiplexes them into the
// response. Each write is flushed so followers see lines as they appear.
func (h *Handler) ContainerLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	follow := r.URL.Query().Get("follow") == "true"
	tail := r.URL.Query().Get("tail")

	logStream, err := h.containers.Logs(r.Context(), id, follow, tail)
	if err != nil {
		h.WriteError(w, fmt.Sprintf("failed to get logs: %v", err), http.StatusInternalServerError)
		return
	}
	defer logStream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	fw := &flushingWriter{writer: w, flusher: flusher}
	if _, err := stdcopy.StdCopy(fw, fw, logStream); err != nil && err != io.EOF {
		// A follower disconnecting lands here; nothing to send back.
		logger.Debug("Log stream for %s ended: %v", id, err)
	}
}

// writeSubmitError maps command submission failures onto HTTP status
// codes.
func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, command.ErrQueueFull):
		h.WriteError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, command.ErrPoolClosed):
		h.WriteError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.WriteError(w, err.Error(), http.StatusBadRequest)
	}
}

// flushingWriter flushes the HTTP response after every write so streamed
// logs arrive in real time.
type flushingWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func (fw *flushingWriter) Write(p []byte) (int, error) {
	n, err := fw.writer.Write(p)
	if err == nil && fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}
