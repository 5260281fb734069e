// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the read-mostly HTTP surface: stored extractions,
// aggregate stats, worker sessions, health, and the two mutations (clear all,
// reprocess one message). Ingestion itself never flows through here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/quotesnap/ingestion/internal/models"
	"github.com/quotesnap/ingestion/internal/poller"
	"github.com/quotesnap/ingestion/internal/registry"
	"github.com/quotesnap/ingestion/internal/store"
)

// ExtractionStore is the store surface the API reads and clears.
type ExtractionStore interface {
	List(ctx context.Context, limit int) ([]models.ExtractionRecord, error)
	Get(ctx context.Context, mailbox, messageID string) (*models.ExtractionRecord, error)
	Stats(ctx context.Context) (*store.Stats, error)
	ClearAll(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Reprocessor re-runs the ingestion pipeline for one message, bypassing the
// seen filter. Implemented by poller.Poller.
type Reprocessor interface {
	ProcessMessage(ctx context.Context, messageID string) error
}

// Pinger checks a backing service connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP API.
type Handler struct {
	store        ExtractionStore
	filter       Pinger
	registry     *registry.Registry
	reprocessors map[string]Reprocessor // keyed by mailbox alias
}

// NewHandler creates the API handler. reprocessors maps each mailbox alias to
// its poller.
func NewHandler(st ExtractionStore, filter Pinger, reg *registry.Registry, reprocessors map[string]Reprocessor) *Handler {
	return &Handler{
		store:        st,
		filter:       filter,
		registry:     reg,
		reprocessors: reprocessors,
	}
}

// Routes registers all endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/extractions", h.handleList)
	mux.HandleFunc("GET /api/extractions/stats", h.handleStats)
	mux.HandleFunc("GET /api/extractions/{mailbox}/{messageID}", h.handleGet)
	mux.HandleFunc("POST /api/extractions/clear", h.handleClear)
	mux.HandleFunc("POST /api/extractions/reprocess", h.handleReprocess)
	mux.HandleFunc("GET /api/sessions", h.handleSessions)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	if err := h.store.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.filter.Ping(r.Context()); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	writeJSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.store.List(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list extractions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list extractions")
		return
	}
	if records == nil {
		records = []models.ExtractionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(records),
		"extractions": records,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		slog.Error("failed to compute stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	mailbox := r.PathValue("mailbox")
	messageID := r.PathValue("messageID")

	rec, err := h.store.Get(r.Context(), mailbox, messageID)
	if err != nil {
		slog.Error("failed to get extraction", "mailbox", mailbox, "message_id", messageID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get extraction")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "extraction not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.ClearAll(r.Context())
	if err != nil {
		slog.Error("failed to clear extractions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear extractions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// reprocessRequest names the message to re-run.
type reprocessRequest struct {
	Mailbox   string `json:"mailbox"`
	MessageID string `json:"message_id"`
}

func (h *Handler) handleReprocess(w http.ResponseWriter, r *http.Request) {
	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Mailbox == "" || req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "mailbox and message_id are required")
		return
	}

	rp, ok := h.reprocessors[req.Mailbox]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown mailbox")
		return
	}

	if err := rp.ProcessMessage(r.Context(), req.MessageID); err != nil {
		if errors.Is(err, poller.ErrMessageGone) {
			writeError(w, http.StatusNotFound, "message no longer exists in mailbox")
			return
		}
		slog.Error("reprocess failed", "mailbox", req.Mailbox, "message_id", req.MessageID, "error", err)
		writeError(w, http.StatusInternalServerError, "reprocess failed")
		return
	}

	rec, err := h.store.Get(r.Context(), req.Mailbox, req.MessageID)
	if err != nil || rec == nil {
		slog.Error("reprocessed record not found", "mailbox", req.Mailbox, "message_id", req.MessageID, "error", err)
		writeError(w, http.StatusInternalServerError, "reprocessed record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
