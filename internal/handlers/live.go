package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"DROWSY_MONITOR/go-detector/internal/live"
	"DROWSY_MONITOR/go-detector/internal/models"
	"DROWSY_MONITOR/go-detector/internal/storage"
)

// LiveHandler exposes the live session coordinator and the session log
// store over HTTP.
type LiveHandler struct {
	coord *live.Coordinator
	store *storage.LogStore
}

func NewLiveHandler(coord *live.Coordinator, store *storage.LogStore) *LiveHandler {
	return &LiveHandler{coord: coord, store: store}
}

// Start launches a background detection run. 409 while one is active.
func (h *LiveHandler) Start(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.StartLiveRequest
	if r.Body != nil {
		// Empty body is fine, the coordinator generates a session ID
		json.NewDecoder(r.Body).Decode(&req)
	}

	err := h.coord.Start(live.RunOptions{SessionID: req.SessionID})
	if errors.Is(err, live.ErrAlreadyActive) {
		http.Error(w, "A live session is already active", http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("Failed to start live session: %v", err)
		http.Error(w, "Failed to start live session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(h.coord.Status())
}

// Stop requests termination of the current run. The status flips to
// inactive immediately; actual process exit follows.
func (h *LiveHandler) Stop(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.coord.RequestStop(); err != nil {
		log.Printf("Failed to request stop: %v", err)
		http.Error(w, "Failed to request stop", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.coord.Status())
}

// Status returns the current live session status record.
func (h *LiveHandler) Status(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	json.NewEncoder(w).Encode(h.coord.Status())
}

// Sessions returns the full session history from the log store, newest
// first.
func (h *LiveHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summaries := h.store.LoadAll()

	// Newest first for display
	reversed := make([]models.SessionSummary, len(summaries))
	for i := range summaries {
		reversed[i] = summaries[len(summaries)-1-i]
	}

	json.NewEncoder(w).Encode(reversed)
}
