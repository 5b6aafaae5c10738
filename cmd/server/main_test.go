package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"DROWSY_MONITOR/go-detector/internal/live"
	"DROWSY_MONITOR/go-detector/internal/models"
	"DROWSY_MONITOR/go-detector/internal/storage"
)

func seedHistory(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	store = storage.NewLogStore(filepath.Join(dir, "drowsiness_log.json"))
	coord = live.New(filepath.Join(dir, "live_session_status.json"), filepath.Join(dir, "live_sessions"), "unused")

	for _, s := range []models.SessionSummary{
		{SessionID: "s1", TotalFrames: 100, DrowsyFrames: 20, DrowsyEvents: 1},
		{SessionID: "s2", TotalFrames: 300, DrowsyFrames: 60, DrowsyEvents: 2},
	} {
		if err := store.Append(s); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func TestStatusMessageDerivedFromHistory(t *testing.T) {
	seedHistory(t)

	msg := statusMessage("client-test")
	payload := msg.Payload.(map[string]interface{})

	if got := payload["total_frames"].(uint64); got != 400 {
		t.Errorf("total_frames = %d, want 400", got)
	}
	if got := payload["drowsy_frames"].(uint64); got != 80 {
		t.Errorf("drowsy_frames = %d, want 80", got)
	}
	if got := payload["drowsy_events"].(int); got != 3 {
		t.Errorf("drowsy_events = %d, want 3", got)
	}
	if got := payload["logged_sessions"].(int); got != 2 {
		t.Errorf("logged_sessions = %d, want 2", got)
	}
	if got := payload["detection_rate"].(float64); got != 0.2 {
		t.Errorf("detection_rate = %v, want 0.2", got)
	}
}

func TestStatusMessageEmptyHistory(t *testing.T) {
	dir := t.TempDir()
	store = storage.NewLogStore(filepath.Join(dir, "drowsiness_log.json"))
	coord = live.New(filepath.Join(dir, "live_session_status.json"), filepath.Join(dir, "live_sessions"), "unused")

	payload := statusMessage("client-test").Payload.(map[string]interface{})
	if got := payload["detection_rate"].(float64); got != 0 {
		t.Errorf("Empty history detection rate = %v, want 0", got)
	}
	if got := payload["total_frames"].(uint64); got != 0 {
		t.Errorf("Empty history total frames = %d, want 0", got)
	}
}

func TestHandleMetricsDerivedFromHistory(t *testing.T) {
	seedHistory(t)

	rec := httptest.NewRecorder()
	handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if got := body["total_frames"].(float64); got != 400 {
		t.Errorf("total_frames = %v, want 400", got)
	}
	if got := body["drowsy_detections"].(float64); got != 3 {
		t.Errorf("drowsy_detections = %v, want 3", got)
	}
	if got := body["logged_sessions"].(float64); got != 2 {
		t.Errorf("logged_sessions = %v, want 2", got)
	}
	if got := body["active_clients"].(float64); got != 0 {
		t.Errorf("active_clients = %v, want 0", got)
	}
}
