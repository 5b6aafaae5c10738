package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"DROWSY_MONITOR/go-detector/internal/detector"
	"DROWSY_MONITOR/go-detector/internal/models"
	"DROWSY_MONITOR/go-detector/internal/services"
	"DROWSY_MONITOR/go-detector/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeLandmarkServer streams the scripted frames and then closes the stream
// cleanly, the way the real landmark service ends a capture.
func fakeLandmarkServer(t *testing.T, frames []models.FramePacket) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteJSON(frame); err != nil {
				t.Errorf("WriteJSON failed: %v", err)
				return
			}
		}

		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

		// Drain until the peer closes so the handshake completes
		conn.SetReadDeadline(deadline)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func singleFaceFrames(ears []float64) []models.FramePacket {
	frames := make([]models.FramePacket, len(ears))
	for i, ear := range ears {
		frames[i] = models.FramePacket{
			SequenceNumber: int64(i),
			Timestamp:      time.Now().UnixMilli(),
			Faces:          []models.FaceReading{{FaceID: "face-0", EAR: ear}},
		}
	}
	return frames
}

func runSession(t *testing.T, store *storage.LogStore, cfg services.RunConfig, frames []models.FramePacket) models.SessionSummary {
	t.Helper()

	srv := fakeLandmarkServer(t, frames)
	defer srv.Close()

	client, err := services.NewLandmarkClient(context.Background(), wsURL(srv), "")
	if err != nil {
		t.Fatalf("NewLandmarkClient failed: %v", err)
	}
	defer client.Close()

	det, err := detector.New(0.25, 3)
	if err != nil {
		t.Fatalf("detector.New failed: %v", err)
	}

	run := services.NewDetectionRun(cfg, det, store)
	summary, err := run.Run(context.Background(), client)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return summary
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewLogStore(filepath.Join(dir, "drowsiness_log.json"))

	// 0.20 runs for three consecutive frames, so exactly one alert fires
	ears := []float64{0.30, 0.20, 0.20, 0.20, 0.32, 0.31}
	summary := runSession(t, store, services.RunConfig{SessionID: "test_run"}, singleFaceFrames(ears))

	if summary.SessionID != "test_run" {
		t.Errorf("SessionID = %q, want test_run", summary.SessionID)
	}
	if summary.TotalFrames != 6 {
		t.Errorf("TotalFrames = %d, want 6", summary.TotalFrames)
	}
	if summary.DrowsyFrames != 3 {
		t.Errorf("DrowsyFrames = %d, want 3", summary.DrowsyFrames)
	}
	if summary.DrowsyEvents != 1 || len(summary.Events) != 1 {
		t.Fatalf("DrowsyEvents = %d (%d stored), want 1", summary.DrowsyEvents, len(summary.Events))
	}
	if summary.Events[0].EARValue != 0.20 {
		t.Errorf("Event EAR = %v, want 0.20", summary.Events[0].EARValue)
	}
	if want := 50.0; summary.DrowsinessPercentage != want {
		t.Errorf("DrowsinessPercentage = %v, want %v", summary.DrowsinessPercentage, want)
	}
	if summary.EARStats.Min != 0.20 || summary.EARStats.Max != 0.32 {
		t.Errorf("EAR bounds = [%v, %v], want [0.20, 0.32]", summary.EARStats.Min, summary.EARStats.Max)
	}

	logs := store.LoadAll()
	if len(logs) != 1 {
		t.Fatalf("Stored sessions = %d, want 1", len(logs))
	}
	if logs[0].SessionID != "test_run" {
		t.Errorf("Stored SessionID = %q, want test_run", logs[0].SessionID)
	}
}

func TestPipelineNoFaceFramesCountButDoNotAlert(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewLogStore(filepath.Join(dir, "drowsiness_log.json"))

	frames := []models.FramePacket{
		{SequenceNumber: 0, Faces: []models.FaceReading{{FaceID: "face-0", EAR: 0.20}}},
		{SequenceNumber: 1, Faces: nil}, // face lost
		{SequenceNumber: 2, Faces: []models.FaceReading{{FaceID: "face-0", EAR: 0.20}}},
		{SequenceNumber: 3, Faces: []models.FaceReading{{FaceID: "face-0", EAR: 0.20}}},
	}
	summary := runSession(t, store, services.RunConfig{SessionID: "gap_run"}, frames)

	if summary.TotalFrames != 4 {
		t.Errorf("TotalFrames = %d, want 4", summary.TotalFrames)
	}
	// The no-face frame does not touch the counter, so the low run spans
	// frames 0, 2 and 3 and the alert still fires.
	if summary.DrowsyEvents != 1 {
		t.Errorf("DrowsyEvents = %d, want 1", summary.DrowsyEvents)
	}
	if summary.DrowsyFrames != 3 {
		t.Errorf("DrowsyFrames = %d, want 3", summary.DrowsyFrames)
	}
}

func TestPipelineSecondRunAppendsToLog(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewLogStore(filepath.Join(dir, "drowsiness_log.json"))

	runSession(t, store, services.RunConfig{SessionID: "first"}, singleFaceFrames([]float64{0.30, 0.31}))
	runSession(t, store, services.RunConfig{SessionID: "second"}, singleFaceFrames([]float64{0.29, 0.28}))

	logs := store.LoadAll()
	if len(logs) != 2 {
		t.Fatalf("Stored sessions = %d, want 2", len(logs))
	}
	if logs[0].SessionID != "first" || logs[1].SessionID != "second" {
		t.Errorf("Stored order = [%q, %q], want [first, second]", logs[0].SessionID, logs[1].SessionID)
	}
}

func TestPipelineWritesSessionReport(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewLogStore(filepath.Join(dir, "drowsiness_log.json"))
	report := filepath.Join(dir, "sessions", "session_report.json")

	summary := runSession(t, store,
		services.RunConfig{SessionID: "report_run", OutputFile: report},
		singleFaceFrames([]float64{0.30, 0.20, 0.20, 0.20}))

	if summary.DrowsyEvents != 1 {
		t.Errorf("DrowsyEvents = %d, want 1", summary.DrowsyEvents)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("Report not written: %v", err)
	}
	var written models.SessionSummary
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatalf("Report not valid JSON: %v", err)
	}
	if written.SessionID != "report_run" || written.DrowsyEvents != 1 {
		t.Errorf("Report = {%q, %d events}, want {report_run, 1 event}", written.SessionID, written.DrowsyEvents)
	}
}
