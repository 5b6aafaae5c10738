package models

import "time"

// FrameVerdict is the per-frame decision produced by the drowsiness detector.
// FacesDetected is 0 on a no-face verdict from Tick and 1 on a single-face
// verdict from Observe; the frame loop merges per-face verdicts itself.
type FrameVerdict struct {
	FrameIndex     uint64  `json:"frame_index"`
	FacesDetected  uint    `json:"faces_detected"`
	EAR            float64 `json:"ear"`
	IsDrowsyFrame  bool    `json:"is_drowsy"`
	AlertTriggered bool    `json:"alert_triggered"`
}

// DrowsyEvent is recorded once per continuous run of low-EAR frames, at the
// moment the run first reaches the configured frame check count.
type DrowsyEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	EARValue        float64   `json:"ear_value"`
	SessionDuration float64   `json:"session_duration"`
}

type EARStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// SessionStats is a live, non-destructive view of the current session.
type SessionStats struct {
	SessionDuration      float64 `json:"session_duration"`
	TotalFrames          uint64  `json:"total_frames"`
	DrowsyFrames         uint64  `json:"drowsy_frames"`
	DrowsyEvents         int     `json:"drowsy_events"`
	DrowsinessPercentage float64 `json:"drowsiness_percentage"`
	CurrentEAR           float64 `json:"current_ear"`
	AvgEAR               float64 `json:"avg_ear"`
}

// SessionSummary is the persisted form of a finished session.
type SessionSummary struct {
	SessionID            string        `json:"session_id"`
	DurationSeconds      float64       `json:"duration_seconds"`
	TotalFrames          uint64        `json:"total_frames"`
	DrowsyFrames         uint64        `json:"drowsy_frames"`
	DrowsyEvents         int           `json:"drowsy_events"`
	DrowsinessPercentage float64       `json:"drowsiness_percentage"`
	Events               []DrowsyEvent `json:"events"`
	EARStats             EARStats      `json:"ear_stats"`
}

// LiveSessionStatus is the single-slot status record shared between the
// controller and a background detection run. The file is fully overwritten
// on every transition; last writer wins.
type LiveSessionStatus struct {
	Active     bool       `json:"active"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	OutputFile string     `json:"output_file,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Completed  bool       `json:"completed,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// FaceReading is one face's eye openness measurement within a frame.
// The landmark service owns face identity; a re-acquired face may arrive
// under a new ID and is then tracked as a new face.
type FaceReading struct {
	FaceID string  `json:"face_id"`
	EAR    float64 `json:"ear"`
}

// FramePacket is one processed frame received from the landmark service.
// An empty Faces slice is a valid frame with no face present.
type FramePacket struct {
	SequenceNumber int64         `json:"sequence_number"`
	Timestamp      int64         `json:"timestamp"`
	Faces          []FaceReading `json:"faces"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status          string `json:"status"`
	GoDetector      string `json:"go_detector"`
	LandmarkService bool   `json:"landmark_service"`
	ActiveClients   int    `json:"active_clients"`
	LiveSession     bool   `json:"live_session"`
	Version         string `json:"version,omitempty"`
}
