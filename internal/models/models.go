package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ArchivedSession is a finished session as stored in the database archive.
// The JSON session log remains the authoritative record; the archive exists
// for per-user history queries.
type ArchivedSession struct {
	ID                   int        `json:"id"`
	UserID               int        `json:"user_id"`
	SessionID            string     `json:"session_id"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	DurationSeconds      float64    `json:"duration_seconds"`
	TotalFrames          uint64     `json:"total_frames"`
	DrowsyFrames         uint64     `json:"drowsy_frames"`
	DrowsinessPercentage float64    `json:"drowsiness_percentage"`
	EARStats             EARStats   `json:"ear_stats"`
	Notes                string     `json:"notes,omitempty"`
}

// ArchivedEvent is one drowsy event row belonging to an archived session.
type ArchivedEvent struct {
	ID              int       `json:"id"`
	SessionID       int       `json:"session_id"`
	EARValue        float64   `json:"ear_value"`
	SessionDuration float64   `json:"session_duration"`
	Timestamp       time.Time `json:"timestamp"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ArchiveSessionRequest struct {
	Summary SessionSummary `json:"summary"`
	Notes   string         `json:"notes,omitempty"`
}

type StartLiveRequest struct {
	SessionID string `json:"session_id,omitempty"`
}
