package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"DROWSY_MONITOR/go-detector/internal/database"
	"DROWSY_MONITOR/go-detector/internal/models"
)

// userSessions maps session cookies to user IDs. Request handlers run on
// concurrent goroutines, so every access goes through sessionsMu.
var (
	userSessions = make(map[string]int)
	sessionsMu   sync.RWMutex
)

var corsOrigin = "http://localhost:5000"

// SetCORSOrigin configures the allowed origin for browser clients.
func SetCORSOrigin(origin string) {
	if origin != "" {
		corsOrigin = origin
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func generateSessionID(email string) string {
	return email + "-" + time.Now().Format("20060102150405") + "-" + time.Now().Format("000000000")
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) <= 255
}

func validatePassword(password string) bool {
	if len(password) < 8 || len(password) > 72 {
		return false
	}
	hasLetter := false
	hasNumber := false
	for _, char := range password {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			hasLetter = true
		}
		if char >= '0' && char <= '9' {
			hasNumber = true
		}
	}
	return hasLetter && hasNumber
}

func validateUsername(username string) bool {
	if len(username) < 3 || len(username) > 30 {
		return false
	}
	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	return usernameRegex.MatchString(username)
}

func getUserIDFromCookie(r *http.Request) (int, bool) {
	cookie, err := r.Cookie("session_id")
	if err != nil {
		return 0, false
	}
	sessionsMu.RLock()
	userID, exists := userSessions[cookie.Value]
	sessionsMu.RUnlock()
	return userID, exists
}

func enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cookie")
	w.Header().Set("Content-Type", "application/json")
}

func isUniqueViolation(err error, constraint string) bool {
	return strings.Contains(err.Error(), "duplicate key") && strings.Contains(err.Error(), constraint)
}

func Register(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" {
		http.Error(w, "All fields are required", http.StatusBadRequest)
		return
	}

	if !validateEmail(req.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	if !validatePassword(req.Password) {
		http.Error(w, "Password must be 8-72 characters with at least one letter and one number", http.StatusBadRequest)
		return
	}

	if !validateUsername(req.Username) {
		http.Error(w, "Username must be 3-30 characters, alphanumeric and underscore only", http.StatusBadRequest)
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("Password hashing error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var userID int
	err = database.DB.QueryRow(
		"INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id",
		req.Email, req.Username, passwordHash,
	).Scan(&userID)
	if err != nil {
		log.Printf("Registration failed: %v", err)
		if isUniqueViolation(err, "users_username_key") {
			http.Error(w, "Username already taken", http.StatusConflict)
		} else if isUniqueViolation(err, "users_email_key") {
			http.Error(w, "Email already registered", http.StatusConflict)
		} else {
			http.Error(w, "User already exists", http.StatusConflict)
		}
		return
	}

	user := models.User{
		ID:        userID,
		Email:     req.Email,
		Username:  req.Username,
		CreatedAt: time.Now(),
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
	log.Printf("User registered: %s", req.Email)
}

func Login(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	if !validateEmail(req.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	var user models.User
	var storedHash string
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	err := database.DB.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1",
		req.Email,
	).Scan(&user.ID, &user.Email, &user.Username, &storedHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	} else if err != nil {
		log.Printf("Login error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.Password))
	if err != nil {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	sessionsMu.Lock()
	for sessionKey, userID := range userSessions {
		if userID == user.ID {
			delete(userSessions, sessionKey)
		}
	}
	oldCookie, cookieErr := r.Cookie("session_id")
	if cookieErr == nil {
		delete(userSessions, oldCookie.Value)
	}
	sessionID := generateSessionID(req.Email)
	userSessions[sessionID] = user.ID
	sessionsMu.Unlock()

	if cookieErr == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     "session_id",
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    sessionID,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	json.NewEncoder(w).Encode(user)
	log.Printf("User logged in: %s", req.Email)
}

func Logout(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	cookie, err := r.Cookie("session_id")
	if err == nil {
		sessionsMu.Lock()
		delete(userSessions, cookie.Value)
		sessionsMu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Logged out"))
}

func GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, exists := getUserIDFromCookie(r)
	if !exists {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	err := database.DB.QueryRowContext(ctx,
		"SELECT id, email, username, created_at FROM users WHERE id = $1",
		userID,
	).Scan(&user.ID, &user.Email, &user.Username, &user.CreatedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Printf("GetCurrentUser error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(user)
}

// ArchiveSession stores a finalized session summary, with its drowsy
// events, under the authenticated user.
func ArchiveSession(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, exists := getUserIDFromCookie(r)
	if !exists {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.ArchiveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	summary := req.Summary
	if summary.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	endTime := time.Now()
	startTime := endTime.Add(-time.Duration(summary.DurationSeconds * float64(time.Second)))

	var rowID int
	err := database.DB.QueryRow(
		`INSERT INTO sessions (user_id, session_id, start_time, end_time, duration_seconds,
			total_frames, drowsy_frames, drowsiness_percentage, ear_mean, ear_min, ear_max, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		userID, summary.SessionID, startTime, endTime, summary.DurationSeconds,
		summary.TotalFrames, summary.DrowsyFrames, summary.DrowsinessPercentage,
		summary.EARStats.Mean, summary.EARStats.Min, summary.EARStats.Max, req.Notes,
	).Scan(&rowID)
	if err != nil {
		log.Printf("ArchiveSession error: %v", err)
		http.Error(w, "Failed to archive session", http.StatusInternalServerError)
		return
	}

	for _, ev := range summary.Events {
		_, err := database.DB.Exec(
			"INSERT INTO events (session_id, ear_value, session_duration, timestamp) VALUES ($1, $2, $3, $4)",
			rowID, ev.EARValue, ev.SessionDuration, ev.Timestamp,
		)
		if err != nil {
			log.Printf("Failed to archive event: %v", err)
			// Keep going, the session row is already in place
		}
	}

	archived := models.ArchivedSession{
		ID:                   rowID,
		UserID:               userID,
		SessionID:            summary.SessionID,
		StartTime:            startTime,
		EndTime:              &endTime,
		DurationSeconds:      summary.DurationSeconds,
		TotalFrames:          summary.TotalFrames,
		DrowsyFrames:         summary.DrowsyFrames,
		DrowsinessPercentage: summary.DrowsinessPercentage,
		EARStats:             summary.EARStats,
		Notes:                req.Notes,
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(archived)
	log.Printf("Session archived: %s for user %d", summary.SessionID, userID)
}

// GetArchivedSessions lists the authenticated user's archived sessions,
// newest first.
func GetArchivedSessions(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, exists := getUserIDFromCookie(r)
	if !exists {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(
		`SELECT id, user_id, session_id, start_time, end_time, duration_seconds,
			total_frames, drowsy_frames, drowsiness_percentage, ear_mean, ear_min, ear_max, notes
		 FROM sessions WHERE user_id = $1 ORDER BY start_time DESC`,
		userID,
	)
	if err != nil {
		http.Error(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var sessions []models.ArchivedSession
	for rows.Next() {
		var s models.ArchivedSession
		var endTime sql.NullTime
		err := rows.Scan(&s.ID, &s.UserID, &s.SessionID, &s.StartTime, &endTime,
			&s.DurationSeconds, &s.TotalFrames, &s.DrowsyFrames, &s.DrowsinessPercentage,
			&s.EARStats.Mean, &s.EARStats.Min, &s.EARStats.Max, &s.Notes)
		if err != nil {
			continue
		}
		if endTime.Valid {
			s.EndTime = &endTime.Time
		}
		sessions = append(sessions, s)
	}

	json.NewEncoder(w).Encode(sessions)
}

// DeleteArchivedSession removes an archived session and its events.
func DeleteArchivedSession(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, exists := getUserIDFromCookie(r)
	if !exists {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionIDStr := r.URL.Query().Get("id")
	sessionID, err := strconv.Atoi(sessionIDStr)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	var sessionUserID int
	err = database.DB.QueryRow(
		"SELECT user_id FROM sessions WHERE id = $1",
		sessionID,
	).Scan(&sessionUserID)
	if err == sql.ErrNoRows {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Printf("Failed to verify session: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if sessionUserID != userID {
		http.Error(w, "Unauthorized: session does not belong to user", http.StatusForbidden)
		return
	}

	_, err = database.DB.Exec("DELETE FROM events WHERE session_id = $1", sessionID)
	if err != nil {
		log.Printf("Failed to delete events: %v", err)
		// Still delete the session row
	}

	result, err := database.DB.Exec("DELETE FROM sessions WHERE id = $1 AND user_id = $2", sessionID, userID)
	if err != nil {
		log.Printf("Failed to delete session: %v", err)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Session deleted"))
	log.Printf("Session deleted: %d", sessionID)
}

// GetArchivedEvents lists drowsy events for one archived session.
func GetArchivedEvents(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, exists := getUserIDFromCookie(r)
	if !exists {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionIDStr := r.URL.Query().Get("session_id")
	sessionID, err := strconv.Atoi(sessionIDStr)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var sessionUserID int
	err = database.DB.QueryRowContext(ctx,
		"SELECT user_id FROM sessions WHERE id = $1",
		sessionID,
	).Scan(&sessionUserID)
	if err == sql.ErrNoRows {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Printf("Failed to verify session: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if sessionUserID != userID {
		http.Error(w, "Unauthorized: session does not belong to user", http.StatusForbidden)
		return
	}

	rows, err := database.DB.Query(
		"SELECT id, session_id, ear_value, session_duration, timestamp FROM events WHERE session_id = $1 ORDER BY timestamp DESC",
		sessionID,
	)
	if err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var events []models.ArchivedEvent
	for rows.Next() {
		var e models.ArchivedEvent
		err := rows.Scan(&e.ID, &e.SessionID, &e.EARValue, &e.SessionDuration, &e.Timestamp)
		if err != nil {
			continue
		}
		events = append(events, e)
	}

	json.NewEncoder(w).Encode(events)
}
