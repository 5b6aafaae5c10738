package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func requestWithSession(sessionID string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	r.AddCookie(&http.Cookie{Name: "session_id", Value: sessionID})
	return r
}

func TestSessionMapConcurrentAccess(t *testing.T) {
	const sessions = 50

	sessionsMu.Lock()
	for i := 0; i < sessions; i++ {
		userSessions[fmt.Sprintf("session-%d", i)] = i
	}
	sessionsMu.Unlock()

	// Logouts mutate the map while lookups read it; run them together so
	// the race detector can catch unguarded access.
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		sessionID := fmt.Sprintf("session-%d", i)

		wg.Add(2)
		go func() {
			defer wg.Done()
			Logout(httptest.NewRecorder(), requestWithSession(sessionID))
		}()
		go func() {
			defer wg.Done()
			getUserIDFromCookie(requestWithSession(sessionID))
		}()
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		if _, exists := getUserIDFromCookie(requestWithSession(fmt.Sprintf("session-%d", i))); exists {
			t.Errorf("Session %d should be gone after logout", i)
		}
	}
}

func TestGetUserIDFromCookieMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if _, exists := getUserIDFromCookie(r); exists {
		t.Errorf("Request without a cookie should have no session")
	}
}
