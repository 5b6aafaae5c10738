package session

import (
	"time"

	"DROWSY_MONITOR/go-detector/internal/models"
)

// Aggregator folds frame verdicts into running session statistics. One
// aggregator covers one session, from construction or Reset until Finalize.
//
// Not safe for concurrent use; the frame loop owns it.
type Aggregator struct {
	start        time.Time
	totalFrames  uint64
	drowsyFrames uint64
	events       []models.DrowsyEvent
	earHistory   []float64
}

func New() *Aggregator {
	return &Aggregator{start: time.Now()}
}

func (a *Aggregator) StartTime() time.Time {
	return a.start
}

// Record updates the counters with one frame verdict. Frames with no face
// detected do not contribute to the EAR history.
func (a *Aggregator) Record(v models.FrameVerdict) {
	a.totalFrames++
	if v.IsDrowsyFrame {
		a.drowsyFrames++
	}
	if v.FacesDetected > 0 {
		a.earHistory = append(a.earHistory, v.EAR)
	}
}

// AddEvent stamps the event with the session-relative time and stores it.
// The stamped copy is returned.
func (a *Aggregator) AddEvent(ev models.DrowsyEvent) models.DrowsyEvent {
	ev.SessionDuration = ev.Timestamp.Sub(a.start).Seconds()
	a.events = append(a.events, ev)
	return ev
}

// Snapshot returns the current statistics without mutating anything. An
// empty session yields 0% drowsiness and zero EAR values, never NaN.
func (a *Aggregator) Snapshot() models.SessionStats {
	return models.SessionStats{
		SessionDuration:      time.Since(a.start).Seconds(),
		TotalFrames:          a.totalFrames,
		DrowsyFrames:         a.drowsyFrames,
		DrowsyEvents:         len(a.events),
		DrowsinessPercentage: a.percentage(),
		CurrentEAR:           a.currentEAR(),
		AvgEAR:               mean(a.earHistory),
	}
}

// Finalize packages the session into its persisted form. State is kept;
// call Reset to begin a new session.
func (a *Aggregator) Finalize() models.SessionSummary {
	lo, hi := bounds(a.earHistory)
	events := make([]models.DrowsyEvent, len(a.events))
	copy(events, a.events)

	return models.SessionSummary{
		SessionID:            a.start.Format(time.RFC3339),
		DurationSeconds:      time.Since(a.start).Seconds(),
		TotalFrames:          a.totalFrames,
		DrowsyFrames:         a.drowsyFrames,
		DrowsyEvents:         len(a.events),
		DrowsinessPercentage: a.percentage(),
		Events:               events,
		EARStats: models.EARStats{
			Mean: mean(a.earHistory),
			Min:  lo,
			Max:  hi,
		},
	}
}

// Reset starts a fresh session.
func (a *Aggregator) Reset() {
	*a = Aggregator{start: time.Now()}
}

func (a *Aggregator) percentage() float64 {
	total := a.totalFrames
	if total == 0 {
		total = 1
	}
	return float64(a.drowsyFrames) / float64(total) * 100
}

func (a *Aggregator) currentEAR() float64 {
	if len(a.earHistory) == 0 {
		return 0
	}
	return a.earHistory[len(a.earHistory)-1]
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func bounds(vals []float64) (lo, hi float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
