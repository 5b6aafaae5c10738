package detector

import (
	"fmt"
	"time"

	"DROWSY_MONITOR/go-detector/internal/models"
)

const (
	DefaultEARThreshold = 0.25
	DefaultFrameCheck   = 20
)

// runState tracks where a face is within a low-EAR run. The alert event is
// edge-triggered: it fires on the counting->fired transition and never again
// until the run ends.
type runState int

const (
	runIdle runState = iota
	runCounting
	runFired
)

type faceState struct {
	consecutiveLow uint
	state          runState
}

// Detector converts noisy per-frame EAR readings into discrete drowsy/alert
// decisions. Faces are tracked independently by the identity the caller
// supplies; counters are never shared or merged between faces.
//
// Not safe for concurrent use. One frame loop drives Tick and Observe.
type Detector struct {
	threshold  float64
	frameCheck uint

	frameIndex uint64
	started    bool
	faces      map[string]*faceState
}

func New(threshold float64, frameCheck uint) (*Detector, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("ear threshold must be positive, got %v", threshold)
	}
	if frameCheck < 1 {
		return nil, fmt.Errorf("frame check count must be at least 1, got %d", frameCheck)
	}
	return &Detector{
		threshold:  threshold,
		frameCheck: frameCheck,
		faces:      make(map[string]*faceState),
	}, nil
}

// Tick advances to the next frame and must be called exactly once per
// processed frame, before any Observe calls for that frame. The returned
// verdict is the frame's verdict when no face is present; per-face counters
// are not touched.
func (d *Detector) Tick() models.FrameVerdict {
	if d.started {
		d.frameIndex++
	}
	d.started = true
	return models.FrameVerdict{FrameIndex: d.frameIndex}
}

// Observe folds one face's EAR reading into the current frame and returns
// the verdict for that face. At most once per face per frame.
//
// A DrowsyEvent is returned exactly once per continuous low-EAR run, on the
// frame where the consecutive-low counter first equals the frame check
// count. Later frames of the same run keep AlertTriggered true without
// re-emitting. EAR equal to the threshold is not drowsy.
func (d *Detector) Observe(faceID string, ear float64) (models.FrameVerdict, *models.DrowsyEvent) {
	fs, ok := d.faces[faceID]
	if !ok {
		fs = &faceState{}
		d.faces[faceID] = fs
	}

	verdict := models.FrameVerdict{
		FrameIndex:    d.frameIndex,
		FacesDetected: 1,
		EAR:           ear,
	}

	if ear >= d.threshold {
		fs.consecutiveLow = 0
		fs.state = runIdle
		return verdict, nil
	}

	fs.consecutiveLow++
	verdict.IsDrowsyFrame = true

	var event *models.DrowsyEvent
	switch {
	case fs.consecutiveLow < d.frameCheck:
		fs.state = runCounting
	case fs.consecutiveLow == d.frameCheck:
		fs.state = runFired
		verdict.AlertTriggered = true
		event = &models.DrowsyEvent{
			Timestamp: time.Now(),
			EARValue:  ear,
		}
	default:
		verdict.AlertTriggered = true
	}
	return verdict, event
}

// Alerting reports whether any tracked face is currently in an alert run.
func (d *Detector) Alerting() bool {
	for _, fs := range d.faces {
		if fs.state == runFired {
			return true
		}
	}
	return false
}

// Faces returns the number of face identities currently tracked.
func (d *Detector) Faces() int {
	return len(d.faces)
}

// Forget drops a face identity and its counter. The landmark service calls
// this through the frame loop when it loses a face for good.
func (d *Detector) Forget(faceID string) {
	delete(d.faces, faceID)
}

// Reset clears all per-face counters and the frame index for a new session.
func (d *Detector) Reset() {
	d.frameIndex = 0
	d.started = false
	d.faces = make(map[string]*faceState)
}
