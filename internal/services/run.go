package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"DROWSY_MONITOR/go-detector/internal/detector"
	"DROWSY_MONITOR/go-detector/internal/models"
	"DROWSY_MONITOR/go-detector/internal/session"
	"DROWSY_MONITOR/go-detector/internal/storage"
)

// FrameSource delivers frame packets one at a time. LandmarkClient is the
// production implementation.
type FrameSource interface {
	ReadFrame() (*models.FramePacket, error)
}

type RunConfig struct {
	SessionID  string        // overrides the aggregator's derived ID when set
	OutputFile string        // per-session report path, empty disables
	AutoStop   time.Duration // wall-clock cap, 0 means unbounded
	LogEvery   uint64        // progress log interval in frames, 0 disables
}

// DetectionRun is one monitoring session: the sequential frame loop that
// drives the state machine and the aggregator, then persists the summary.
// Frame processing is strictly sequential; nothing here is locked.
type DetectionRun struct {
	cfg     RunConfig
	det     *detector.Detector
	agg     *session.Aggregator
	store   *storage.LogStore
	metrics *Metrics
}

func NewDetectionRun(cfg RunConfig, det *detector.Detector, store *storage.LogStore) *DetectionRun {
	return &DetectionRun{
		cfg:     cfg,
		det:     det,
		agg:     session.New(),
		store:   store,
		metrics: GetMetrics(),
	}
}

// Run consumes frames until the context is cancelled, the auto-stop
// deadline passes or the source fails. Cancellation is cooperative, checked
// once per frame. The session summary is finalized and persisted on every
// exit path; a source error is still returned so the process can report a
// failed run.
func (r *DetectionRun) Run(ctx context.Context, source FrameSource) (models.SessionSummary, error) {
	start := time.Now()
	var deadline time.Time
	if r.cfg.AutoStop > 0 {
		deadline = start.Add(r.cfg.AutoStop)
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			log.Println("Detection stopped")
			break loop
		default:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			log.Printf("Auto-stopped after %s", r.cfg.AutoStop)
			break
		}

		packet, err := source.ReadFrame()
		if err != nil {
			select {
			case <-ctx.Done():
				// Reader unblocked by shutdown, not a real failure
				log.Println("Detection stopped")
			default:
				if errors.Is(err, io.EOF) {
					log.Println("Frame stream ended")
				} else {
					log.Printf("Frame source error: %v", err)
					r.metrics.IncrementErrors()
					runErr = err
				}
			}
			break
		}

		r.processFrame(packet)

		if r.cfg.LogEvery > 0 && r.metrics.GetTotalFrames()%int64(r.cfg.LogEvery) == 0 {
			stats := r.agg.Snapshot()
			log.Printf("Frames: %d, drowsy: %.2f%%, events: %d, avg EAR: %.3f",
				stats.TotalFrames, stats.DrowsinessPercentage, stats.DrowsyEvents, stats.AvgEAR)
		}
	}

	return r.finish(runErr)
}

func (r *DetectionRun) processFrame(packet *models.FramePacket) {
	verdict := r.det.Tick()

	// One merged verdict per frame: any drowsy face marks the frame drowsy,
	// any alerting face marks it alerting.
	if len(packet.Faces) > 0 {
		verdict.FacesDetected = uint(len(packet.Faces))
		for _, face := range packet.Faces {
			v, ev := r.det.Observe(face.FaceID, face.EAR)
			verdict.EAR = v.EAR
			verdict.IsDrowsyFrame = verdict.IsDrowsyFrame || v.IsDrowsyFrame
			verdict.AlertTriggered = verdict.AlertTriggered || v.AlertTriggered
			if ev != nil {
				stamped := r.agg.AddEvent(*ev)
				r.metrics.IncrementDrowsyEvents()
				log.Printf("ALERT: sustained low EAR %.3f on face %s after %.1fs",
					stamped.EARValue, face.FaceID, stamped.SessionDuration)
			}
		}
	}

	r.agg.Record(verdict)
	r.metrics.IncrementFrames()
	if verdict.IsDrowsyFrame {
		r.metrics.IncrementDrowsyFrames()
	}
}

// Snapshot exposes the live statistics of the running session.
func (r *DetectionRun) Snapshot() models.SessionStats {
	return r.agg.Snapshot()
}

func (r *DetectionRun) finish(runErr error) (models.SessionSummary, error) {
	summary := r.agg.Finalize()
	if r.cfg.SessionID != "" {
		summary.SessionID = r.cfg.SessionID
	}

	log.Printf("Session %s: %.1fs, %d frames, %d drowsy (%.2f%%), %d events",
		summary.SessionID, summary.DurationSeconds, summary.TotalFrames,
		summary.DrowsyFrames, summary.DrowsinessPercentage, summary.DrowsyEvents)

	if r.cfg.OutputFile != "" {
		if err := writeReport(r.cfg.OutputFile, summary); err != nil {
			log.Printf("Failed to write session report: %v", err)
		} else {
			log.Printf("Session report written to %s", r.cfg.OutputFile)
		}
	}

	if r.store != nil {
		if err := r.store.Append(summary); err != nil {
			log.Printf("Failed to append session log: %v", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			log.Printf("Session logged to %s", r.store.Path())
		}
	}

	return summary, runErr
}

func writeReport(path string, summary models.SessionSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
