package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"DROWSY_MONITOR/go-detector/internal/models"
)

// ErrAlreadyActive is returned by Start while a live session is active.
var ErrAlreadyActive = errors.New("a live session is already active")

// RunOptions describes one background detection run.
type RunOptions struct {
	SessionID  string
	OutputFile string
}

// process is the part of a running detection process the coordinator needs.
type process interface {
	// Wait blocks until the run ends; a nil error means a clean exit.
	Wait() error
	// Signal asks the run to terminate. Delivery is best effort.
	Signal(sig os.Signal) error
}

// Coordinator manages the lifecycle of at most one background detection run
// through a single persisted status record. The record is the IPC contract:
// this process (and any other observer) polls the file, the coordinator
// overwrites it at each transition.
type Coordinator struct {
	statusPath  string
	sessionsDir string
	launch      func(opts RunOptions) (process, error)

	mu   sync.Mutex
	proc process
}

// New returns a coordinator persisting status at statusPath and launching
// detectorBin as the background run, with per-session output files under
// sessionsDir.
func New(statusPath, sessionsDir, detectorBin string) *Coordinator {
	c := &Coordinator{
		statusPath:  statusPath,
		sessionsDir: sessionsDir,
	}
	c.launch = func(opts RunOptions) (process, error) {
		return c.execDetector(detectorBin, opts)
	}
	return c
}

// Status is a non-blocking read of the current record. A missing or corrupt
// record reads as idle.
func (c *Coordinator) Status() models.LiveSessionStatus {
	data, err := os.ReadFile(c.statusPath)
	if err != nil {
		return models.LiveSessionStatus{Active: false}
	}

	var status models.LiveSessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		log.Printf("live status %s unreadable, treating as idle: %v", c.statusPath, err)
		return models.LiveSessionStatus{Active: false}
	}
	return status
}

// Start writes the starting status and launches the detection run. It fails
// with ErrAlreadyActive while the status record shows an active run.
//
// The run afterwards transitions the record itself: a clean exit is written
// as completed, a failed run as an error. A failed run is never restarted
// here; the caller observes the status and decides.
func (c *Coordinator) Start(opts RunOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status().Active {
		return ErrAlreadyActive
	}

	now := time.Now()
	if opts.SessionID == "" {
		opts.SessionID = now.Format("20060102_150405")
	}
	if opts.OutputFile == "" {
		opts.OutputFile = filepath.Join(c.sessionsDir, fmt.Sprintf("session_%s.json", opts.SessionID))
	}

	status := models.LiveSessionStatus{
		Active:     true,
		StartTime:  &now,
		OutputFile: opts.OutputFile,
		SessionID:  opts.SessionID,
	}
	if err := c.writeStatus(status); err != nil {
		return err
	}

	proc, err := c.launch(opts)
	if err != nil {
		c.writeStatus(models.LiveSessionStatus{Active: false, Error: err.Error()})
		return fmt.Errorf("failed to launch detection run: %w", err)
	}

	c.proc = proc
	go c.watch(proc, status)
	return nil
}

// RequestStop writes an inactive status immediately and signals the run to
// terminate. The write is optimistic: it records that a stop was requested,
// not that the run has exited. Liveness is whoever polls the process.
func (c *Coordinator) RequestStop() error {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()

	status := c.Status()
	status.Active = false
	if err := c.writeStatus(status); err != nil {
		return err
	}

	if proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			log.Printf("stop signal not delivered: %v", err)
		}
	}
	return nil
}

// watch waits for the run to end and writes the terminal status.
func (c *Coordinator) watch(proc process, status models.LiveSessionStatus) {
	err := proc.Wait()

	c.mu.Lock()
	if c.proc == proc {
		c.proc = nil
	}
	c.mu.Unlock()

	end := time.Now()
	status.Active = false
	status.EndTime = &end
	if err != nil {
		status.Error = err.Error()
		log.Printf("live session %s failed: %v", status.SessionID, err)
	} else {
		status.Completed = true
		log.Printf("live session %s completed", status.SessionID)
	}
	c.writeStatus(status)
}

func (c *Coordinator) writeStatus(status models.LiveSessionStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal live status: %w", err)
	}

	if dir := filepath.Dir(c.statusPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create status directory: %w", err)
		}
	}

	if err := os.WriteFile(c.statusPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write live status: %w", err)
	}
	return nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (c *Coordinator) execDetector(bin string, opts RunOptions) (process, error) {
	if err := os.MkdirAll(c.sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	cmd := exec.Command(bin,
		"-session-id", opts.SessionID,
		"-output", opts.OutputFile,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	log.Printf("detection run started: pid=%d session=%s", cmd.Process.Pid, opts.SessionID)
	return &execProcess{cmd: cmd}, nil
}
