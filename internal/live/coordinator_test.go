package live

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeProcess struct {
	exit chan error

	mu       sync.Mutex
	signaled []os.Signal
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{exit: make(chan error, 1)}
}

func (p *fakeProcess) Wait() error {
	return <-p.exit
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signaled = append(p.signaled, sig)
	return nil
}

func (p *fakeProcess) signalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signaled)
}

func newTestCoordinator(t *testing.T, proc *fakeProcess) *Coordinator {
	t.Helper()
	dir := t.TempDir()
	c := New(filepath.Join(dir, "live_session_status.json"), filepath.Join(dir, "live_sessions"), "unused")
	c.launch = func(opts RunOptions) (process, error) {
		return proc, nil
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not reached within 2s")
}

func TestStatusMissingReadsAsIdle(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.json"), t.TempDir(), "unused")
	status := c.Status()
	if status.Active {
		t.Errorf("Missing record should read as idle")
	}
}

func TestStatusCorruptReadsAsIdle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	if err := os.WriteFile(path, []byte("][broken"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c := New(path, t.TempDir(), "unused")
	if c.Status().Active {
		t.Errorf("Corrupt record should read as idle")
	}
}

func TestStartWritesActiveStatus(t *testing.T) {
	proc := newFakeProcess()
	c := newTestCoordinator(t, proc)

	if err := c.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := c.Status()
	if !status.Active {
		t.Errorf("Status should be active after Start")
	}
	if status.StartTime == nil {
		t.Errorf("StartTime should be set")
	}
	if status.SessionID == "" || status.OutputFile == "" {
		t.Errorf("SessionID and OutputFile should be generated: %+v", status)
	}

	// Let the watcher finish its terminal write before the temp dir goes away
	proc.exit <- nil
	waitFor(t, func() bool { return c.Status().EndTime != nil })
}

func TestStartWhileActiveFails(t *testing.T) {
	proc := newFakeProcess()
	c := newTestCoordinator(t, proc)

	if err := c.Start(RunOptions{}); err != nil {
		t.Fatalf("First Start failed: %v", err)
	}

	err := c.Start(RunOptions{})
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("Second Start = %v, want ErrAlreadyActive", err)
	}

	proc.exit <- nil
	waitFor(t, func() bool { return c.Status().EndTime != nil })
}

func TestCompletedTransition(t *testing.T) {
	proc := newFakeProcess()
	c := newTestCoordinator(t, proc)

	if err := c.Start(RunOptions{SessionID: "s-complete"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	proc.exit <- nil
	waitFor(t, func() bool { return !c.Status().Active })

	status := c.Status()
	if !status.Completed {
		t.Errorf("Clean exit should mark the status completed: %+v", status)
	}
	if status.EndTime == nil {
		t.Errorf("EndTime should be set")
	}
	if status.Error != "" {
		t.Errorf("No error expected, got %q", status.Error)
	}
	if status.SessionID != "s-complete" {
		t.Errorf("SessionID = %s, want s-complete", status.SessionID)
	}
}

func TestFailedTransition(t *testing.T) {
	proc := newFakeProcess()
	c := newTestCoordinator(t, proc)

	if err := c.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	proc.exit <- errors.New("exit status 1")
	waitFor(t, func() bool { return !c.Status().Active })

	status := c.Status()
	if status.Completed {
		t.Errorf("Failed run must not be completed")
	}
	if status.Error == "" {
		t.Errorf("Failed run should carry the error")
	}
}

func TestStartAgainAfterTerminal(t *testing.T) {
	proc := newFakeProcess()
	c := newTestCoordinator(t, proc)

	if err := c.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	proc.exit <- nil
	waitFor(t, func() bool { return !c.Status().Active })

	second := newFakeProcess()
	c.launch = func(opts RunOptions) (process, error) { return second, nil }
	if err := c.Start(RunOptions{}); err != nil {
		t.Fatalf("Start after terminal transition failed: %v", err)
	}
	if c.Status().EndTime != nil {
		t.Errorf("Restarted run should carry a fresh status record")
	}

	second.exit <- nil
	waitFor(t, func() bool { return c.Status().EndTime != nil })
}

func TestRequestStopIsOptimistic(t *testing.T) {
	proc := newFakeProcess()
	c := newTestCoordinator(t, proc)

	if err := c.Start(RunOptions{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := c.RequestStop(); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}

	// The flag flips before the process has exited
	if c.Status().Active {
		t.Errorf("Status should be inactive right after RequestStop")
	}
	if proc.signalCount() != 1 {
		t.Errorf("Expected 1 termination signal, got %d", proc.signalCount())
	}

	proc.exit <- nil
	waitFor(t, func() bool { return c.Status().EndTime != nil })
}

func TestLaunchFailureWritesError(t *testing.T) {
	c := newTestCoordinator(t, nil)
	c.launch = func(opts RunOptions) (process, error) {
		return nil, errors.New("no such binary")
	}

	if err := c.Start(RunOptions{}); err == nil {
		t.Fatalf("Start should fail when the launch fails")
	}

	status := c.Status()
	if status.Active {
		t.Errorf("Status should be inactive after launch failure")
	}
	if status.Error == "" {
		t.Errorf("Launch failure should be recorded in the status")
	}
}
