package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// NodeProcess owns exactly one spawned OS process: its handle, the two
// capture files its output is redirected to, and the derived status. No
// other component signals or reaps the process.
type NodeProcess struct {
	Rank       int
	StdoutPath string
	StderrPath string

	cmd  *exec.Cmd
	done chan struct{}
	// exitCode is written by the reaper goroutine before done is closed
	// and must only be read after done is observed closed.
	exitCode int
}

// SpawnNode starts one node process inside dir with its stdout and stderr
// redirected to fresh per-rank capture files. The process is placed in its
// own process group so the whole subtree can be signaled as a unit, and its
// environment is the OS environment merged with env. SpawnNode returns as
// soon as the OS confirms the process has started.
func SpawnNode(dir string, rank int, argv []string, env map[string]string) (*NodeProcess, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("node %d: empty command", rank)
	}

	stdoutPath := filepath.Join(dir, fmt.Sprintf("node-%d-stdout.log", rank))
	stderrPath := filepath.Join(dir, fmt.Sprintf("node-%d-stderr.log", rank))

	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("node %d: create stdout capture: %w", rank, err)
	}
	stderr, err := os.Create(stderrPath)
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("node %d: create stderr capture: %w", rank, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	environ := os.Environ()
	for k, v := range env {
		environ = append(environ, k+"="+v)
	}
	cmd.Env = environ

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("node %d: start %q: %w", rank, argv[0], err)
	}

	// The child holds its own descriptors now; only the OS process appends
	// to the capture files from here on.
	stdout.Close()
	stderr.Close()

	p := &NodeProcess{
		Rank:       rank,
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
		cmd:        cmd,
		done:       make(chan struct{}),
	}
	go p.reap()

	return p, nil
}

// reap waits for the process once and records its exit code.
func (p *NodeProcess) reap() {
	err := p.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitCode()
		} else {
			p.exitCode = -1
		}
	}
	close(p.done)
}

// Done returns a channel closed once the process has terminated and been
// reaped.
func (p *NodeProcess) Done() <-chan struct{} {
	return p.done
}

// Status is a non-blocking poll of the process state: running while the
// process is alive, exited on a zero exit code, failed otherwise.
func (p *NodeProcess) Status() NodeStatus {
	select {
	case <-p.done:
		if p.exitCode == 0 {
			return NodeExited
		}
		return NodeFailed
	default:
		return NodeRunning
	}
}

// Terminate sends SIGTERM to the process group, waits up to grace for the
// process to exit, then sends SIGKILL to the group if it is still alive.
// Signal and lookup errors are swallowed: a process that is already gone
// is not a failure of teardown.
func (p *NodeProcess) Terminate(grace time.Duration) {
	if p.Status() != NodeRunning {
		return
	}

	pgid, err := syscall.Getpgid(p.cmd.Process.Pid)
	if err != nil {
		return
	}

	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-p.done:
	case <-time.After(grace):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}
