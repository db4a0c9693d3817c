package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/latoulicious/groovebox/pkg/faults"
)

// maxStderrLines bounds the per-process stderr ring kept for diagnostics
const maxStderrLines = 50

const termGrace = 5 * time.Second

// stderrRing collects the most recent stderr lines from a child
type stderrRing struct {
	mu    sync.Mutex
	lines []string
}

func (s *stderrRing) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) >= maxStderrLines {
		s.lines = s.lines[1:]
	}
	s.lines = append(s.lines, line)
}

func (s *stderrRing) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *stderrRing) tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return ""
	}
	n := len(s.lines)
	if n > 5 {
		n = 5
	}
	return strings.Join(s.lines[len(s.lines)-n:], " | ")
}

// monitorStderr drains a stderr pipe into the ring, surfacing error-looking
// lines at warn level.
func (r *Runner) monitorStderr(pipe io.ReadCloser, name, guildID string, ring *stderrRing) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic in stderr monitor", fmt.Errorf("panic: %v", rec), map[string]interface{}{
				"process": name,
			})
		}
	}()

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		ring.add(line)

		if isErrorLine(line) {
			r.logger.Warn("Child process error output", map[string]interface{}{
				"process":  name,
				"guild_id": guildID,
				"output":   line,
			})
		} else {
			r.logger.Debug("Child process output", map[string]interface{}{
				"process": name,
				"output":  line,
			})
		}
	}
}

// isErrorLine recognizes error-looking child output
func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, pattern := range []string{"error", "failed", "fatal", "unable to", "forbidden", "unavailable"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// classifyExit turns a non-zero exit plus its stderr into a typed fault.
// defaultCode applies when no pattern matches.
func classifyExit(err error, stderr []string, defaultCode string) *faults.Fault {
	joined := strings.ToLower(strings.Join(stderr, "\n"))

	switch {
	case strings.Contains(joined, "unsupported url"),
		strings.Contains(joined, "is not a valid url"):
		return faults.Wrap(faults.CategoryMedia, faults.CodeMediaUnsupportedURL,
			"the source URL is not supported", err)
	case strings.Contains(joined, "video unavailable"),
		strings.Contains(joined, "private video"),
		strings.Contains(joined, "this video is not available"),
		strings.Contains(joined, "members-only"),
		strings.Contains(joined, "age-restricted"),
		strings.Contains(joined, "sign in to confirm your age"):
		return faults.Wrap(faults.CategoryMedia, faults.CodeMediaUnavailable,
			"the media is unavailable or restricted", err)
	case strings.Contains(joined, "http error 429"),
		strings.Contains(joined, "too many requests"):
		return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkRateLimited,
			"the upstream service is rate limiting requests", err)
	case strings.Contains(joined, "http error 5"):
		return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkServerError,
			"the upstream service returned a server error", err)
	case strings.Contains(joined, "http error 403"),
		strings.Contains(joined, "forbidden"):
		return faults.Wrap(faults.CategoryMedia, faults.CodeMediaUnavailable,
			"access to the media stream was refused", err)
	case strings.Contains(joined, "timed out"),
		strings.Contains(joined, "timeout"):
		return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkTimeout,
			"the upstream request timed out", err)
	case strings.Contains(joined, "connection refused"),
		strings.Contains(joined, "connection reset"),
		strings.Contains(joined, "network is unreachable"),
		strings.Contains(joined, "name resolution"):
		return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkConnectionFailed,
			"could not reach the upstream service", err)
	}

	fault := faults.Wrap(faults.CategoryMedia, defaultCode, "child process failed", err)
	if len(stderr) > 0 {
		fault = fault.WithDetail("stderr_tail", stderr[len(stderr)-1])
	}
	return fault
}

// stopProcessGroup terminates a child's whole process group: SIGTERM, a
// grace period, then SIGKILL. done must carry the cmd.Wait result.
func (r *Runner) stopProcessGroup(cmd *exec.Cmd, name string, done <-chan error) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
		r.logger.Warn("Failed to send SIGTERM to process group", map[string]interface{}{
			"process": name,
			"error":   err.Error(),
		})
	}

	select {
	case <-done:
	case <-time.After(termGrace):
		r.logger.Warn("Process did not terminate gracefully, force killing", map[string]interface{}{
			"process": name,
		})
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			r.logger.Error("Failed to force kill process group", err, map[string]interface{}{
				"process": name,
			})
		}
		<-done
	}
}

// runCapture runs one child to completion under the context deadline,
// returning its stdout. Used for the metadata operations where output is
// small JSON.
func (r *Runner) runCapture(ctx context.Context, guildID, name, bin string, args []string) ([]byte, []string, error) {
	sem := r.guildSem(guildID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, nil, ctx.Err()
	}
	defer sem.Release(1)

	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, faults.Wrap(faults.CategorySystem, faults.CodeSystemSubprocessCreate,
			"failed to create stderr pipe", err)
	}

	ring := &stderrRing{}

	if err := cmd.Start(); err != nil {
		return nil, nil, faults.Wrap(faults.CategorySystem, faults.CodeSystemSubprocessCreate,
			fmt.Sprintf("failed to start %s", name), err)
	}
	r.track(cmd, name)
	defer r.untrack(cmd)

	var monitorDone sync.WaitGroup
	monitorDone.Add(1)
	go func() {
		defer monitorDone.Done()
		r.monitorStderr(stderrPipe, name, guildID, ring)
	}()

	done := make(chan error, 1)
	go func() {
		monitorDone.Wait()
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		r.stopProcessGroup(cmd, name, done)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ring.snapshot(), faults.New(faults.CategoryMedia, faults.CodeMediaProcessTimeout,
				fmt.Sprintf("%s exceeded its deadline", name)).WithDetail("stderr_tail", ring.tail())
		}
		return nil, ring.snapshot(), ctx.Err()
	case waitErr := <-done:
		if waitErr != nil {
			return nil, ring.snapshot(), classifyExit(waitErr, ring.snapshot(), faults.CodeMediaResolveFailed)
		}
		return stdout.Bytes(), ring.snapshot(), nil
	}
}
