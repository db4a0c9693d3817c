package runner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/metrics"
)

// artifactPrefix names every temp file the runner creates so the sweep only
// ever touches its own files.
const artifactPrefix = "groovebox-"

// Runner spawns and supervises yt-dlp and ffmpeg children. Audio never
// crosses this boundary in memory; decode results are temp file paths.
type Runner struct {
	cfg     config.AudioConfig
	retry   faults.RetryPolicy
	logger  logging.Logger
	metrics metrics.Collector

	mu        sync.Mutex
	guildSems map[string]*semaphore.Weighted
	tracked   map[*exec.Cmd]string
}

// NewRunner creates a process runner. The temp directory is created if it
// does not exist yet.
func NewRunner(cfg config.AudioConfig, retry faults.RetryPolicy, collector metrics.Collector) (*Runner, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, faults.Wrap(faults.CategorySystem, faults.CodeSystemFilesystem,
			"failed to create temp directory", err)
	}

	return &Runner{
		cfg:       cfg,
		retry:     retry,
		logger:    logging.GetGlobalLoggerFactory().CreateLogger("runner"),
		metrics:   collector,
		guildSems: make(map[string]*semaphore.Weighted),
		tracked:   make(map[*exec.Cmd]string),
	}, nil
}

// guildSem returns the per-guild process semaphore, creating it on first use
func (r *Runner) guildSem(guildID string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()

	sem, ok := r.guildSems[guildID]
	if !ok {
		sem = semaphore.NewWeighted(int64(r.cfg.ProcessCapPerGuild))
		r.guildSems[guildID] = sem
	}
	return sem
}

// track registers a started child for shutdown cleanup
func (r *Runner) track(cmd *exec.Cmd, name string) {
	r.mu.Lock()
	r.tracked[cmd] = name
	n := len(r.tracked)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetTrackedProcesses(n)
	}
}

// untrack removes a child after it has exited
func (r *Runner) untrack(cmd *exec.Cmd) {
	r.mu.Lock()
	delete(r.tracked, cmd)
	n := len(r.tracked)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetTrackedProcesses(n)
	}
}

// TrackedCount returns how many children are currently alive
func (r *Runner) TrackedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracked)
}

// KillAll terminates every tracked child process group. Called on shutdown.
func (r *Runner) KillAll() {
	r.mu.Lock()
	cmds := make(map[*exec.Cmd]string, len(r.tracked))
	for cmd, name := range r.tracked {
		cmds[cmd] = name
	}
	r.mu.Unlock()

	for cmd, name := range cmds {
		if cmd.Process == nil {
			continue
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			r.logger.Warn("Failed to kill tracked process group", map[string]interface{}{
				"process": name,
				"pid":     cmd.Process.Pid,
				"error":   err.Error(),
			})
		}
	}

	if len(cmds) > 0 {
		r.logger.Info("Killed tracked child processes", map[string]interface{}{
			"count": len(cmds),
		})
	}
}

// SweepTemp deletes every runner-owned artifact in the temp directory and
// returns how many files were removed.
func (r *Runner) SweepTemp() int {
	entries, err := os.ReadDir(r.cfg.TempDir)
	if err != nil {
		r.logger.Warn("Failed to read temp directory for sweep", map[string]interface{}{
			"temp_dir": r.cfg.TempDir,
			"error":    err.Error(),
		})
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), artifactPrefix) {
			continue
		}
		path := filepath.Join(r.cfg.TempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			r.logger.Warn("Failed to remove temp artifact", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		removed++
	}

	if removed > 0 {
		r.logger.Info("Swept temp artifacts", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed
}

// RemoveArtifact deletes a single decode artifact. Missing files are fine;
// anything else is reported as a SYSTEM fault.
func (r *Runner) RemoveArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return faults.Wrap(faults.CategorySystem, faults.CodeSystemTempCleanupFailed,
			"failed to remove temp artifact", err)
	}
	return nil
}

// artifactPath builds a unique temp file path for a guild's decode output
func (r *Runner) artifactPath(guildID string) string {
	name := fmt.Sprintf("%s%s-%d.pcm", artifactPrefix, guildID, time.Now().UnixNano())
	return filepath.Join(r.cfg.TempDir, name)
}

// ValidateBinaries verifies that yt-dlp and ffmpeg are present on PATH.
// Startup aborts when either is missing.
func (r *Runner) ValidateBinaries() error {
	for _, bin := range []string{r.cfg.YtDlpBinary, r.cfg.FFmpegBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return faults.Wrap(faults.CategoryMedia, faults.CodeMediaBinaryMissing,
				fmt.Sprintf("required binary %q not found on PATH", bin), err)
		}
	}
	return nil
}
