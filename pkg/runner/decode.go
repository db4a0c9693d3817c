package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/latoulicious/groovebox/pkg/faults"
)

// Decode runs the full download-and-transcode pipeline for a stream key,
// producing a raw PCM artifact on disk. The stream key is either a direct
// media URL or a search phrase; search phrases are resolved through the
// single-result provider search. timeout bounds the whole pipeline; zero
// falls back to the configured default. The returned path is the caller's
// to delete.
func (r *Runner) Decode(ctx context.Context, guildID, streamKey string, volumePct int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = r.cfg.DecodeTimeout
	}

	target := searchTarget(streamKey)
	outPath := r.artifactPath(guildID)

	started := time.Now()
	err := r.runPipeline(ctx, guildID, target, volumePct, outPath, timeout)
	if err == nil {
		err = r.checkArtifact(outPath)
	}
	if r.metrics != nil {
		r.metrics.RecordDecode(err == nil, time.Since(started))
	}
	if err != nil {
		_ = os.Remove(outPath)
		return "", err
	}

	r.logger.Info("Decoded audio artifact", map[string]interface{}{
		"guild_id": guildID,
		"path":     outPath,
		"duration": time.Since(started).String(),
	})
	return outPath, nil
}

// DecodeDirect transcodes from a fresh stream URL without re-resolving.
// Used when cached metadata still carries a live stream URL.
func (r *Runner) DecodeDirect(ctx context.Context, guildID, streamURL string, volumePct int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = r.cfg.DecodeTimeout
	}
	outPath := r.artifactPath(guildID)

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := r.ffmpegArgs(streamURL, volumePct, outPath, true)

	started := time.Now()
	_, _, err := r.runCapture(opCtx, guildID, "ffmpeg", r.cfg.FFmpegBinary, args)
	if err == nil {
		err = r.checkArtifact(outPath)
	}
	if r.metrics != nil {
		r.metrics.RecordDecode(err == nil, time.Since(started))
	}
	if err != nil {
		_ = os.Remove(outPath)
		return "", err
	}

	r.logger.Info("Decoded audio artifact from stream URL", map[string]interface{}{
		"guild_id": guildID,
		"path":     outPath,
		"duration": time.Since(started).String(),
	})
	return outPath, nil
}

func (r *Runner) ytdlpPipeArgs(target string) []string {
	return []string{
		"-o", "-",
		"-q",
		"--no-warnings",
		"--no-playlist",
		"-f", "bestaudio/best",
		target,
	}
}

func (r *Runner) ffmpegArgs(input string, volumePct int, outPath string, reconnect bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if reconnect {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	args = append(args,
		"-i", input,
		"-f", r.cfg.AudioFormat,
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-ac", strconv.Itoa(r.cfg.Channels),
		"-af", fmtVolumeFilter(volumePct),
		"-y", outPath,
	)
	return args
}

// runPipeline wires yt-dlp stdout into ffmpeg stdin and waits for the
// transcode to finish. Both children run in their own process groups so
// shutdown can take out any grandchildren they spawn.
func (r *Runner) runPipeline(ctx context.Context, guildID, target string, volumePct int, outPath string, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sem := r.guildSem(guildID)
	if err := sem.Acquire(opCtx, 1); err != nil {
		return opCtx.Err()
	}
	defer sem.Release(1)

	ytdlp := exec.Command(r.cfg.YtDlpBinary, r.ytdlpPipeArgs(target)...)
	ytdlp.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ffmpeg := exec.Command(r.cfg.FFmpegBinary, r.ffmpegArgs("pipe:0", volumePct, outPath, false)...)
	ffmpeg.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ytdlpStdout, err := ytdlp.StdoutPipe()
	if err != nil {
		return faults.Wrap(faults.CategorySystem, faults.CodeSystemSubprocessCreate,
			"failed to create yt-dlp stdout pipe", err)
	}
	ffmpeg.Stdin = ytdlpStdout

	ytdlpStderr, err := ytdlp.StderrPipe()
	if err != nil {
		return faults.Wrap(faults.CategorySystem, faults.CodeSystemSubprocessCreate,
			"failed to create yt-dlp stderr pipe", err)
	}
	ffmpegStderr, err := ffmpeg.StderrPipe()
	if err != nil {
		return faults.Wrap(faults.CategorySystem, faults.CodeSystemSubprocessCreate,
			"failed to create ffmpeg stderr pipe", err)
	}

	ytdlpRing := &stderrRing{}
	ffmpegRing := &stderrRing{}

	if err := ytdlp.Start(); err != nil {
		return faults.Wrap(faults.CategorySystem, faults.CodeSystemSubprocessCreate,
			"failed to start yt-dlp", err)
	}
	r.track(ytdlp, "yt-dlp")

	if err := ffmpeg.Start(); err != nil {
		_ = syscall.Kill(-ytdlp.Process.Pid, syscall.SIGKILL)
		_ = ytdlp.Wait()
		r.untrack(ytdlp)
		return faults.Wrap(faults.CategorySystem, faults.CodeSystemSubprocessCreate,
			"failed to start ffmpeg", err)
	}
	r.track(ffmpeg, "ffmpeg")

	defer func() {
		r.untrack(ytdlp)
		r.untrack(ffmpeg)
	}()

	ytdlpMon := make(chan struct{})
	go func() {
		defer close(ytdlpMon)
		r.monitorStderr(ytdlpStderr, "yt-dlp", guildID, ytdlpRing)
	}()
	ffmpegMon := make(chan struct{})
	go func() {
		defer close(ffmpegMon)
		r.monitorStderr(ffmpegStderr, "ffmpeg", guildID, ffmpegRing)
	}()

	// Wait must not run before the stderr reads complete
	ytdlpDone := make(chan error, 1)
	go func() {
		<-ytdlpMon
		ytdlpDone <- ytdlp.Wait()
	}()
	ffmpegDone := make(chan error, 1)
	go func() {
		<-ffmpegMon
		ffmpegDone <- ffmpeg.Wait()
	}()

	select {
	case <-opCtx.Done():
		r.stopProcessGroup(ffmpeg, "ffmpeg", ffmpegDone)
		r.stopProcessGroup(ytdlp, "yt-dlp", ytdlpDone)
		if opCtx.Err() == context.DeadlineExceeded {
			return faults.New(faults.CategoryMedia, faults.CodeMediaProcessTimeout,
				"decode pipeline exceeded its deadline").
				WithDetail("stderr_tail", combinedTail(ytdlpRing, ffmpegRing))
		}
		return opCtx.Err()

	case ffmpegErr := <-ffmpegDone:
		// ffmpeg exits once its stdin hits EOF, so yt-dlp is finished or
		// nearly so. Give it the grace period before forcing the issue.
		forced := false
		var ytdlpErr error
		select {
		case ytdlpErr = <-ytdlpDone:
		case <-time.After(termGrace):
			forced = true
			_ = syscall.Kill(-ytdlp.Process.Pid, syscall.SIGKILL)
			ytdlpErr = <-ytdlpDone
		}

		if ffmpegErr != nil {
			return classifyExit(ffmpegErr, ffmpegRing.snapshot(), faults.CodeMediaUnavailable)
		}
		if ytdlpErr != nil {
			if forced {
				// Output was already complete; yt-dlp just refused to exit
				r.logger.Warn("yt-dlp lingered after pipeline completion, force killed", map[string]interface{}{
					"guild_id": guildID,
				})
				return nil
			}
			// Downloader died mid-stream; the artifact is truncated
			return classifyExit(ytdlpErr, ytdlpRing.snapshot(), faults.CodeMediaUnavailable)
		}
		return nil
	}
}

func (r *Runner) checkArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return faults.Wrap(faults.CategoryMedia, faults.CodeMediaArtifactMissing,
			"decode produced no artifact", err)
	}
	if info.Size() == 0 {
		return faults.New(faults.CategoryMedia, faults.CodeMediaArtifactMissing,
			fmt.Sprintf("decode produced an empty artifact at %s", path))
	}
	return nil
}

func combinedTail(rings ...*stderrRing) string {
	for i := len(rings) - 1; i >= 0; i-- {
		if tail := rings[i].tail(); tail != "" {
			return tail
		}
	}
	return ""
}
