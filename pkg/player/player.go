package player

import (
	"bufio"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"layeh.com/gopus"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
)

// maxOpusBytes is the worst-case encoded frame size passed to gopus.
const maxOpusBytes = 4000

// readBufferSize is the bufio window over the PCM artifact.
const readBufferSize = 64 * 1024

// Result reports how a playback ended. Finished is true only when the
// whole artifact was streamed; a Stop leaves it false with a nil Err.
type Result struct {
	Finished bool
	Err      error
}

// Playback streams one decoded PCM artifact to a voice sink as opus
// frames. Create with Start; at most one per guild at a time.
type Playback struct {
	sink   Sink
	logger logging.Logger

	frameSize  int
	channels   int
	frameBytes int
	frameTime  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan Result

	mu     sync.Mutex
	paused bool
	resume chan struct{}

	muted  atomic.Bool
	frames atomic.Int64
}

// Start opens the artifact and begins streaming it to the sink. The
// returned Playback reports completion on Done.
func Start(sink Sink, artifactPath string, cfg config.AudioConfig) (*Playback, error) {
	file, err := os.Open(artifactPath)
	if err != nil {
		return nil, faults.Wrap(faults.CategoryMedia, faults.CodeMediaArtifactMissing,
			"audio artifact could not be opened", err).
			WithDetail("artifact", artifactPath)
	}

	encoder, err := gopus.NewEncoder(cfg.SampleRate, cfg.Channels, gopus.Audio)
	if err != nil {
		file.Close()
		return nil, faults.Wrap(faults.CategorySystem, faults.CodeSystemConfig,
			"failed to create opus encoder", err).
			WithDetail("sample_rate", cfg.SampleRate).
			WithDetail("channels", cfg.Channels)
	}
	encoder.SetBitrate(cfg.OpusBitrate)
	encoder.SetVbr(true)

	p := &Playback{
		sink:       sink,
		logger:     logging.GetGlobalLoggerFactory().CreateLogger("player"),
		frameSize:  cfg.OpusFrameSize,
		channels:   cfg.Channels,
		frameBytes: cfg.OpusFrameSize * cfg.Channels * 2,
		frameTime:  time.Duration(cfg.OpusFrameSize) * time.Second / time.Duration(cfg.SampleRate),
		stop:       make(chan struct{}),
		done:       make(chan Result, 1),
	}

	go p.stream(file, encoder, artifactPath)
	return p, nil
}

// Done delivers exactly one Result when the stream ends.
func (p *Playback) Done() <-chan Result {
	return p.done
}

// Stop ends playback. Safe to call more than once and after completion.
func (p *Playback) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Pause halts frame delivery without losing position.
func (p *Playback) Pause() {
	p.mu.Lock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
	p.mu.Unlock()
	p.sink.Speaking(false)
}

// Resume continues a paused playback.
func (p *Playback) Resume() {
	p.mu.Lock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
	p.mu.Unlock()
	p.sink.Speaking(true)
}

// Paused reports whether delivery is currently halted.
func (p *Playback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetMuted replaces outgoing frames with silence while keeping the
// playback position advancing.
func (p *Playback) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Elapsed returns how much audio has been delivered so far.
func (p *Playback) Elapsed() time.Duration {
	return time.Duration(p.frames.Load()) * p.frameTime
}

func (p *Playback) stream(file *os.File, encoder *gopus.Encoder, artifactPath string) {
	defer file.Close()
	defer p.sink.Speaking(false)

	if err := p.sink.Speaking(true); err != nil {
		p.finish(Result{Err: faults.Wrap(faults.CategorySession, faults.CodeSessionVoiceFailed,
			"could not start speaking", err)})
		return
	}

	reader := bufio.NewReaderSize(file, readBufferSize)
	byteBuffer := make([]byte, p.frameBytes)
	pcmBuffer := make([]int16, p.frameSize*p.channels)

	for {
		select {
		case <-p.stop:
			p.finish(Result{})
			return
		default:
		}

		if p.waitIfPaused() {
			p.finish(Result{})
			return
		}

		n, err := io.ReadFull(reader, byteBuffer)
		if err == io.EOF {
			p.finish(Result{Finished: true})
			return
		}
		final := false
		if err == io.ErrUnexpectedEOF {
			// Pad the trailing partial frame with silence.
			for i := n; i < p.frameBytes; i++ {
				byteBuffer[i] = 0
			}
			final = true
		} else if err != nil {
			p.finish(Result{Err: faults.Wrap(faults.CategorySystem, faults.CodeSystemFilesystem,
				"failed reading audio artifact", err).
				WithDetail("artifact", artifactPath)})
			return
		}

		if p.muted.Load() {
			for i := range pcmBuffer {
				pcmBuffer[i] = 0
			}
		} else {
			// little-endian int16 samples
			for i := 0; i < len(pcmBuffer); i++ {
				pcmBuffer[i] = int16(byteBuffer[i*2]) | int16(byteBuffer[i*2+1])<<8
			}
		}

		opusData, err := encoder.Encode(pcmBuffer, p.frameSize, maxOpusBytes)
		if err != nil {
			p.finish(Result{Err: faults.Wrap(faults.CategorySystem, faults.CodeSystemConfig,
				"opus encoding failed", err)})
			return
		}

		send := p.sink.OpusSend()
		if send == nil {
			p.finish(Result{Err: faults.New(faults.CategorySession, faults.CodeSessionVoiceFailed,
				"voice connection lost during playback")})
			return
		}
		select {
		case send <- opusData:
			p.frames.Add(1)
		case <-p.stop:
			p.finish(Result{})
			return
		}

		if final {
			p.finish(Result{Finished: true})
			return
		}
	}
}

// waitIfPaused blocks while the playback is paused. It returns true when a
// stop arrived during the wait.
func (p *Playback) waitIfPaused() bool {
	for {
		p.mu.Lock()
		paused, resume := p.paused, p.resume
		p.mu.Unlock()
		if !paused {
			return false
		}
		select {
		case <-p.stop:
			return true
		case <-resume:
		}
	}
}

func (p *Playback) finish(result Result) {
	if result.Err != nil {
		p.logger.Warn("Playback ended with error", map[string]interface{}{
			"elapsed": p.Elapsed().String(),
			"error":   result.Err.Error(),
		})
	}
	p.done <- result
}
