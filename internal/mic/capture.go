package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/earshotlabs/earshot/internal/config"
)

// Threshold floor keeps a dead-silent calibration pass from producing a
// trigger level that fires on quantization noise.
const minEnergyThreshold = 250.0

// Microphone implements Device on top of a FrameSource. Segmentation counts
// frames rather than wall-clock time; the source paces delivery at the
// capture rate, so frame count and elapsed time agree for a live input.
type Microphone struct {
	src        FrameSource
	cfg        config.MicConfig
	log        *slog.Logger
	threshold  float64
	calibrated bool
	mu         sync.Mutex
}

func New(src FrameSource, cfg config.MicConfig, log *slog.Logger) *Microphone {
	return &Microphone{src: src, cfg: cfg, log: log}
}

func (m *Microphone) frameDuration() time.Duration {
	return time.Duration(m.cfg.FrameDurationMS) * time.Millisecond
}

func (m *Microphone) frames(d time.Duration) int {
	n := int(d / m.frameDuration())
	if n < 1 {
		n = 1
	}
	return n
}

// Calibrate measures ambient RMS over the duration and sets the
// voice-activity threshold to ambient level times the configured multiplier.
func (m *Microphone) Calibrate(ctx context.Context, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.frames(duration)
	var sum float64
	for i := 0; i < count; i++ {
		frame, err := m.src.ReadFrame(ctx)
		if err != nil {
			return fmt.Errorf("calibration read: %w", err)
		}
		sum += frameRMS(frame)
	}
	ambient := sum / float64(count)
	m.threshold = ambient * m.cfg.SilenceMultiplier
	if m.threshold < minEnergyThreshold {
		m.threshold = minEnergyThreshold
	}
	m.calibrated = true
	m.log.Info("ambient noise calibration complete",
		slog.Float64("ambient_rms", ambient),
		slog.Float64("threshold", m.threshold))
	return nil
}

// ListenForPhrase scans for a voiced frame, then accumulates until the
// trailing-silence window closes the phrase or maxDuration is hit. Captures
// shorter than min_phrase_ms are discarded as noise blips and scanning
// resumes within the remaining wait budget.
func (m *Microphone) ListenForPhrase(ctx context.Context, waitTimeout, maxDuration time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.calibrated {
		return nil, errors.New("microphone not calibrated")
	}

	waitFrames := m.frames(waitTimeout)
	maxFrames := m.frames(maxDuration)
	silenceFrames := m.frames(time.Duration(m.cfg.TrailingSilenceMS) * time.Millisecond)
	minVoiced := m.frames(time.Duration(m.cfg.MinPhraseMS) * time.Millisecond)

	waited := 0
	for {
		var first []byte
		for {
			if waited >= waitFrames {
				return nil, ErrWaitTimeout
			}
			frame, err := m.src.ReadFrame(ctx)
			if err != nil {
				return nil, fmt.Errorf("read frame: %w", err)
			}
			waited++
			if frameRMS(frame) >= m.threshold {
				first = frame
				break
			}
		}

		segment := append([]byte(nil), first...)
		voiced := 1
		total := 1
		silentRun := 0
		for total < maxFrames {
			frame, err := m.src.ReadFrame(ctx)
			if err != nil {
				return nil, fmt.Errorf("read frame: %w", err)
			}
			segment = append(segment, frame...)
			total++
			if frameRMS(frame) >= m.threshold {
				voiced++
				silentRun = 0
			} else {
				silentRun++
				if silentRun >= silenceFrames {
					break
				}
			}
		}

		if voiced >= minVoiced {
			return segment, nil
		}
		// Too short to be speech; keep scanning.
	}
}

// Close releases the underlying frame source.
func (m *Microphone) Close() error {
	return m.src.Close()
}
