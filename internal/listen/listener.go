// Package listen runs the continuous capture-and-recognize loop: it owns the
// microphone, detects phrase boundaries, hands each phrase to a speech
// recognizer, and delivers lowercased text to a caller-supplied callback.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/earshotlabs/earshot/internal/config"
	"github.com/earshotlabs/earshot/internal/mic"
	"github.com/earshotlabs/earshot/internal/stt"
)

// Status values delivered to the optional status callback.
const (
	StatusListening  = "listening"
	StatusProcessing = "processing"
)

// TextFunc receives one recognized phrase. It runs on the capture worker, so
// it must not block for long; the next capture cycle waits on it.
type TextFunc func(text string)

// StatusFunc receives coarse lifecycle updates: StatusListening,
// StatusProcessing, or "error: <message>". Runs on the capture worker.
type StatusFunc func(status string)

// DeviceFactory opens the audio input. Called once, lazily, on the first
// successful Start; the device is reused across Start/Stop cycles.
type DeviceFactory func() (mic.Device, error)

// Listener drives one capture worker at a time over a lazily acquired
// microphone. The listening flag is the only state shared with the worker:
// the controller writes it, the worker reads it at the top of each cycle. A
// stale read just delays stop observation by one iteration.
type Listener struct {
	cfg        config.ListenerConfig
	sampleRate int
	channels   int
	recognizer stt.Recognizer
	openDevice DeviceFactory
	log        *slog.Logger

	listening atomic.Bool

	mu         sync.Mutex // guards device acquisition and worker handoff
	device     mic.Device
	calibrated bool
	done       chan struct{}
}

func New(cfg config.ListenerConfig, sampleRate, channels int, recognizer stt.Recognizer, openDevice DeviceFactory, log *slog.Logger) *Listener {
	return &Listener{
		cfg:        cfg,
		sampleRate: sampleRate,
		channels:   channels,
		recognizer: recognizer,
		openDevice: openDevice,
		log:        log,
	}
}

// Start begins continuous listening. It is a no-op when already listening,
// so at most one capture worker exists per Listener. The microphone is
// opened and calibrated on the first call only; an open or calibration
// failure aborts the start, resets state, and is returned to the caller.
func (l *Listener) Start(onText TextFunc, onStatus StatusFunc) error {
	if onText == nil {
		return errors.New("text callback must not be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listening.Load() {
		return nil
	}
	l.listening.Store(true)

	if l.device == nil {
		device, err := l.openDevice()
		if err != nil {
			l.listening.Store(false)
			l.log.Error("failed to open microphone", slog.String("error", err.Error()))
			return fmt.Errorf("open microphone: %w", err)
		}
		l.device = device
	}
	if !l.calibrated {
		duration := time.Duration(l.cfg.CalibrationMS) * time.Millisecond
		l.log.Info("adjusting for ambient noise", slog.Duration("duration", duration))
		if err := l.device.Calibrate(context.Background(), duration); err != nil {
			l.listening.Store(false)
			l.log.Error("ambient noise calibration failed", slog.String("error", err.Error()))
			return fmt.Errorf("calibrate microphone: %w", err)
		}
		l.calibrated = true
	}

	// The worker gets its own device reference: Close may nil out l.device
	// after a timed-out join while this worker is still draining.
	done := make(chan struct{})
	l.done = done
	go l.captureLoop(done, l.device, onText, onStatus)
	return nil
}

// Stop signals the worker to exit and waits for it, bounded by the
// configured join timeout. The worker observes the flag at the top of its
// next cycle; an in-flight capture is not interrupted beyond its own wait
// timeout. Safe to call when not listening.
func (l *Listener) Stop() {
	l.mu.Lock()
	l.listening.Store(false)
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return
	}
	join := time.Duration(l.cfg.StopJoinMS) * time.Millisecond
	select {
	case <-done:
	case <-time.After(join):
		l.log.Warn("capture worker did not exit before join timeout",
			slog.Duration("timeout", join))
	}
}

// IsListening reports whether a capture session is active.
func (l *Listener) IsListening() bool {
	return l.listening.Load()
}

// Close stops listening and releases the microphone.
func (l *Listener) Close() error {
	l.Stop()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.device == nil {
		return nil
	}
	err := l.device.Close()
	l.device = nil
	l.calibrated = false
	return err
}

func (l *Listener) captureLoop(done chan struct{}, device mic.Device, onText TextFunc, onStatus StatusFunc) {
	defer close(done)

	waitTimeout := time.Duration(l.cfg.WaitTimeoutMS) * time.Millisecond
	phraseLimit := time.Duration(l.cfg.PhraseLimitMS) * time.Millisecond

	for l.listening.Load() {
		if onStatus != nil {
			onStatus(StatusListening)
		}

		segment, err := device.ListenForPhrase(context.Background(), waitTimeout, phraseLimit)
		if errors.Is(err, mic.ErrWaitTimeout) {
			// No speech yet; keep waiting.
			continue
		}
		if err != nil {
			if onStatus != nil {
				onStatus("error: " + err.Error())
			}
			l.log.Warn("audio capture failed", slog.String("error", err.Error()))
			continue
		}

		if onStatus != nil {
			onStatus(StatusProcessing)
		}
		text, err := l.recognizeSegment(context.Background(), segment)
		if err != nil {
			if onStatus != nil {
				onStatus("error: " + err.Error())
			}
			l.log.Warn("recognition failed", slog.String("error", err.Error()))
			continue
		}
		if text != "" {
			onText(text)
		}
	}
}

// recognizeSegment submits one captured segment to the recognizer and
// returns the lowercased transcription. Unintelligible speech and an
// unreachable service both come back as empty text: the caller only ever
// sees absence, never a transport failure.
func (l *Listener) recognizeSegment(ctx context.Context, segment []byte) (string, error) {
	result, err := l.recognizer.Transcribe(ctx, segment, l.sampleRate, l.channels)
	if err != nil {
		switch {
		case errors.Is(err, stt.ErrUnintelligible):
			return "", nil
		case errors.Is(err, stt.ErrUnavailable):
			l.log.Warn("could not reach speech service", slog.String("error", err.Error()))
			return "", nil
		default:
			return "", err
		}
	}
	return strings.ToLower(result.Text), nil
}
