package mic

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/earshotlabs/earshot/internal/config"
)

func testConfig() config.MicConfig {
	return config.MicConfig{
		Mode:              "mock",
		SampleRate:        16000,
		Channels:          1,
		FrameDurationMS:   20,
		SilenceMultiplier: 1.5,
		TrailingSilenceMS: 60,
		MinPhraseMS:       40,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func pcmFrame(amplitude int16) []byte {
	const samples = 160
	frame := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(amplitude))
	}
	return frame
}

// scriptSource replays a fixed frame sequence, then repeats silence forever.
type scriptSource struct {
	frames [][]byte
	reads  int
}

func (s *scriptSource) ReadFrame(_ context.Context) ([]byte, error) {
	s.reads++
	if s.reads <= len(s.frames) {
		return s.frames[s.reads-1], nil
	}
	return pcmFrame(0), nil
}

func (s *scriptSource) Close() error { return nil }

func repeat(frame []byte, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = frame
	}
	return out
}

func TestCalibrateSetsThreshold(t *testing.T) {
	src := &scriptSource{frames: repeat(pcmFrame(1000), 50)}
	m := New(src, testConfig(), testLogger())
	if err := m.Calibrate(context.Background(), time.Second); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if m.threshold != 1500 {
		t.Fatalf("expected threshold 1500, got %f", m.threshold)
	}
}

func TestCalibrateAppliesFloor(t *testing.T) {
	src := &scriptSource{}
	m := New(src, testConfig(), testLogger())
	if err := m.Calibrate(context.Background(), time.Second); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if m.threshold != minEnergyThreshold {
		t.Fatalf("expected floor threshold, got %f", m.threshold)
	}
}

func TestListenForPhraseRequiresCalibration(t *testing.T) {
	m := New(&scriptSource{}, testConfig(), testLogger())
	if _, err := m.ListenForPhrase(context.Background(), time.Second, 5*time.Second); err == nil {
		t.Fatal("expected error without calibration")
	}
}

func TestListenForPhraseSegments(t *testing.T) {
	var frames [][]byte
	frames = append(frames, repeat(pcmFrame(0), 50)...)    // calibration
	frames = append(frames, repeat(pcmFrame(0), 2)...)     // leading silence
	frames = append(frames, repeat(pcmFrame(8000), 5)...)  // speech
	src := &scriptSource{frames: frames}                   // then endless silence

	m := New(src, testConfig(), testLogger())
	if err := m.Calibrate(context.Background(), time.Second); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	segment, err := m.ListenForPhrase(context.Background(), time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 5 voiced frames plus the 3-frame trailing silence window.
	want := 8 * len(pcmFrame(0))
	if len(segment) != want {
		t.Fatalf("expected segment of %d bytes, got %d", want, len(segment))
	}
}

func TestListenForPhraseWaitTimeout(t *testing.T) {
	src := &scriptSource{}
	m := New(src, testConfig(), testLogger())
	if err := m.Calibrate(context.Background(), time.Second); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	_, err := m.ListenForPhrase(context.Background(), 100*time.Millisecond, 5*time.Second)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	// Only the wait budget worth of frames should have been consumed.
	if got := src.reads - 50; got != 5 {
		t.Fatalf("expected 5 frames consumed waiting, got %d", got)
	}
}

func TestListenForPhraseIgnoresShortBlip(t *testing.T) {
	var frames [][]byte
	frames = append(frames, repeat(pcmFrame(0), 50)...)   // calibration
	frames = append(frames, pcmFrame(8000))               // single-frame blip
	src := &scriptSource{frames: frames}                  // then endless silence

	m := New(src, testConfig(), testLogger())
	if err := m.Calibrate(context.Background(), time.Second); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	_, err := m.ListenForPhrase(context.Background(), 200*time.Millisecond, 5*time.Second)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected blip to be discarded, got %v", err)
	}
}

func TestListenForPhraseMaxDuration(t *testing.T) {
	var frames [][]byte
	frames = append(frames, repeat(pcmFrame(0), 50)...)     // calibration
	frames = append(frames, repeat(pcmFrame(8000), 100)...) // continuous speech
	src := &scriptSource{frames: frames}

	m := New(src, testConfig(), testLogger())
	if err := m.Calibrate(context.Background(), time.Second); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	segment, err := m.ListenForPhrase(context.Background(), time.Second, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 10 * len(pcmFrame(0))
	if len(segment) != want {
		t.Fatalf("expected capped segment of %d bytes, got %d", want, len(segment))
	}
}
