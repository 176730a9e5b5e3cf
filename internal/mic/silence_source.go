package mic

import (
	"context"
	"time"

	"github.com/earshotlabs/earshot/internal/config"
)

// SilenceSource emits zeroed frames paced at the capture rate. It stands in
// for real hardware in mock mode so the daemon can run end to end.
type SilenceSource struct {
	frameBytes    int
	frameDuration time.Duration
}

func NewSilenceSource(cfg config.MicConfig) *SilenceSource {
	return &SilenceSource{
		frameBytes:    cfg.SampleRate * cfg.Channels * 2 * cfg.FrameDurationMS / 1000,
		frameDuration: time.Duration(cfg.FrameDurationMS) * time.Millisecond,
	}
}

func (s *SilenceSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.frameDuration):
	}
	return make([]byte, s.frameBytes), nil
}

func (s *SilenceSource) Close() error { return nil }
