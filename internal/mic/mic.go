// Package mic provides microphone capture with ambient-noise calibration and
// energy-based phrase segmentation.
package mic

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// ErrWaitTimeout is returned by ListenForPhrase when no speech started within
// the wait timeout. It is a normal outcome, not a failure.
var ErrWaitTimeout = errors.New("no phrase detected before wait timeout")

// Device is an open audio input that can be calibrated against background
// noise and then capture one phrase at a time. Implementations are not safe
// for concurrent use; a device belongs to a single capture loop.
type Device interface {
	// Calibrate measures ambient noise for the given duration and tunes the
	// voice-activity threshold. Must be called before ListenForPhrase.
	Calibrate(ctx context.Context, duration time.Duration) error
	// ListenForPhrase blocks until a phrase delimited by trailing silence is
	// captured, the maximum duration is reached, or the wait timeout expires
	// with no speech. The returned segment is 16-bit little-endian PCM.
	ListenForPhrase(ctx context.Context, waitTimeout, maxDuration time.Duration) ([]byte, error)
	// Close releases the underlying input.
	Close() error
}

// FrameSource delivers fixed-duration frames of 16-bit little-endian PCM from
// an audio input, paced at the capture rate.
type FrameSource interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

func frameRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
