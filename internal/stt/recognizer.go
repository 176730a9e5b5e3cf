package stt

import (
	"context"
	"errors"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// ErrUnintelligible means the provider received the audio but could not make
// out any speech. It is an expected outcome, not a failure.
var ErrUnintelligible = errors.New("speech unintelligible")

// ErrUnavailable means the provider could not be reached or rejected the
// request at the transport level.
var ErrUnavailable = errors.New("speech service unavailable")

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (TranscriptResult, error)
}
