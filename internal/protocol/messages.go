package protocol

import "time"

// Transcript represents one recognized phrase broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}

// Status represents a coarse listener lifecycle update.
type Status struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	At        time.Time `json:"at"`
}

const (
	SubjectTranscript = "voice.transcript"
	SubjectStatus     = "voice.status"
)
