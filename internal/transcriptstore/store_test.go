package transcriptstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/earshotlabs/earshot/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.TranscriptStoreConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Append(context.Background(), Transcript{SessionID: "x", Text: "hello"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op, got %v", err)
	}
}

func TestAppendAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	sessionID := "session-123"
	if err := s.BeginSession(context.Background(), sessionID); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := s.Append(context.Background(), Transcript{SessionID: sessionID, Text: "turn on the lights", Confidence: 0.9}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(context.Background(), Transcript{SessionID: sessionID, Text: "what time is it"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	transcripts, err := s.ListSession(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(transcripts) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(transcripts))
	}
	if transcripts[0].Text != "turn on the lights" {
		t.Fatalf("unexpected first transcript: %s", transcripts[0].Text)
	}
	if transcripts[0].Confidence != 0.9 {
		t.Fatalf("unexpected confidence: %f", transcripts[0].Confidence)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{
		Path:          filepath.Join(tmp, "transcripts.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxSessions:   1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.BeginSession(context.Background(), "old-session"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := s.Append(context.Background(), Transcript{SessionID: "old-session", Text: "stale"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.BeginSession(context.Background(), "new-session"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	transcripts, err := s.ListSession(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(transcripts) != 0 {
		t.Fatalf("expected old session pruned, got %d transcripts", len(transcripts))
	}
}
