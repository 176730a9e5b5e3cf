package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGoogleTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech:recognize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected api key in query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"Turn On The Lights","confidence":0.92}]}]}`))
	}))
	t.Cleanup(srv.Close)

	rec := NewGoogleRecognizer(srv.URL, "test-key", "en-US")
	result, err := rec.Transcribe(context.Background(), []byte{0, 0, 0, 0}, 16000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "Turn On The Lights" {
		t.Fatalf("unexpected transcript: %q", result.Text)
	}
	if result.Confidence != 0.92 {
		t.Fatalf("unexpected confidence: %f", result.Confidence)
	}
}

func TestGoogleTranscribeUnintelligible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	t.Cleanup(srv.Close)

	rec := NewGoogleRecognizer(srv.URL, "", "en-US")
	_, err := rec.Transcribe(context.Background(), []byte{0, 0}, 16000, 1)
	if !errors.Is(err, ErrUnintelligible) {
		t.Fatalf("expected ErrUnintelligible, got %v", err)
	}
}

func TestGoogleTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	rec := NewGoogleRecognizer(srv.URL, "", "en-US")
	_, err := rec.Transcribe(context.Background(), []byte{0, 0}, 16000, 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGoogleTranscribeUnreachable(t *testing.T) {
	rec := NewGoogleRecognizer("http://127.0.0.1:1", "", "en-US")
	_, err := rec.Transcribe(context.Background(), []byte{0, 0}, 16000, 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
