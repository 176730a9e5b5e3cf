package mic

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/earshotlabs/earshot/internal/config"
)

// ExecSource captures audio by running an external command (arecord, sox,
// parecord) that writes raw 16-bit little-endian PCM to stdout. The process
// is started on first read and owns the physical device until Close.
type ExecSource struct {
	cmdline    []string
	frameBytes int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func NewExecSource(cfg config.MicConfig) (*ExecSource, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse mic command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("mic command is empty")
	}
	frameBytes := cfg.SampleRate * cfg.Channels * 2 * cfg.FrameDurationMS / 1000
	if frameBytes <= 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameBytes)
	}
	return &ExecSource{cmdline: args, frameBytes: frameBytes}, nil
}

func (s *ExecSource) start() error {
	cmd := exec.Command(s.cmdline[0], s.cmdline[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mic stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mic command: %w", err)
	}
	s.cmd = cmd
	s.stdout = stdout
	return nil
}

// ReadFrame returns the next capture frame. The read is paced by the capture
// process itself; a frame arrives roughly every frame duration.
func (s *ExecSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.cmd == nil {
		if err := s.start(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	stdout := s.stdout
	s.mu.Unlock()

	frame := make([]byte, s.frameBytes)
	if _, err := io.ReadFull(stdout, frame); err != nil {
		return nil, fmt.Errorf("read capture stream: %w", err)
	}
	return frame, nil
}

// Close terminates the capture process and releases the device.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	_ = s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	s.cmd = nil
	s.stdout = nil
	if err != nil {
		// Kill produces a non-zero exit; that is expected on shutdown.
		return nil
	}
	return nil
}
