package recording

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"chronicle/internal/services"
)

// CapturedTrack is one speaker's file produced by a capture helper.
type CapturedTrack struct {
	SpeakerID int64
	FilePath  string
}

// Capture is a live per-guild recording that can be paused and stopped.
type Capture interface {
	Pause() error
	Resume() error
	Stop(ctx context.Context) ([]CapturedTrack, error)
}

// VoiceSource connects to a voice channel and begins capturing audio into
// outputDir, one speaker_<id>.wav per participant.
type VoiceSource interface {
	Connect(ctx context.Context, guildID, channelID int64, outputDir string) (Capture, error)
}

// ExecSource runs an external capture helper per session. The helper receives
// the guild ID, channel ID, and output directory as arguments, pauses on
// SIGUSR1, resumes on SIGUSR2, and finalizes its files on SIGINT.
type ExecSource struct {
	command []string
}

// NewExecSource builds a source from the configured capture command.
func NewExecSource(command []string) (*ExecSource, error) {
	if len(command) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "recording", "source", "recording.capture_command is not set", nil)
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "recording", "source",
			fmt.Sprintf("capture helper %q not found in PATH", command[0]), err)
	}
	return &ExecSource{command: append([]string(nil), command...)}, nil
}

func (s *ExecSource) Connect(ctx context.Context, guildID, channelID int64, outputDir string) (Capture, error) {
	args := append(append([]string(nil), s.command[1:]...),
		strconv.FormatInt(guildID, 10),
		strconv.FormatInt(channelID, 10),
		outputDir,
	)
	cmd := exec.Command(s.command[0], args...)
	cmd.Dir = outputDir
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "recording", "start capture", "launch capture helper", err)
	}
	return &execCapture{cmd: cmd, outputDir: outputDir}, nil
}

type execCapture struct {
	cmd       *exec.Cmd
	outputDir string
}

func (c *execCapture) Pause() error {
	return c.signal(syscall.SIGUSR1)
}

func (c *execCapture) Resume() error {
	return c.signal(syscall.SIGUSR2)
}

func (c *execCapture) signal(sig syscall.Signal) error {
	if c.cmd.Process == nil {
		return services.Wrap(services.ErrExternalTool, "recording", "signal", "capture helper not running", nil)
	}
	if err := c.cmd.Process.Signal(sig); err != nil {
		return services.Wrap(services.ErrExternalTool, "recording", "signal", "signal capture helper", err)
	}
	return nil
}

func (c *execCapture) Stop(ctx context.Context) ([]CapturedTrack, error) {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(os.Interrupt)
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		// A capture helper interrupted mid-write exits non-zero; its files
		// are still collected below.
		_ = err
	case <-ctx.Done():
		_ = c.cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	}

	return CollectTracks(c.outputDir)
}

// CollectTracks scans a session directory for finalized speaker files.
func CollectTracks(dir string) ([]CapturedTrack, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "speaker_*.wav"))
	if err != nil {
		return nil, fmt.Errorf("scan capture dir: %w", err)
	}
	tracks := make([]CapturedTrack, 0, len(matches))
	for _, path := range matches {
		base := strings.TrimSuffix(filepath.Base(path), ".wav")
		raw := strings.TrimPrefix(base, "speaker_")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		tracks = append(tracks, CapturedTrack{SpeakerID: id, FilePath: path})
	}
	return tracks, nil
}
