package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

// commandRunner executes name with args, feeding stdin and returning stdout
type commandRunner func(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, error)

// Converter transcodes voice notes with ffmpeg and probes their duration
type Converter struct {
	ffmpegPath  string
	ffprobePath string
	run         commandRunner
	logger      *zap.Logger
}

var _ repositories.AudioConverter = (*Converter)(nil)

func NewConverter(ffmpegPath, ffprobePath string, logger *zap.Logger) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Converter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		run:         execRunner,
		logger:      logger,
	}
}

// Available reports whether both binaries can be found on PATH
func (c *Converter) Available() error {
	for _, bin := range []string{c.ffmpegPath, c.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found: %w", bin, err)
		}
	}
	return nil
}

// Convert re-encodes audio as mono 16kHz mp3
func (c *Converter) Convert(ctx context.Context, audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty payload: %w", entities.ErrInvalidAudio)
	}

	out, err := c.run(ctx, c.ffmpegPath, audio,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", "16000",
		"-codec:a", "libmp3lame",
		"-b:a", "64k",
		"-f", "mp3",
		"pipe:1",
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ffmpeg conversion aborted: %w", ctxErr)
		}
		if isDecodeFailure(err) {
			return nil, fmt.Errorf("ffmpeg could not decode input: %w", entities.ErrInvalidAudio)
		}
		return nil, fmt.Errorf("ffmpeg conversion failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output: %w", entities.ErrInvalidAudio)
	}

	c.logger.Debug("Audio converted to mp3",
		zap.Int("inputBytes", len(audio)),
		zap.Int("outputBytes", len(out)))
	return out, nil
}

// ProbeDuration returns the length in seconds, decoding natively when the
// container allows it and asking ffprobe otherwise
func (c *Converter) ProbeDuration(ctx context.Context, audio []byte) (float64, error) {
	if len(audio) == 0 {
		return 0, fmt.Errorf("empty payload: %w", entities.ErrInvalidAudio)
	}

	seconds, err := nativeDuration(audio)
	if err == nil && seconds > 0 {
		return seconds, nil
	}
	if err != nil && !errors.Is(err, errUnsupportedContainer) {
		c.logger.Debug("Native probe failed, falling back to ffprobe", zap.Error(err))
	}

	out, err := c.run(ctx, c.ffprobePath, audio,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"-i", "pipe:0",
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("ffprobe aborted: %w", ctxErr)
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	value := strings.TrimSpace(string(out))
	seconds, err = strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", value, err)
	}
	return seconds, nil
}

// exitError carries stderr of a failed command
type exitError struct {
	err    error
	stderr string
}

func (e *exitError) Error() string {
	if e.stderr == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%v: %s", e.err, e.stderr)
}

func (e *exitError) Unwrap() error { return e.err }

func isDecodeFailure(err error) bool {
	var ee *exitError
	if !errors.As(err, &ee) {
		return false
	}
	s := strings.ToLower(ee.stderr)
	return strings.Contains(s, "invalid data") || strings.Contains(s, "could not find codec") ||
		strings.Contains(s, "end of file")
}

func execRunner(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &exitError{err: err, stderr: strings.TrimSpace(stderr.String())}
	}
	return stdout.Bytes(), nil
}
