// Package transcode converts raw engine audio into the requested output
// container format by shelling out to ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-gateway/internal/core"
)

// DefaultBinary is the ffmpeg executable used when none is configured.
const DefaultBinary = "ffmpeg"

// ErrNoAudioData indicates there is no raw audio to convert.
var ErrNoAudioData = errors.New("no audio data to transcode")

// FFmpeg implements core.Transcoder by invoking the ffmpeg binary with
// piped input and output.
type FFmpeg struct {
	binary string
	log    *logger.Logger
}

// NewFFmpeg creates a transcoder using the given ffmpeg binary path.
// An empty path falls back to DefaultBinary.
func NewFFmpeg(binary string, log *logger.Logger) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}

	return &FFmpeg{
		binary: binary,
		log:    log,
	}
}

// Transcode converts raw audio from the source container format to the
// target format, sample rate, and channel count. Audio already in the
// target format passes through untouched.
func (f *FFmpeg) Transcode(
	ctx context.Context,
	raw []byte,
	source, target core.AudioFormat,
	sampleRate, channels int,
) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &core.TranscodeError{Target: target, Err: ErrNoAudioData}
	}

	if source == target && compliant(raw, source, sampleRate, channels) {
		return raw, nil
	}

	args := conversionArgs(source, target, sampleRate, channels)

	// #nosec G204 -- the binary path comes from validated configuration
	cmd := exec.CommandContext(ctx, f.binary, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdin = bytes.NewReader(raw)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return nil, &core.TranscodeError{
			Target: target,
			Err: fmt.Errorf(
				"ffmpeg execution failed: %w - output: %s",
				err, stderr.String(),
			),
		}
	}

	if stdout.Len() == 0 {
		return nil, &core.TranscodeError{
			Target: target,
			Err:    errors.New("ffmpeg produced no output"),
		}
	}

	f.log.Info(
		"Transcoded %d bytes of %s to %d bytes of %s",
		len(raw), source, stdout.Len(), target,
	)

	return stdout.Bytes(), nil
}

// compliant reports whether raw already satisfies the requested sample
// rate and channel count. Only WAV headers expose those fields without
// decoding; other containers are judged by format alone.
func compliant(raw []byte, format core.AudioFormat, sampleRate, channels int) bool {
	if format != core.FormatWAV {
		return true
	}

	parsed, ok := parseWAV(raw)
	if !ok {
		return false
	}

	if sampleRate > 0 && parsed.sampleRate != sampleRate {
		return false
	}

	if channels > 0 && parsed.channels != channels {
		return false
	}

	return true
}

func conversionArgs(
	source, target core.AudioFormat,
	sampleRate, channels int,
) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", string(source),
		"-i", "pipe:0",
	}

	if sampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(sampleRate))
	}

	if channels > 0 {
		args = append(args, "-ac", strconv.Itoa(channels))
	}

	args = append(args, "-c:a", codecFor(target), "-f", string(target), "pipe:1")

	return args
}

func codecFor(target core.AudioFormat) string {
	switch target {
	case core.FormatOGG:
		return "libopus"
	case core.FormatMP3:
		return "libmp3lame"
	case core.FormatWAV:
		return "pcm_s16le"
	default:
		return "copy"
	}
}
