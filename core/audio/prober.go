package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"WaveFM/logger"
)

// ProbeResult holds source metadata extracted from an audio container.
// Zero values mean "unknown"; a zero duration is a valid sentinel.
type ProbeResult struct {
	DurationSeconds int
	BitrateKbps     int
	SampleRateHz    int
}

// Prober extracts metadata with ffprobe.
type Prober struct {
	ffmpegPath string
}

// NewProber creates a Prober. The ffprobe binary is derived from the ffmpeg
// path, which keeps a single configuration knob for both tools.
func NewProber(ffmpegPath string) *Prober {
	return &Prober{ffmpegPath: ffmpegPath}
}

// ffprobeOutput maps the fields we need from ffprobe JSON.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}

// Probe returns metadata for the audio file. Probing is a best-effort
// enrichment step: on any failure the result is zero-filled except for the
// caller-supplied duration estimate, and ingest proceeds.
func (p *Prober) Probe(ctx context.Context, inputFile string, durationEstimate int) ProbeResult {
	result := ProbeResult{DurationSeconds: durationEstimate}
	if result.DurationSeconds < 0 {
		result.DurationSeconds = 0
	}

	out, err := p.runFFprobe(ctx, inputFile)
	if err != nil {
		logger.Warn("ffprobe failed, keeping duration estimate",
			logger.String("inputFile", inputFile),
			logger.Int("durationEstimate", durationEstimate),
			logger.ErrorField(err))
		return result
	}

	if out.Format.Duration != "" {
		if seconds, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && seconds >= 0 {
			result.DurationSeconds = int(math.Round(seconds))
		}
	}
	if out.Format.BitRate != "" {
		if bps, err := strconv.Atoi(out.Format.BitRate); err == nil && bps > 0 {
			result.BitrateKbps = bps / 1000
		}
	}
	if len(out.Streams) > 0 && out.Streams[0].SampleRate != "" {
		if hz, err := strconv.Atoi(out.Streams[0].SampleRate); err == nil && hz > 0 {
			result.SampleRateHz = hz
		}
	}

	return result
}

func (p *Prober) runFFprobe(ctx context.Context, inputFile string) (*ffprobeOutput, error) {
	ffprobePath := strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)

	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "format=duration,bit_rate:stream=codec_name,sample_rate",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w", inputFile, err)
	}

	return &probeData, nil
}
