package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os/exec"
	"strconv"

	"WaveFM/logger"
)

// waveformSampleRate is deliberately low: the envelope is for display, not
// analysis, and 8 kHz keeps the decode cheap even for hour-long files.
const waveformSampleRate = 8000

// WaveformGenerator produces a downsampled amplitude envelope for rendering
// a visual waveform.
type WaveformGenerator struct {
	ffmpegPath string
	points     int
}

// NewWaveformGenerator creates a generator emitting at most points values.
func NewWaveformGenerator(ffmpegPath string, points int) *WaveformGenerator {
	if points <= 0 {
		points = 200
	}
	return &WaveformGenerator{ffmpegPath: ffmpegPath, points: points}
}

// Generate decodes the file to mono PCM and returns peak amplitudes in [0,1],
// one per bucket, at most the configured number of points. Any decode error
// yields an empty slice: a missing waveform is a valid track state and must
// never fail the ingest.
func (g *WaveformGenerator) Generate(ctx context.Context, inputFile string) []float64 {
	peaks, err := g.decodePCM(ctx, inputFile)
	if err != nil {
		logger.Warn("waveform decode failed, storing empty envelope",
			logger.String("inputFile", inputFile),
			logger.ErrorField(err))
		return []float64{}
	}

	return summarizePeaks(peaks, g.points)
}

// peakFold accumulates per-slot amplitude peaks with bounded memory. It
// starts at one sample per slot and doubles the slot width whenever the slot
// list fills, so an arbitrarily long decode never holds more than maxSlots
// values. Peak is associative: the peak over merged slots equals the peak
// over the underlying samples, so folding loses only bucket-boundary
// precision, never amplitude.
type peakFold struct {
	slots     []float64
	maxSlots  int
	slotWidth int
	count     int     // samples folded into the pending slot
	pending   float64 // running peak of the pending slot
}

func newPeakFold(maxSlots int) *peakFold {
	if maxSlots < 2 {
		maxSlots = 2
	}
	if maxSlots%2 != 0 {
		maxSlots++
	}
	return &peakFold{
		slots:     make([]float64, 0, maxSlots),
		maxSlots:  maxSlots,
		slotWidth: 1,
	}
}

func (f *peakFold) add(amplitude float64) {
	if amplitude > f.pending {
		f.pending = amplitude
	}
	f.count++
	if f.count < f.slotWidth {
		return
	}

	f.slots = append(f.slots, f.pending)
	f.pending = 0
	f.count = 0

	if len(f.slots) < f.maxSlots {
		return
	}
	half := len(f.slots) / 2
	for i := 0; i < half; i++ {
		peak := f.slots[2*i]
		if f.slots[2*i+1] > peak {
			peak = f.slots[2*i+1]
		}
		f.slots[i] = peak
	}
	f.slots = f.slots[:half]
	f.slotWidth *= 2
}

// peaks returns the accumulated slot peaks including any partial final slot.
func (f *peakFold) peaks() []float64 {
	if f.count > 0 {
		return append(f.slots, f.pending)
	}
	return f.slots
}

// decodePCM shells out to ffmpeg for a mono 8 kHz s16le stream on stdout and
// folds the absolute amplitudes into slot peaks as they arrive. Memory stays
// bounded regardless of source length; uploads run several concurrent
// ingests, so holding every decoded sample is not an option.
func (g *WaveformGenerator) decodePCM(ctx context.Context, inputFile string) ([]float64, error) {
	args := []string{
		"-i", inputFile,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(waveformSampleRate),
		"-ac", "1",
		"-",
	}

	cmd := exec.CommandContext(ctx, g.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(stdout, 1<<20)
	fold := newPeakFold(2 * g.points)
	decoded := 0

	buf := make([]byte, 2)
	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			break
		}
		sample := int16(binary.LittleEndian.Uint16(buf))
		fold.add(math.Abs(float64(sample) / 32768.0))
		decoded++
	}

	if err := cmd.Wait(); err != nil {
		// ffmpeg sometimes exits non-zero after emitting all audio; only
		// treat it as a failure when nothing was decoded.
		if decoded == 0 {
			return nil, err
		}
	}
	if decoded == 0 {
		return nil, io.ErrUnexpectedEOF
	}

	return fold.peaks(), nil
}

// summarizePeaks partitions the amplitude sequence into at most points
// equal-size windows (window = ceil(n/points)) and emits the peak of each,
// rounded to two decimals. Peaks rather than RMS keep percussive transients
// visible in the rendered shape.
func summarizePeaks(samples []float64, points int) []float64 {
	if len(samples) == 0 || points <= 0 {
		return []float64{}
	}

	window := (len(samples) + points - 1) / points
	envelope := make([]float64, 0, points)

	for start := 0; start < len(samples); start += window {
		end := start + window
		if end > len(samples) {
			end = len(samples)
		}

		peak := 0.0
		for _, s := range samples[start:end] {
			a := math.Abs(s)
			if a > peak {
				peak = a
			}
		}
		if peak > 1 {
			peak = 1
		}

		envelope = append(envelope, math.Round(peak*100)/100)
	}

	return envelope
}
