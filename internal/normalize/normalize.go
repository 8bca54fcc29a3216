// Package normalize conditions user-supplied audio before it is handed to a
// transcription provider: DC-offset removal, a hard noise gate, peak
// normalization, mono downmix and PCM WAV re-encoding. When the input cannot
// be decoded the original bytes pass through unchanged; normalization failure
// is never fatal to a job.
package normalize

import (
	"log"
	"math"

	"github.com/voicepipe/voicepipe/internal/wav"
)

// Audio holds decoded per-channel float samples.
type Audio struct {
	Channels   [][]float32
	SampleRate int
}

// NumSamples returns the per-channel sample count.
func (a *Audio) NumSamples() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0])
}

// Duration returns the play time in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(a.NumSamples()) / float64(a.SampleRate)
}

// Decoder turns container bytes into raw samples. It stands in for the
// platform audio decoder; inputs it cannot handle make the normalizer fall
// back to pass-through.
type Decoder interface {
	Decode(data []byte) (*Audio, error)
}

// WAVDecoder decodes uncompressed 16-bit PCM WAV files.
type WAVDecoder struct{}

func (WAVDecoder) Decode(data []byte) (*Audio, error) {
	channels, rate, err := wav.Decode(data)
	if err != nil {
		return nil, err
	}
	return &Audio{Channels: channels, SampleRate: rate}, nil
}

// Default processing levels.
const (
	DefaultGateThreshold = 0.01 // fraction of full scale below which samples are zeroed
	DefaultTargetDB      = -3.0 // peak target after normalization
)

// Options configures the normalization steps.
type Options struct {
	GateThreshold float64
	TargetDB      float64
}

func DefaultOptions() Options {
	return Options{
		GateThreshold: DefaultGateThreshold,
		TargetDB:      DefaultTargetDB,
	}
}

// Result is the outcome of a normalization attempt. When Normalized is
// false, Bytes is the untouched original input and Audio is nil.
type Result struct {
	Bytes      []byte
	Normalized bool
	Audio      *Audio // mono, post-processing samples
	SampleRate int
	Duration   float64
}

// Normalize decodes, conditions and re-encodes the input. The original
// bytes are never mutated; every step allocates fresh buffers.
func Normalize(data []byte, dec Decoder, opts Options) *Result {
	if dec == nil {
		dec = WAVDecoder{}
	}
	if opts.GateThreshold <= 0 {
		opts.GateThreshold = DefaultGateThreshold
	}
	if opts.TargetDB == 0 {
		opts.TargetDB = DefaultTargetDB
	}

	decoded, err := dec.Decode(data)
	if err != nil || decoded.NumSamples() == 0 {
		// Deliberate fallback: many provider APIs accept the original
		// container directly.
		log.Printf("normalize: decode failed, passing original bytes through: %v", err)
		return &Result{Bytes: data, Normalized: false}
	}

	channels := copyChannels(decoded.Channels)
	removeDCOffset(channels)
	applyNoiseGate(channels, float32(opts.GateThreshold))
	normalizePeak(channels, opts.TargetDB)

	mono := wav.DownmixToMono(channels)
	encoded, err := wav.Encode([][]float32{mono}, decoded.SampleRate)
	if err != nil {
		log.Printf("normalize: re-encode failed, passing original bytes through: %v", err)
		return &Result{Bytes: data, Normalized: false}
	}

	audio := &Audio{Channels: [][]float32{mono}, SampleRate: decoded.SampleRate}
	return &Result{
		Bytes:      encoded,
		Normalized: true,
		Audio:      audio,
		SampleRate: decoded.SampleRate,
		Duration:   audio.Duration(),
	}
}

func copyChannels(channels [][]float32) [][]float32 {
	out := make([][]float32, len(channels))
	for c := range channels {
		out[c] = make([]float32, len(channels[c]))
		copy(out[c], channels[c])
	}
	return out
}

// removeDCOffset subtracts each channel's mean from every sample in it.
func removeDCOffset(channels [][]float32) {
	for _, ch := range channels {
		if len(ch) == 0 {
			continue
		}
		var sum float64
		for _, s := range ch {
			sum += float64(s)
		}
		mean := float32(sum / float64(len(ch)))
		for i := range ch {
			ch[i] -= mean
		}
	}
}

// applyNoiseGate zeroes samples below the threshold. A hard gate is enough
// here: it only touches near-silent background, not transitions.
func applyNoiseGate(channels [][]float32, threshold float32) {
	for _, ch := range channels {
		for i, s := range ch {
			if s < threshold && s > -threshold {
				ch[i] = 0
			}
		}
	}
}

// normalizePeak scales all channels so the loudest sample lands at the
// target level. A silent file (peak 0) is left as-is.
func normalizePeak(channels [][]float32, targetDB float64) {
	var peak float32
	for _, ch := range channels {
		for _, s := range ch {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
	}
	if peak == 0 {
		return
	}

	gain := float32(math.Pow(10, targetDB/20)) / peak
	for _, ch := range channels {
		for i := range ch {
			ch[i] *= gain
		}
	}
}
